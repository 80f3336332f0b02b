package handlers

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/avert"
	"github.com/soundprediction/avert/pkg/grouping"
	"github.com/soundprediction/avert/pkg/types"
)

// Build information - can be set at build time using ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

const serviceName = "avert"

// describer is implemented by evaluators that expose their settings.
type describer interface {
	Method() types.ScoringMethod
	Grouping() grouping.Method
}

// BreakerState reports the state of the backend circuit breaker.
type BreakerState func() string

// HealthHandler handles health check requests
type HealthHandler struct {
	evaluator avert.Evaluator
	breaker   BreakerState
	started   time.Time
}

// NewHealthHandler creates a new health handler. breaker may be nil.
func NewHealthHandler(e avert.Evaluator, breaker BreakerState) *HealthHandler {
	return &HealthHandler{
		evaluator: e,
		breaker:   breaker,
		started:   time.Now(),
	}
}

// HealthCheck handles GET /health - basic liveness check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// ReadinessCheck handles GET /ready. The service is not ready without an
// evaluator or while the backend breaker is open.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	response := gin.H{
		"status":    "ready",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	checks := gin.H{}
	response["checks"] = checks

	allHealthy := true
	if h.evaluator == nil {
		checks["evaluator"] = gin.H{"status": "unhealthy", "error": "evaluator not initialized"}
		allHealthy = false
	} else {
		check := gin.H{"status": "healthy"}
		if d, ok := h.evaluator.(describer); ok {
			check["method"] = string(d.Method())
			check["grouping"] = d.Grouping().String()
		}
		checks["evaluator"] = check
	}

	if h.breaker != nil {
		state := h.breaker()
		check := gin.H{"status": "healthy", "state": state}
		if state == "open" {
			check["status"] = "unhealthy"
			allHealthy = false
		}
		checks["backend"] = check
	}

	checks["system"] = gin.H{
		"status": "healthy",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}

	if !allHealthy {
		response["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// LivenessCheck handles GET /live - Kubernetes liveness probe endpoint
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// DetailedHealthCheck handles GET /health/detailed
func (h *HealthHandler) DetailedHealthCheck(c *gin.Context) {
	m := h.getSystemMetrics()
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": Version,
		"build_info": gin.H{
			"git_commit": GitCommit,
			"build_time": BuildTime,
		},
		"environment": gin.H{"go_version": GoVersion},
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"system":      m,
	})
}

// SystemMetrics holds system runtime metrics
type SystemMetrics struct {
	MemoryUsage string `json:"memory_usage"`
	Goroutines  int    `json:"goroutines"`
	GCCycles    uint32 `json:"gc_cycles"`
	HeapObjects uint64 `json:"heap_objects"`
	StackUsage  string `json:"stack_usage"`
}

// getSystemMetrics collects current system runtime metrics
func (h *HealthHandler) getSystemMetrics() SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemMetrics{
		MemoryUsage: fmt.Sprintf("%.2f MB", float64(m.Alloc)/(1024*1024)),
		Goroutines:  runtime.NumGoroutine(),
		GCCycles:    m.NumGC,
		HeapObjects: m.HeapObjects,
		StackUsage:  fmt.Sprintf("%.2f MB", float64(m.StackSys)/(1024*1024)),
	}
}
