// Package server exposes the scoring engine over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soundprediction/avert"
	"github.com/soundprediction/avert/pkg/config"
	"github.com/soundprediction/avert/pkg/logger"
	"github.com/soundprediction/avert/pkg/metrics"
	"github.com/soundprediction/avert/pkg/server/handlers"
	"github.com/soundprediction/avert/pkg/types"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Options wires the server to the scoring stack. Only Evaluator is
// required.
type Options struct {
	Evaluator avert.Evaluator
	Defaults  handlers.Defaults
	// Gatherer backs /metrics; the route is absent when nil.
	Gatherer prometheus.Gatherer
	Recorder *metrics.Recorder
	Breaker  handlers.BreakerState
	Logger   *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	config  *config.Config
	options Options
	logger  *slog.Logger
	router  *gin.Engine
	server  *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, opts Options) *Server {
	return &Server{
		config:  cfg,
		options: opts,
		logger:  logger.OrDiscard(opts.Logger),
	}
}

// Setup sets up the server routes and middleware
func (s *Server) Setup() {
	if s.config.Server.Mode != "" {
		gin.SetMode(s.config.Server.Mode)
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())
	s.router.Use(contextMiddleware())
	s.router.Use(logMiddleware(s.logger))

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// setupRoutes sets up all the routes
func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.options.Evaluator, s.options.Breaker)
	scoreHandler := handlers.NewScoreHandler(s.options.Evaluator, s.options.Defaults, s.options.Recorder, s.logger)

	// Health endpoints
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)
	s.router.GET("/live", healthHandler.LivenessCheck) // Kubernetes liveness probe
	s.router.GET("/health/detailed", healthHandler.DetailedHealthCheck)

	if s.options.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.options.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.router.Group("/v1")
	{
		v1.POST("/score", scoreHandler.Score)
		v1.POST("/score/groups", scoreHandler.ScoreGroups)
		v1.GET("/templates", handlers.Templates)
		v1.GET("/groupings", handlers.Groupings)
	}
}

// Handler returns the router. Setup must have been called.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the server
func (s *Server) Start() error {
	s.logger.Info("Starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping server")
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID, X-Task-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// contextMiddleware assigns a request id and stores it, with the optional
// X-Task-ID header, on the request context.
func contextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(handlers.RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		ctx := types.WithRequest(c.Request.Context(), requestID, c.GetHeader("X-Task-ID"), "server")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// logMiddleware writes one debug line per request.
func logMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.DebugContext(c.Request.Context(), "Request handled",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
