package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/avert"
	"github.com/soundprediction/avert/pkg/grouping"
)

func serve(t *testing.T, h gin.HandlerFunc, path string) (int, map[string]any) {
	t.Helper()
	r := gin.New()
	r.GET(path, h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestHealthCheck(t *testing.T) {
	code, body := serve(t, NewHealthHandler(nil, nil).HealthCheck, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "avert", body["service"])
	assert.Contains(t, body, "timestamp")
	assert.Contains(t, body, "version")
}

func TestLivenessCheck(t *testing.T) {
	code, body := serve(t, NewHealthHandler(nil, nil).LivenessCheck, "/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", body["status"])
}

func TestReadinessCheck(t *testing.T) {
	engine, err := avert.NewEngine(&keywordScorer{}, &avert.Config{Grouping: grouping.MustParse("mean_top_k_2"), MaxLen: -1}, nil)
	require.NoError(t, err)

	tests := []struct {
		name      string
		evaluator avert.Evaluator
		breaker   BreakerState
		status    int
		want      string
	}{
		{name: "no evaluator", status: http.StatusServiceUnavailable, want: "not_ready"},
		{name: "ready", evaluator: engine, status: http.StatusOK, want: "ready"},
		{name: "breaker closed", evaluator: engine, breaker: func() string { return "closed" }, status: http.StatusOK, want: "ready"},
		{name: "breaker open", evaluator: engine, breaker: func() string { return "open" }, status: http.StatusServiceUnavailable, want: "not_ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := serve(t, NewHealthHandler(tt.evaluator, tt.breaker).ReadinessCheck, "/ready")
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.want, body["status"])

			checks, ok := body["checks"].(map[string]any)
			require.True(t, ok)
			evaluator, ok := checks["evaluator"].(map[string]any)
			require.True(t, ok)
			if tt.evaluator == nil {
				assert.Equal(t, "unhealthy", evaluator["status"])
				return
			}
			assert.Equal(t, "embedding", evaluator["method"])
			assert.Equal(t, "mean_top_k_2", evaluator["grouping"])
		})
	}
}

func TestDetailedHealthCheck(t *testing.T) {
	code, body := serve(t, NewHealthHandler(nil, nil).DetailedHealthCheck, "/health/detailed")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "build_info")
	system, ok := body["system"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, system["memory_usage"])
}

func TestGetSystemMetrics(t *testing.T) {
	m := NewHealthHandler(nil, nil).getSystemMetrics()
	assert.NotEmpty(t, m.MemoryUsage)
	assert.NotEmpty(t, m.StackUsage)
	assert.GreaterOrEqual(t, m.Goroutines, 1)
}

func TestCatalog(t *testing.T) {
	code, body := serve(t, Groupings, "/v1/groupings")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"max", "mean", "mean_top_k_<k>"}, body["groupings"])

	code, body = serve(t, Templates, "/v1/templates")
	assert.Equal(t, http.StatusOK, code)
	templates, ok := body["templates"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, templates)
}
