package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/avert"
	"github.com/soundprediction/avert/pkg/candidates"
	"github.com/soundprediction/avert/pkg/metrics"
	"github.com/soundprediction/avert/pkg/resilience"
	"github.com/soundprediction/avert/pkg/server/dto"
	"github.com/soundprediction/avert/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// keywordScorer gives 0.9 to candidates that mention the keyword and 0.1 to
// the rest.
type keywordScorer struct {
	keyword string
	err     error
}

func (k *keywordScorer) Score(_ context.Context, _ string, cands []string) ([]float64, error) {
	if k.err != nil {
		return nil, k.err
	}
	out := make([]float64, len(cands))
	for i, c := range cands {
		out[i] = 0.1
		if strings.Contains(c, k.keyword) {
			out[i] = 0.9
		}
	}
	return out, nil
}

func (k *keywordScorer) Method() types.ScoringMethod { return types.MethodEmbedding }
func (k *keywordScorer) Close() error                 { return nil }

func newScoreRouter(t *testing.T, s *keywordScorer, rec *metrics.Recorder) *gin.Engine {
	t.Helper()
	engine, err := avert.NewEngine(s, nil, nil)
	require.NoError(t, err)
	h := NewScoreHandler(engine, Defaults{Symbols: candidates.Letters}, rec, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(RequestIDKey, "req-1") })
	r.POST("/v1/score", h.Score)
	r.POST("/v1/score/groups", h.ScoreGroups)
	return r
}

func post(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestScore(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg, types.MethodEmbedding)
	r := newScoreRouter(t, &keywordScorer{keyword: "Paris"}, rec)

	w := post(t, r, "/v1/score", dto.ScoreRequest{
		Response: "Paris is the capital",
		TaskID:   "geo",
		Correct:  []string{"Paris"},
		Wrong:    []string{"London"},
		Trace:    true,
		Target:   "Paris",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.ScoreResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "embedding", resp.Method)
	assert.Equal(t, "max", resp.Grouping)
	assert.Equal(t, types.GroupCorrect, resp.Best)
	require.Len(t, resp.Groups, len(types.DefaultGroups))
	assert.Equal(t, types.GroupCorrect, resp.Groups[0].Name)
	assert.InDelta(t, 0.75, resp.Groups[0].Score, 1e-9)
	assert.Len(t, resp.Scores, len(resp.Candidates))
	require.NotNil(t, resp.Trace)
	assert.Equal(t, len(resp.Candidates), resp.Trace.Len())

	require.NotNil(t, resp.Verdict)
	assert.True(t, resp.Verdict.Match)
	assert.False(t, resp.Verdict.ExactMatch)
	assert.True(t, resp.Verdict.Valid)

	expected := `
# HELP avert_scores_total Scored responses by winning group
# TYPE avert_scores_total counter
avert_scores_total{group="correct",method="embedding"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "avert_scores_total"))
}

func TestScoreGroups(t *testing.T) {
	tests := []struct {
		name       string
		trace      bool
		wantScores int
	}{
		{"untraced", false, 0},
		{"traced", true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newScoreRouter(t, &keywordScorer{keyword: "Paris"}, nil)

			w := post(t, r, "/v1/score/groups", dto.GroupsRequest{
				Response: "Paris",
				Groups: []dto.Group{
					{Name: "yes", Candidates: []string{"Paris", "Paris, France"}},
					{Name: "no", Candidates: []string{"Rome"}},
				},
				Trace: tt.trace,
			})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var resp dto.ScoreResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, []dto.GroupScore{{Name: "yes", Score: 0.9}, {Name: "no", Score: 0.1}}, roundScores(resp.Groups))
			assert.Equal(t, "yes", resp.Best)
			assert.Len(t, resp.Scores, tt.wantScores)
			assert.Equal(t, tt.trace, strings.Contains(w.Body.String(), `"scores"`))
		})
	}
}

func TestScoreWithoutTrace(t *testing.T) {
	r := newScoreRouter(t, &keywordScorer{keyword: "Paris"}, nil)

	w := post(t, r, "/v1/score", dto.ScoreRequest{
		Response: "Paris",
		Correct:  []string{"Paris"},
		Wrong:    []string{"London"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.ScoreResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, types.GroupCorrect, resp.Best)
	assert.Nil(t, resp.Scores)
	assert.Nil(t, resp.Candidates)
	assert.Nil(t, resp.Trace)
	assert.NotContains(t, w.Body.String(), `"scores"`)
}

func TestScoreGroupsMetricsStayBounded(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg, types.MethodEmbedding)
	r := newScoreRouter(t, &keywordScorer{keyword: "Paris"}, rec)

	const requests = 50
	for i := 0; i < requests; i++ {
		w := post(t, r, "/v1/score/groups", dto.GroupsRequest{
			Response: "Paris",
			Groups: []dto.Group{
				{Name: fmt.Sprintf("city-%d", i), Candidates: []string{"Paris"}},
				{Name: "other", Candidates: []string{"Rome"}},
			},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	count, err := testutil.GatherAndCount(reg, "avert_scores_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expected := fmt.Sprintf(`
# HELP avert_scores_total Scored responses by winning group
# TYPE avert_scores_total counter
avert_scores_total{group="custom",method="embedding"} %d
`, requests)
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "avert_scores_total"))
}

func roundScores(in []dto.GroupScore) []dto.GroupScore {
	out := make([]dto.GroupScore, len(in))
	for i, g := range in {
		out[i] = dto.GroupScore{Name: g.Name, Score: float64(int(g.Score*1e6+0.5)) / 1e6}
	}
	return out
}

func TestScoreErrors(t *testing.T) {
	tests := []struct {
		name   string
		scorer *keywordScorer
		path   string
		body   any
		status int
		code   string
		field  string
	}{
		{
			name:   "malformed json",
			path:   "/v1/score",
			body:   "not an object",
			status: http.StatusBadRequest,
			code:   "invalid_request",
		},
		{
			name:   "no correct answers",
			path:   "/v1/score",
			body:   dto.ScoreRequest{Response: "x"},
			status: http.StatusBadRequest,
			code:   "invalid_request",
		},
		{
			name:   "unknown symbols",
			path:   "/v1/score",
			body:   dto.ScoreRequest{Response: "x", Correct: []string{"a"}, Symbols: "greek"},
			status: http.StatusBadRequest,
			code:   "configuration",
			field:  "symbols",
		},
		{
			name:   "unknown group",
			path:   "/v1/score",
			body:   dto.ScoreRequest{Response: "x", Correct: []string{"a"}, Groups: []string{"correct", "maybe"}},
			status: http.StatusBadRequest,
			code:   "configuration",
			field:  "groups",
		},
		{
			name: "empty group",
			path: "/v1/score/groups",
			body: dto.GroupsRequest{Response: "x", Groups: []dto.Group{
				{Name: "yes", Candidates: []string{"a"}},
				{Name: "no"},
			}},
			status: http.StatusUnprocessableEntity,
			code:   "degenerate_group",
		},
		{
			name: "duplicate group",
			path: "/v1/score/groups",
			body: dto.GroupsRequest{Response: "x", Groups: []dto.Group{
				{Name: "yes", Candidates: []string{"a"}},
				{Name: "yes", Candidates: []string{"b"}},
			}},
			status: http.StatusBadRequest,
			code:   "invalid_groups",
		},
		{
			name:   "breaker open",
			scorer: &keywordScorer{err: fmt.Errorf("%w: tei-embedding", resilience.ErrBreakerOpen)},
			path:   "/v1/score/groups",
			body:   dto.GroupsRequest{Response: "x", Groups: []dto.Group{{Name: "yes", Candidates: []string{"a"}}}},
			status: http.StatusServiceUnavailable,
			code:   "breaker_open",
		},
		{
			name:   "backend failure",
			scorer: &keywordScorer{err: fmt.Errorf("connection refused")},
			path:   "/v1/score",
			body:   dto.ScoreRequest{Response: "x", Correct: []string{"a"}},
			status: http.StatusBadGateway,
			code:   "backend",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.scorer
			if s == nil {
				s = &keywordScorer{keyword: "a"}
			}
			w := post(t, newScoreRouter(t, s, nil), tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var resp dto.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error)
			assert.Equal(t, tt.field, resp.Field)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(types.NewConfigurationError("x", "bad")))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(&types.NormalizationError{}))
	assert.Equal(t, http.StatusGatewayTimeout, StatusFor(fmt.Errorf("embed: %w", context.DeadlineExceeded)))
	assert.Equal(t, http.StatusBadGateway, StatusFor(&types.BackendResponseError{}))
}
