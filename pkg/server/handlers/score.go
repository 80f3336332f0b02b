package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/avert"
	"github.com/soundprediction/avert/pkg/candidates"
	"github.com/soundprediction/avert/pkg/logger"
	"github.com/soundprediction/avert/pkg/metrics"
	"github.com/soundprediction/avert/pkg/resilience"
	"github.com/soundprediction/avert/pkg/server/dto"
	"github.com/soundprediction/avert/pkg/tasks"
	"github.com/soundprediction/avert/pkg/types"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

// Defaults fill the request fields a caller leaves unset.
type Defaults struct {
	Enhance  bool
	Symbols  candidates.SymbolScheme
	MinScore float64
}

// ScoreHandler handles scoring requests
type ScoreHandler struct {
	evaluator avert.Evaluator
	defaults  Defaults
	recorder  *metrics.Recorder
	logger    *slog.Logger
}

// NewScoreHandler creates a new score handler. recorder may be nil.
func NewScoreHandler(e avert.Evaluator, defaults Defaults, recorder *metrics.Recorder, log *slog.Logger) *ScoreHandler {
	return &ScoreHandler{
		evaluator: e,
		defaults:  defaults,
		recorder:  recorder,
		logger:    logger.OrDiscard(log),
	}
}

// Score handles POST /v1/score
func (h *ScoreHandler) Score(c *gin.Context) {
	var req dto.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	creq, err := req.CandidateRequest(h.defaults.Enhance, h.defaults.Symbols)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx := types.WithRequest(c.Request.Context(), "", req.TaskID, "")
	res, err := h.evaluator.Evaluate(ctx, req.Response, creq, req.TaskID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.observe(res.Best, nil)

	resp := h.response(c, res.Distribution)
	if req.Trace {
		resp.Scores = res.Scores
		resp.Candidates = res.Candidates
		resp.Trace = res.Trace
	}
	if req.Target != "" {
		v := tasks.Judge(req.Response, req.Target, res.Distribution, res.Scores, h.defaults.MinScore)
		resp.Verdict = &v
	}
	c.JSON(http.StatusOK, resp)
}

// ScoreGroups handles POST /v1/score/groups
func (h *ScoreHandler) ScoreGroups(c *gin.Context) {
	var req dto.GroupsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	groups, err := req.GroupSet()
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_groups", err)
		return
	}

	ctx := types.WithRequest(c.Request.Context(), "", req.TaskID, "")
	dist, scores, err := h.evaluator.Score(ctx, req.Response, groups, req.TaskID)
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := h.response(c, dist)
	if req.Trace {
		resp.Scores = scores
	}
	h.observe(resp.Best, nil)
	c.JSON(http.StatusOK, resp)
}

func (h *ScoreHandler) response(c *gin.Context, dist types.Distribution) *dto.ScoreResponse {
	resp := dto.NewScoreResponse(c.GetString(RequestIDKey), dist)
	if d, ok := h.evaluator.(describer); ok {
		resp.Method = string(d.Method())
		resp.Grouping = d.Grouping().String()
	}
	return resp
}

func (h *ScoreHandler) observe(best string, err error) {
	if h.recorder != nil {
		h.recorder.ObserveScore(best, err)
	}
}

// fail maps a scoring error to a status code and logs server-side failures.
func (h *ScoreHandler) fail(c *gin.Context, err error) {
	h.observe("", err)
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "Scoring request failed", "status", status, "error", err)
	}
	writeError(c, status, metrics.Kind(err), err)
}

// StatusFor returns the HTTP status of a scoring error.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, &types.ConfigurationError{}):
		return http.StatusBadRequest
	case errors.Is(err, &types.DegenerateGroupError{}), errors.Is(err, &types.NormalizationError{}):
		return http.StatusUnprocessableEntity
	case errors.Is(err, resilience.ErrBreakerOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// writeError writes an error response as JSON
func writeError(c *gin.Context, status int, code string, err error) {
	resp := dto.ErrorResponse{Error: code, Message: err.Error(), Code: status}
	var cfgErr *types.ConfigurationError
	if errors.As(err, &cfgErr) {
		resp.Field = cfgErr.Field
	}
	c.AbortWithStatusJSON(status, resp)
}
