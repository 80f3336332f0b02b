package dto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/soundprediction/avert/pkg/tasks"
	"github.com/soundprediction/avert/pkg/types"
)

// Validation errors
var (
	ErrEmptyCorrect      = errors.New("correct cannot be empty")
	ErrEmptyGroups       = errors.New("groups cannot be empty")
	ErrResponseTooLong   = errors.New("response exceeds maximum length (1MB)")
	ErrTooManyCandidates = errors.New("candidate count exceeds maximum (4096)")
)

// MaxFieldLengths defines maximum lengths for fields to prevent abuse
const (
	MaxResponseLength = 1024 * 1024 // 1MB
	MaxTaskIDLength   = 256
	MaxCandidates     = 4096
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// GroupScore is the normalized score of one group.
type GroupScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// ScoreResponse is returned by both scoring routes.
type ScoreResponse struct {
	RequestID string       `json:"request_id"`
	Method    string       `json:"method,omitempty"`
	Grouping  string       `json:"grouping,omitempty"`
	Groups    []GroupScore `json:"groups"`
	Best      string       `json:"best"`
	BestScore float64      `json:"best_score"`

	// Scores, Candidates and Trace are only set for traced requests.
	Scores     []float64      `json:"scores,omitempty"`
	Candidates []string       `json:"candidates,omitempty"`
	Trace      *types.Trace   `json:"trace,omitempty"`
	Verdict    *tasks.Verdict `json:"verdict,omitempty"`
}

// NewScoreResponse lays dist out in batch order.
func NewScoreResponse(requestID string, dist types.Distribution) *ScoreResponse {
	resp := &ScoreResponse{RequestID: requestID}
	for _, name := range dist.Names() {
		resp.Groups = append(resp.Groups, GroupScore{Name: name, Score: dist.Get(name)})
	}
	resp.Best, resp.BestScore = dist.Best()
	return resp
}

func validateCommon(response, taskID string) error {
	if len(response) > MaxResponseLength {
		return ErrResponseTooLong
	}
	if len(taskID) > MaxTaskIDLength {
		return fmt.Errorf("task_id exceeds maximum length (%d)", MaxTaskIDLength)
	}
	if strings.ContainsAny(taskID, "\n\r") {
		return errors.New("task_id contains invalid characters")
	}
	return nil
}
