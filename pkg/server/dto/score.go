package dto

import (
	"fmt"
	"strings"

	"github.com/soundprediction/avert/pkg/candidates"
	"github.com/soundprediction/avert/pkg/types"
)

// ScoreRequest scores a response against groups generated from raw answers.
type ScoreRequest struct {
	Response       string   `json:"response"`
	TaskID         string   `json:"task_id,omitempty"`
	Correct        []string `json:"correct"`
	CorrectIndices []int    `json:"correct_indices,omitempty"`
	Wrong          []string `json:"wrong,omitempty"`
	WrongIndices   []int    `json:"wrong_indices,omitempty"`
	Groups         []string `json:"groups,omitempty"`
	// Enhance and Symbols fall back to the server configuration when unset.
	Enhance     *bool  `json:"enhance,omitempty"`
	WithOptions bool   `json:"with_options,omitempty"`
	Symbols     string `json:"symbols,omitempty"`
	Trace       bool   `json:"trace,omitempty"`
	// Target, when set, adds a verdict comparing the correct and wrong
	// groups.
	Target string `json:"target,omitempty"`
}

// Validate performs validation on ScoreRequest
func (r *ScoreRequest) Validate() error {
	if err := validateCommon(r.Response, r.TaskID); err != nil {
		return err
	}
	if len(r.Correct) == 0 {
		return ErrEmptyCorrect
	}
	if len(r.Correct)+len(r.Wrong) > MaxCandidates {
		return ErrTooManyCandidates
	}
	return nil
}

// CandidateRequest converts r into a builder request.
func (r *ScoreRequest) CandidateRequest(enhance bool, symbols candidates.SymbolScheme) (candidates.Request, error) {
	if r.Enhance != nil {
		enhance = *r.Enhance
	}
	if r.Symbols != "" {
		s, err := candidates.ParseSymbolScheme(r.Symbols)
		if err != nil {
			return candidates.Request{}, err
		}
		symbols = s
	}
	return candidates.Request{
		Correct:        r.Correct,
		CorrectIndices: r.CorrectIndices,
		Wrong:          r.Wrong,
		WrongIndices:   r.WrongIndices,
		Groups:         r.Groups,
		Enhance:        enhance,
		WithOptions:    r.WithOptions,
		Symbols:        symbols,
		Trace:          r.Trace,
	}, nil
}

// Group is one caller-supplied candidate group.
type Group struct {
	Name       string   `json:"name"`
	Candidates []string `json:"candidates"`
}

// GroupsRequest scores a response against prebuilt groups.
type GroupsRequest struct {
	Response string  `json:"response"`
	TaskID   string  `json:"task_id,omitempty"`
	Groups   []Group `json:"groups"`
	Trace    bool    `json:"trace,omitempty"`
}

// Validate performs validation on GroupsRequest
func (r *GroupsRequest) Validate() error {
	if err := validateCommon(r.Response, r.TaskID); err != nil {
		return err
	}
	if len(r.Groups) == 0 {
		return ErrEmptyGroups
	}
	total := 0
	for i, g := range r.Groups {
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("group %d: %w", i, types.ErrEmptyGroupName)
		}
		total += len(g.Candidates)
	}
	if total > MaxCandidates {
		return ErrTooManyCandidates
	}
	return nil
}

// GroupSet converts the groups, keeping their order.
func (r *GroupsRequest) GroupSet() (*types.GroupSet, error) {
	set := types.NewGroupSet()
	for _, g := range r.Groups {
		if err := set.Add(g.Name, g.Candidates); err != nil {
			return nil, fmt.Errorf("group %q: %w", g.Name, err)
		}
	}
	return set, nil
}
