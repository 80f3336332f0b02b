package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/soundprediction/avert"
	"github.com/soundprediction/avert/pkg/candidates"
	"github.com/soundprediction/avert/pkg/logger"
	"github.com/soundprediction/avert/pkg/types"
	"github.com/soundprediction/avert/pkg/utils"
)

// RunOptions controls a batch run.
type RunOptions struct {
	Enhance     bool
	Symbols     candidates.SymbolScheme
	MinScore    float64
	Concurrency int
}

// Outcome is the result of one sample.
type Outcome struct {
	ID           string             `json:"id"`
	TaskID       string             `json:"task_id,omitempty"`
	Best         string             `json:"best,omitempty"`
	Distribution map[string]float64 `json:"distribution,omitempty"`
	Verdict      *Verdict           `json:"verdict,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// Summary aggregates the outcomes of a batch.
type Summary struct {
	Total        int `json:"total"`
	Failed       int `json:"failed"`
	Matches      int `json:"matches"`
	ExactMatches int `json:"exact_matches"`
	Invalid      int `json:"invalid"`
}

// Accuracy is the share of scored samples that matched.
func (s Summary) Accuracy() float64 {
	scored := s.Total - s.Failed
	if scored == 0 {
		return 0
	}
	return float64(s.Matches) / float64(scored)
}

func (s Summary) String() string {
	return fmt.Sprintf("total=%d failed=%d matches=%d exact=%d invalid=%d accuracy=%.4f",
		s.Total, s.Failed, s.Matches, s.ExactMatches, s.Invalid, s.Accuracy())
}

// Run scores samples with at most opts.Concurrency calls in flight. Outcomes
// keep the order of samples; a failed sample carries its error and does not
// stop the batch.
func Run(ctx context.Context, ev avert.Evaluator, samples []Sample, opts RunOptions, log *slog.Logger) ([]Outcome, Summary) {
	log = logger.OrDiscard(log)

	fns := make([]func() (Outcome, error), len(samples))
	for i, s := range samples {
		fns[i] = func() (Outcome, error) {
			return evaluate(ctx, ev, s, opts)
		}
	}
	results, errs := utils.ExecuteWithResults(ctx, max(opts.Concurrency, 1), fns...)

	summary := Summary{Total: len(samples)}
	outcomes := make([]Outcome, len(samples))
	for i, s := range samples {
		if errs[i] != nil {
			log.Error("Sample failed", "id", s.ID, "task", s.TaskID, "error", errs[i])
			outcomes[i] = Outcome{ID: s.ID, TaskID: s.TaskID, Error: errs[i].Error()}
			summary.Failed++
			continue
		}
		o := results[i]
		outcomes[i] = o
		if o.Verdict.Match {
			summary.Matches++
		}
		if o.Verdict.ExactMatch {
			summary.ExactMatches++
		}
		if !o.Verdict.Valid {
			summary.Invalid++
		}
	}
	return outcomes, summary
}

func evaluate(ctx context.Context, ev avert.Evaluator, s Sample, opts RunOptions) (Outcome, error) {
	split, err := s.Split()
	if err != nil {
		return Outcome{}, err
	}
	target := s.ExpectedText()
	if s.Numeric && len(split.Correct) > 0 {
		target = split.Correct[0]
	}

	ctx = types.WithRequest(ctx, s.ID, s.TaskID, "batch")
	res, err := ev.Evaluate(ctx, s.Response, split.Request(opts.Enhance, opts.Symbols), s.TaskID)
	if err != nil {
		return Outcome{}, err
	}
	v := Judge(s.Response, target, res.Distribution, res.Scores, opts.MinScore)
	return Outcome{
		ID:           s.ID,
		TaskID:       s.TaskID,
		Best:         res.Best,
		Distribution: res.Distribution.Map(),
		Verdict:      &v,
	}, nil
}

// WriteOutcomes writes one JSON outcome per line.
func WriteOutcomes(w io.Writer, outcomes []Outcome) error {
	enc := json.NewEncoder(w)
	for _, o := range outcomes {
		if err := enc.Encode(o); err != nil {
			return fmt.Errorf("failed to write outcome %s: %w", o.ID, err)
		}
	}
	return nil
}
