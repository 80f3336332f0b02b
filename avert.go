package avert

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/soundprediction/avert/pkg/candidates"
	"github.com/soundprediction/avert/pkg/grouping"
	"github.com/soundprediction/avert/pkg/logger"
	"github.com/soundprediction/avert/pkg/scorer"
	"github.com/soundprediction/avert/pkg/template"
	"github.com/soundprediction/avert/pkg/types"
)

// Evaluator classifies model responses against candidate groups.
type Evaluator interface {
	// Score classifies response against prebuilt groups. It returns the
	// normalized group distribution and the raw per-candidate scores in
	// flattened batch order.
	Score(ctx context.Context, response string, groups *types.GroupSet, taskID string) (types.Distribution, []float64, error)

	// Evaluate builds the groups from raw answers and scores response
	// against them.
	Evaluate(ctx context.Context, response string, req candidates.Request, taskID string) (*Result, error)

	Close() error
}

// Config holds the read-only settings shared by every scoring call.
type Config struct {
	// Templates format the response (query) and the candidates (documents).
	Templates template.Templates
	// Instructions maps task ids to the text substituted for {instruction}.
	Instructions types.InstructionMap
	// Grouping reduces the scores of a group to one value.
	Grouping grouping.Method
	// MaxLen keeps only the last MaxLen words of the response. Non-positive
	// disables truncation.
	MaxLen int
	// MissingInstruction decides what happens when a template expects an
	// instruction and the map has none for the task.
	MissingInstruction template.MissingInstructionPolicy
}

// DefaultConfig returns a Config with max grouping, no templates and no
// truncation.
func DefaultConfig() *Config {
	return &Config{
		Grouping:           grouping.Method{Kind: grouping.KindMax},
		MaxLen:             -1,
		MissingInstruction: template.MissingDrop,
	}
}

// Result is the outcome of Evaluate.
type Result struct {
	Distribution types.Distribution
	Scores       []float64
	Candidates   []string
	Trace        *types.Trace
	Best         string
	BestScore    float64
}

// Engine is the main implementation of the Evaluator interface.
type Engine struct {
	scorer     scorer.Scorer
	resolver   *template.Resolver
	aggregator *grouping.Aggregator
	config     Config
	logger     *slog.Logger
}

// NewEngine validates config and binds it to a scorer. A nil config uses
// DefaultConfig; a nil logger discards output.
func NewEngine(s scorer.Scorer, config *Config, log *slog.Logger) (*Engine, error) {
	if s == nil {
		return nil, types.NewConfigurationError("scorer", "a scorer is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := template.Validate(config.Templates, config.Instructions); err != nil {
		return nil, err
	}
	log = logger.OrDiscard(log)

	aggregator, err := grouping.NewAggregator(config.Grouping, log)
	if err != nil {
		return nil, err
	}

	cfg := *config
	cfg.Instructions = config.Instructions.Clone()
	return &Engine{
		scorer:     s,
		resolver:   template.NewResolver(cfg.MissingInstruction, log),
		aggregator: aggregator,
		config:     cfg,
		logger:     log,
	}, nil
}

// Score implements Evaluator. Structural problems (missing instruction under
// the error policy, degenerate groups) are reported before the backend is
// called.
func (e *Engine) Score(ctx context.Context, response string, groups *types.GroupSet, taskID string) (types.Distribution, []float64, error) {
	if groups == nil || groups.Len() == 0 {
		return types.Distribution{}, nil, types.NewConfigurationError("groups", "at least one candidate group is required")
	}

	resolved, err := e.resolver.Resolve(e.config.Templates, e.config.Instructions, taskID)
	if err != nil {
		return types.Distribution{}, nil, err
	}

	batch, index := groups.Flatten()
	if err := e.aggregator.Check(index); err != nil {
		return types.Distribution{}, nil, err
	}

	query := resolved.RenderQuery(template.Truncate(response, e.config.MaxLen))
	documents := resolved.RenderDocuments(batch)

	scores, err := e.scorer.Score(ctx, query, documents)
	if err != nil {
		return types.Distribution{}, nil, err
	}

	dist, err := e.aggregator.Aggregate(scores, index)
	if err != nil {
		var normErr *types.NormalizationError
		if errors.As(err, &normErr) {
			e.logger.Error("Group scores cannot be normalized", "task", taskID, "sum", normErr.Sum)
		}
		return types.Distribution{}, nil, err
	}

	if e.logger.Enabled(ctx, slog.LevelDebug) {
		e.logDiagnostics(ctx, groups, index, scores)
	}
	return dist, scores, nil
}

// Evaluate implements Evaluator.
func (e *Engine) Evaluate(ctx context.Context, response string, req candidates.Request, taskID string) (*Result, error) {
	groups, trace, err := candidates.Build(req)
	if err != nil {
		return nil, err
	}
	dist, scores, err := e.Score(ctx, response, groups, taskID)
	if err != nil {
		return nil, err
	}
	flat, _ := groups.Flatten()
	best, bestScore := dist.Best()
	return &Result{
		Distribution: dist,
		Scores:       scores,
		Candidates:   flat,
		Trace:        trace,
		Best:         best,
		BestScore:    bestScore,
	}, nil
}

// Method returns the scoring method of the bound scorer.
func (e *Engine) Method() types.ScoringMethod { return e.scorer.Method() }

// Grouping returns the aggregation rule.
func (e *Engine) Grouping() grouping.Method { return e.aggregator.Method() }

// Close closes the scorer.
func (e *Engine) Close() error {
	return e.scorer.Close()
}

// logDiagnostics writes, per group, its candidates from best to worst score.
func (e *Engine) logDiagnostics(ctx context.Context, groups *types.GroupSet, index types.IndexMap, scores []float64) {
	for _, name := range index.Names() {
		r, _ := index.Range(name)
		texts, _ := groups.Get(name)
		order := make([]int, r.Len())
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return scores[r.Start+order[a]] > scores[r.Start+order[b]]
		})
		for _, i := range order {
			e.logger.DebugContext(ctx, "Candidate score", "group", name, "score", scores[r.Start+i], "candidate", texts[i])
		}
	}
}
