// Package grouping reduces per-candidate scores to one value per group and
// normalizes the group values into a distribution.
//
// Methods are parsed once from their configuration names:
//
//	max              largest score of the group
//	mean             arithmetic mean of the group
//	mean_top_k_<K>   mean of the first K scores in candidate order
//
// mean_top_k takes the first K scores as generated, not the K highest ones.
// Candidate order puts references and short paraphrases first, and existing
// numeric baselines depend on that positional behaviour.
package grouping

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/soundprediction/avert/pkg/logger"
	"github.com/soundprediction/avert/pkg/types"
)

// Kind enumerates the aggregation rules.
type Kind int

const (
	KindMax Kind = iota
	KindMean
	KindMeanTopK
)

const meanTopKPrefix = "mean_top_k_"

// Method is a parsed aggregation rule. K is only meaningful for KindMeanTopK.
type Method struct {
	Kind Kind
	K    int
}

// Reducer collapses the scores of one group into a single value. It is never
// called with an empty slice.
type Reducer func(scores []float64, k int) float64

var registry = map[Kind]Reducer{
	KindMax:      reduceMax,
	KindMean:     func(s []float64, _ int) float64 { return mean(s) },
	KindMeanTopK: func(s []float64, k int) float64 { return mean(s[:min(k, len(s))]) },
}

var staticNames = map[string]Kind{
	"max":  KindMax,
	"mean": KindMean,
}

// Parse converts a method name into a Method.
func Parse(name string) (Method, error) {
	name = strings.TrimSpace(name)
	if kind, ok := staticNames[name]; ok {
		return Method{Kind: kind}, nil
	}
	if suffix, ok := strings.CutPrefix(name, meanTopKPrefix); ok {
		k, err := strconv.Atoi(suffix)
		if err != nil || k < 0 {
			return Method{}, types.NewConfigurationError("grouping",
				"grouping method %q needs a non-negative integer after %q", name, meanTopKPrefix)
		}
		return Method{Kind: KindMeanTopK, K: k}, nil
	}
	return Method{}, types.NewConfigurationError("grouping",
		"grouping method %q is not supported (available: %s)", name, strings.Join(Available(), ", "))
}

// MustParse is like Parse but panics on error. Intended for constants in tests
// and defaults.
func MustParse(name string) Method {
	m, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return m
}

// Available lists the accepted method names, with <k> standing for the
// parameter of dynamic methods.
func Available() []string {
	names := make([]string, 0, len(staticNames)+1)
	for name := range staticNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return append(names, meanTopKPrefix+"<k>")
}

func (m Method) String() string {
	switch m.Kind {
	case KindMax:
		return "max"
	case KindMean:
		return "mean"
	case KindMeanTopK:
		return fmt.Sprintf("%s%d", meanTopKPrefix, m.K)
	default:
		return "unknown"
	}
}

// effectiveSize is the number of scores the method reads from a group of n.
func (m Method) effectiveSize(n int) int {
	if m.Kind == KindMeanTopK {
		return min(m.K, n)
	}
	return n
}

// Aggregator applies a Method to flattened scores.
type Aggregator struct {
	method Method
	reduce Reducer
	logger *slog.Logger
}

// NewAggregator creates an Aggregator for m.
func NewAggregator(m Method, log *slog.Logger) (*Aggregator, error) {
	reduce, ok := registry[m.Kind]
	if !ok {
		return nil, types.NewConfigurationError("grouping", "no reducer registered for %s", m)
	}
	return &Aggregator{method: m, reduce: reduce, logger: logger.OrDiscard(log)}, nil
}

// Method returns the aggregation rule.
func (a *Aggregator) Method() Method { return a.method }

// Check reports the first group that would leave the reducer without
// scores. It runs before any backend call.
func (a *Aggregator) Check(index types.IndexMap) error {
	for _, name := range index.Names() {
		r, _ := index.Range(name)
		if a.method.effectiveSize(r.Len()) == 0 {
			return &types.DegenerateGroupError{Group: name, Method: a.method.String(), Size: r.Len()}
		}
	}
	return nil
}

// Aggregate reduces each group of scores and normalizes the results so they
// sum to one.
func (a *Aggregator) Aggregate(scores []float64, index types.IndexMap) (types.Distribution, error) {
	if err := index.Validate(len(scores)); err != nil {
		return types.Distribution{}, err
	}
	if err := a.Check(index); err != nil {
		return types.Distribution{}, err
	}

	names := index.Names()
	raw := make([]float64, len(names))
	var sum, magnitude float64
	for i, name := range names {
		r, _ := index.Range(name)
		raw[i] = a.reduce(scores[r.Start:r.End], a.method.K)
		sum += raw[i]
		magnitude += math.Abs(raw[i])
		a.logger.Debug("Group aggregated", "group", name, "method", a.method.String(), "score", raw[i])
	}

	if degenerateSum(sum, magnitude) {
		groups := make(map[string]float64, len(names))
		for i, name := range names {
			groups[name] = raw[i]
		}
		return types.Distribution{}, &types.NormalizationError{Sum: sum, Groups: groups}
	}

	normalized := make([]float64, len(raw))
	for i, v := range raw {
		normalized[i] = v / sum
	}
	return types.NewDistribution(names, normalized), nil
}

// cancellationTolerance is the smallest sum, relative to the sum of
// magnitudes, that still normalizes. Below it the group scores cancel out.
const cancellationTolerance = 1e-6

// degenerateSum reports whether group scores summing to sum, with absolute
// values summing to magnitude, cannot form a distribution. Cosine scores can
// be negative, so a non-positive or cancelled-out sum is rejected as well as
// zero and non-finite ones.
func degenerateSum(sum, magnitude float64) bool {
	if math.IsNaN(sum) || math.IsInf(sum, 0) || math.IsInf(magnitude, 0) {
		return true
	}
	return sum <= 0 || sum < cancellationTolerance*magnitude
}

func reduceMax(scores []float64, _ int) float64 {
	best := scores[0]
	for _, s := range scores[1:] {
		if s > best {
			best = s
		}
	}
	return best
}

func mean(scores []float64) float64 {
	var total float64
	for _, s := range scores {
		total += s
	}
	return total / float64(len(scores))
}
