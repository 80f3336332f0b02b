package grouping

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/avert/pkg/types"
)

func indexFor(t *testing.T, sizes map[string]int, order ...string) types.IndexMap {
	t.Helper()
	set := types.NewGroupSet()
	for _, name := range order {
		require.NoError(t, set.Add(name, make([]string, sizes[name])))
	}
	_, index := set.Flatten()
	return index
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		want    Method
		wantErr bool
	}{
		{"max", Method{Kind: KindMax}, false},
		{"mean", Method{Kind: KindMean}, false},
		{"mean_top_k_3", Method{Kind: KindMeanTopK, K: 3}, false},
		{"mean_top_k_0", Method{Kind: KindMeanTopK, K: 0}, false},
		{"mean_top_k_", Method{}, true},
		{"mean_top_k_-1", Method{}, true},
		{"mean_top_k_two", Method{}, true},
		{"median", Method{}, true},
		{"MAX", Method{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, &types.ConfigurationError{})
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.name, got.String())
		})
	}
}

func TestAvailable(t *testing.T) {
	assert.Equal(t, []string{"max", "mean", "mean_top_k_<k>"}, Available())
}

func TestReducers(t *testing.T) {
	slice := []float64{0.1, 0.9, 0.5}
	tests := []struct {
		method string
		want   float64
	}{
		{"max", 0.9},
		{"mean", 0.5},
		// Positional: the first two, not the two highest (which would give 0.7).
		{"mean_top_k_2", 0.5},
		{"mean_top_k_1", 0.1},
		{"mean_top_k_10", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			m := MustParse(tt.method)
			assert.InDelta(t, tt.want, registry[m.Kind](slice, m.K), 1e-12)
		})
	}
}

func TestAggregateSumsToOne(t *testing.T) {
	index := indexFor(t, map[string]int{"correct": 3, "wrong": 2, "refusal": 1}, "correct", "wrong", "refusal")
	scores := []float64{0.1, 0.9, 0.5, 0.3, 0.2, 0.05}

	for _, name := range []string{"max", "mean", "mean_top_k_2"} {
		t.Run(name, func(t *testing.T) {
			agg, err := NewAggregator(MustParse(name), nil)
			require.NoError(t, err)
			dist, err := agg.Aggregate(scores, index)
			require.NoError(t, err)
			assert.InDelta(t, 1.0, dist.Sum(), 1e-9)
			assert.Equal(t, []string{"correct", "wrong", "refusal"}, dist.Names())
		})
	}

	agg, err := NewAggregator(MustParse("max"), nil)
	require.NoError(t, err)
	dist, err := agg.Aggregate(scores, index)
	require.NoError(t, err)
	total := 0.9 + 0.3 + 0.05
	assert.InDelta(t, 0.9/total, dist.Get("correct"), 1e-12)
	best, _ := dist.Best()
	assert.Equal(t, "correct", best)
}

func TestAggregateZeroSum(t *testing.T) {
	index := indexFor(t, map[string]int{"correct": 2, "wrong": 2}, "correct", "wrong")
	agg, err := NewAggregator(MustParse("mean"), nil)
	require.NoError(t, err)

	_, err = agg.Aggregate([]float64{0, 0, 0, 0}, index)
	var normErr *types.NormalizationError
	require.ErrorAs(t, err, &normErr)
	assert.Equal(t, 0.0, normErr.Sum)
	assert.Equal(t, map[string]float64{"correct": 0, "wrong": 0}, normErr.Groups)

	_, err = agg.Aggregate([]float64{0.5, -0.5, 0.25, -0.25}, index)
	assert.ErrorIs(t, err, &types.NormalizationError{})
}

func TestAggregateMixedSigns(t *testing.T) {
	index := indexFor(t, map[string]int{"correct": 1, "wrong": 1}, "correct", "wrong")
	agg, err := NewAggregator(MustParse("max"), nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		scores  []float64
		wantErr bool
	}{
		{"near cancellation", []float64{0.30000001, -0.3}, true},
		{"negative sum", []float64{0.1, -0.4}, true},
		{"all negative", []float64{-0.2, -0.3}, true},
		{"small negative group", []float64{0.8, -0.05}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dist, err := agg.Aggregate(tt.scores, index)
			if tt.wantErr {
				var normErr *types.NormalizationError
				require.ErrorAs(t, err, &normErr)
				assert.Equal(t, map[string]float64{"correct": tt.scores[0], "wrong": tt.scores[1]}, normErr.Groups)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, 1.0, dist.Sum(), 1e-9)
			assert.InDelta(t, 0.8/0.75, dist.Get("correct"), 1e-9)
		})
	}
}

func TestAggregateNonFinite(t *testing.T) {
	index := indexFor(t, map[string]int{"correct": 1, "wrong": 1}, "correct", "wrong")
	agg, err := NewAggregator(MustParse("max"), nil)
	require.NoError(t, err)

	_, err = agg.Aggregate([]float64{math.NaN(), 0.5}, index)
	assert.ErrorIs(t, err, &types.NormalizationError{})
	_, err = agg.Aggregate([]float64{math.Inf(1), 0.5}, index)
	assert.ErrorIs(t, err, &types.NormalizationError{})
}

func TestCheckDegenerateGroups(t *testing.T) {
	withEmpty := indexFor(t, map[string]int{"correct": 2, "wrong": 0}, "correct", "wrong")

	agg, err := NewAggregator(MustParse("mean"), nil)
	require.NoError(t, err)
	err = agg.Check(withEmpty)
	var degenerate *types.DegenerateGroupError
	require.ErrorAs(t, err, &degenerate)
	assert.Equal(t, "wrong", degenerate.Group)

	_, err = agg.Aggregate([]float64{0.2, 0.4}, withEmpty)
	assert.ErrorIs(t, err, &types.DegenerateGroupError{})

	full := indexFor(t, map[string]int{"correct": 2, "wrong": 1}, "correct", "wrong")
	zeroK, err := NewAggregator(MustParse("mean_top_k_0"), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, zeroK.Check(full), &types.DegenerateGroupError{})
}

func TestAggregateRejectsMismatchedIndex(t *testing.T) {
	index := indexFor(t, map[string]int{"correct": 2}, "correct")
	agg, err := NewAggregator(MustParse("max"), nil)
	require.NoError(t, err)
	_, err = agg.Aggregate([]float64{0.1, 0.2, 0.3}, index)
	assert.ErrorIs(t, err, types.ErrIndexMapMismatch)
}
