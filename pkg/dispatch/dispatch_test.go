package dispatch

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/avert/pkg/types"
)

// indexScorer returns the global index of every item, so any reordering is
// visible in the output.
func indexScorer(calls *[]Chunk) ScoreFunc {
	return func(_ context.Context, c Chunk, items []string) ([]float64, error) {
		*calls = append(*calls, c)
		out := make([]float64, len(items))
		for i, item := range items {
			v, err := strconv.Atoi(item)
			if err != nil {
				return nil, err
			}
			out[i] = float64(v)
		}
		return out, nil
	}
}

func items(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name     string
		n, batch int
		want     []int
	}{
		{"empty", 0, 4, nil},
		{"single", 3, 4, []int{3}},
		{"exact", 4, 2, []int{2, 2}},
		{"remainder", 5, 2, []int{2, 2, 1}},
		{"batch of one", 3, 1, []int{1, 1, 1}},
		{"unbounded", 7, 0, []int{7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Plan(tt.n, tt.batch)
			var sizes []int
			next := 0
			for i, c := range chunks {
				assert.Equal(t, i, c.Index)
				assert.Equal(t, next, c.Start)
				assert.Positive(t, c.Len())
				next = c.End
				sizes = append(sizes, c.Len())
			}
			assert.Equal(t, tt.want, sizes)
			if tt.n > 0 {
				assert.Equal(t, tt.n, next)
			}
		})
	}
}

func TestEffectiveBatch(t *testing.T) {
	assert.Equal(t, 32, EffectiveBatch(types.MethodEmbedding, 32))
	assert.Equal(t, 31, EffectiveBatch(types.MethodRerank, 32))
	assert.Equal(t, 1, EffectiveBatch(types.MethodRerank, 1))
	assert.Equal(t, 1, EffectiveBatch(types.MethodEmbedding, 0))
}

func TestDispatchChunkBoundary(t *testing.T) {
	var calls []Chunk
	scores, err := Dispatch(context.Background(), items(5), 2, indexScorer(&calls))
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 1, 2, 3, 4}, scores)
	require.Len(t, calls, 3)
	assert.Equal(t, []int{2, 2, 1}, []int{calls[0].Len(), calls[1].Len(), calls[2].Len()})
}

func TestDispatchPreservesOrder(t *testing.T) {
	for _, n := range []int{1, 7, 31, 32, 33, 100} {
		for _, batch := range []int{1, 3, 32} {
			var calls []Chunk
			chunked, err := Dispatch(context.Background(), items(n), batch, indexScorer(&calls))
			require.NoError(t, err)

			var single []Chunk
			whole, err := Dispatch(context.Background(), items(n), n, indexScorer(&single))
			require.NoError(t, err)

			assert.Equal(t, whole, chunked, "n=%d batch=%d", n, batch)
			assert.Len(t, calls, (n+batch-1)/batch)
		}
	}
}

func TestDispatchEmpty(t *testing.T) {
	var calls []Chunk
	scores, err := Dispatch(context.Background(), nil, 4, indexScorer(&calls))
	require.NoError(t, err)
	assert.Empty(t, scores)
	assert.Empty(t, calls)
}

func TestDispatchCountMismatch(t *testing.T) {
	calls := 0
	fn := func(_ context.Context, c Chunk, items []string) ([]float64, error) {
		calls++
		if c.Index == 1 {
			return make([]float64, len(items)-1), nil
		}
		return make([]float64, len(items)), nil
	}

	_, err := Dispatch(context.Background(), items(6), 3, fn)
	var backendErr *types.BackendResponseError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, 1, backendErr.Chunk)
	assert.Equal(t, 3, backendErr.Expected)
	assert.Equal(t, 2, backendErr.Actual)
	assert.Equal(t, 2, calls, "no retry after a count mismatch")
}

func TestDispatchPassesBackendErrorsThrough(t *testing.T) {
	sentinel := errors.New("connection refused")
	fn := func(context.Context, Chunk, []string) ([]float64, error) { return nil, sentinel }
	_, err := Dispatch(context.Background(), items(3), 2, fn)
	assert.Same(t, sentinel, err)
}

func TestDispatchStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	fn := func(_ context.Context, _ Chunk, items []string) ([]float64, error) {
		calls++
		cancel()
		return make([]float64, len(items)), nil
	}
	_, err := Dispatch(ctx, items(4), 2, fn)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

type recordingObserver struct {
	sizes []int
	errs  []error
}

func (r *recordingObserver) ObserveChunk(size int, _ time.Duration, err error) {
	r.sizes = append(r.sizes, size)
	r.errs = append(r.errs, err)
}

func TestDispatcherNotifiesObserver(t *testing.T) {
	obs := &recordingObserver{}
	var calls []Chunk
	_, err := New(nil, obs).Dispatch(context.Background(), items(5), 2, indexScorer(&calls))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, obs.sizes)
	assert.Equal(t, []error{nil, nil, nil}, obs.errs)
}

func TestReorder(t *testing.T) {
	chunk := Chunk{Index: 2, Start: 10, End: 13}

	got, err := Reorder(chunk, []IndexedScore{{2, 0.3}, {0, 0.1}, {1, 0.2}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got)

	tests := []struct {
		name    string
		indexed []IndexedScore
	}{
		{"too few", []IndexedScore{{0, 0.1}, {1, 0.2}}},
		{"out of range", []IndexedScore{{0, 0.1}, {1, 0.2}, {3, 0.3}}},
		{"duplicate", []IndexedScore{{0, 0.1}, {0, 0.2}, {1, 0.3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reorder(chunk, tt.indexed)
			var backendErr *types.BackendResponseError
			require.ErrorAs(t, err, &backendErr)
			assert.Equal(t, 2, backendErr.Chunk)
		})
	}
}
