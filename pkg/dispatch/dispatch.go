// Package dispatch splits a candidate batch into backend-sized chunks, calls
// the backend once per chunk in order and reassembles the scores.
package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/soundprediction/avert/pkg/logger"
	"github.com/soundprediction/avert/pkg/types"
)

// Chunk is the half-open range [Start, End) of the batch sent in one call.
type Chunk struct {
	Index int
	Start int
	End   int
}

// Len returns the number of items in the chunk.
func (c Chunk) Len() int { return c.End - c.Start }

// Plan splits n items into consecutive chunks of at most maxBatch items. The
// last chunk holds the remainder. A non-positive maxBatch yields one chunk.
func Plan(n, maxBatch int) []Chunk {
	if n <= 0 {
		return nil
	}
	if maxBatch <= 0 || maxBatch > n {
		maxBatch = n
	}
	chunks := make([]Chunk, 0, (n+maxBatch-1)/maxBatch)
	for start := 0; start < n; start += maxBatch {
		end := min(start+maxBatch, n)
		chunks = append(chunks, Chunk{Index: len(chunks), Start: start, End: end})
	}
	return chunks
}

// EffectiveBatch returns the number of candidates that fit in one backend
// call. Rerank requests carry the query too, so one slot is reserved for it.
func EffectiveBatch(method types.ScoringMethod, maxBatch int) int {
	if method == types.MethodRerank {
		maxBatch--
	}
	return max(maxBatch, 1)
}

// ScoreFunc scores the items of one chunk. It must return exactly one score
// per item, in item order.
type ScoreFunc func(ctx context.Context, chunk Chunk, items []string) ([]float64, error)

// Observer receives one notification per backend call.
type Observer interface {
	ObserveChunk(size int, elapsed time.Duration, err error)
}

// Dispatcher runs chunked backend calls sequentially.
type Dispatcher struct {
	logger   *slog.Logger
	observer Observer
}

// New creates a Dispatcher. Both arguments may be nil.
func New(log *slog.Logger, obs Observer) *Dispatcher {
	return &Dispatcher{logger: logger.OrDiscard(log), observer: obs}
}

// Dispatch scores items in chunks of at most maxBatch and concatenates the
// results. A chunk answered with the wrong number of scores aborts the call
// with a BackendResponseError; errors returned by fn are passed through
// unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, items []string, maxBatch int, fn ScoreFunc) ([]float64, error) {
	chunks := Plan(len(items), maxBatch)
	scores := make([]float64, 0, len(items))
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		got, err := fn(ctx, c, items[c.Start:c.End])
		if err == nil && len(got) != c.Len() {
			err = &types.BackendResponseError{
				Chunk:    c.Index,
				Expected: c.Len(),
				Actual:   len(got),
				Message:  "backend returned a score count different from the chunk size",
			}
		}
		if d.observer != nil {
			d.observer.ObserveChunk(c.Len(), time.Since(start), err)
		}
		if err != nil {
			d.logger.Error("Backend call failed", "chunk", c.Index, "of", len(chunks), "size", c.Len(), "error", err)
			return nil, err
		}
		d.logger.Debug("Chunk scored", "chunk", c.Index, "start", c.Start, "end", c.End)
		scores = append(scores, got...)
	}
	return scores, nil
}

// Dispatch runs a Dispatcher without logging or observation.
func Dispatch(ctx context.Context, items []string, maxBatch int, fn ScoreFunc) ([]float64, error) {
	return New(nil, nil).Dispatch(ctx, items, maxBatch, fn)
}

// IndexedScore is a backend score tagged with the position, within its
// chunk, of the candidate it belongs to.
type IndexedScore struct {
	Index int
	Score float64
}

// Reorder places indexed scores back into chunk order. Missing, repeated or
// out-of-range indices are reported as a BackendResponseError.
func Reorder(chunk Chunk, indexed []IndexedScore) ([]float64, error) {
	n := chunk.Len()
	if len(indexed) != n {
		return nil, &types.BackendResponseError{
			Chunk: chunk.Index, Expected: n, Actual: len(indexed),
			Message: "backend returned a score count different from the chunk size",
		}
	}
	out := make([]float64, n)
	filled := make([]bool, n)
	for _, s := range indexed {
		if s.Index < 0 || s.Index >= n {
			return nil, &types.BackendResponseError{
				Chunk: chunk.Index, Expected: n, Actual: len(indexed),
				Message: "backend returned out-of-range index " + strconv.Itoa(s.Index),
			}
		}
		if filled[s.Index] {
			return nil, &types.BackendResponseError{
				Chunk: chunk.Index, Expected: n, Actual: len(indexed),
				Message: "backend returned index " + strconv.Itoa(s.Index) + " more than once",
			}
		}
		filled[s.Index] = true
		out[s.Index] = s.Score
	}
	return out, nil
}
