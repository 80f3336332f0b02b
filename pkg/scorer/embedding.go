package scorer

import (
	"context"
	"fmt"

	"github.com/soundprediction/avert/pkg/dispatch"
	"github.com/soundprediction/avert/pkg/embedder"
	"github.com/soundprediction/avert/pkg/types"
	"github.com/soundprediction/avert/pkg/utils"
)

// EmbeddingScorer embeds the query once and the candidates chunk by chunk,
// scoring each candidate by cosine similarity to the query.
type EmbeddingScorer struct {
	client     embedder.Client
	batchSize  int
	dispatcher *dispatch.Dispatcher
}

// NewEmbeddingScorer creates an EmbeddingScorer. A nil dispatcher runs
// without logging or observation.
func NewEmbeddingScorer(client embedder.Client, batchSize int, d *dispatch.Dispatcher) *EmbeddingScorer {
	if d == nil {
		d = dispatch.New(nil, nil)
	}
	return &EmbeddingScorer{client: client, batchSize: batchSize, dispatcher: d}
}

// Method returns types.MethodEmbedding.
func (s *EmbeddingScorer) Method() types.ScoringMethod { return types.MethodEmbedding }

// Score implements Scorer.
func (s *EmbeddingScorer) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return []float64{}, nil
	}
	queryVec, err := s.client.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return s.dispatcher.Dispatch(ctx, candidates, s.batchSize, func(ctx context.Context, c dispatch.Chunk, items []string) ([]float64, error) {
		vecs, err := s.client.Embed(ctx, items)
		if err != nil {
			return nil, err
		}
		scores := make([]float64, len(vecs))
		for i, v := range vecs {
			if len(v) != len(queryVec) {
				return nil, &types.BackendResponseError{
					Chunk: c.Index, Expected: c.Len(), Actual: len(vecs),
					Message: fmt.Sprintf("embedding %d has dimension %d, query has %d", i, len(v), len(queryVec)),
				}
			}
			scores[i] = utils.CosineSimilarity(queryVec, v)
		}
		return scores, nil
	})
}

// Close closes the embedding client.
func (s *EmbeddingScorer) Close() error { return s.client.Close() }
