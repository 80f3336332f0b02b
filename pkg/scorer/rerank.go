package scorer

import (
	"context"

	"github.com/soundprediction/avert/pkg/crossencoder"
	"github.com/soundprediction/avert/pkg/dispatch"
	"github.com/soundprediction/avert/pkg/types"
)

// RerankScorer sends the query with each chunk of candidates to a reranker
// and restores input order from the returned indices.
type RerankScorer struct {
	client     crossencoder.Client
	batchSize  int
	dispatcher *dispatch.Dispatcher
}

// NewRerankScorer creates a RerankScorer. batchSize counts the query, so
// each call carries at most batchSize-1 candidates.
func NewRerankScorer(client crossencoder.Client, batchSize int, d *dispatch.Dispatcher) *RerankScorer {
	if d == nil {
		d = dispatch.New(nil, nil)
	}
	return &RerankScorer{client: client, batchSize: batchSize, dispatcher: d}
}

// Method returns types.MethodRerank.
func (s *RerankScorer) Method() types.ScoringMethod { return types.MethodRerank }

// Score implements Scorer.
func (s *RerankScorer) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return []float64{}, nil
	}
	batch := dispatch.EffectiveBatch(types.MethodRerank, s.batchSize)
	return s.dispatcher.Dispatch(ctx, candidates, batch, func(ctx context.Context, c dispatch.Chunk, items []string) ([]float64, error) {
		ranked, err := s.client.Rank(ctx, query, items)
		if err != nil {
			return nil, err
		}
		indexed := make([]dispatch.IndexedScore, len(ranked))
		for i, r := range ranked {
			indexed[i] = dispatch.IndexedScore{Index: r.Index, Score: r.Score}
		}
		return dispatch.Reorder(c, indexed)
	})
}

// Close closes the rerank client.
func (s *RerankScorer) Close() error { return s.client.Close() }
