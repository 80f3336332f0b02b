package crossencoder

import (
	"context"
	"fmt"
	"sync"

	"github.com/soundprediction/go-embedeverything/pkg/embedder"
)

const defaultLocalRerankModel = "BAAI/bge-reranker-base"

// EmbedEverythingClient implements the Client interface for EmbedEverything reranking.
type EmbedEverythingClient struct {
	mu       sync.Mutex
	reranker *embedder.Reranker
	config   *EmbedEverythingConfig
}

// EmbedEverythingConfig extends Config with EmbedEverything-specific settings.
type EmbedEverythingConfig struct {
	*Config
}

// NewEmbedEverythingClient creates a new EmbedEverything reranker client.
func NewEmbedEverythingClient(config *EmbedEverythingConfig) (*EmbedEverythingClient, error) {
	if config == nil || config.Config == nil {
		config = &EmbedEverythingConfig{Config: &Config{}}
	}
	if config.Model == "" {
		config.Model = defaultLocalRerankModel
	}
	reranker, err := embedder.NewReranker(config.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create reranker: %w", err)
	}

	return &EmbedEverythingClient{
		reranker: reranker,
		config:   config,
	}, nil
}

// Rank ranks the given passages based on their relevance to the query.
func (e *EmbedEverythingClient) Rank(ctx context.Context, query string, passages []string) ([]RankedPassage, error) {
	if len(passages) == 0 {
		return []RankedPassage{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// go-embedeverything does not support context yet
	e.mu.Lock()
	results, err := e.reranker.Rerank(query, passages)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to rerank passages: %w", err)
	}

	texts := make([]string, len(results))
	scores := make([]float64, len(results))
	for i, result := range results {
		texts[i] = result.Text
		scores[i] = float64(result.Score)
	}
	return matchByText(passages, texts, scores), nil
}

// matchByText recovers input positions for results that only carry the
// passage text. Repeated passages are matched in input order.
func matchByText(passages, texts []string, scores []float64) []RankedPassage {
	positions := make(map[string][]int, len(passages))
	for i, p := range passages {
		positions[p] = append(positions[p], i)
	}
	ranked := make([]RankedPassage, 0, len(texts))
	for i, text := range texts {
		idx := -1
		if queue := positions[text]; len(queue) > 0 {
			idx = queue[0]
			positions[text] = queue[1:]
		}
		ranked = append(ranked, RankedPassage{Index: idx, Passage: text, Score: scores[i]})
	}
	return ranked
}

// Close cleans up any resources.
func (e *EmbedEverythingClient) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reranker.Close()
	return nil
}
