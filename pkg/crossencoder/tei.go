package crossencoder

import (
	"context"
	"net/http"

	"github.com/soundprediction/avert/pkg/resilience"
	"github.com/soundprediction/avert/pkg/utils"
)

// TEIClient calls the /rerank route of a Text-Embeddings-Inference server.
type TEIClient struct {
	config Config
	url    string
	http   *http.Client
}

type teiRerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type teiRerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewTEIClient creates a TEI rerank client.
func NewTEIClient(config Config) *TEIClient {
	return &TEIClient{
		config: config,
		url:    utils.JoinURL(config.BaseURL, "/rerank"),
		http:   utils.NewHTTPClient(config.Timeout),
	}
}

// Rank ranks the given passages based on their relevance to the query
func (c *TEIClient) Rank(ctx context.Context, query string, passages []string) ([]RankedPassage, error) {
	if len(passages) == 0 {
		return []RankedPassage{}, nil
	}
	results, err := resilience.Call(ctx, c.config.Policy, "tei.rerank", func(ctx context.Context) ([]teiRerankResult, error) {
		var out []teiRerankResult
		err := utils.PostJSON(ctx, c.http, c.url, c.config.APIKey, teiRerankRequest{Query: query, Texts: passages}, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedPassage, len(results))
	for i, r := range results {
		ranked[i] = RankedPassage{Index: r.Index, Score: r.Score}
		if r.Index >= 0 && r.Index < len(passages) {
			ranked[i].Passage = passages[r.Index]
		}
	}
	return ranked, nil
}

// Close cleans up any resources used by the client
func (c *TEIClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
