package crossencoder

import (
	"context"
	"net/http"
	"strings"

	"github.com/soundprediction/avert/pkg/resilience"
	"github.com/soundprediction/avert/pkg/utils"
)

// RerankerClient calls a Jina-compatible /v1/rerank route, as served by vLLM,
// Jina AI and LocalAI.
type RerankerClient struct {
	config Config
	url    string
	http   *http.Client
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// NewRerankerClient creates a Jina-compatible rerank client. BaseURL may be
// the server root, the /v1 prefix or the full route.
func NewRerankerClient(config Config) *RerankerClient {
	base := strings.TrimRight(config.BaseURL, "/")
	if !strings.HasSuffix(base, "/rerank") {
		base = strings.TrimSuffix(base, "/v1") + "/v1/rerank"
	}
	return &RerankerClient{
		config: config,
		url:    base,
		http:   utils.NewHTTPClient(config.Timeout),
	}
}

// Rank ranks the given passages based on their relevance to the query
func (c *RerankerClient) Rank(ctx context.Context, query string, passages []string) ([]RankedPassage, error) {
	if len(passages) == 0 {
		return []RankedPassage{}, nil
	}
	req := rerankRequest{Model: c.config.Model, Query: query, Documents: passages}
	resp, err := resilience.Call(ctx, c.config.Policy, "vllm.rerank", func(ctx context.Context) (rerankResponse, error) {
		var out rerankResponse
		err := utils.PostJSON(ctx, c.http, c.url, c.config.APIKey, req, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedPassage, len(resp.Results))
	for i, r := range resp.Results {
		ranked[i] = RankedPassage{Index: r.Index, Score: r.RelevanceScore}
		if r.Index >= 0 && r.Index < len(passages) {
			ranked[i].Passage = passages[r.Index]
		}
	}
	return ranked, nil
}

// Close cleans up any resources used by the client
func (c *RerankerClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
