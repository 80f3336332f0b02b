package embedder

import (
	"context"
	"net/http"

	"github.com/soundprediction/avert/pkg/resilience"
	"github.com/soundprediction/avert/pkg/utils"
)

// TEIClient calls the /embed route of a Text-Embeddings-Inference server.
type TEIClient struct {
	config Config
	url    string
	http   *http.Client
}

type teiEmbedRequest struct {
	Inputs []string `json:"inputs"`
}

// NewTEIClient creates a TEI client. config.BaseURL may point at the server
// root or at the /embed route itself.
func NewTEIClient(config Config) *TEIClient {
	return &TEIClient{
		config: config,
		url:    utils.JoinURL(config.BaseURL, "/embed"),
		http:   utils.NewHTTPClient(config.Timeout),
	}
}

// Embed generates embeddings for the given texts.
func (c *TEIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return resilience.Call(ctx, c.config.Policy, "tei.embed", func(ctx context.Context) ([][]float32, error) {
		var out [][]float32
		if err := utils.PostJSON(ctx, c.http, c.url, c.config.APIKey, teiEmbedRequest{Inputs: texts}, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// EmbedSingle generates an embedding for a single text.
func (c *TEIClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return embedSingle(ctx, c, text)
}

// Close cleans up any resources.
func (c *TEIClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
