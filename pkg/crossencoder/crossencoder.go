package crossencoder

import (
	"context"
	"sort"
	"time"

	"github.com/soundprediction/avert/pkg/resilience"
	"github.com/soundprediction/avert/pkg/types"
)

// Client ranks passages by relevance to a query.
type Client interface {
	// Rank scores every passage. Each result carries the position of its
	// passage in the input; results may come back in any order.
	Rank(ctx context.Context, query string, passages []string) ([]RankedPassage, error)
	Close() error
}

// RankedPassage is one scored passage.
type RankedPassage struct {
	Index   int     `json:"index"`
	Passage string  `json:"passage,omitempty"`
	Score   float64 `json:"score"`
}

// Config holds the settings shared by all rerank clients.
type Config struct {
	Model   string        `json:"model"`
	BaseURL string        `json:"base_url,omitempty"`
	APIKey  string        `json:"-"`
	Timeout time.Duration `json:"timeout,omitempty"`
	// Policy wraps every remote call with retry and circuit breaking.
	Policy *resilience.Policy `json:"-"`
}

// Provider represents the type of cross-encoder provider
type Provider string

const (
	// ProviderTEI uses the /rerank route of Text-Embeddings-Inference.
	ProviderTEI Provider = "tei"

	// ProviderReranker uses Jina-compatible reranking APIs (vLLM, Jina, LocalAI)
	ProviderReranker Provider = "reranker"

	// ProviderOpenAI asks a chat model to grade every passage.
	ProviderOpenAI Provider = "openai"

	// ProviderEmbedEverything uses go-embedeverything for local reranking
	ProviderEmbedEverything Provider = "embedeverything"
)

// ProviderFor maps an endpoint type to the provider serving it.
func ProviderFor(endpoint types.EndpointType) (Provider, error) {
	switch endpoint {
	case types.EndpointTEI:
		return ProviderTEI, nil
	case types.EndpointVLLM:
		return ProviderReranker, nil
	case types.EndpointOpenAI:
		return ProviderOpenAI, nil
	case types.EndpointLocal:
		return ProviderEmbedEverything, nil
	default:
		return "", types.NewConfigurationError("endpoint_type", "unsupported rerank endpoint type: %q", endpoint)
	}
}

// ClientConfig holds configuration for creating cross-encoder clients
type ClientConfig struct {
	Provider Provider `json:"provider"`
	Config   Config   `json:"config"`
}

// NewClient creates a new cross-encoder client based on the provider type
func NewClient(clientConfig ClientConfig) (Client, error) {
	cfg := clientConfig.Config
	switch clientConfig.Provider {
	case ProviderTEI:
		if cfg.BaseURL == "" {
			return nil, types.NewConfigurationError("endpoint", "a TEI endpoint URL is required")
		}
		return NewTEIClient(cfg), nil

	case ProviderReranker:
		if cfg.BaseURL == "" || cfg.Model == "" {
			return nil, types.NewConfigurationError("model_name", "the reranker provider needs an endpoint URL and a model name")
		}
		return NewRerankerClient(cfg), nil

	case ProviderOpenAI:
		if cfg.Model == "" {
			return nil, types.NewConfigurationError("model_name", "a model name is required for the OpenAI provider")
		}
		return NewOpenAIRerankerClient(cfg), nil

	case ProviderEmbedEverything:
		return NewEmbedEverythingClient(&EmbedEverythingConfig{Config: &cfg})

	default:
		return nil, types.NewConfigurationError("endpoint_type", "unsupported cross-encoder provider: %q", clientConfig.Provider)
	}
}

// SortByScore orders passages by descending score, keeping input order for
// ties.
func SortByScore(passages []RankedPassage) {
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
}

// DefaultConfig returns sensible defaults for the given provider.
func DefaultConfig(provider Provider) Config {
	switch provider {
	case ProviderOpenAI:
		return Config{Model: "gpt-4o-mini"}
	case ProviderEmbedEverything:
		return Config{Model: defaultLocalRerankModel}
	default:
		return Config{}
	}
}
