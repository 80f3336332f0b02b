package embedder

import (
	"context"
	"fmt"
	"time"

	"github.com/soundprediction/avert/pkg/resilience"
	"github.com/soundprediction/avert/pkg/types"
)

// Client embeds texts into vectors.
type Client interface {
	// Embed returns one vector per text, in text order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedSingle embeds one text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Close() error
}

// Config holds the settings shared by all embedding clients.
type Config struct {
	Model      string        `json:"model"`
	BaseURL    string        `json:"base_url,omitempty"`
	APIKey     string        `json:"-"`
	Dimensions int           `json:"dimensions,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty"`
	// Policy wraps every remote call with retry and circuit breaking.
	Policy *resilience.Policy `json:"-"`
}

// ClientConfig selects and configures an embedding client.
type ClientConfig struct {
	EndpointType types.EndpointType `json:"endpoint_type"`
	Config       Config             `json:"config"`
}

// NewClient creates the embedding client for the configured endpoint type.
func NewClient(cfg ClientConfig) (Client, error) {
	switch cfg.EndpointType {
	case types.EndpointTEI:
		if cfg.Config.BaseURL == "" {
			return nil, types.NewConfigurationError("endpoint", "a TEI endpoint URL is required")
		}
		return NewTEIClient(cfg.Config), nil
	case types.EndpointVLLM, types.EndpointOpenAI:
		if cfg.Config.Model == "" {
			return nil, types.NewConfigurationError("model_name", "a model name is required for %s endpoints", cfg.EndpointType)
		}
		return NewOpenAIEmbedder(cfg.Config.APIKey, cfg.Config), nil
	case types.EndpointLocal:
		return NewEmbedEverythingClient(&EmbedEverythingConfig{Config: &cfg.Config})
	default:
		return nil, types.NewConfigurationError("endpoint_type", "unsupported embedding endpoint type: %q", cfg.EndpointType)
	}
}

func embedSingle(ctx context.Context, c Client, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return embeddings[0], nil
}
