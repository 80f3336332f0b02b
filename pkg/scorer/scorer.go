// Package scorer binds a similarity backend to the batch dispatcher. A Scorer
// is selected once from configuration and turns (query, candidates) into one
// score per candidate, in candidate order.
package scorer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/soundprediction/avert/pkg/crossencoder"
	"github.com/soundprediction/avert/pkg/dispatch"
	"github.com/soundprediction/avert/pkg/embedder"
	"github.com/soundprediction/avert/pkg/logger"
	"github.com/soundprediction/avert/pkg/resilience"
	"github.com/soundprediction/avert/pkg/types"
)

// DefaultBatchSize is the number of texts sent in one backend call.
const DefaultBatchSize = 32

// Scorer scores candidates against a query.
type Scorer interface {
	// Score returns one score per candidate, aligned with candidates.
	Score(ctx context.Context, query string, candidates []string) ([]float64, error)
	Method() types.ScoringMethod
	Close() error
}

// Config selects and configures the backend.
type Config struct {
	Method       types.ScoringMethod
	EndpointType types.EndpointType
	Endpoint     string
	Model        string
	APIKey       string
	BatchSize    int
	Timeout      time.Duration

	// Policy applies retry and circuit breaking to backend calls.
	Policy *resilience.Policy
	// Cache enables the embedding cache. Ignored for rerank.
	Cache *embedder.CacheConfig
	// Observer is notified after every backend call.
	Observer dispatch.Observer
}

// New creates the Scorer for cfg.
func New(cfg Config, log *slog.Logger) (Scorer, error) {
	log = logger.OrDiscard(log)
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	d := dispatch.New(log, cfg.Observer)

	switch cfg.Method {
	case types.MethodEmbedding:
		client, err := embedder.NewClient(embedder.ClientConfig{
			EndpointType: cfg.EndpointType,
			Config: embedder.Config{
				Model:   cfg.Model,
				BaseURL: cfg.Endpoint,
				APIKey:  cfg.APIKey,
				Timeout: cfg.Timeout,
				Policy:  cfg.Policy,
			},
		})
		if err != nil {
			return nil, err
		}
		if cfg.Cache != nil {
			cacheCfg := *cfg.Cache
			cacheCfg.Model = string(cfg.EndpointType) + "|" + cfg.Endpoint + "|" + cfg.Model
			cached, err := embedder.NewCachedClient(client, cacheCfg, log)
			if err != nil {
				return nil, errors.Join(err, client.Close())
			}
			client = cached
		}
		return NewEmbeddingScorer(client, cfg.BatchSize, d), nil

	case types.MethodRerank:
		provider, err := crossencoder.ProviderFor(cfg.EndpointType)
		if err != nil {
			return nil, err
		}
		client, err := crossencoder.NewClient(crossencoder.ClientConfig{
			Provider: provider,
			Config: crossencoder.Config{
				Model:   cfg.Model,
				BaseURL: cfg.Endpoint,
				APIKey:  cfg.APIKey,
				Timeout: cfg.Timeout,
				Policy:  cfg.Policy,
			},
		})
		if err != nil {
			return nil, err
		}
		return NewRerankScorer(client, cfg.BatchSize, d), nil

	default:
		return nil, types.NewConfigurationError("method", "scoring method %q not supported", cfg.Method)
	}
}
