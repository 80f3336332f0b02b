package avert

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/soundprediction/avert"
	"github.com/soundprediction/avert/pkg/config"
	"github.com/soundprediction/avert/pkg/logger"
	"github.com/soundprediction/avert/pkg/metrics"
	"github.com/soundprediction/avert/pkg/resilience"
	"github.com/soundprediction/avert/pkg/scorer"
	"github.com/soundprediction/avert/pkg/telemetry"
)

// stack is the wired scoring engine with its logger, metrics and backend
// policy.
type stack struct {
	settings  *config.Settings
	engine    *avert.Engine
	logger    *slog.Logger
	registry  *prometheus.Registry
	recorder  *metrics.Recorder
	policy    *resilience.Policy
	telemetry *telemetry.ParquetHandler
}

// newStack validates cfg and connects the engine to its backend.
func newStack(cfg *config.Config) (*stack, error) {
	settings, err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	st := &stack{settings: settings, registry: prometheus.NewRegistry()}
	st.logger = logger.NewLogger(logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
		Color:  cfg.Log.Color,
	})
	if path := cfg.Telemetry.ParquetPath; path != "" {
		h, err := telemetry.NewParquetHandler(st.logger.Handler(), path, 0)
		if err != nil {
			st.logger.Warn("Error tracking disabled", "path", path, "error", err)
		} else {
			st.telemetry = h
			st.logger = slog.New(h)
		}
	}

	st.recorder = metrics.New(st.registry, settings.Method)
	st.policy = settings.Policy(st.logger, st.recorder.BreakerTripped)

	s, err := scorer.New(settings.ScorerConfig(st.policy, st.recorder), st.logger)
	if err != nil {
		st.closeTelemetry()
		return nil, fmt.Errorf("failed to create scorer: %w", err)
	}
	st.engine, err = avert.NewEngine(s, settings.EngineConfig(), st.logger)
	if err != nil {
		_ = s.Close()
		st.closeTelemetry()
		return nil, err
	}

	st.logger.Info("Scoring engine ready",
		"method", settings.Method,
		"endpoint_type", settings.EndpointType,
		"model", settings.Model,
		"grouping", settings.Grouping.String(),
		"batch_size", settings.BatchSize)
	return st, nil
}

// breakerState reports the backend breaker state, or nil without a breaker.
func (st *stack) breakerState() func() string {
	if st.policy == nil || st.policy.Breaker == nil {
		return nil
	}
	return st.policy.Breaker.State
}

func (st *stack) closeTelemetry() error {
	if st.telemetry == nil {
		return nil
	}
	return st.telemetry.Close()
}

// Close releases the backend and flushes telemetry.
func (st *stack) Close() error {
	return errors.Join(st.engine.Close(), st.closeTelemetry())
}
