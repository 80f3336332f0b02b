package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/soundprediction/avert/pkg/logger"
)

// ErrBreakerOpen is returned without calling the backend while the breaker is
// open or half-open and saturated.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig holds configuration for circuit breaking
type BreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	MinRequests      uint32  `mapstructure:"min_requests"`
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// DefaultBreakerConfig returns a disabled breaker with usable thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         60,
		Timeout:          30,
		MinRequests:      3,
		ReadyToTripRatio: 0.6,
	}
}

// Breaker stops calling a backend that keeps failing.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker creates a Breaker named after the backend it protects. It
// returns nil when cfg is disabled; a nil Breaker passes calls through.
// onTrip, when set, runs every time the breaker opens.
func NewBreaker(name string, cfg BreakerConfig, log *slog.Logger, onTrip func(name string)) *Breaker {
	if !cfg.Enabled {
		return nil
	}
	log = logger.OrDiscard(log)
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 3
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= cfg.ReadyToTripRatio
		},
		// Only transient failures count against the backend.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				log.Error("Circuit breaker tripped", "backend", name, "from", from.String(), "to", to.String())
				if onTrip != nil {
					onTrip(name)
				}
				return
			}
			log.Info("Circuit breaker state changed", "backend", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker(st)}
}

// Execute runs fn through the breaker.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}
	var zero T
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %s: %v", ErrBreakerOpen, b.name, err)
		}
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}

// State returns the breaker state name, or "disabled" for a nil Breaker.
func (b *Breaker) State() string {
	if b == nil {
		return "disabled"
	}
	return b.cb.State().String()
}

// Policy combines retry and circuit breaking for one backend. Each attempt
// passes through the breaker, so an open breaker ends the retry loop.
type Policy struct {
	Retrier *Retrier
	Breaker *Breaker
}

// Call runs fn under p. A nil Policy calls fn once.
func Call[T any](ctx context.Context, p *Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	if p == nil {
		return fn(ctx)
	}
	return Retry(ctx, p.Retrier, op, func(ctx context.Context) (T, error) {
		return Execute(p.Breaker, func() (T, error) { return fn(ctx) })
	})
}
