// Package resilience wraps backend calls with retry and circuit breaking.
//
// Both layers sit below the dispatcher: they see one HTTP or model call at a
// time. A reply with the wrong number of scores is detected above them and
// is therefore never retried.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/soundprediction/avert/pkg/logger"
	"github.com/soundprediction/avert/pkg/types"
)

// RetryConfig holds configuration for retry behavior
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int `mapstructure:"max_retries"`
	// InitialDelay is the initial delay before the first retry (default: 500ms)
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	// MaxDelay is the maximum delay between retries (default: 10 seconds)
	MaxDelay time.Duration `mapstructure:"max_delay"`
	// BackoffMultiplier is the multiplier for exponential backoff (default: 2.0)
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Retrier retries transient backend failures with exponential backoff.
type Retrier struct {
	config RetryConfig
	logger *slog.Logger
}

// NewRetrier creates a Retrier. A nil config selects the defaults.
func NewRetrier(config *RetryConfig, log *slog.Logger) *Retrier {
	cfg := *DefaultRetryConfig()
	if config != nil {
		cfg = *config
	}
	// Ensure sensible defaults
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2.0
	}
	return &Retrier{config: cfg, logger: logger.OrDiscard(log)}
}

// Retry runs fn until it succeeds, fails with a non-retryable error or the
// attempts are exhausted. A nil Retrier calls fn once.
func Retry[T any](ctx context.Context, r *Retrier, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if r == nil {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		// If this is a retry, wait with exponential backoff
		if attempt > 0 {
			delay := r.delay(attempt)
			r.logger.Warn("Retrying backend call", "op", op, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}
	}

	if r.config.MaxRetries == 0 {
		return zero, lastErr
	}
	return zero, fmt.Errorf("%s failed after %d retries: %w", op, r.config.MaxRetries, lastErr)
}

// delay calculates the delay for a given retry attempt using exponential backoff
func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1))
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	return time.Duration(d)
}

// StatusError is returned by HTTP backend clients for non-2xx replies.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("backend %s returned status %d: %s", e.URL, e.StatusCode, body)
}

// HTTPStatusCode returns the HTTP status of the reply.
func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

// Is implements errors.Is support for StatusError.
func (e *StatusError) Is(target error) bool {
	_, ok := target.(*StatusError)
	return ok
}

// IsRetryable reports whether err is a transient backend failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, &types.BackendResponseError{}) || errors.Is(err, &types.ConfigurationError{}) {
		return false
	}
	if errors.Is(err, ErrBreakerOpen) {
		return false
	}

	type httpErrorWithStatusCode interface {
		HTTPStatusCode() int
	}
	var httpErr httpErrorWithStatusCode
	if errors.As(err, &httpErr) {
		code := httpErr.HTTPStatusCode()
		return code >= 500 || code == http.StatusTooManyRequests
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= 500 || reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection reset",
		"connection refused",
		"temporary failure",
		"rate limit",
		"too many requests",
		"unexpected eof",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
