// Package metrics exports Prometheus metrics for backend calls and scoring
// outcomes.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/soundprediction/avert/pkg/resilience"
	"github.com/soundprediction/avert/pkg/types"
)

// Recorder implements dispatch.Observer and records scoring outcomes.
type Recorder struct {
	method string

	calls     *prometheus.CounterVec
	latency   prometheus.Observer
	chunkSize prometheus.Observer
	verdicts  *prometheus.CounterVec
	failures  *prometheus.CounterVec
	trips     *prometheus.CounterVec
}

// New registers the metrics on reg and returns a Recorder labelled with the
// scoring method. A nil reg uses the default registerer.
func New(reg prometheus.Registerer, method types.ScoringMethod) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"method": string(method)}

	calls := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "avert_backend_calls_total",
		Help: "Backend calls made while scoring, by outcome",
	}, []string{"method", "outcome"})

	latency := factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "avert_backend_call_duration_seconds",
		Help:    "Duration of one backend call",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"method"})

	chunkSize := factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "avert_backend_chunk_size",
		Help:    "Number of candidates sent in one backend call",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
	}, []string{"method"})

	verdicts := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "avert_scores_total",
		Help: "Scored responses by winning group",
	}, []string{"method", "group"})

	failures := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "avert_score_failures_total",
		Help: "Failed scoring calls by error kind",
	}, []string{"method", "kind"})

	trips := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "avert_circuit_breaker_trips_total",
		Help: "Times a backend circuit breaker opened",
	}, []string{"backend"})

	return &Recorder{
		method:    string(method),
		calls:     calls,
		latency:   latency.With(labels),
		chunkSize: chunkSize.With(labels),
		verdicts:  verdicts,
		failures:  failures,
		trips:     trips,
	}
}

// ObserveChunk implements dispatch.Observer.
func (r *Recorder) ObserveChunk(size int, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.calls.WithLabelValues(r.method, outcome).Inc()
	r.latency.Observe(elapsed.Seconds())
	r.chunkSize.Observe(float64(size))
}

// ObserveScore records the outcome of one scoring call.
func (r *Recorder) ObserveScore(best string, err error) {
	if err != nil {
		r.failures.WithLabelValues(r.method, Kind(err)).Inc()
		return
	}
	r.verdicts.WithLabelValues(r.method, GroupLabel(best)).Inc()
}

// CustomGroup is the label recorded for every caller-defined group name.
const CustomGroup = "custom"

// GroupLabel returns name when it is one of types.DefaultGroups and
// CustomGroup otherwise, so caller-chosen names cannot add series.
func GroupLabel(name string) string {
	for _, g := range types.DefaultGroups {
		if g == name {
			return name
		}
	}
	return CustomGroup
}

// BreakerTripped counts a circuit breaker opening. It matches the onTrip
// callback of resilience.NewBreaker.
func (r *Recorder) BreakerTripped(name string) {
	r.trips.WithLabelValues(name).Inc()
}

// Kind classifies err for the failure metric.
func Kind(err error) string {
	switch {
	case errors.Is(err, &types.ConfigurationError{}):
		return "configuration"
	case errors.Is(err, &types.BackendResponseError{}):
		return "backend_response"
	case errors.Is(err, &types.DegenerateGroupError{}):
		return "degenerate_group"
	case errors.Is(err, &types.NormalizationError{}):
		return "normalization"
	case errors.Is(err, resilience.ErrBreakerOpen):
		return "breaker_open"
	default:
		return "backend"
	}
}
