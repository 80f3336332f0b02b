package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/soundprediction/avert/pkg/dispatch"
	"github.com/soundprediction/avert/pkg/resilience"
	"github.com/soundprediction/avert/pkg/types"
)

var _ dispatch.Observer = (*Recorder)(nil)

func TestRecorderCountsBackendCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, types.MethodRerank)

	r.ObserveChunk(31, 20*time.Millisecond, nil)
	r.ObserveChunk(5, time.Second, errors.New("timeout"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.calls.WithLabelValues("rerank", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.calls.WithLabelValues("rerank", "error")))

	n, err := testutil.GatherAndCount(reg, "avert_backend_chunk_size", "avert_backend_call_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecorderScores(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, types.MethodEmbedding)

	r.ObserveScore("correct", nil)
	r.ObserveScore("correct", nil)
	r.ObserveScore("", &types.NormalizationError{})
	r.BreakerTripped("tei-embedding")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.verdicts.WithLabelValues("embedding", "correct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("embedding", "normalization")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.trips.WithLabelValues("tei-embedding")))
}

func TestRecorderFoldsCustomGroups(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, types.MethodRerank)

	for i := 0; i < 50; i++ {
		r.ObserveScore(fmt.Sprintf("group-%d", i), nil)
	}
	r.ObserveScore(types.GroupWrong, nil)

	n, err := testutil.GatherAndCount(reg, "avert_scores_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 50.0, testutil.ToFloat64(r.verdicts.WithLabelValues("rerank", CustomGroup)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.verdicts.WithLabelValues("rerank", "wrong")))
}

func TestGroupLabel(t *testing.T) {
	for _, name := range types.DefaultGroups {
		assert.Equal(t, name, GroupLabel(name))
	}
	assert.Equal(t, CustomGroup, GroupLabel("paris"))
	assert.Equal(t, CustomGroup, GroupLabel(""))
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{types.NewConfigurationError("x", "bad"), "configuration"},
		{fmt.Errorf("wrapped: %w", &types.BackendResponseError{}), "backend_response"},
		{&types.DegenerateGroupError{Group: "wrong"}, "degenerate_group"},
		{&types.NormalizationError{}, "normalization"},
		{fmt.Errorf("%w: tei", resilience.ErrBreakerOpen), "breaker_open"},
		{errors.New("connection refused"), "backend"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err), "%v", tt.err)
	}
}
