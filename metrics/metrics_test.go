package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/bus"
	"github.com/hupe1980/agentrelay/core"
)

// durationSamples returns the observation count of the request duration
// histogram registered on reg.
func durationSamples(t *testing.T, reg *prometheus.Registry) uint64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() == "agentrelay_request_duration_seconds" {
			return mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func TestCollector_CountsEventsRequestsAndSteps(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	b := bus.New()
	c.Attach(b)

	ctx := context.Background()
	b.Emit(ctx, core.NewEvent(core.EventRequestReceived, "test").With("request_id", "r-1"))
	b.Emit(ctx, core.NewEvent(core.EventStepStarted, "test"))
	b.Emit(ctx, core.NewEvent(core.EventStepCompleted, "test"))
	b.Emit(ctx, core.NewEvent(core.EventStepFailed, "test"))
	b.Emit(ctx, core.NewEvent(core.EventRequestCompleted, "test").With("request_id", "r-1"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues(core.EventRequestReceived)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("received")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.steps.WithLabelValues("started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.steps.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.steps.WithLabelValues("failed")))

	// The completed event closed out the duration tracking entry.
	assert.Equal(t, uint64(1), durationSamples(t, reg))
	c.mu.Lock()
	assert.Empty(t, c.started)
	c.mu.Unlock()
}

func TestCollector_FailedRequestObservesDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	b := bus.New()
	c.Attach(b)

	ctx := context.Background()
	b.Emit(ctx, core.NewEvent(core.EventRequestReceived, "test").With("request_id", "r-2"))
	b.Emit(ctx, core.NewEvent(core.EventRequestFailed, "test").With("request_id", "r-2"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("failed")))
	assert.Equal(t, uint64(1), durationSamples(t, reg))
}

func TestCollector_IgnoresEventsWithoutRequestID(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	b := bus.New()
	c.Attach(b)

	b.Emit(context.Background(), core.NewEvent(core.EventRequestCompleted, "test"))

	assert.Equal(t, uint64(0), durationSamples(t, reg))
}

func TestCollector_DetachViaUnsubscribe(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	b := bus.New()
	id := c.Attach(b)
	require.True(t, b.Unsubscribe(id))

	b.Emit(context.Background(), core.NewEvent(core.EventRequestReceived, "test").With("request_id", "r-3"))

	assert.Equal(t, 0.0, testutil.ToFloat64(c.requests.WithLabelValues("received")))
}
