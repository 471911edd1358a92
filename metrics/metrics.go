// Package metrics exports Prometheus metrics for the orchestration core. It
// is an observability collaborator in the sense of the bus contract: it
// subscribes to lifecycle events and never participates in the control flow.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/agentrelay/bus"
	"github.com/hupe1980/agentrelay/core"
)

// Collector turns bus lifecycle events into Prometheus series. Request
// duration is measured between the received and completed/failed events of
// the same request id.
type Collector struct {
	events          *prometheus.CounterVec
	requests        *prometheus.CounterVec
	steps           *prometheus.CounterVec
	requestDuration prometheus.Histogram

	mu          sync.Mutex
	started     map[string]time.Time
	maxInFlight int
}

// NewCollector creates a collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrelay",
			Name:      "events_total",
			Help:      "Lifecycle events observed on the bus, by event type.",
		}, []string{"type"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrelay",
			Name:      "requests_total",
			Help:      "Requests by outcome.",
		}, []string{"outcome"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrelay",
			Name:      "plan_steps_total",
			Help:      "Plan steps by outcome.",
		}, []string{"outcome"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agentrelay",
			Name:      "request_duration_seconds",
			Help:      "End-to-end request processing latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		started:     map[string]time.Time{},
		maxInFlight: 10000,
	}

	reg.MustRegister(c.events, c.requests, c.steps, c.requestDuration)

	return c
}

// Attach subscribes the collector to the bus and returns the subscription id
// for later removal.
func (c *Collector) Attach(b *bus.Bus) string {
	return b.Subscribe(core.EventWildcard, bus.HandlerFunc(c.observe))
}

func (c *Collector) observe(_ context.Context, ev core.Event) (any, error) {
	c.events.WithLabelValues(ev.Type).Inc()

	switch ev.Type {
	case core.EventRequestReceived:
		c.requests.WithLabelValues("received").Inc()
		c.markStart(ev)
	case core.EventRequestCompleted:
		c.requests.WithLabelValues("completed").Inc()
		c.observeDuration(ev)
	case core.EventRequestFailed:
		c.requests.WithLabelValues("failed").Inc()
		c.observeDuration(ev)
	case core.EventStepStarted:
		c.steps.WithLabelValues("started").Inc()
	case core.EventStepCompleted:
		c.steps.WithLabelValues("completed").Inc()
	case core.EventStepFailed:
		c.steps.WithLabelValues("failed").Inc()
	}

	return nil, nil
}

func (c *Collector) markStart(ev core.Event) {
	id, ok := ev.Payload["request_id"].(string)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Drop the oldest tracking entries rather than growing without bound
	// when completion events are lost.
	if len(c.started) >= c.maxInFlight {
		for k := range c.started {
			delete(c.started, k)
			break
		}
	}
	c.started[id] = ev.Timestamp
}

func (c *Collector) observeDuration(ev core.Event) {
	id, ok := ev.Payload["request_id"].(string)
	if !ok {
		return
	}

	c.mu.Lock()
	start, found := c.started[id]
	delete(c.started, id)
	c.mu.Unlock()

	if found {
		c.requestDuration.Observe(ev.Timestamp.Sub(start).Seconds())
	}
}
