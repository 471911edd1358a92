package core

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle event types emitted by the orchestration core. Consumers subscribe
// to these on the bus; the wildcard type matches every emission.
const (
	EventWildcard = "*"

	EventRequestReceived  = "request.received"
	EventRequestCompleted = "request.completed"
	EventRequestFailed    = "request.failed"

	EventPlanCreated = "plan.created"
	EventPlanRevised = "plan.revised"

	EventStepStarted   = "step.started"
	EventStepCompleted = "step.completed"
	EventStepFailed    = "step.failed"

	EventAgentRegistered   = "agent.registered"
	EventAgentUnregistered = "agent.unregistered"

	EventOrchestratorStarted = "orchestrator.started"
	EventOrchestratorStopped = "orchestrator.stopped"
)

// Event is an immutable, typed notification. After emission it must be
// treated as read-only; the bus retains it only in its bounded history.
//
// Tracing: TraceID is shared by a request and all spans derived from it,
// SpanID is unique per span, and ParentSpanID links a child span to its
// parent. All three survive JSON round-trips.
type Event struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	Payload      map[string]any    `json:"payload,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	TraceID      string            `json:"trace_id"`
	SpanID       string            `json:"span_id"`
	ParentSpanID string            `json:"parent_span_id,omitempty"`
	Source       string            `json:"source,omitempty"`
	Priority     int               `json:"priority,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates an event of the given type authored by source, rooted in a
// fresh trace. Each event owns its payload and metadata maps; callers must not
// share maps across events.
func NewEvent(eventType, source string) Event {
	return Event{
		ID:        NewID(),
		Type:      eventType,
		Payload:   map[string]any{},
		Timestamp: time.Now().UTC(),
		TraceID:   NewID(),
		SpanID:    NewID(),
		Source:    source,
		Metadata:  map[string]string{},
	}
}

// NewTracedEvent creates an event bound to an existing trace. The event gets
// its own span; parentSpanID links it to the operation that caused it.
func NewTracedEvent(eventType, source, traceID, parentSpanID string) Event {
	ev := NewEvent(eventType, source)
	ev.TraceID = traceID
	ev.ParentSpanID = parentSpanID
	return ev
}

// With returns a copy of the event with the payload key set. The receiver's
// payload map is copied so the original stays immutable.
func (e Event) With(key string, value any) Event {
	payload := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value
	e.Payload = payload
	return e
}

// Child derives a follow-up event in the same trace whose parent span is this
// event's span.
func (e Event) Child(eventType, source string) Event {
	return NewTracedEvent(eventType, source, e.TraceID, e.SpanID)
}

// UnixSeconds returns the timestamp as fractional seconds since Unix epoch.
// Useful for metrics and numeric serialization paths.
func (e Event) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }

// NewID generates a new unique identifier for events, spans, requests and plans.
func NewID() string { return uuid.NewString() }
