package core

// Request is one inbound unit of work. Context carries accumulated prior step
// results on derived sub-requests; each request owns its own map.
type Request struct {
	ID           string         `json:"id"`
	Message      string         `json:"message"`
	UserID       string         `json:"user_id,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	Category     string         `json:"category,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
}

// NewRequest creates a request rooted in a fresh trace with an independently
// owned empty context map.
func NewRequest(message string) *Request {
	return &Request{
		ID:      NewID(),
		Message: message,
		Context: map[string]any{},
		TraceID: NewID(),
		SpanID:  NewID(),
	}
}

// Child derives a sub-request for one plan step. It shares the parent's trace
// id, user/session identifiers and category, gets a unique span id whose
// parent is the originating request's span, and starts with a fresh context
// map so steps never share mutable state by accident.
func (r *Request) Child(message string) *Request {
	return &Request{
		ID:           NewID(),
		Message:      message,
		UserID:       r.UserID,
		SessionID:    r.SessionID,
		Category:     r.Category,
		Context:      map[string]any{},
		TraceID:      r.TraceID,
		SpanID:       NewID(),
		ParentSpanID: r.SpanID,
	}
}

// Response is the orchestrator's answer to one request. Callers always
// receive one: either Content is populated or Success is false and Error is
// non-empty.
type Response struct {
	ID                string         `json:"id"`
	RequestID         string         `json:"request_id"`
	Content           string         `json:"content,omitempty"`
	StructuredOutputs map[string]any `json:"structured_outputs,omitempty"`
	ThinkingLog       []string       `json:"thinking_log,omitempty"`
	Sources           []string       `json:"sources,omitempty"`
	Success           bool           `json:"success"`
	Error             string         `json:"error,omitempty"`
}
