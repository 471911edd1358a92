package testutil

import "github.com/hupe1980/agentrelay/core"

// RequestBuilder provides a fluent helper for constructing requests in tests.
// Example:
//
//	req := NewRequestBuilder().Message("hello").Category("billing").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type RequestBuilder struct {
	message   string
	userID    string
	sessionID string
	category  string
	context   map[string]any
}

// NewRequestBuilder creates a builder with default message "test request".
func NewRequestBuilder() *RequestBuilder {
	return &RequestBuilder{message: "test request", context: map[string]any{}}
}

// Message sets the request message (chainable).
func (b *RequestBuilder) Message(m string) *RequestBuilder { b.message = m; return b }

// User sets the user identifier (chainable).
func (b *RequestBuilder) User(id string) *RequestBuilder { b.userID = id; return b }

// Session sets the session identifier (chainable).
func (b *RequestBuilder) Session(id string) *RequestBuilder { b.sessionID = id; return b }

// Category sets the request category (chainable).
func (b *RequestBuilder) Category(c string) *RequestBuilder { b.category = c; return b }

// Context sets a context key/value pair (chainable).
func (b *RequestBuilder) Context(k string, v any) *RequestBuilder { b.context[k] = v; return b }

// Build constructs the core.Request value.
func (b *RequestBuilder) Build() *core.Request {
	req := core.NewRequest(b.message)
	req.UserID = b.userID
	req.SessionID = b.sessionID
	req.Category = b.category
	for k, v := range b.context {
		req.Context[k] = v
	}
	return req
}
