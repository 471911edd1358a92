package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRequest(t *testing.T) {
	req := NewRequest("hello")

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, "hello", req.Message)
	assert.NotNil(t, req.Context)
	assert.NotEmpty(t, req.TraceID)
	assert.NotEmpty(t, req.SpanID)
	assert.Empty(t, req.ParentSpanID)
}

func TestRequest_Child(t *testing.T) {
	req := NewRequest("do both things")
	req.UserID = "u-1"
	req.SessionID = "s-1"
	req.Category = "support"
	req.Context["key"] = "value"

	sub := req.Child("do the first thing")

	assert.NotEqual(t, req.ID, sub.ID)
	assert.Equal(t, "do the first thing", sub.Message)
	assert.Equal(t, req.UserID, sub.UserID)
	assert.Equal(t, req.SessionID, sub.SessionID)
	assert.Equal(t, req.Category, sub.Category)

	// Same trace, fresh span linked to the parent span.
	assert.Equal(t, req.TraceID, sub.TraceID)
	assert.NotEqual(t, req.SpanID, sub.SpanID)
	assert.Equal(t, req.SpanID, sub.ParentSpanID)

	// The child owns its own context map.
	assert.Empty(t, sub.Context)
	sub.Context["other"] = 1
	assert.NotContains(t, req.Context, "other")
}
