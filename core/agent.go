package core

import "context"

// Agent is the capability contract for an autonomous task handler. The core
// treats an agent's internals (prompting, retrieval, business rules) as
// opaque: it only decides who handles a request, how it is split into steps
// and how failures are contained and retried.
//
// Process is a single suspending call; implementations must respect context
// cancellation since the supervisor bounds every attempt with a deadline.
type Agent interface {
	Name() string
	Description() string
	Process(ctx context.Context, req *Request) (*AgentResult, error)
}

// Lifecycle is an optional extension implemented by agents that need
// initialization or shutdown hooks. The orchestrator calls these during
// Start/Stop for every registered agent that implements them.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// AgentResult is the raw outcome of one agent invocation before supervision
// bookkeeping (retries, timing, validation) is layered on top.
type AgentResult struct {
	Content           string         `json:"content"`
	StructuredOutputs map[string]any `json:"structured_outputs,omitempty"`
	ThinkingLog       []string       `json:"thinking_log,omitempty"`
	Sources           []string       `json:"sources,omitempty"`
}
