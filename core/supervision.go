package core

import "time"

// SupervisionResult is the uniform outcome of one supervised agent
// invocation, regardless of failure mode. Retries never exceeds the
// configured maximum; RequiresReplanning is set once all attempts are
// exhausted so the orchestrator can trigger a plan revision.
type SupervisionResult struct {
	Success            bool           `json:"success"`
	Content            string         `json:"content,omitempty"`
	StructuredOutputs  map[string]any `json:"structured_outputs,omitempty"`
	ThinkingLog        []string       `json:"thinking_log,omitempty"`
	Sources            []string       `json:"sources,omitempty"`
	Error              string         `json:"error,omitempty"`
	Retries            int            `json:"retries"`
	ExecutionTime      time.Duration  `json:"execution_time"`
	RequiresReplanning bool           `json:"requires_replanning,omitempty"`
}
