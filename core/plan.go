package core

import "fmt"

// StepStatus is the lifecycle state of a single plan step. A step only
// advances pending → running → {completed, failed}, never backward.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// IsTerminal reports whether the step is in a final state.
func (s StepStatus) IsTerminal() bool { return s == StepCompleted || s == StepFailed }

// rank encodes the allowed forward-only ordering of step states.
func (s StepStatus) rank() int {
	switch s {
	case StepPending:
		return 0
	case StepRunning:
		return 1
	case StepCompleted, StepFailed:
		return 2
	default:
		return -1
	}
}

// PlanStep is one unit of work in a plan, bound to a target agent. Steps are
// created during planning and mutated in place during execution.
type PlanStep struct {
	Index      int        `json:"index"`
	Task       string     `json:"task"`
	Agent      string     `json:"agent"`
	DependsOn  []int      `json:"depends_on,omitempty"`
	Complexity float64    `json:"complexity"`
	Status     StepStatus `json:"status"`
	Result     string     `json:"result,omitempty"`
}

// Transition advances the step state, rejecting any backward move. Terminal
// states are never revisited; replanning substitutes a fresh step instead.
func (s *PlanStep) Transition(next StepStatus) error {
	if next.rank() < 0 {
		return fmt.Errorf("unknown step status %q", next)
	}
	if next.rank() <= s.Status.rank() {
		return fmt.Errorf("invalid step transition %s -> %s", s.Status, next)
	}
	s.Status = next
	return nil
}

// Plan is an ordered execution plan for one request. Step indices are
// contiguous starting at 0. Plans are created per request and discarded after
// execution.
type Plan struct {
	ID                    string     `json:"id"`
	RequestID             string     `json:"request_id"`
	Steps                 []PlanStep `json:"steps"`
	RequiresCollaboration bool       `json:"requires_collaboration"`
}

// NewPlan creates an empty plan for a request.
func NewPlan(requestID string) *Plan {
	return &Plan{ID: NewID(), RequestID: requestID, Steps: []PlanStep{}}
}

// AddStep appends a step with the next contiguous index in pending state.
func (p *Plan) AddStep(task, agent string, complexity float64) {
	p.Steps = append(p.Steps, PlanStep{
		Index:      len(p.Steps),
		Task:       task,
		Agent:      agent,
		Complexity: complexity,
		Status:     StepPending,
	})
}

// Progress returns completedSteps / totalSteps: 0 for a fresh plan, 1 once
// every step is completed. An empty plan reports 0.
func (p *Plan) Progress() float64 {
	if len(p.Steps) == 0 {
		return 0
	}
	completed := 0
	for _, s := range p.Steps {
		if s.Status == StepCompleted {
			completed++
		}
	}
	return float64(completed) / float64(len(p.Steps))
}

// FirstFailed returns the index of the first step in failed state, or -1.
func (p *Plan) FirstFailed() int {
	for _, s := range p.Steps {
		if s.Status == StepFailed {
			return s.Index
		}
	}
	return -1
}

// Agents returns the distinct agent names referenced by the plan's steps in
// first-appearance order.
func (p *Plan) Agents() []string {
	seen := map[string]bool{}
	var agents []string
	for _, s := range p.Steps {
		if !seen[s.Agent] {
			seen[s.Agent] = true
			agents = append(agents, s.Agent)
		}
	}
	return agents
}

// Reindex reassigns step indices to be contiguous from 0, preserving order.
func (p *Plan) Reindex() {
	for i := range p.Steps {
		p.Steps[i].Index = i
	}
}
