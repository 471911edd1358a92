package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// StubAgent is a scriptable core.Agent for tests. By default every call
// succeeds with a canned answer; FailTimes and AlwaysFail script failures,
// Delay simulates a slow agent so timeout paths can be exercised.
type StubAgent struct {
	name        string
	description string

	mu         sync.Mutex
	calls      int
	failures   int
	alwaysFail bool
	failErr    error
	delay      time.Duration
	respond    func(req *core.Request) *core.AgentResult

	started bool
	stopped bool
}

// NewStubAgent creates a stub answering "<name> handled: <message>".
func NewStubAgent(name string) *StubAgent {
	return &StubAgent{name: name, description: fmt.Sprintf("Stub agent %s", name)}
}

// FailTimes scripts the first n calls to return err (chainable).
func (s *StubAgent) FailTimes(n int, err error) *StubAgent {
	s.failures = n
	s.failErr = err
	return s
}

// AlwaysFail scripts every call to return err (chainable).
func (s *StubAgent) AlwaysFail(err error) *StubAgent {
	s.alwaysFail = true
	s.failErr = err
	return s
}

// Delay makes every call sleep for d before responding, honoring context
// cancellation (chainable).
func (s *StubAgent) Delay(d time.Duration) *StubAgent {
	s.delay = d
	return s
}

// Respond overrides the canned answer (chainable).
func (s *StubAgent) Respond(fn func(req *core.Request) *core.AgentResult) *StubAgent {
	s.respond = fn
	return s
}

// Name implements core.Agent.
func (s *StubAgent) Name() string { return s.name }

// Description implements core.Agent.
func (s *StubAgent) Description() string { return s.description }

// Process implements core.Agent.
func (s *StubAgent) Process(ctx context.Context, req *core.Request) (*core.AgentResult, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()

	if s.alwaysFail || call <= s.failures {
		return nil, s.failErr
	}

	if s.respond != nil {
		return s.respond(req), nil
	}

	return &core.AgentResult{Content: fmt.Sprintf("%s handled: %s", s.name, req.Message)}, nil
}

// Start implements core.Lifecycle.
func (s *StubAgent) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

// Stop implements core.Lifecycle.
func (s *StubAgent) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// Calls returns the number of Process invocations so far.
func (s *StubAgent) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Started reports whether the lifecycle Start hook ran.
func (s *StubAgent) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Stopped reports whether the lifecycle Stop hook ran.
func (s *StubAgent) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
