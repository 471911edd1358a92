// Package orchestrator provides the top-level façade of the orchestration
// core: it owns the agent registry, composes router + planner + supervisor,
// and implements the single-agent and multi-step collaborative execution
// paths. Process never lets a failure escape; callers always receive a
// well-formed core.Response.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentrelay/bus"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/planner"
	"github.com/hupe1980/agentrelay/router"
	"github.com/hupe1980/agentrelay/supervisor"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Router maps requests to agent names. Defaults to an empty router.
	Router *router.Router
	// Planner decides single-step vs. multi-step execution. Defaults to the
	// baseline heuristics.
	Planner *planner.Planner
	// Supervisor performs bounded-retry agent invocations. Defaults to the
	// baseline retry policy.
	Supervisor *supervisor.Supervisor
	// DefaultAgent handles requests the router cannot place.
	DefaultAgent string
	// EnablePlanning toggles plan construction; when disabled every request
	// is delegated whole to the routed agent.
	EnablePlanning bool
	// EnableCollaboration toggles multi-step execution of collaborative
	// plans; when disabled such plans collapse to the single-agent path.
	EnableCollaboration bool
	// MaxReplans bounds plan revisions per request so a persistently failing
	// step cannot loop forever.
	MaxReplans int
	// Logger provides structured logging. Defaults to NoOp if nil.
	Logger logging.Logger
}

// Stats is a point-in-time snapshot of orchestrator activity.
type Stats struct {
	Agents     int
	Processed  uint64
	Succeeded  uint64
	Failed     uint64
	Supervisor supervisor.Stats
	Bus        bus.Stats
}

// Orchestrator routes, plans and supervises requests against registered
// agents, emitting lifecycle notifications into the bus. The agent registry
// is guarded by a lock that is never held across an agent invocation.
type Orchestrator struct {
	bus        *bus.Bus
	router     *router.Router
	planner    *planner.Planner
	supervisor *supervisor.Supervisor

	defaultAgent        string
	enablePlanning      bool
	enableCollaboration bool
	maxReplans          int

	mu      sync.RWMutex
	agents  map[string]core.Agent
	started bool

	statsMu   sync.Mutex
	processed uint64
	succeeded uint64
	failed    uint64

	logger logging.Logger
}

// New constructs an Orchestrator publishing to the given bus, with optional
// overrides. The bus is owned by the caller and may be shared with external
// observability collaborators.
func New(b *bus.Bus, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Router:              router.New(),
		Planner:             planner.New(planner.DefaultConfig()),
		Supervisor:          supervisor.New(),
		EnablePlanning:      true,
		EnableCollaboration: true,
		MaxReplans:          1,
		Logger:              logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Orchestrator{
		bus:                 b,
		router:              opts.Router,
		planner:             opts.Planner,
		supervisor:          opts.Supervisor,
		defaultAgent:        opts.DefaultAgent,
		enablePlanning:      opts.EnablePlanning,
		enableCollaboration: opts.EnableCollaboration,
		maxReplans:          opts.MaxReplans,
		agents:              make(map[string]core.Agent),
		logger:              opts.Logger,
	}
}

// RegisterAgent adds an agent to the registry under the given name and
// forwards its routing rules to the router. An existing agent with the same
// name is replaced.
func (o *Orchestrator) RegisterAgent(name string, agent core.Agent, rules ...router.Rule) {
	o.mu.Lock()
	o.agents[name] = agent
	o.mu.Unlock()

	for _, rule := range rules {
		if rule.Agent == "" {
			rule.Agent = name
		}
		o.router.AddRule(rule)
	}

	o.logger.Info("agent registered name=%s rules=%d", name, len(rules))
	o.bus.EmitAsync(core.NewEvent(core.EventAgentRegistered, "orchestrator").With("agent", name))
}

// UnregisterAgent removes an agent and all routing rules targeting it.
func (o *Orchestrator) UnregisterAgent(name string) {
	o.mu.Lock()
	delete(o.agents, name)
	o.mu.Unlock()

	removed := o.router.RemoveRulesForAgent(name)

	o.logger.Info("agent unregistered name=%s rules_removed=%d", name, removed)
	o.bus.EmitAsync(core.NewEvent(core.EventAgentUnregistered, "orchestrator").With("agent", name))
}

// Agent returns a registered agent by name.
func (o *Orchestrator) Agent(name string) (core.Agent, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.agents[name]
	return a, ok
}

// Start initializes every registered agent that implements core.Lifecycle and
// emits a started event. The first initialization error aborts the start.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return fmt.Errorf("orchestrator already started")
	}

	for name, agent := range o.agents {
		if lc, ok := agent.(core.Lifecycle); ok {
			if err := lc.Start(ctx); err != nil {
				return fmt.Errorf("starting agent %s: %w", name, err)
			}
		}
	}

	o.started = true
	o.bus.EmitAsync(core.NewEvent(core.EventOrchestratorStarted, "orchestrator"))

	return nil
}

// Stop shuts down every registered agent that implements core.Lifecycle and
// emits a stopped event. All agents are stopped even if some fail; the first
// error is returned.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return fmt.Errorf("orchestrator not started")
	}

	var firstErr error
	for name, agent := range o.agents {
		if lc, ok := agent.(core.Lifecycle); ok {
			if err := lc.Stop(ctx); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("stopping agent %s: %w", name, err)
			}
		}
	}

	o.started = false
	o.bus.EmitAsync(core.NewEvent(core.EventOrchestratorStopped, "orchestrator"))

	return firstErr
}

// Process routes the request to an agent, optionally decomposes it into a
// plan, executes it under supervision and returns the assembled response.
// Any unexpected failure inside this call is caught and converted into a
// failed response; it never panics outward.
func (o *Orchestrator) Process(ctx context.Context, req *core.Request) (resp *core.Response) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("request processing panic request_id=%s: %v", req.ID, r)
			resp = o.fail(req, fmt.Sprintf("request processing failure: %v", r))
		}
	}()

	o.statsMu.Lock()
	o.processed++
	o.statsMu.Unlock()

	o.emitRequestEvent(core.EventRequestReceived, req, nil)

	agentName, ok := o.router.Route(req)
	if !ok {
		agentName = o.defaultAgent
	}

	agent, registered := o.Agent(agentName)
	if !registered {
		return o.fail(req, fmt.Sprintf("agent not found: %q", agentName))
	}

	if !o.enablePlanning {
		return o.finish(req, o.supervisor.Execute(ctx, agent, req))
	}

	plan := o.planner.CreatePlan(req, agentName)
	o.bus.EmitAsync(core.NewTracedEvent(core.EventPlanCreated, "orchestrator", req.TraceID, req.SpanID).
		With("plan_id", plan.ID).
		With("request_id", req.ID).
		With("steps", len(plan.Steps)).
		With("requires_collaboration", plan.RequiresCollaboration))

	if !plan.RequiresCollaboration || !o.enableCollaboration {
		return o.finish(req, o.supervisor.Execute(ctx, agent, req))
	}

	return o.executePlan(ctx, req, plan)
}

// executePlan runs plan steps strictly sequentially: later steps may consume
// earlier results, so there is no parallel step execution. Each step gets a
// derived sub-request carrying the accumulated prior step results in its
// context; a failed step triggers at most maxReplans plan revisions before the
// request fails.
func (o *Orchestrator) executePlan(ctx context.Context, req *core.Request, plan *core.Plan) *core.Response {
	var contents []string
	var thinking []string
	var sources []string
	outputs := map[string]any{}

	replans := 0

	for i := 0; i < len(plan.Steps); {
		step := &plan.Steps[i]

		if err := step.Transition(core.StepRunning); err != nil {
			return o.fail(req, fmt.Sprintf("plan step %d: %v", step.Index, err))
		}

		o.emitStepEvent(core.EventStepStarted, req, plan, step, nil)

		sub := req.Child(step.Task)
		sub.Context["plan_id"] = plan.ID
		sub.Context["step_index"] = step.Index
		sub.Context["prior_results"] = append([]string{}, contents...)

		result := o.superviseStep(ctx, sub, step)

		if result.Success {
			step.Result = result.Content
			if err := step.Transition(core.StepCompleted); err != nil {
				return o.fail(req, fmt.Sprintf("plan step %d: %v", step.Index, err))
			}

			contents = append(contents, result.Content)
			thinking = append(thinking, result.ThinkingLog...)
			sources = append(sources, result.Sources...)
			for k, v := range result.StructuredOutputs {
				outputs[k] = v
			}

			o.emitStepEvent(core.EventStepCompleted, req, plan, step, result)
			i++
			continue
		}

		step.Result = result.Error
		if err := step.Transition(core.StepFailed); err != nil {
			return o.fail(req, fmt.Sprintf("plan step %d: %v", step.Index, err))
		}

		o.emitStepEvent(core.EventStepFailed, req, plan, step, result)

		if !result.RequiresReplanning || replans >= o.maxReplans {
			return o.fail(req, fmt.Sprintf("step %d failed: %s", step.Index, result.Error))
		}

		replans++
		plan = o.planner.Replan(plan, result)
		o.logger.Info("plan revised plan_id=%s request_id=%s replans=%d", plan.ID, req.ID, replans)
		o.bus.EmitAsync(core.NewTracedEvent(core.EventPlanRevised, "orchestrator", req.TraceID, req.SpanID).
			With("plan_id", plan.ID).
			With("request_id", req.ID).
			With("steps", len(plan.Steps)).
			With("recovery_index", i))
		// Continue from the current position: the revised plan substitutes a
		// synthetic recovery step at index i.
	}

	resp := &core.Response{
		ID:                core.NewID(),
		RequestID:         req.ID,
		Content:           strings.Join(contents, "\n\n"),
		StructuredOutputs: outputs,
		ThinkingLog:       thinking,
		Sources:           sources,
		Success:           true,
	}

	o.statsMu.Lock()
	o.succeeded++
	o.statsMu.Unlock()

	o.emitRequestEvent(core.EventRequestCompleted, req, resp)

	return resp
}

// superviseStep resolves the step's target agent and executes the derived
// sub-request under supervision. An unregistered target is reported as a
// failed, replannable attempt rather than an error.
func (o *Orchestrator) superviseStep(ctx context.Context, sub *core.Request, step *core.PlanStep) *core.SupervisionResult {
	agent, ok := o.Agent(step.Agent)
	if !ok {
		return &core.SupervisionResult{
			Success:            false,
			Error:              fmt.Sprintf("agent not found: %q", step.Agent),
			RequiresReplanning: true,
		}
	}

	return o.supervisor.Execute(ctx, agent, sub)
}

// finish maps a whole-request supervision result into the final response.
func (o *Orchestrator) finish(req *core.Request, result *core.SupervisionResult) *core.Response {
	if !result.Success {
		return o.fail(req, result.Error)
	}

	resp := &core.Response{
		ID:                core.NewID(),
		RequestID:         req.ID,
		Content:           result.Content,
		StructuredOutputs: result.StructuredOutputs,
		ThinkingLog:       result.ThinkingLog,
		Sources:           result.Sources,
		Success:           true,
	}

	o.statsMu.Lock()
	o.succeeded++
	o.statsMu.Unlock()

	o.emitRequestEvent(core.EventRequestCompleted, req, resp)

	return resp
}

func (o *Orchestrator) fail(req *core.Request, errMsg string) *core.Response {
	if errMsg == "" {
		errMsg = "request processing failure"
	}

	resp := &core.Response{
		ID:        core.NewID(),
		RequestID: req.ID,
		Success:   false,
		Error:     errMsg,
	}

	o.statsMu.Lock()
	o.failed++
	o.statsMu.Unlock()

	o.logger.Warn("request failed request_id=%s error=%s", req.ID, errMsg)
	o.emitRequestEvent(core.EventRequestFailed, req, resp)

	return resp
}

func (o *Orchestrator) emitRequestEvent(eventType string, req *core.Request, resp *core.Response) {
	ev := core.NewTracedEvent(eventType, "orchestrator", req.TraceID, req.SpanID).
		With("request_id", req.ID).
		With("message", req.Message).
		With("category", req.Category)
	if resp != nil {
		ev = ev.With("success", resp.Success)
		if resp.Error != "" {
			ev = ev.With("error", resp.Error)
		}
	}
	o.bus.EmitAsync(ev)
}

func (o *Orchestrator) emitStepEvent(eventType string, req *core.Request, plan *core.Plan, step *core.PlanStep, result *core.SupervisionResult) {
	ev := core.NewTracedEvent(eventType, "orchestrator", req.TraceID, req.SpanID).
		With("plan_id", plan.ID).
		With("request_id", req.ID).
		With("step_index", step.Index).
		With("agent", step.Agent)
	if result != nil {
		ev = ev.With("retries", result.Retries)
		if result.Error != "" {
			ev = ev.With("error", result.Error)
		}
	}
	o.bus.EmitAsync(ev)
}

// Stats returns a snapshot of orchestrator, supervisor and bus activity.
func (o *Orchestrator) Stats() Stats {
	o.mu.RLock()
	agents := len(o.agents)
	o.mu.RUnlock()

	o.statsMu.Lock()
	processed, succeeded, failed := o.processed, o.succeeded, o.failed
	o.statsMu.Unlock()

	return Stats{
		Agents:     agents,
		Processed:  processed,
		Succeeded:  succeeded,
		Failed:     failed,
		Supervisor: o.supervisor.Stats(),
		Bus:        o.bus.Stats(),
	}
}
