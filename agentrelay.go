// Package agentrelay provides a high-level façade over the orchestration
// core (event bus, router, planner, supervisor, orchestrator) enabling rapid
// construction of agent-routing systems. Most applications interact with this
// package by:
//  1. Creating an AgentRelay via New() (optionally overriding configuration or services)
//  2. Registering one or more agents with their routing rules
//  3. Processing requests via Process / ProcessMessage
//
// The façade delegates orchestration to orchestrator.Orchestrator while
// keeping setup ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a tuned
// config.Config and a structured logger, and attach observability
// collaborators (metrics, telemetry) to the exposed bus.
package agentrelay

import (
	"context"

	"github.com/hupe1980/agentrelay/bus"
	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/orchestrator"
	"github.com/hupe1980/agentrelay/planner"
	"github.com/hupe1980/agentrelay/router"
	"github.com/hupe1980/agentrelay/supervisor"
)

// Options configures the AgentRelay instance.
type Options struct {
	// Config supplies all tuning knobs. Defaults to config.Default().
	Config *config.Config

	// Bus overrides the event bus built from Config. Supply a shared bus to
	// let external observability collaborators subscribe before any event is
	// emitted.
	Bus *bus.Bus

	// Router overrides the router built from Config.
	Router *router.Router

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// AgentRelay is the high-level façade aggregating the orchestrator and the
// bus it publishes to.
type AgentRelay struct {
	bus          *bus.Bus
	orchestrator *orchestrator.Orchestrator
}

// New creates a new AgentRelay instance with optional overrides. Any unset
// service is built from the configuration.
func New(optFns ...func(o *Options)) *AgentRelay {
	opts := Options{
		Config: config.Default(),
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := opts.Config

	b := opts.Bus
	if b == nil {
		b = bus.New(func(o *bus.Options) {
			o.HistoryLimit = cfg.Bus.HistoryLimit
			o.DeadLetterLimit = cfg.Bus.DeadLetterLimit
			o.HandlerTimeout = cfg.Bus.HandlerTimeout
			o.WorkerPoolSize = cfg.Bus.WorkerPoolSize
			o.Logger = opts.Logger
		})
	}

	r := opts.Router
	if r == nil {
		r = router.New()
	}
	if cfg.Orchestrator.DefaultAgent != "" {
		r.SetDefault(cfg.Orchestrator.DefaultAgent)
	}

	p := planner.New(plannerConfig(cfg.Planner))

	s := supervisor.New(func(o *supervisor.Options) {
		o.MaxRetries = cfg.Supervisor.MaxRetries
		o.Timeout = cfg.Supervisor.Timeout
		o.BaseDelay = cfg.Supervisor.BaseDelay
		o.ValidateResult = cfg.Supervisor.ValidateResult
		o.MinResultLength = cfg.Supervisor.MinResultLength
		o.ErrorMarkers = cfg.Supervisor.ErrorMarkers
		o.HistoryLimit = cfg.Supervisor.HistoryLimit
		o.Logger = opts.Logger
	})

	orch := orchestrator.New(b, func(o *orchestrator.Options) {
		o.Router = r
		o.Planner = p
		o.Supervisor = s
		o.DefaultAgent = cfg.Orchestrator.DefaultAgent
		o.EnablePlanning = cfg.Orchestrator.EnablePlanning
		o.EnableCollaboration = cfg.Orchestrator.EnableCollaboration
		o.MaxReplans = cfg.Orchestrator.MaxReplans
		o.Logger = opts.Logger
	})

	return &AgentRelay{bus: b, orchestrator: orch}
}

func plannerConfig(pc config.PlannerConfig) planner.Config {
	cfg := planner.Config{
		ComplexityThreshold: pc.ComplexityThreshold,
		Connectors:          pc.Connectors,
		ConnectorWeight:     pc.ConnectorWeight,
		LengthWeight:        pc.LengthWeight,
		QuestionWeight:      pc.QuestionWeight,
	}
	for i, t := range pc.LengthThresholds {
		if i >= len(cfg.LengthThresholds) {
			break
		}
		cfg.LengthThresholds[i] = t
	}
	for _, route := range pc.Routes {
		cfg.Routes = append(cfg.Routes, planner.KeywordRoute{Keyword: route.Keyword, Agent: route.Agent})
	}
	return cfg
}

// RegisterAgent adds an agent and its routing rules to the orchestrator.
func (r *AgentRelay) RegisterAgent(name string, agent core.Agent, rules ...router.Rule) {
	r.orchestrator.RegisterAgent(name, agent, rules...)
}

// UnregisterAgent removes an agent and all routing rules targeting it.
func (r *AgentRelay) UnregisterAgent(name string) {
	r.orchestrator.UnregisterAgent(name)
}

// Start initializes all registered agents.
func (r *AgentRelay) Start(ctx context.Context) error { return r.orchestrator.Start(ctx) }

// Stop shuts down all registered agents and stops the bus, draining in-flight
// fire-and-forget notifications.
func (r *AgentRelay) Stop(ctx context.Context) error {
	err := r.orchestrator.Stop(ctx)
	r.bus.Stop()
	return err
}

// Process routes, plans and executes one request, always returning a
// well-formed response.
func (r *AgentRelay) Process(ctx context.Context, req *core.Request) *core.Response {
	return r.orchestrator.Process(ctx, req)
}

// ProcessMessage is a convenience wrapper building a fresh request from a
// plain message.
func (r *AgentRelay) ProcessMessage(ctx context.Context, message string) *core.Response {
	return r.orchestrator.Process(ctx, core.NewRequest(message))
}

// Bus exposes the event bus so observability collaborators can subscribe,
// attach middleware, or inspect history and dead letters.
func (r *AgentRelay) Bus() *bus.Bus { return r.bus }

// Stats returns a snapshot of orchestrator, supervisor and bus activity.
func (r *AgentRelay) Stats() orchestrator.Stats { return r.orchestrator.Stats() }
