// Package planner turns a request into an ordered execution plan, deciding
// single-step vs. multi-step decomposition, and repairs a plan after a step
// failure by inserting a synthetic recovery step.
//
// The complexity thresholds, connector words and keyword routing table are
// heuristic tuning knobs, not structural requirements; they live in Config so
// deployments can adjust them without touching the algorithm.
package planner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/hupe1980/agentrelay/core"
)

// KeywordRoute binds a task substring to a target agent. The table is ordered:
// the first keyword contained in a step's task wins.
type KeywordRoute struct {
	Keyword string
	Agent   string
}

// Config carries the planner's heuristic tuning knobs.
type Config struct {
	// ComplexityThreshold is the score at or above which a request is
	// decomposed into multiple steps.
	ComplexityThreshold float64
	// Connectors are multi-intent connector words in fixed priority order;
	// the first one found in the message is the split point.
	Connectors []string
	// ConnectorWeight is added to the score when any connector is present.
	ConnectorWeight float64
	// LengthThresholds are three increasing message lengths; each one the
	// message exceeds adds LengthWeight to the score.
	LengthThresholds [3]int
	// LengthWeight is the per-threshold score increment.
	LengthWeight float64
	// QuestionWeight is the per-question bonus applied to every
	// sentence-terminating question mark beyond the first.
	QuestionWeight float64
	// Routes is the keyword->agent lookup table used to bind decomposed
	// steps to agents.
	Routes []KeywordRoute
}

// DefaultConfig returns the baseline heuristics.
func DefaultConfig() Config {
	return Config{
		ComplexityThreshold: 0.5,
		Connectors:          []string{"and then", "after that", "then", "additionally", "also", " and "},
		ConnectorWeight:     0.4,
		LengthThresholds:    [3]int{80, 200, 400},
		LengthWeight:        0.1,
		QuestionWeight:      0.1,
		Routes:              []KeywordRoute{},
	}
}

var sentenceTerminators = regexp.MustCompile(`[.!?]+`)

// Planner builds and revises execution plans. It is stateless apart from its
// configuration and safe for concurrent use.
type Planner struct {
	cfg Config
}

// New creates a planner from the given configuration. Zero-valued knobs are
// replaced by their defaults so a partially filled Config stays usable.
func New(cfg Config) *Planner {
	def := DefaultConfig()
	if cfg.ComplexityThreshold == 0 {
		cfg.ComplexityThreshold = def.ComplexityThreshold
	}
	if len(cfg.Connectors) == 0 {
		cfg.Connectors = def.Connectors
	}
	if cfg.ConnectorWeight == 0 {
		cfg.ConnectorWeight = def.ConnectorWeight
	}
	if cfg.LengthThresholds == [3]int{} {
		cfg.LengthThresholds = def.LengthThresholds
	}
	if cfg.LengthWeight == 0 {
		cfg.LengthWeight = def.LengthWeight
	}
	if cfg.QuestionWeight == 0 {
		cfg.QuestionWeight = def.QuestionWeight
	}
	return &Planner{cfg: cfg}
}

// Complexity computes a heuristic score in [0,1] from multi-intent connector
// presence, message length thresholds and repeated questions.
func (p *Planner) Complexity(message string) float64 {
	score := 0.0
	lower := strings.ToLower(message)

	if lo.SomeBy(p.cfg.Connectors, func(c string) bool { return strings.Contains(lower, c) }) {
		score += p.cfg.ConnectorWeight
	}

	for _, threshold := range p.cfg.LengthThresholds {
		if len(message) > threshold {
			score += p.cfg.LengthWeight
		}
	}

	if q := strings.Count(message, "?"); q > 1 {
		score += float64(q-1) * p.cfg.QuestionWeight
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	return score
}

// CreatePlan builds the execution plan for a request. routedAgent is the
// router's pick for the whole request and binds the single-step path; on the
// multi-step path each decomposed substring is bound via the keyword table,
// defaulting to the request's originating category.
func (p *Planner) CreatePlan(req *core.Request, routedAgent string) *core.Plan {
	plan := core.NewPlan(req.ID)
	score := p.Complexity(req.Message)

	if score < p.cfg.ComplexityThreshold {
		agent := routedAgent
		if agent == "" {
			agent = req.Category
		}
		plan.AddStep(req.Message, agent, score)
		return plan
	}

	parts := p.decompose(req.Message)
	stepScore := score / float64(len(parts))
	for _, part := range parts {
		plan.AddStep(part, p.resolveAgent(part, req, routedAgent), stepScore)
	}

	plan.RequiresCollaboration = len(plan.Agents()) > 1

	return plan
}

// decompose splits the message into ordered non-empty substrings: first on
// the first matched connector, falling back to sentence terminators, falling
// back again to the whole message.
func (p *Planner) decompose(message string) []string {
	lower := strings.ToLower(message)

	for _, connector := range p.cfg.Connectors {
		if !strings.Contains(lower, connector) {
			continue
		}
		if parts := splitClean(message, connector); len(parts) > 1 {
			return parts
		}
	}

	raw := sentenceTerminators.Split(message, -1)
	parts := lo.FilterMap(raw, func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		return s, s != ""
	})
	if len(parts) > 1 {
		return parts
	}

	return []string{message}
}

// splitClean splits case-insensitively on sep and trims/drops empty parts.
func splitClean(message, sep string) []string {
	var parts []string
	remaining := message
	for {
		idx := strings.Index(strings.ToLower(remaining), sep)
		if idx < 0 {
			parts = append(parts, remaining)
			break
		}
		parts = append(parts, remaining[:idx])
		remaining = remaining[idx+len(sep):]
	}
	return lo.FilterMap(parts, func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		return s, s != ""
	})
}

func (p *Planner) resolveAgent(task string, req *core.Request, routedAgent string) string {
	lower := strings.ToLower(task)
	for _, route := range p.cfg.Routes {
		if strings.Contains(lower, strings.ToLower(route.Keyword)) {
			return route.Agent
		}
	}
	if req.Category != "" {
		return req.Category
	}
	return routedAgent
}

// Replan repairs a plan after a step failure. It locates the first failed
// step, keeps every step before it unchanged, substitutes one synthetic
// recovery step bound to the same agent describing the failure, re-appends
// the remaining original steps and reindexes the result contiguously from 0.
// If no step has failed the plan is returned unchanged.
func (p *Planner) Replan(plan *core.Plan, failed *core.SupervisionResult) *core.Plan {
	idx := plan.FirstFailed()
	if idx < 0 {
		return plan
	}

	failedStep := plan.Steps[idx]

	reason := "previous attempt failed"
	if failed != nil && failed.Error != "" {
		reason = failed.Error
	}

	revised := core.NewPlan(plan.RequestID)
	revised.RequiresCollaboration = plan.RequiresCollaboration

	revised.Steps = append(revised.Steps, plan.Steps[:idx]...)
	revised.Steps = append(revised.Steps, core.PlanStep{
		Task:       fmt.Sprintf("Recover from failure (%s): %s", reason, failedStep.Task),
		Agent:      failedStep.Agent,
		Complexity: failedStep.Complexity,
		Status:     core.StepPending,
	})
	revised.Steps = append(revised.Steps, plan.Steps[idx+1:]...)
	revised.Reindex()

	return revised
}
