// Package router maps an inbound request to exactly one target agent name,
// or none, using ordered first-match rules.
package router

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/hupe1980/agentrelay/core"
)

// Predicate is a custom match function attached to a rule.
type Predicate func(req *core.Request) bool

// Rule is one dispatch rule. A rule matches iff all of its present constraint
// groups are satisfied: category membership, keyword presence, pattern match
// and the custom predicate. Unset groups are automatically satisfied.
type Rule struct {
	Name       string
	Agent      string
	Priority   int
	Categories []string
	Keywords   []string
	Patterns   []*regexp.Regexp
	Predicate  Predicate

	seq uint64
}

func (r Rule) matches(req *core.Request) bool {
	if len(r.Categories) > 0 && !lo.Contains(r.Categories, req.Category) {
		return false
	}

	if len(r.Keywords) > 0 {
		message := strings.ToLower(req.Message)
		hit := lo.SomeBy(r.Keywords, func(kw string) bool {
			return strings.Contains(message, strings.ToLower(kw))
		})
		if !hit {
			return false
		}
	}

	if len(r.Patterns) > 0 {
		hit := lo.SomeBy(r.Patterns, func(p *regexp.Regexp) bool {
			return p.MatchString(req.Message)
		})
		if !hit {
			return false
		}
	}

	if r.Predicate != nil && !r.Predicate(req) {
		return false
	}

	return true
}

// Router holds an ordered rule set pre-sorted by descending priority (ties by
// registration order) and an optional default agent. Safe for concurrent use.
type Router struct {
	mu           sync.RWMutex
	rules        []Rule
	seq          uint64
	defaultAgent string
}

// New creates an empty router with no default agent.
func New() *Router {
	return &Router{rules: []Rule{}}
}

// AddRule inserts a rule and re-sorts the rule set.
func (r *Router) AddRule(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	rule.seq = r.seq

	r.rules = append(r.rules, rule)
	sort.SliceStable(r.rules, func(i, j int) bool {
		if r.rules[i].Priority != r.rules[j].Priority {
			return r.rules[i].Priority > r.rules[j].Priority
		}
		return r.rules[i].seq < r.rules[j].seq
	})
}

// RemoveRule removes a rule by name, reporting whether it existed.
func (r *Router) RemoveRule(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.rules)
	r.rules = lo.Reject(r.rules, func(rule Rule, _ int) bool { return rule.Name == name })
	return len(r.rules) != before
}

// RemoveRulesForAgent removes every rule targeting the given agent. Used on
// agent unregistration.
func (r *Router) RemoveRulesForAgent(agent string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.rules)
	r.rules = lo.Reject(r.rules, func(rule Rule, _ int) bool { return rule.Agent == agent })
	return before - len(r.rules)
}

// SetDefault configures the agent returned when no rule matches. An empty
// name clears the default.
func (r *Router) SetDefault(agent string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultAgent = agent
}

// Default returns the configured default agent name (possibly empty).
func (r *Router) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultAgent
}

// Route returns the agent of the first rule whose predicate matches,
// iterating rules in descending-priority order. If no rule matches, the
// configured default agent is returned; the boolean reports whether any
// target (rule or default) was resolved.
func (r *Router) Route(req *core.Request) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rule := range r.rules {
		if rule.matches(req) {
			return rule.Agent, true
		}
	}

	if r.defaultAgent != "" {
		return r.defaultAgent, true
	}

	return "", false
}

// Rules returns a copy of the current rule set in dispatch order.
func (r *Router) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]Rule, len(r.rules))
	copy(rules, r.rules)
	return rules
}
