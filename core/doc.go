// Package core provides the foundational domain types and interfaces used by
// AgentRelay. It defines the core abstractions for:
//
//   - Agents (autonomous task handlers consumed through a narrow capability contract)
//   - Requests / Responses (the orchestrator's unit of work and its outcome)
//   - Events (immutable, typed lifecycle notifications with tracing identifiers)
//   - Plans / PlanSteps (ordered decomposition of a request into agent-bound sub-tasks)
//   - SupervisionResults (uniform outcome of one supervised agent invocation)
//
// The package intentionally keeps implementation concerns (bus dispatch,
// routing, planning heuristics, retry supervision) out of scope, exposing
// small value types and interfaces so every other package can share them
// without cyclic dependencies.
package core
