// Package testutil provides shared test helpers: a fluent request builder
// and a scriptable stub agent. It is internal so production code cannot grow
// a dependency on test-only conveniences.
package testutil
