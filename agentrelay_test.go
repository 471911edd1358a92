package agentrelay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/testutil"
	"github.com/hupe1980/agentrelay/router"
)

func TestAgentRelay_EndToEnd(t *testing.T) {
	relay := New()
	relay.RegisterAgent("support", testutil.NewStubAgent("support"), router.Rule{
		Name:     "support",
		Keywords: []string{"help"},
	})

	ctx := context.Background()
	require.NoError(t, relay.Start(ctx))

	resp := relay.ProcessMessage(ctx, "I need help with my account")
	require.True(t, resp.Success)
	assert.Equal(t, "support handled: I need help with my account", resp.Content)

	stats := relay.Stats()
	assert.Equal(t, 1, stats.Agents)
	assert.Equal(t, uint64(1), stats.Processed)
	assert.Equal(t, uint64(1), stats.Succeeded)

	require.NoError(t, relay.Stop(ctx))

	// The bus stopped with the relay; further emissions are no-ops.
	assert.False(t, relay.Bus().Stats().Running)
}

func TestAgentRelay_ConfigDrivesBehavior(t *testing.T) {
	cfg := config.Default()
	cfg.Orchestrator.DefaultAgent = "fallback"
	cfg.Supervisor.MaxRetries = 0
	cfg.Supervisor.BaseDelay = time.Millisecond

	relay := New(func(o *Options) {
		o.Config = cfg
	})
	relay.RegisterAgent("fallback", testutil.NewStubAgent("fallback"))

	resp := relay.ProcessMessage(context.Background(), "no rule matches this")
	require.True(t, resp.Success)
	assert.Contains(t, resp.Content, "fallback handled:")
}

func TestAgentRelay_CollaborativeRequest(t *testing.T) {
	cfg := config.Default()
	cfg.Orchestrator.DefaultAgent = "researcher"
	cfg.Planner.Routes = []config.KeywordRoute{
		{Keyword: "research", Agent: "researcher"},
		{Keyword: "write", Agent: "writer"},
	}
	cfg.Supervisor.BaseDelay = time.Millisecond

	relay := New(func(o *Options) {
		o.Config = cfg
	})
	relay.RegisterAgent("researcher", testutil.NewStubAgent("researcher"))
	relay.RegisterAgent("writer", testutil.NewStubAgent("writer"))

	resp := relay.ProcessMessage(context.Background(),
		"research the history of the topic in depth and then write a comprehensive final report about everything you found")

	require.True(t, resp.Success)
	assert.Contains(t, resp.Content, "researcher handled:")
	assert.Contains(t, resp.Content, "writer handled:")
}

func TestAgentRelay_BusExposed(t *testing.T) {
	relay := New()
	relay.RegisterAgent("echo", testutil.NewStubAgent("echo"), router.Rule{
		Name:     "echo",
		Keywords: []string{"echo"},
	})

	relay.ProcessMessage(context.Background(), "echo this back")

	assert.Eventually(t, func() bool {
		history := relay.Bus().History(func(ev core.Event) bool {
			return ev.Type == core.EventRequestCompleted
		}, 1)
		return len(history) == 1
	}, time.Second, 10*time.Millisecond)
}
