package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 1000, cfg.Bus.HistoryLimit)
	assert.Equal(t, 100, cfg.Bus.DeadLetterLimit)
	assert.Equal(t, 5*time.Second, cfg.Bus.HandlerTimeout)
	assert.Equal(t, int64(8), cfg.Bus.WorkerPoolSize)

	assert.Equal(t, 2, cfg.Supervisor.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Supervisor.Timeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Supervisor.BaseDelay)
	assert.True(t, cfg.Supervisor.ValidateResult)
	assert.Contains(t, cfg.Supervisor.ErrorMarkers, "error:")

	assert.Equal(t, 0.5, cfg.Planner.ComplexityThreshold)
	assert.Equal(t, []int{80, 200, 400}, cfg.Planner.LengthThresholds)
	assert.Contains(t, cfg.Planner.Connectors, "and then")

	assert.True(t, cfg.Orchestrator.EnablePlanning)
	assert.True(t, cfg.Orchestrator.EnableCollaboration)
	assert.Equal(t, 1, cfg.Orchestrator.MaxReplans)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentrelay.yaml")
	yaml := `
bus:
  history_limit: 50
  handler_timeout: 2s
supervisor:
  max_retries: 5
planner:
  complexity_threshold: 0.7
  routes:
    - keyword: research
      agent: researcher
    - keyword: write
      agent: writer
orchestrator:
  default_agent: generalist
  max_replans: 3
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Bus.HistoryLimit)
	assert.Equal(t, 2*time.Second, cfg.Bus.HandlerTimeout)
	// Unset keys keep their defaults.
	assert.Equal(t, 100, cfg.Bus.DeadLetterLimit)

	assert.Equal(t, 5, cfg.Supervisor.MaxRetries)
	assert.Equal(t, 0.7, cfg.Planner.ComplexityThreshold)

	require.Len(t, cfg.Planner.Routes, 2)
	assert.Equal(t, KeywordRoute{Keyword: "research", Agent: "researcher"}, cfg.Planner.Routes[0])

	assert.Equal(t, "generalist", cfg.Orchestrator.DefaultAgent)
	assert.Equal(t, 3, cfg.Orchestrator.MaxReplans)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AGENTRELAY_SUPERVISOR_MAX_RETRIES", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Supervisor.MaxRetries)
}
