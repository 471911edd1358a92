// Package config handles configuration loading for AgentRelay. All tuning
// knobs (bus capacities, supervisor retry policy, planner heuristics, routing
// defaults) are read once at construction time from a YAML file with
// environment variable overrides, then injected explicitly into components.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the orchestration core. It is
// instantiated by Load or Default and passed to components that need it
// (dependency injection, no ambient lookup).
type Config struct {
	Bus          BusConfig          `mapstructure:"bus"`
	Supervisor   SupervisorConfig   `mapstructure:"supervisor"`
	Planner      PlannerConfig      `mapstructure:"planner"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Log          LogConfig          `mapstructure:"log"`
}

// BusConfig holds event bus capacities and timeouts.
type BusConfig struct {
	HistoryLimit    int           `mapstructure:"history_limit"`
	DeadLetterLimit int           `mapstructure:"dead_letter_limit"`
	HandlerTimeout  time.Duration `mapstructure:"handler_timeout"`
	WorkerPoolSize  int64         `mapstructure:"worker_pool_size"`
}

// SupervisorConfig holds the retry/timeout/validation policy.
type SupervisorConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BaseDelay       time.Duration `mapstructure:"base_delay"`
	ValidateResult  bool          `mapstructure:"validate_result"`
	MinResultLength int           `mapstructure:"min_result_length"`
	ErrorMarkers    []string      `mapstructure:"error_markers"`
	HistoryLimit    int           `mapstructure:"history_limit"`
}

// PlannerConfig holds the decomposition heuristics. These are domain tuning
// knobs, not fixed algorithm behavior.
type PlannerConfig struct {
	ComplexityThreshold float64        `mapstructure:"complexity_threshold"`
	Connectors          []string       `mapstructure:"connectors"`
	ConnectorWeight     float64        `mapstructure:"connector_weight"`
	LengthThresholds    []int          `mapstructure:"length_thresholds"`
	LengthWeight        float64        `mapstructure:"length_weight"`
	QuestionWeight      float64        `mapstructure:"question_weight"`
	Routes              []KeywordRoute `mapstructure:"routes"`
}

// KeywordRoute binds a task substring to a target agent in the planner's
// lookup table. The list is ordered; first containment wins.
type KeywordRoute struct {
	Keyword string `mapstructure:"keyword"`
	Agent   string `mapstructure:"agent"`
}

// OrchestratorConfig holds request processing toggles.
type OrchestratorConfig struct {
	DefaultAgent        string `mapstructure:"default_agent"`
	EnablePlanning      bool   `mapstructure:"enable_planning"`
	EnableCollaboration bool   `mapstructure:"enable_collaboration"`
	MaxReplans          int    `mapstructure:"max_replans"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Decoding built-in defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads configuration from the given YAML file (or, when path is empty,
// from agentrelay.yaml in the working directory if present), applies
// AGENTRELAY_* environment overrides and falls back to built-in defaults for
// everything unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("agentrelay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bus.history_limit", 1000)
	v.SetDefault("bus.dead_letter_limit", 100)
	v.SetDefault("bus.handler_timeout", "5s")
	v.SetDefault("bus.worker_pool_size", 8)

	v.SetDefault("supervisor.max_retries", 2)
	v.SetDefault("supervisor.timeout", "30s")
	v.SetDefault("supervisor.base_delay", "200ms")
	v.SetDefault("supervisor.validate_result", true)
	v.SetDefault("supervisor.min_result_length", 2)
	v.SetDefault("supervisor.error_markers", []string{"error:", "exception:", "traceback"})
	v.SetDefault("supervisor.history_limit", 100)

	v.SetDefault("planner.complexity_threshold", 0.5)
	v.SetDefault("planner.connectors", []string{"and then", "after that", "then", "additionally", "also", " and "})
	v.SetDefault("planner.connector_weight", 0.4)
	v.SetDefault("planner.length_thresholds", []int{80, 200, 400})
	v.SetDefault("planner.length_weight", 0.1)
	v.SetDefault("planner.question_weight", 0.1)

	v.SetDefault("orchestrator.default_agent", "")
	v.SetDefault("orchestrator.enable_planning", true)
	v.SetDefault("orchestrator.enable_collaboration", true)
	v.SetDefault("orchestrator.max_replans", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
