// Package config loads the neuron configuration file. Files are YAML or
// JSONC (JSON with comments and trailing commas), chosen by extension, and
// decode over the defaults so a file only needs the settings it changes.
//
// A handful of environment variables override the file:
//
//	NEURON_MODEL       backend.model
//	NEURON_PROVIDER    backend.provider
//	NEURON_MAX_TURNS   loop.max_turns
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/SecBear/neuron-sub003/agentloop"
	"github.com/SecBear/neuron-sub003/tool"
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// Config is the root of a configuration file.
type Config struct {
	Loop       LoopConfig       `yaml:"loop" json:"loop"`
	Backend    BackendConfig    `yaml:"backend" json:"backend"`
	Tools      ToolsConfig      `yaml:"tools" json:"tools"`
	Context    ContextConfig    `yaml:"context" json:"context"`
	Durability DurabilityConfig `yaml:"durability" json:"durability"`
	Tracing    TracingConfig    `yaml:"tracing" json:"tracing"`
}

// LoopConfig holds the engine settings.
type LoopConfig struct {
	SystemPrompt          string                `yaml:"system_prompt" json:"system_prompt"`
	MaxTurns              int                   `yaml:"max_turns" json:"max_turns"`
	ParallelToolExecution bool                  `yaml:"parallel_tool_execution" json:"parallel_tool_execution"`
	Limits                agentloop.UsageLimits `yaml:"limits" json:"limits"`
	ActivityTimeout       Duration              `yaml:"activity_timeout" json:"activity_timeout"`
	ToolHeartbeatTimeout  Duration              `yaml:"tool_heartbeat_timeout" json:"tool_heartbeat_timeout"`
	Git                   bool                  `yaml:"git_context" json:"git_context"`
}

// BackendConfig selects and tunes the model backend.
type BackendConfig struct {
	Provider        string                  `yaml:"provider" json:"provider"`
	Model           string                  `yaml:"model" json:"model"`
	APIKeyEnv       string                  `yaml:"api_key_env" json:"api_key_env"`
	MaxTokens       int                     `yaml:"max_tokens" json:"max_tokens"`
	Temperature     *float64                `yaml:"temperature" json:"temperature"`
	ReasoningEffort string                  `yaml:"reasoning_effort" json:"reasoning_effort"`
	Retry           *unifiedllm.RetryPolicy `yaml:"retry" json:"retry"`
}

// APIKey reads the key from the configured variable, or from
// <PROVIDER>_API_KEY when none is configured.
func (b BackendConfig) APIKey() string {
	name := b.APIKeyEnv
	if name == "" {
		name = strings.ToUpper(b.Provider) + "_API_KEY"
	}
	return os.Getenv(name)
}

// ToolsConfig configures the built-in tools and the middleware around them.
type ToolsConfig struct {
	Shell           bool        `yaml:"shell" json:"shell"`
	ShellTimeout    Duration    `yaml:"shell_timeout" json:"shell_timeout"`
	MaxShellTimeout Duration    `yaml:"max_shell_timeout" json:"max_shell_timeout"`
	Timeout         Duration    `yaml:"timeout" json:"timeout"`
	OutputLimit     int         `yaml:"output_limit" json:"output_limit"`
	Deny            []string    `yaml:"deny" json:"deny"`
	Rules           []tool.Rule `yaml:"rules" json:"rules"`
	RateLimit       RateLimit   `yaml:"rate_limit" json:"rate_limit"`
	LoopWindow      int         `yaml:"loop_window" json:"loop_window"`
	MCP             []MCPServer `yaml:"mcp" json:"mcp"`
}

// RateLimit is a per-tool token bucket. A zero rate disables it.
type RateLimit struct {
	PerSecond float64 `yaml:"per_second" json:"per_second"`
	Burst     int     `yaml:"burst" json:"burst"`
	Wait      bool    `yaml:"wait" json:"wait"`
}

// MCPServer is an MCP server started over stdio whose tools are added to
// the registry, prefixed with Name.
type MCPServer struct {
	Name    string            `yaml:"name" json:"name"`
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args" json:"args"`
	Env     map[string]string `yaml:"env" json:"env"`
}

// Context strategies.
const (
	StrategyNone               = "none"
	StrategySlidingWindow      = "sliding_window"
	StrategyToolResultClearing = "tool_result_clearing"
	StrategySummarization      = "summarization"
	StrategyComposite          = "composite"
)

// Token counters.
const (
	CounterChars    = "chars"
	CounterTiktoken = "tiktoken"
)

// ContextConfig selects the context strategy. MaxTokens overrides the
// threshold derived from the model's context window and ThresholdRatio.
type ContextConfig struct {
	Strategy       string  `yaml:"strategy" json:"strategy"`
	Counter        string  `yaml:"counter" json:"counter"`
	ThresholdRatio float64 `yaml:"threshold_ratio" json:"threshold_ratio"`
	MaxTokens      int     `yaml:"max_tokens" json:"max_tokens"`
	Window         int     `yaml:"window" json:"window"`
	KeepRecent     int     `yaml:"keep_recent" json:"keep_recent"`
	PreserveRecent int     `yaml:"preserve_recent" json:"preserve_recent"`
}

// Journal stores.
const (
	StoreNone     = ""
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// DurabilityConfig selects where model and tool calls are journaled. DSN is
// a file path for sqlite, a connection string for postgres and a redis://
// URL for redis.
type DurabilityConfig struct {
	Store string   `yaml:"store" json:"store"`
	DSN   string   `yaml:"dsn" json:"dsn"`
	RunID string   `yaml:"run_id" json:"run_id"`
	TTL   Duration `yaml:"ttl" json:"ttl"`
}

// TracingConfig enables OTLP span export.
type TracingConfig struct {
	Enabled     bool              `yaml:"enabled" json:"enabled"`
	Endpoint    string            `yaml:"endpoint" json:"endpoint"`
	Protocol    string            `yaml:"protocol" json:"protocol"`
	Insecure    bool              `yaml:"insecure" json:"insecure"`
	ServiceName string            `yaml:"service_name" json:"service_name"`
	Headers     map[string]string `yaml:"headers" json:"headers"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Loop: LoopConfig{
			ParallelToolExecution: true,
			ActivityTimeout:       Duration(agentloop.DefaultConfig().ActivityTimeout),
			Git:                   true,
		},
		Backend: BackendConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-5",
		},
		Tools: ToolsConfig{
			Shell:           true,
			ShellTimeout:    Duration(10 * time.Second),
			MaxShellTimeout: Duration(10 * time.Minute),
			Timeout:         Duration(2 * time.Minute),
			OutputLimit:     30000,
			LoopWindow:      10,
		},
		Context: ContextConfig{
			Strategy:       StrategyToolResultClearing,
			Counter:        CounterChars,
			ThresholdRatio: 0.8,
			Window:         20,
			KeepRecent:     4,
			PreserveRecent: 6,
		},
		Durability: DurabilityConfig{
			TTL: Duration(7 * 24 * time.Hour),
		},
		Tracing: TracingConfig{
			Protocol:    "grpc",
			ServiceName: "neuron",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path yields the defaults with overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing yaml: %w", err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return fmt.Errorf("parsing json: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("NEURON_MODEL"); ok && v != "" {
		c.Backend.Model = v
	}
	if v, ok := lookup("NEURON_PROVIDER"); ok && v != "" {
		c.Backend.Provider = v
	}
	if v, ok := lookup("NEURON_MAX_TURNS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NEURON_MAX_TURNS: %w", err)
		}
		c.Loop.MaxTurns = n
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Backend.Provider == "" {
		errs = append(errs, errors.New("backend.provider is required"))
	}
	if c.Loop.MaxTurns < 0 {
		errs = append(errs, errors.New("loop.max_turns must not be negative"))
	}
	l := c.Loop.Limits
	if l.RequestLimit < 0 || l.ToolCallLimit < 0 || l.InputTokensLimit < 0 || l.OutputTokensLimit < 0 || l.TotalTokensLimit < 0 {
		errs = append(errs, errors.New("loop.limits must not be negative"))
	}
	switch c.Context.Strategy {
	case "", StrategyNone, StrategySlidingWindow, StrategyToolResultClearing, StrategySummarization, StrategyComposite:
	default:
		errs = append(errs, fmt.Errorf("context.strategy: unknown strategy %q", c.Context.Strategy))
	}
	if c.Context.Strategy == StrategySlidingWindow && c.Context.Window < 1 {
		errs = append(errs, fmt.Errorf("context.window must be at least 1, got %d", c.Context.Window))
	}
	switch c.Context.Counter {
	case "", CounterChars, CounterTiktoken:
	default:
		errs = append(errs, fmt.Errorf("context.counter: unknown counter %q", c.Context.Counter))
	}
	if r := c.Context.ThresholdRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("context.threshold_ratio must be within [0, 1], got %v", r))
	}
	switch c.Durability.Store {
	case StoreNone, StoreMemory:
	case StoreSQLite, StorePostgres, StoreRedis:
		if c.Durability.DSN == "" {
			errs = append(errs, fmt.Errorf("durability.dsn is required for the %s store", c.Durability.Store))
		}
	default:
		errs = append(errs, fmt.Errorf("durability.store: unknown store %q", c.Durability.Store))
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing.endpoint is required when tracing is enabled"))
	}
	for i, s := range c.Tools.MCP {
		if s.Command == "" {
			errs = append(errs, fmt.Errorf("tools.mcp[%d].command is required", i))
		}
	}
	return errors.Join(errs...)
}

// EngineConfig converts the loop and backend sections into an engine
// configuration.
func (c *Config) EngineConfig() agentloop.Config {
	cfg := agentloop.DefaultConfig()
	cfg.SystemPrompt = c.Loop.SystemPrompt
	cfg.Model = c.Backend.Model
	cfg.Provider = c.Backend.Provider
	cfg.MaxTurns = c.Loop.MaxTurns
	cfg.ParallelToolExecution = c.Loop.ParallelToolExecution
	cfg.Limits = c.Loop.Limits
	cfg.Temperature = c.Backend.Temperature
	cfg.ReasoningEffort = c.Backend.ReasoningEffort
	cfg.ModelRetry = c.Backend.Retry
	if c.Backend.MaxTokens > 0 {
		cfg.MaxTokens = unifiedllm.IntPtr(c.Backend.MaxTokens)
	}
	if t := c.Loop.ActivityTimeout.Std(); t > 0 {
		cfg.ActivityTimeout = t
	}
	cfg.ToolHeartbeatTimeout = c.Loop.ToolHeartbeatTimeout.Std()
	return cfg
}
