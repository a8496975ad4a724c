package agentloop

import (
	"time"

	"github.com/SecBear/neuron-sub003/durable"
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// UsageLimits caps what one run may consume. Zero disables a limit.
type UsageLimits struct {
	RequestLimit      int `json:"request_limit,omitempty" yaml:"request_limit,omitempty"`
	ToolCallLimit     int `json:"tool_call_limit,omitempty" yaml:"tool_call_limit,omitempty"`
	InputTokensLimit  int `json:"input_tokens_limit,omitempty" yaml:"input_tokens_limit,omitempty"`
	OutputTokensLimit int `json:"output_tokens_limit,omitempty" yaml:"output_tokens_limit,omitempty"`
	TotalTokensLimit  int `json:"total_tokens_limit,omitempty" yaml:"total_tokens_limit,omitempty"`
}

// Config is the snapshot an Engine runs with.
type Config struct {
	SystemPrompt          string                  `json:"system_prompt,omitempty"`
	Model                 string                  `json:"model,omitempty"`
	Provider              string                  `json:"provider,omitempty"`
	MaxTurns              int                     `json:"max_turns"` // 0 = unlimited
	MaxTokens             *int                    `json:"max_tokens,omitempty"`
	Temperature           *float64                `json:"temperature,omitempty"`
	ReasoningEffort       string                  `json:"reasoning_effort,omitempty"`
	ParallelToolExecution bool                    `json:"parallel_tool_execution"`
	Limits                UsageLimits             `json:"limits"`
	ActivityTimeout       time.Duration           `json:"activity_timeout"`
	ToolHeartbeatTimeout  time.Duration           `json:"tool_heartbeat_timeout,omitempty"` // 0 = tools need not report progress
	ModelRetry            *unifiedllm.RetryPolicy `json:"model_retry,omitempty"` // handed to the router, never applied by the loop
}

// DefaultConfig returns an unlimited configuration with parallel tool
// execution enabled.
func DefaultConfig() Config {
	return Config{
		MaxTurns:              0,
		ParallelToolExecution: true,
		ActivityTimeout:       durable.DefaultStartToCloseTimeout,
	}
}

func (c Config) activityOptions(id string) durable.ActivityOptions {
	opts := durable.DefaultActivityOptions(id)
	if c.ActivityTimeout > 0 {
		opts.StartToCloseTimeout = c.ActivityTimeout
	}
	opts.Retry = c.ModelRetry
	return opts
}

func (c Config) toolActivityOptions(callID string) durable.ActivityOptions {
	opts := durable.DefaultActivityOptions(callID)
	if c.ActivityTimeout > 0 {
		opts.StartToCloseTimeout = c.ActivityTimeout
	}
	opts.HeartbeatTimeout = c.ToolHeartbeatTimeout
	return opts
}
