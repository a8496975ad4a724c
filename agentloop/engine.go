package agentloop

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/SecBear/neuron-sub003/compact"
	"github.com/SecBear/neuron-sub003/durable"
	"github.com/SecBear/neuron-sub003/hooks"
	"github.com/SecBear/neuron-sub003/tool"
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// Engine is the loop orchestrator. It holds no per-run state, so one Engine
// may serve any number of runs, concurrently if its collaborators allow it.
type Engine struct {
	backend  unifiedllm.Backend
	tools    *tool.Registry
	config   Config
	strategy compact.Strategy
	hooks    *hooks.Dispatcher
	router   durable.Router
	logger   *slog.Logger
	runID    string
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategy sets the context strategy. The default never compacts.
func WithStrategy(s compact.Strategy) Option {
	return func(e *Engine) {
		e.strategy = s
	}
}

// WithHooks attaches a hook dispatcher.
func WithHooks(d *hooks.Dispatcher) Option {
	return func(e *Engine) {
		e.hooks = d
	}
}

// WithRouter routes every model and tool call through r. The default
// executes them directly.
func WithRouter(r durable.Router) Option {
	return func(e *Engine) {
		e.router = r
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRunID pins the run ID reported to hooks. Without it every run gets a
// fresh one. A journaled router keys its entries by its own run ID.
func WithRunID(id string) Option {
	return func(e *Engine) {
		e.runID = id
	}
}

// New creates an Engine. A nil registry means the model gets no tools.
func New(backend unifiedllm.Backend, tools *tool.Registry, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		tools:   tools,
		config:  cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tools == nil {
		e.tools = tool.NewRegistry()
	}
	if e.strategy == nil {
		e.strategy = compact.None{}
	}
	if e.router == nil {
		e.router = durable.Local{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Config returns the configuration snapshot.
func (e *Engine) Config() Config { return e.config }

// Tools returns the tool registry.
func (e *Engine) Tools() *tool.Registry { return e.tools }

// Run drives a run to completion. It returns the final response, or the
// first terminal error as a *LoopError; a reached limit is an error of kind
// KindLimitReached.
func (e *Engine) Run(ctx context.Context, msg unifiedllm.Message, tc *tool.ToolContext) (*FinalResponse, error) {
	s := e.newState(msg, tc, nil)
	for {
		out := s.advance(ctx)
		if out.Terminal() {
			return outcomeResult(out)
		}
	}
}

// RunText is Run with a plain user message.
func (e *Engine) RunText(ctx context.Context, text string, tc *tool.ToolContext) (*FinalResponse, error) {
	return e.Run(ctx, unifiedllm.UserMessage(text), tc)
}

// Step starts a run driven one iteration at a time. Nothing happens until
// the first call to Next.
func (e *Engine) Step(msg unifiedllm.Message, tc *tool.ToolContext) *Stepper {
	return &Stepper{state: e.newState(msg, tc, nil)}
}

func (e *Engine) newState(msg unifiedllm.Message, tc *tool.ToolContext, emit func(StreamEvent)) *state {
	if tc == nil {
		tc = tool.NewToolContext("")
	}
	runID := e.runID
	if runID == "" {
		runID = uuid.New().String()
	}
	return &state{
		e:        e,
		runID:    runID,
		tc:       tc,
		messages: []unifiedllm.Message{msg},
		emit:     emit,
	}
}
