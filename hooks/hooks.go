// Package hooks delivers lifecycle notifications from the agent loop to
// observers that may veto a single tool call or end the run.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SecBear/neuron-sub003/tool"
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// Point identifies where in the loop an event fires.
type Point string

const (
	PointLoopIteration     Point = "loop_iteration"
	PointPreModelCall      Point = "pre_model_call"
	PointPostModelCall     Point = "post_model_call"
	PointPreToolExecution  Point = "pre_tool_execution"
	PointPostToolExecution Point = "post_tool_execution"
	PointContextCompaction Point = "context_compaction"
	PointLoopExit          Point = "loop_exit"
)

// Event is one lifecycle notification. Which fields are set depends on
// Point:
//
//	loop_iteration       Turn
//	pre_model_call       Turn, Request
//	post_model_call      Turn, Request, Response
//	pre_tool_execution   Turn, ToolCall
//	post_tool_execution  Turn, ToolCall, ToolOutput, Err
//	context_compaction   Turn, TokensBefore, TokensAfter
//	loop_exit            Turn, Response, Usage, Err
//
// loop_exit fires once per run whatever the outcome. Err is nil when the
// model produced a final response; Terminate at that point turns the
// response into a hook termination.
type Event struct {
	Point        Point
	RunID        string
	Turn         int
	Request      *unifiedllm.Request
	Response     *unifiedllm.Response
	ToolCall     *tool.Call
	ToolOutput   *tool.Output
	Err          error
	TokensBefore int
	TokensAfter  int
	Usage        unifiedllm.Usage
}

// ActionKind tells the loop how to proceed after an event.
type ActionKind int

const (
	// ActionContinue lets the loop proceed normally.
	ActionContinue ActionKind = iota
	// ActionSkip drops the current tool call; the model sees an error
	// result carrying the reason. It only has an effect at
	// PointPreToolExecution and is treated as Continue elsewhere.
	ActionSkip
	// ActionTerminate ends the run with the given reason.
	ActionTerminate
)

func (k ActionKind) String() string {
	switch k {
	case ActionContinue:
		return "continue"
	case ActionSkip:
		return "skip"
	case ActionTerminate:
		return "terminate"
	default:
		return fmt.Sprintf("action(%d)", int(k))
	}
}

// Action is an observer's verdict.
type Action struct {
	Kind   ActionKind
	Reason string
}

// Continue returns the no-op action.
func Continue() Action { return Action{Kind: ActionContinue} }

// Skip returns an action skipping the current tool call.
func Skip(reason string) Action { return Action{Kind: ActionSkip, Reason: reason} }

// Terminate returns an action ending the run.
func Terminate(reason string) Action { return Action{Kind: ActionTerminate, Reason: reason} }

// Hook observes loop events.
type Hook interface {
	OnEvent(ctx context.Context, ev Event) (Action, error)
}

// HookFunc adapts a function into a Hook.
type HookFunc func(ctx context.Context, ev Event) (Action, error)

// OnEvent implements Hook.
func (f HookFunc) OnEvent(ctx context.Context, ev Event) (Action, error) { return f(ctx, ev) }

type registration struct {
	hook   Hook
	points map[Point]bool
}

// Dispatcher fans events out to hooks in registration order. The first
// hook returning anything other than Continue decides the outcome and the
// remaining hooks are not called. A hook that fails is logged and counts as
// Continue.
type Dispatcher struct {
	hooks  []registration
	logger *slog.Logger
	mu     sync.RWMutex
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used to report hook failures.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher with no hooks.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Register adds a hook. With no points it receives every event; otherwise
// only events at the listed points.
func (d *Dispatcher) Register(h Hook, points ...Point) {
	reg := registration{hook: h}
	if len(points) > 0 {
		reg.points = make(map[Point]bool, len(points))
		for _, p := range points {
			reg.points[p] = true
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, reg)
}

// Len returns the number of registered hooks.
func (d *Dispatcher) Len() int {
	if d == nil {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.hooks)
}

// Dispatch delivers ev and returns the resulting action. A nil Dispatcher
// always continues.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Action {
	if d == nil {
		return Continue()
	}
	d.mu.RLock()
	hooks := make([]registration, len(d.hooks))
	copy(hooks, d.hooks)
	d.mu.RUnlock()

	for i, reg := range hooks {
		if reg.points != nil && !reg.points[ev.Point] {
			continue
		}
		action, err := reg.hook.OnEvent(ctx, ev)
		if err != nil {
			d.logger.Warn("hook failed",
				"point", string(ev.Point),
				"hook_index", i,
				"run_id", ev.RunID,
				"error", err,
			)
			continue
		}
		if action.Kind != ActionContinue {
			return action
		}
	}
	return Continue()
}
