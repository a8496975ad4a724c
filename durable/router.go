package durable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SecBear/neuron-sub003/tool"
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// DefaultStartToCloseTimeout bounds one activity when no timeout is set.
const DefaultStartToCloseTimeout = 120 * time.Second

// ActivityOptions describe one routed call.
type ActivityOptions struct {
	// ID identifies the call within its run. It must be stable across
	// replays of the same run.
	ID                  string
	StartToCloseTimeout time.Duration
	// HeartbeatTimeout, when set, fails a tool call that goes this long
	// without reporting progress through its ToolContext.
	HeartbeatTimeout    time.Duration
	Retry               *unifiedllm.RetryPolicy
}

// DefaultActivityOptions returns options for id with the default timeout.
func DefaultActivityOptions(id string) ActivityOptions {
	return ActivityOptions{ID: id, StartToCloseTimeout: DefaultStartToCloseTimeout}
}

// ToolExecutor runs a tool call. *tool.Registry satisfies it.
type ToolExecutor interface {
	Execute(ctx context.Context, call tool.Call, tc *tool.ToolContext) (*tool.Output, error)
}

// Router executes model and tool calls on behalf of the loop.
type Router interface {
	ExecuteModelCall(ctx context.Context, backend unifiedllm.Backend, req unifiedllm.Request, opts ActivityOptions) (*unifiedllm.Response, error)
	ExecuteTool(ctx context.Context, tools ToolExecutor, call tool.Call, tc *tool.ToolContext, opts ActivityOptions) (*tool.Output, error)
}

// Streamer is implemented by routers that can deliver a model response
// incrementally.
type Streamer interface {
	StreamModelCall(ctx context.Context, backend unifiedllm.Backend, req unifiedllm.Request, opts ActivityOptions) (<-chan unifiedllm.StreamEvent, error)
}

// Local executes every call immediately. It is the router used when no
// durability layer is attached.
type Local struct{}

var (
	_ Router   = Local{}
	_ Streamer = Local{}
)

// ExecuteModelCall implements Router. A backend retry policy in opts is
// applied here; the loop itself never retries.
func (Local) ExecuteModelCall(ctx context.Context, backend unifiedllm.Backend, req unifiedllm.Request, opts ActivityOptions) (*unifiedllm.Response, error) {
	ctx, cancel := withActivityTimeout(ctx, opts)
	defer cancel()
	if opts.Retry == nil {
		return backend.Complete(ctx, req)
	}
	return unifiedllm.Retry(ctx, *opts.Retry, func(ctx context.Context) (*unifiedllm.Response, error) {
		return backend.Complete(ctx, req)
	})
}

// ExecuteTool implements Router.
func (Local) ExecuteTool(ctx context.Context, tools ToolExecutor, call tool.Call, tc *tool.ToolContext, opts ActivityOptions) (*tool.Output, error) {
	ctx, cancel := withActivityTimeout(ctx, opts)
	defer cancel()
	if opts.HeartbeatTimeout <= 0 {
		return tools.Execute(ctx, call, tc)
	}

	ctx, stop, tc := withHeartbeat(ctx, tc, opts.HeartbeatTimeout)
	out, err := tools.Execute(ctx, call, tc)
	stop()
	if err != nil && errors.Is(context.Cause(ctx), errHeartbeat) {
		return nil, tool.TimedOut(call.Name, fmt.Sprintf(
			"tool '%s' reported no progress for %s", call.Name, opts.HeartbeatTimeout))
	}
	return out, err
}

var errHeartbeat = errors.New("heartbeat timeout")

// withHeartbeat cancels ctx unless the tool reports progress at least once
// every d. The returned ToolContext is a copy whose reporter resets the
// timer and forwards to the original one.
func withHeartbeat(ctx context.Context, tc *tool.ToolContext, d time.Duration) (context.Context, func(), *tool.ToolContext) {
	ctx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(d, func() { cancel(errHeartbeat) })

	beating := &tool.ToolContext{}
	if tc != nil {
		*beating = *tc
	}
	inner := beating.Progress
	beating.Progress = tool.ProgressFunc(func(progress, total float64, message string) {
		timer.Reset(d)
		if inner != nil {
			inner.Report(progress, total, message)
		}
	})
	return ctx, func() { timer.Stop(); cancel(nil) }, beating
}

// StreamModelCall implements Streamer. The activity timeout covers the
// whole stream.
func (Local) StreamModelCall(ctx context.Context, backend unifiedllm.Backend, req unifiedllm.Request, opts ActivityOptions) (<-chan unifiedllm.StreamEvent, error) {
	ctx, cancel := withActivityTimeout(ctx, opts)
	events, err := backend.Stream(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}
	out := make(chan unifiedllm.StreamEvent, 64)
	go func() {
		defer cancel()
		defer close(out)
		for ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func withActivityTimeout(ctx context.Context, opts ActivityOptions) (context.Context, context.CancelFunc) {
	if opts.StartToCloseTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, opts.StartToCloseTimeout)
}
