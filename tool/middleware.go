package tool

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Next runs the rest of the chain: the remaining interceptors and then the
// tool itself. A middleware may call it at most once.
type Next func(ctx context.Context, call Call, tc *ToolContext) (*Output, error)

// Middleware intercepts one tool call. It may inspect or rewrite the call,
// return its own result without calling next, or call next once and
// post-process what comes back.
type Middleware func(ctx context.Context, call Call, tc *ToolContext, next Next) (*Output, error)

// ErrNextReused is the panic value raised when a middleware calls its
// continuation a second time.
type ErrNextReused struct {
	Tool  string
	Index int
}

func (e ErrNextReused) Error() string {
	return fmt.Sprintf("tool %q: middleware %d invoked next more than once", e.Tool, e.Index)
}

// chain links middleware around a terminal handler.
type chain struct {
	mws      []Middleware
	terminal Next
}

func (c chain) run(ctx context.Context, call Call, tc *ToolContext) (*Output, error) {
	return c.at(0)(ctx, call, tc)
}

func (c chain) at(i int) Next {
	if i >= len(c.mws) {
		return c.terminal
	}
	return func(ctx context.Context, call Call, tc *ToolContext) (*Output, error) {
		var used atomic.Bool
		next := func(ctx context.Context, call Call, tc *ToolContext) (*Output, error) {
			if !used.CompareAndSwap(false, true) {
				panic(ErrNextReused{Tool: call.Name, Index: i})
			}
			return c.at(i+1)(ctx, call, tc)
		}
		return c.mws[i](ctx, call, tc, next)
	}
}

// Chain composes middleware around handler in order: the first middleware
// is outermost. It is exposed for callers that run a tool outside a
// Registry.
func Chain(handler Next, mws ...Middleware) Next {
	c := chain{mws: append([]Middleware(nil), mws...), terminal: handler}
	return c.run
}
