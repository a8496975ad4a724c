package tool

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles calls with a token bucket per tool name.
type RateLimiter struct {
	limiters sync.Map // tool name -> *rate.Limiter
	limit    rate.Limit
	burst    int
	wait     bool
	logger   *slog.Logger
}

// NewRateLimiter allows perSecond calls per tool with the given burst. When
// wait is true a throttled call blocks until a token is free; otherwise it
// fails immediately with KindExecutionFailed. perSecond <= 0 disables the
// limiter.
func NewRateLimiter(perSecond float64, burst int, wait bool, logger *slog.Logger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{limit: rate.Limit(perSecond), burst: burst, wait: wait, logger: logger}
}

func (rl *RateLimiter) limiter(name string) *rate.Limiter {
	if v, ok := rl.limiters.Load(name); ok {
		return v.(*rate.Limiter)
	}
	actual, _ := rl.limiters.LoadOrStore(name, rate.NewLimiter(rl.limit, rl.burst))
	return actual.(*rate.Limiter)
}

// Middleware returns the interceptor.
func (rl *RateLimiter) Middleware() Middleware {
	return func(ctx context.Context, call Call, tc *ToolContext, next Next) (*Output, error) {
		if rl.limit <= 0 {
			return next(ctx, call, tc)
		}
		lim := rl.limiter(call.Name)
		if lim.Allow() {
			return next(ctx, call, tc)
		}
		rl.logger.Warn("tool rate limited", "tool", call.Name, "call_id", call.ID, "waiting", rl.wait)
		if !rl.wait {
			return nil, &Error{Kind: KindExecutionFailed, Tool: call.Name, Message: "rate limit exceeded for tool " + call.Name}
		}
		if err := lim.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, Cancelled(call.Name)
			}
			return nil, ExecutionFailed(call.Name, err)
		}
		return next(ctx, call, tc)
	}
}
