package tool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// PermissionChecker consults policy before every call. Deny and Ask both
// fail with KindPermissionDenied; confirming an Ask is left to the caller.
func PermissionChecker(policy Policy) Middleware {
	return func(ctx context.Context, call Call, tc *ToolContext, next Next) (*Output, error) {
		d := policy.Check(ctx, call)
		switch d.Kind {
		case DecisionDeny:
			return nil, PermissionDenied(call.Name, d.Reason)
		case DecisionAsk:
			return nil, PermissionDenied(call.Name, "requires confirmation: "+d.Reason)
		default:
			return next(ctx, call, tc)
		}
	}
}

// FormatOption configures OutputFormatter.
type FormatOption func(*formatConfig)

type formatConfig struct {
	headTail map[string]bool
	lines    map[string]int
}

// WithHeadTail truncates the named tools' output from the middle, keeping
// its start and end. Useful where errors show up last, as in command
// output.
func WithHeadTail(names ...string) FormatOption {
	return func(c *formatConfig) {
		for _, n := range names {
			c.headTail[n] = true
		}
	}
}

// WithLineLimit caps the named tool's output at maxLines lines, applied
// after the character limit.
func WithLineLimit(name string, maxLines int) FormatOption {
	return func(c *formatConfig) {
		c.lines[name] = maxLines
	}
}

// OutputFormatter truncates tool output longer than maxChars characters.
// By default the end is cut off; see WithHeadTail and WithLineLimit.
func OutputFormatter(maxChars int, opts ...FormatOption) Middleware {
	cfg := formatConfig{headTail: map[string]bool{}, lines: map[string]int{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(ctx context.Context, call Call, tc *ToolContext, next Next) (*Output, error) {
		out, err := next(ctx, call, tc)
		if err != nil || out == nil {
			return out, err
		}
		truncated := *out
		if cfg.headTail[call.Name] {
			truncated.Content = TruncateHeadTail(out.Content, maxChars)
		} else {
			truncated.Content = TruncateRunes(out.Content, maxChars)
		}
		if n, ok := cfg.lines[call.Name]; ok {
			truncated.Content = TruncateLines(truncated.Content, n)
		}
		return &truncated, nil
	}
}

// SchemaValidator checks each call's input against the input schema of the
// tool it targets. A mismatch becomes a model-retry hint so the model can
// correct the input on its next turn.
func SchemaValidator(r *Registry) Middleware {
	return func(ctx context.Context, call Call, tc *ToolContext, next Next) (*Output, error) {
		if t, ok := r.Get(call.Name); ok {
			if err := ValidateInput(t.Definition().InputSchema, call.Input); err != nil {
				return nil, ModelRetry(call.Name, err.Error())
			}
		}
		return next(ctx, call, tc)
	}
}

// TimeoutOption configures Timeout.
type TimeoutOption func(map[string]time.Duration)

// WithToolTimeout overrides the timeout for one tool.
func WithToolTimeout(name string, d time.Duration) TimeoutOption {
	return func(m map[string]time.Duration) {
		m[name] = d
	}
}

// Timeout aborts calls that run longer than their budget. The rest of the
// chain runs under a context that is cancelled at the deadline, and the
// call fails with KindTimeout without waiting for the tool to return.
func Timeout(defaultTimeout time.Duration, opts ...TimeoutOption) Middleware {
	perTool := make(map[string]time.Duration)
	for _, opt := range opts {
		opt(perTool)
	}
	return func(ctx context.Context, call Call, tc *ToolContext, next Next) (*Output, error) {
		d := defaultTimeout
		if override, ok := perTool[call.Name]; ok {
			d = override
		}
		if d <= 0 {
			return next(ctx, call, tc)
		}

		tctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type result struct {
			out *Output
			err error
		}
		done := make(chan result, 1)
		go func() {
			out, err := next(tctx, call, tc)
			done <- result{out, err}
		}()

		select {
		case r := <-done:
			if r.err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, TimedOut(call.Name, timeoutMessage(call.Name, d))
			}
			return r.out, r.err
		case <-tctx.Done():
			if ctx.Err() != nil {
				return nil, Cancelled(call.Name)
			}
			return nil, TimedOut(call.Name, timeoutMessage(call.Name, d))
		}
	}
}

func timeoutMessage(name string, d time.Duration) string {
	return fmt.Sprintf("tool '%s' timed out after %.1fs", name, d.Seconds())
}

// StructuredOutputValidator validates the input of a result tool, which is
// the model's structured answer, against schema. Failures become
// model-retry hints.
func StructuredOutputValidator(schema map[string]interface{}) Middleware {
	return func(ctx context.Context, call Call, tc *ToolContext, next Next) (*Output, error) {
		if err := ValidateInput(schema, call.Input); err != nil {
			return nil, ModelRetry(call.Name, fmt.Sprintf(
				"Output validation failed: %v. Please fix the output to match the schema.", err))
		}
		return next(ctx, call, tc)
	}
}

// RetryLimitedValidator is a StructuredOutputValidator that stops handing
// out retry hints after maxRetries consecutive failures. Later failures are
// reported as KindInvalidInput, which ends the run. The attempt counter is
// shared across calls and resets on the first valid input.
type RetryLimitedValidator struct {
	schema     map[string]interface{}
	maxRetries int64
	attempts   atomic.Int64
}

// NewRetryLimitedValidator creates a validator allowing maxRetries retries.
func NewRetryLimitedValidator(schema map[string]interface{}, maxRetries int) *RetryLimitedValidator {
	return &RetryLimitedValidator{schema: schema, maxRetries: int64(maxRetries)}
}

// Attempts returns the number of consecutive failed validations.
func (v *RetryLimitedValidator) Attempts() int {
	return int(v.attempts.Load())
}

// Middleware returns the interceptor.
func (v *RetryLimitedValidator) Middleware() Middleware {
	return func(ctx context.Context, call Call, tc *ToolContext, next Next) (*Output, error) {
		if err := ValidateInput(v.schema, call.Input); err != nil {
			attempt := v.attempts.Add(1) - 1
			if attempt >= v.maxRetries {
				return nil, InvalidInput(call.Name, fmt.Sprintf(
					"Output validation failed after %d retries: %v", v.maxRetries, err))
			}
			return nil, ModelRetry(call.Name, fmt.Sprintf(
				"Output validation failed (attempt %d/%d): %v. Please fix the output to match the schema.",
				attempt+1, v.maxRetries, err))
		}
		v.attempts.Store(0)
		return next(ctx, call, tc)
	}
}
