package agentloop

import (
	"context"
	"errors"
	"fmt"

	"github.com/SecBear/neuron-sub003/durable"
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// ErrorKind classifies why a run ended without a final response.
type ErrorKind string

const (
	KindBackend        ErrorKind = "backend"
	KindTool           ErrorKind = "tool"
	KindContext        ErrorKind = "context"
	KindLimitReached   ErrorKind = "limit_reached"
	KindCancelled      ErrorKind = "cancelled"
	KindHookTerminated ErrorKind = "hook_terminated"
	KindDurability     ErrorKind = "durability"
)

// Limit names carried by LimitReached outcomes and limit errors.
const (
	LimitTurns        = "turn limit"
	LimitRequests     = "request limit"
	LimitToolCalls    = "tool call limit"
	LimitInputTokens  = "input token limit"
	LimitOutputTokens = "output token limit"
	LimitTotalTokens  = "total token limit"
)

// LoopError is the terminal error of a run.
type LoopError struct {
	Kind    ErrorKind
	Message string
	Reason  string // hook termination reason
	Limit   string // which limit was reached
	Cause   error
}

func (e *LoopError) Error() string {
	var msg string
	switch e.Kind {
	case KindCancelled:
		msg = "run cancelled"
	case KindHookTerminated:
		msg = "terminated by hook: " + e.Reason
	case KindLimitReached:
		msg = e.Message
	default:
		msg = fmt.Sprintf("%s failure", e.Kind)
		if e.Message != "" {
			msg += ": " + e.Message
		}
	}
	if e.Cause != nil && e.Kind != KindBackend && e.Kind != KindTool && e.Kind != KindDurability {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *LoopError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the backend classified the underlying failure
// as retryable. The loop never retries on its own.
func (e *LoopError) Retryable() bool {
	return e.Kind == KindBackend && unifiedllm.IsRetryable(e.Cause)
}

// KindOf returns the kind of a LoopError in err's chain, or the empty kind.
func KindOf(err error) ErrorKind {
	var le *LoopError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

func cancelledError(cause error) *LoopError {
	return &LoopError{Kind: KindCancelled, Cause: cause}
}

func hookTerminated(reason string) *LoopError {
	return &LoopError{Kind: KindHookTerminated, Reason: reason}
}

func limitError(limit, msg string) *LoopError {
	return &LoopError{Kind: KindLimitReached, Limit: limit, Message: msg}
}

func contextError(err error) *LoopError {
	return &LoopError{Kind: KindContext, Message: "compaction failed", Cause: err}
}

// modelCallError classifies a failed routed model call.
func modelCallError(ctx context.Context, err error) *LoopError {
	if isDurabilityError(err) {
		return &LoopError{Kind: KindDurability, Message: err.Error(), Cause: err}
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return cancelledError(err)
	}
	return &LoopError{Kind: KindBackend, Message: err.Error(), Cause: err}
}

// toolCallError classifies a tool failure that ends the run.
func toolCallError(err error) *LoopError {
	if isDurabilityError(err) {
		return &LoopError{Kind: KindDurability, Message: err.Error(), Cause: err}
	}
	return &LoopError{Kind: KindTool, Message: err.Error(), Cause: err}
}

func isDurabilityError(err error) bool {
	var de *durable.Error
	return errors.As(err, &de) || errors.Is(err, durable.ErrNonDeterministic)
}
