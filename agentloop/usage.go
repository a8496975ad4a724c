package agentloop

import (
	"fmt"

	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// accumulator holds the running totals of one run. Totals only grow.
type accumulator struct {
	usage     unifiedllm.Usage
	requests  int
	toolCalls int
}

func (a *accumulator) addResponse(u unifiedllm.Usage) {
	a.usage = a.usage.Add(u)
	a.requests++
}

func (a *accumulator) addTools(calls int, u unifiedllm.Usage) {
	a.usage = a.usage.Add(u)
	a.toolCalls += calls
}

// checkRequest runs before a backend call.
func (a *accumulator) checkRequest(l UsageLimits) *LimitReached {
	if l.RequestLimit > 0 && a.requests >= l.RequestLimit {
		return a.limit(LimitRequests, fmt.Sprintf("request limit of %d reached", l.RequestLimit))
	}
	return nil
}

// checkToolCalls runs before a batch of n calls executes.
func (a *accumulator) checkToolCalls(l UsageLimits, n int) *LimitReached {
	if l.ToolCallLimit > 0 && a.toolCalls+n > l.ToolCallLimit {
		return a.limit(LimitToolCalls, fmt.Sprintf(
			"tool call limit of %d exceeded: %d calls made, %d requested", l.ToolCallLimit, a.toolCalls, n))
	}
	return nil
}

// checkTokens runs after each accounting step.
func (a *accumulator) checkTokens(l UsageLimits) *LimitReached {
	switch {
	case l.InputTokensLimit > 0 && a.usage.InputTokens > l.InputTokensLimit:
		return a.limit(LimitInputTokens, fmt.Sprintf(
			"input token limit of %d exceeded: %d used", l.InputTokensLimit, a.usage.InputTokens))
	case l.OutputTokensLimit > 0 && a.usage.OutputTokens > l.OutputTokensLimit:
		return a.limit(LimitOutputTokens, fmt.Sprintf(
			"output token limit of %d exceeded: %d used", l.OutputTokensLimit, a.usage.OutputTokens))
	case l.TotalTokensLimit > 0 && a.usage.TotalTokens > l.TotalTokensLimit:
		return a.limit(LimitTotalTokens, fmt.Sprintf(
			"total token limit of %d exceeded: %d used", l.TotalTokensLimit, a.usage.TotalTokens))
	}
	return nil
}

func (a *accumulator) limit(name, msg string) *LimitReached {
	return &LimitReached{Limit: name, Message: msg, Usage: a.usage}
}
