package compact

import (
	"context"
	"fmt"
	"strings"

	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// Strategy decides whether and how to shrink a history.
type Strategy interface {
	// TokenEstimate returns the approximate token size of history.
	TokenEstimate(history []unifiedllm.Message) int
	// ShouldCompact reports whether a history of the given size needs
	// compacting.
	ShouldCompact(history []unifiedllm.Message, tokens int) bool
	// Compact returns a smaller history. It must not modify its input.
	Compact(ctx context.Context, history []unifiedllm.Message) ([]unifiedllm.Message, error)
}

// Error reports a failed compaction.
type Error struct {
	Strategy string
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("context strategy %s: %v", e.Strategy, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Option configures a strategy.
type Option func(*base)

// WithCounter replaces the default CharCounter.
func WithCounter(c Counter) Option {
	return func(b *base) {
		b.counter = c
	}
}

// base carries what every budgeted strategy shares.
type base struct {
	counter   Counter
	maxTokens int
}

func newBase(maxTokens int, opts []Option) base {
	b := base{counter: CharCounter{}, maxTokens: maxTokens}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b base) TokenEstimate(history []unifiedllm.Message) int {
	return b.counter.CountMessages(history)
}

// ShouldCompact is true once tokens exceed the budget. A budget of zero or
// less never compacts.
func (b base) ShouldCompact(_ []unifiedllm.Message, tokens int) bool {
	return b.maxTokens > 0 && tokens > b.maxTokens
}

// None never compacts.
type None struct {
	Counter Counter
}

// TokenEstimate implements Strategy.
func (n None) TokenEstimate(history []unifiedllm.Message) int {
	if n.Counter == nil {
		return CharCounter{}.CountMessages(history)
	}
	return n.Counter.CountMessages(history)
}

// ShouldCompact implements Strategy.
func (None) ShouldCompact([]unifiedllm.Message, int) bool { return false }

// Compact implements Strategy.
func (None) Compact(_ context.Context, history []unifiedllm.Message) ([]unifiedllm.Message, error) {
	return history, nil
}

// SlidingWindow keeps system messages plus the most recent non-system
// messages.
type SlidingWindow struct {
	base
	window int
}

// NewSlidingWindow keeps at most window non-system messages once the
// history exceeds maxTokens. The latest message is always kept, so a window
// below one acts as one.
func NewSlidingWindow(window, maxTokens int, opts ...Option) *SlidingWindow {
	return &SlidingWindow{base: newBase(maxTokens, opts), window: max(window, 1)}
}

// Compact implements Strategy.
func (s *SlidingWindow) Compact(_ context.Context, history []unifiedllm.Message) ([]unifiedllm.Message, error) {
	system, rest := splitSystem(history)
	start := len(rest) - s.window
	if start < 0 {
		start = 0
	}
	start = alignToTurn(rest, start)
	return append(system, rest[start:]...), nil
}

// ToolResultClearing replaces the content of old tool results with a
// placeholder, keeping the call IDs so the history stays well formed.
type ToolResultClearing struct {
	base
	keepRecent int
}

// ClearedToolResult replaces cleared tool result content.
const ClearedToolResult = "[tool result cleared]"

// NewToolResultClearing leaves the keepRecent most recent tool results
// intact once the history exceeds maxTokens.
func NewToolResultClearing(keepRecent, maxTokens int, opts ...Option) *ToolResultClearing {
	return &ToolResultClearing{base: newBase(maxTokens, opts), keepRecent: keepRecent}
}

// Compact implements Strategy.
func (s *ToolResultClearing) Compact(_ context.Context, history []unifiedllm.Message) ([]unifiedllm.Message, error) {
	type pos struct{ msg, part int }
	var results []pos
	for i, m := range history {
		for j, p := range m.Content {
			if p.Kind == unifiedllm.ContentToolResult && p.ToolResult != nil {
				results = append(results, pos{i, j})
			}
		}
	}
	n := len(results) - s.keepRecent
	if n <= 0 {
		return history, nil
	}

	out := make([]unifiedllm.Message, len(history))
	copy(out, history)
	copied := make(map[int]bool)
	for _, p := range results[:n] {
		if !copied[p.msg] {
			out[p.msg].Content = append([]unifiedllm.ContentPart(nil), history[p.msg].Content...)
			copied[p.msg] = true
		}
		id := out[p.msg].Content[p.part].ToolResult.ToolCallID
		out[p.msg].Content[p.part] = unifiedllm.ToolResultPart(id, ClearedToolResult, false)
	}
	return out, nil
}

// SummaryPrompt is the system prompt used to summarize old messages.
const SummaryPrompt = "Summarize the conversation above concisely. Focus on key information, " +
	"decisions made, and results from tool calls. Write in third person."

// SummaryHeader starts the user message that replaces summarized history.
const SummaryHeader = "[Summary of earlier conversation]"

// Summarization asks a model to summarize everything but the most recent
// messages and replaces them with the summary.
type Summarization struct {
	base
	backend        unifiedllm.Backend
	model          string
	preserveRecent int
}

// NewSummarization summarizes with model on backend, keeping the
// preserveRecent most recent non-system messages verbatim.
func NewSummarization(backend unifiedllm.Backend, model string, preserveRecent, maxTokens int, opts ...Option) *Summarization {
	return &Summarization{
		base:           newBase(maxTokens, opts),
		backend:        backend,
		model:          model,
		preserveRecent: preserveRecent,
	}
}

// Compact implements Strategy.
func (s *Summarization) Compact(ctx context.Context, history []unifiedllm.Message) ([]unifiedllm.Message, error) {
	system, rest := splitSystem(history)
	split := len(rest) - s.preserveRecent
	if split < 0 {
		split = 0
	}
	split = alignToTurn(rest, split)
	if split == 0 {
		return history, nil
	}

	resp, err := unifiedllm.Generate(ctx, s.backend, unifiedllm.GenerateOptions{
		Model:       s.model,
		Messages:    rest[:split],
		System:      SummaryPrompt,
		MaxTokens:   unifiedllm.IntPtr(1024),
		Temperature: unifiedllm.FloatPtr(0),
	})
	if err != nil {
		return nil, &Error{Strategy: "summarization", Cause: err}
	}

	summary := unifiedllm.UserMessage(SummaryHeader + "\n" + strings.TrimSpace(resp.Text()))
	out := append(system, summary)
	return append(out, rest[split:]...), nil
}

// Composite applies strategies in order until the history fits the budget.
type Composite struct {
	base
	strategies []Strategy
}

// NewComposite chains strategies under one budget.
func NewComposite(maxTokens int, strategies []Strategy, opts ...Option) *Composite {
	return &Composite{base: newBase(maxTokens, opts), strategies: strategies}
}

// Compact implements Strategy.
func (c *Composite) Compact(ctx context.Context, history []unifiedllm.Message) ([]unifiedllm.Message, error) {
	current := history
	for _, s := range c.strategies {
		if c.maxTokens > 0 && c.TokenEstimate(current) <= c.maxTokens {
			break
		}
		next, err := s.Compact(ctx, current)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// Threshold returns ratio of model's context window, the usual compaction
// budget for a model.
func Threshold(model string, ratio float64) int {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.8
	}
	return int(float64(unifiedllm.ContextWindow(model)) * ratio)
}

// splitSystem separates system messages from the rest, preserving order.
// The returned slices are fresh.
func splitSystem(history []unifiedllm.Message) (system, rest []unifiedllm.Message) {
	for _, m := range history {
		if m.Role == unifiedllm.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}
	return system, rest
}

// alignToTurn moves start back so rest[start:] does not open with tool
// results whose calls would be cut off.
func alignToTurn(rest []unifiedllm.Message, start int) int {
	for start > 0 && start < len(rest) && rest[start].Role == unifiedllm.RoleTool {
		start--
	}
	return start
}
