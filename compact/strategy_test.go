package compact

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/SecBear/neuron-sub003/unifiedllm"
)

func conversation() []unifiedllm.Message {
	return []unifiedllm.Message{
		unifiedllm.SystemMessage("be helpful"),
		unifiedllm.UserMessage("first"),
		{Role: unifiedllm.RoleAssistant, Content: []unifiedllm.ContentPart{
			unifiedllm.ToolCallPart("c1", "read", json.RawMessage(`{}`)),
		}},
		unifiedllm.ToolResultMessage("c1", strings.Repeat("x", 400), false),
		{Role: unifiedllm.RoleAssistant, Content: []unifiedllm.ContentPart{
			unifiedllm.ToolCallPart("c2", "read", json.RawMessage(`{}`)),
		}},
		unifiedllm.ToolResultMessage("c2", strings.Repeat("y", 400), false),
		unifiedllm.AssistantMessage("done"),
	}
}

func TestShouldCompact(t *testing.T) {
	s := NewSlidingWindow(2, 100)
	if s.ShouldCompact(nil, 100) {
		t.Error("at the budget should not compact")
	}
	if !s.ShouldCompact(nil, 101) {
		t.Error("over the budget should compact")
	}
	if NewSlidingWindow(2, 0).ShouldCompact(nil, 1<<20) {
		t.Error("zero budget never compacts")
	}
	if (None{}).ShouldCompact(nil, 1<<20) {
		t.Error("None never compacts")
	}
}

func TestSlidingWindow(t *testing.T) {
	history := conversation()
	out, err := NewSlidingWindow(2, 10).Compact(context.Background(), history)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	// The last two non-system messages are a tool result and the final
	// answer; the window widens to keep the call that produced the result.
	roles := make([]unifiedllm.Role, len(out))
	for i, m := range out {
		roles[i] = m.Role
	}
	want := []unifiedllm.Role{unifiedllm.RoleSystem, unifiedllm.RoleAssistant, unifiedllm.RoleTool, unifiedllm.RoleAssistant}
	if len(roles) != len(want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Errorf("roles[%d] = %s, want %s", i, roles[i], want[i])
		}
	}
	if len(history) != 7 {
		t.Error("input history was modified")
	}
}

func TestSlidingWindowKeepsLatestMessage(t *testing.T) {
	history := []unifiedllm.Message{
		unifiedllm.SystemMessage("sys"),
		unifiedllm.UserMessage("first"),
		unifiedllm.AssistantMessage("reply"),
		unifiedllm.UserMessage("latest"),
	}
	for _, window := range []int{0, -3} {
		out, err := NewSlidingWindow(window, 10).Compact(context.Background(), history)
		if err != nil {
			t.Fatalf("Compact: %v", err)
		}
		if len(out) != 2 || out[1].TextContent() != "latest" {
			t.Errorf("window %d kept %d messages, want system plus the latest user turn", window, len(out))
		}
	}
}

func TestToolResultClearing(t *testing.T) {
	history := conversation()
	out, err := NewToolResultClearing(1, 10).Compact(context.Background(), history)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	first := out[3].Content[0].ToolResult
	if first.Content != ClearedToolResult || first.ToolCallID != "c1" {
		t.Errorf("old result = %+v", first)
	}
	if out[5].Content[0].ToolResult.Content != strings.Repeat("y", 400) {
		t.Error("recent result should be kept")
	}
	if history[3].Content[0].ToolResult.Content == ClearedToolResult {
		t.Error("input history was modified")
	}

	same, _ := NewToolResultClearing(5, 10).Compact(context.Background(), history)
	if len(same) != len(history) || same[3].Content[0].ToolResult.Content == ClearedToolResult {
		t.Error("nothing should be cleared when under keepRecent")
	}
}

type summaryBackend struct {
	req  unifiedllm.Request
	text string
	err  error
}

func (b *summaryBackend) Complete(_ context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	b.req = req
	if b.err != nil {
		return nil, b.err
	}
	return &unifiedllm.Response{Message: unifiedllm.AssistantMessage(b.text), StopReason: unifiedllm.StopEndTurn}, nil
}

func (b *summaryBackend) Stream(context.Context, unifiedllm.Request) (<-chan unifiedllm.StreamEvent, error) {
	return nil, errors.New("not supported")
}

func TestSummarization(t *testing.T) {
	backend := &summaryBackend{text: "  The user asked twice; both reads succeeded. "}
	s := NewSummarization(backend, "small-model", 1, 10)

	out, err := s.Compact(context.Background(), conversation())
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("len = %d, want system + summary + 1 recent", len(out))
	}
	if out[0].Role != unifiedllm.RoleSystem {
		t.Error("system message should be kept first")
	}
	want := SummaryHeader + "\nThe user asked twice; both reads succeeded."
	if out[1].Role != unifiedllm.RoleUser || out[1].TextContent() != want {
		t.Errorf("summary = %q", out[1].TextContent())
	}
	if out[2].TextContent() != "done" {
		t.Errorf("recent = %q", out[2].TextContent())
	}

	if backend.req.System != SummaryPrompt || backend.req.Model != "small-model" {
		t.Errorf("request = %+v", backend.req)
	}
	if backend.req.MaxTokens == nil || *backend.req.MaxTokens != 1024 {
		t.Error("summary request should cap max tokens at 1024")
	}
	if len(backend.req.Tools) != 0 {
		t.Error("summary request must not offer tools")
	}
	if len(backend.req.Messages) != 5 {
		t.Errorf("summarized %d messages, want 5", len(backend.req.Messages))
	}
}

func TestSummarizationError(t *testing.T) {
	cause := errors.New("backend down")
	s := NewSummarization(&summaryBackend{err: cause}, "m", 1, 10)
	_, err := s.Compact(context.Background(), conversation())
	var ce *Error
	if !errors.As(err, &ce) || !errors.Is(err, cause) {
		t.Fatalf("err = %v, want compact.Error wrapping the cause", err)
	}
}

func TestComposite(t *testing.T) {
	history := conversation()
	before := CharCounter{}.CountMessages(history)

	c := NewComposite(before-150, []Strategy{
		NewToolResultClearing(0, 0),
		NewSlidingWindow(1, 0),
	})
	out, err := c.Compact(context.Background(), history)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if len(out) != len(history) {
		t.Errorf("clearing alone fits the budget; sliding window should not run (len %d)", len(out))
	}
	if c.TokenEstimate(out) > before-150 {
		t.Errorf("estimate %d still over budget %d", c.TokenEstimate(out), before-150)
	}

	tight := NewComposite(1, []Strategy{NewToolResultClearing(0, 0), NewSlidingWindow(1, 0)})
	out, _ = tight.Compact(context.Background(), history)
	if len(out) != 2 {
		t.Errorf("both strategies should run under a tight budget, len = %d", len(out))
	}
}

func TestThreshold(t *testing.T) {
	if got := Threshold("claude-sonnet-4-5", 0.5); got != 100000 {
		t.Errorf("Threshold = %d, want 100000", got)
	}
	if got := Threshold("unknown-model", 0); got != int(float64(unifiedllm.DefaultContextWindow)*0.8) {
		t.Errorf("default Threshold = %d", got)
	}
}
