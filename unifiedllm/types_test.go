package unifiedllm

import (
	"encoding/json"
	"testing"
)

func TestMessageConstructors(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		role Role
		text string
	}{
		{"system", SystemMessage("You are helpful."), RoleSystem, "You are helpful."},
		{"user", UserMessage("Hello"), RoleUser, "Hello"},
		{"assistant", AssistantMessage("Hi there"), RoleAssistant, "Hi there"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.msg.Role != tt.role {
				t.Errorf("expected role %q, got %q", tt.role, tt.msg.Role)
			}
			if tt.msg.TextContent() != tt.text {
				t.Errorf("expected text %q, got %q", tt.text, tt.msg.TextContent())
			}
		})
	}
}

func TestToolResultMessage(t *testing.T) {
	msg := ToolResultMessage("call_123", "72F and sunny", true)
	if msg.Role != RoleTool {
		t.Errorf("expected role %q, got %q", RoleTool, msg.Role)
	}
	if len(msg.Content) != 1 || msg.Content[0].Kind != ContentToolResult {
		t.Fatalf("expected a single tool result part, got %+v", msg.Content)
	}
	res := msg.Content[0].ToolResult
	if res.ToolCallID != "call_123" || res.Content != "72F and sunny" || !res.IsError {
		t.Errorf("unexpected tool result %+v", res)
	}
}

func TestMessageToolCalls(t *testing.T) {
	msg := Message{Role: RoleAssistant, Content: []ContentPart{
		TextPart("checking"),
		ToolCallPart("c1", "get_weather", json.RawMessage(`{"city":"Paris"}`)),
		ToolCallPart("c2", "get_time", json.RawMessage(`{}`)),
	}}
	calls := msg.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(calls))
	}
	if calls[0].Name != "get_weather" || calls[1].ID != "c2" {
		t.Errorf("unexpected calls %+v", calls)
	}
}

func TestMessageCompaction(t *testing.T) {
	msg := Message{Role: RoleAssistant, Content: []ContentPart{CompactionPart("earlier: user asked for a plan")}}
	summary, ok := msg.Compaction()
	if !ok || summary != "earlier: user asked for a plan" {
		t.Errorf("expected compaction summary, got %q %v", summary, ok)
	}
	if _, ok := UserMessage("x").Compaction(); ok {
		t.Error("plain message should have no compaction part")
	}
}

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30}
	b := Usage{InputTokens: 5, OutputTokens: 15, TotalTokens: 20}
	result := a.Add(b)

	if result.InputTokens != 15 || result.OutputTokens != 35 || result.TotalTokens != 50 {
		t.Errorf("unexpected sum %+v", result)
	}
	if result.ReasoningTokens != nil {
		t.Errorf("expected reasoning_tokens nil, got %v", result.ReasoningTokens)
	}
}

func TestUsageAddFillsMissingTotal(t *testing.T) {
	result := Usage{}.Add(Usage{InputTokens: 7, OutputTokens: 3})
	if result.TotalTokens != 10 {
		t.Errorf("expected total 10, got %d", result.TotalTokens)
	}
}

func TestUsageAddOptionalFields(t *testing.T) {
	a := Usage{ReasoningTokens: IntPtr(5), CacheWriteTokens: IntPtr(2)}
	b := Usage{ReasoningTokens: IntPtr(10), CacheReadTokens: IntPtr(4)}
	result := a.Add(b)

	if result.ReasoningTokens == nil || *result.ReasoningTokens != 15 {
		t.Errorf("expected reasoning_tokens 15, got %v", result.ReasoningTokens)
	}
	if result.CacheReadTokens == nil || *result.CacheReadTokens != 4 {
		t.Errorf("expected cache_read_tokens 4, got %v", result.CacheReadTokens)
	}
	if result.CacheWriteTokens == nil || *result.CacheWriteTokens != 2 {
		t.Errorf("expected cache_write_tokens 2, got %v", result.CacheWriteTokens)
	}
}

func TestUsageIsZero(t *testing.T) {
	if !(Usage{}).IsZero() {
		t.Error("empty usage should be zero")
	}
	if (Usage{CacheReadTokens: IntPtr(0)}).IsZero() {
		t.Error("usage with a reported cache field is not zero")
	}
}

func TestResponseAccessors(t *testing.T) {
	resp := Response{
		Message: Message{
			Role: RoleAssistant,
			Content: []ContentPart{
				ThinkingPart("reasoning here", "sig"),
				RedactedThinkingPart("opaque"),
				TextPart("The answer is 42."),
				ToolCallPart("call_1", "calc", json.RawMessage(`{}`)),
			},
		},
	}

	if resp.Text() != "The answer is 42." {
		t.Errorf("expected text %q, got %q", "The answer is 42.", resp.Text())
	}
	if resp.Reasoning() != "reasoning here" {
		t.Errorf("expected reasoning %q, got %q", "reasoning here", resp.Reasoning())
	}
	calls := resp.ToolCalls()
	if len(calls) != 1 || calls[0].Name != "calc" {
		t.Fatalf("expected 1 calc call, got %v", calls)
	}
}
