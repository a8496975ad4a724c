package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestStreamAccumulator(t *testing.T) {
	acc := NewStreamAccumulator()
	call := ToolCallData{ID: "c1", Name: "calc", Arguments: json.RawMessage(`{"expr":"2+2"}`)}
	events := []StreamEvent{
		{Type: StreamStart},
		{Type: TextDelta, Delta: "Hello "},
		{Type: TextDelta, Delta: "world"},
		{Type: ToolCallStart, ToolCall: &call},
		{Type: ToolCallEnd, ToolCall: &call},
		{Type: StreamFinish, Usage: &Usage{InputTokens: 5, OutputTokens: 10, TotalTokens: 15}},
	}
	for _, e := range events {
		acc.Process(e)
	}

	resp := acc.Response()
	if resp.Text() != "Hello world" {
		t.Errorf("expected accumulated text %q, got %q", "Hello world", resp.Text())
	}
	if resp.StopReason != StopToolUse {
		t.Errorf("expected stop reason %q, got %q", StopToolUse, resp.StopReason)
	}
	if calls := resp.ToolCalls(); len(calls) != 1 || calls[0].ID != "c1" {
		t.Errorf("expected one tool call c1, got %v", calls)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected total_tokens 15, got %d", resp.Usage.TotalTokens)
	}
}

func TestResponseEventsRoundTrip(t *testing.T) {
	original := &Response{
		Message: Message{Role: RoleAssistant, Content: []ContentPart{
			ThinkingPart("hmm", ""),
			TextPart("answer"),
			ToolCallPart("c1", "lookup", json.RawMessage(`{}`)),
		}},
		StopReason: StopToolUse,
		Usage:      Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3},
	}

	var deltas, reasoning string
	resp, err := Collect(context.Background(), ResponseEvents(original), func(e StreamEvent) {
		deltas += e.Delta
		reasoning += e.ReasoningDelta
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != original {
		t.Error("expected the finish event to carry the original response")
	}
	if deltas != "answer" || reasoning != "hmm" {
		t.Errorf("unexpected deltas %q / %q", deltas, reasoning)
	}
}

func TestCollectStreamError(t *testing.T) {
	boom := errors.New("boom")
	ch := make(chan StreamEvent, 2)
	ch <- StreamEvent{Type: TextDelta, Delta: "partial"}
	ch <- StreamEvent{Type: StreamError, Error: boom}
	close(ch)

	if _, err := Collect(context.Background(), ch, nil); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestCollectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := make(chan StreamEvent) // never sends

	_, err := Collect(ctx, ch, nil)
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError, got %v", err)
	}
}
