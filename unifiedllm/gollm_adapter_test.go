package unifiedllm

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestGollmAdapterName(t *testing.T) {
	for _, provider := range []string{"openai", "anthropic"} {
		adapter, err := NewGollmAdapter(provider, "test-key-not-real")
		if err != nil {
			t.Logf("skipping %s adapter creation: %v", provider, err)
			continue
		}
		if adapter.Name() != provider {
			t.Errorf("expected name %q, got %q", provider, adapter.Name())
		}
	}
}

func TestGollmAdapterTranslateError(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai"}

	tests := []struct {
		errMsg string
		check  func(error) bool
	}{
		{"401 Unauthorized", func(e error) bool { var x *AuthenticationError; return errors.As(e, &x) }},
		{"invalid api key", func(e error) bool { var x *AuthenticationError; return errors.As(e, &x) }},
		{"403 Forbidden", func(e error) bool { var x *AccessDeniedError; return errors.As(e, &x) }},
		{"404 not found", func(e error) bool { var x *NotFoundError; return errors.As(e, &x) }},
		{"429 rate limit exceeded", func(e error) bool { var x *RateLimitError; return errors.As(e, &x) }},
		{"context length exceeded", func(e error) bool { var x *ContextLengthError; return errors.As(e, &x) }},
		{"500 internal server error", func(e error) bool { var x *ServerError; return errors.As(e, &x) }},
		{"timeout waiting for response", func(e error) bool { var x *RequestTimeoutError; return errors.As(e, &x) }},
		{"content filter triggered", func(e error) bool { var x *ContentFilterError; return errors.As(e, &x) }},
		{"something unknown", func(e error) bool { var x *ProviderError; return errors.As(e, &x) }},
	}

	for _, tt := range tests {
		err := adapter.translateError(errors.New(tt.errMsg))
		if !tt.check(err) {
			t.Errorf("for %q: unexpected classification %T", tt.errMsg, err)
		}
	}
}

func TestParseToolCallsWrapped(t *testing.T) {
	text := `Let me check. {"tool_calls": [{"id": "c1", "name": "calc", "arguments": {"expr": "2+2"}}]}`
	calls, rest := parseToolCalls(text)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].ID != "c1" || calls[0].Name != "calc" {
		t.Errorf("unexpected call %+v", calls[0])
	}
	var args map[string]string
	if err := json.Unmarshal(calls[0].Arguments, &args); err != nil || args["expr"] != "2+2" {
		t.Errorf("unexpected arguments %s", calls[0].Arguments)
	}
	if rest != "Let me check." {
		t.Errorf("expected leading text preserved, got %q", rest)
	}
}

func TestParseToolCallsBareArrayAssignsIDs(t *testing.T) {
	calls, rest := parseToolCalls(`[{"name": "ls"}]`)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].ID == "" {
		t.Error("expected a generated call id")
	}
	if string(calls[0].Arguments) != "{}" {
		t.Errorf("expected empty object arguments, got %s", calls[0].Arguments)
	}
	if rest != "" {
		t.Errorf("expected no remaining text, got %q", rest)
	}
}

func TestParseToolCallsPlainText(t *testing.T) {
	calls, rest := parseToolCalls("just an answer")
	if len(calls) != 0 || rest != "just an answer" {
		t.Errorf("expected plain text passthrough, got %v %q", calls, rest)
	}
}

func TestBuildResponseStopReason(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai", model: "gpt-4o-mini"}
	resp := adapter.buildResponse(Request{}, `[{"name": "ls", "arguments": {}}]`)
	if resp.StopReason != StopToolUse {
		t.Errorf("expected %q, got %q", StopToolUse, resp.StopReason)
	}
	resp = adapter.buildResponse(Request{}, "done")
	if resp.StopReason != StopEndTurn {
		t.Errorf("expected %q, got %q", StopEndTurn, resp.StopReason)
	}
	if resp.Model != "gpt-4o-mini" {
		t.Errorf("expected adapter default model, got %q", resp.Model)
	}
	if resp.Usage.TotalTokens != resp.Usage.InputTokens+resp.Usage.OutputTokens {
		t.Errorf("inconsistent usage %+v", resp.Usage)
	}
}

func TestGollmAdapterSupportsToolChoice(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai"}
	for _, mode := range []string{"auto", "none", "required", "named"} {
		if !adapter.SupportsToolChoice(mode) {
			t.Errorf("expected %s to be supported", mode)
		}
	}
	if adapter.SupportsToolChoice("invalid") {
		t.Error("expected invalid to not be supported")
	}
	if (&GollmAdapter{provider: "gemini"}).SupportsToolChoice("named") {
		t.Error("expected named to not be supported for gemini")
	}
}

func TestEstimateTokens(t *testing.T) {
	req := Request{
		System: "You are a careful assistant.",
		Messages: []Message{
			UserMessage("Hello world, this is a test message."),
			ToolResultMessage("c1", "a fairly long tool output string", false),
		},
	}
	if tokens := estimateTokens(req); tokens <= 10 {
		t.Errorf("expected estimate above the floor, got %d", tokens)
	}
	if tokens := estimateTokens(Request{}); tokens != 10 {
		t.Errorf("expected default token estimate of 10, got %d", tokens)
	}
}
