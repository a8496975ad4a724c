package unifiedllm

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFromStatusCode(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{402, false},
		{403, false},
		{404, false},
		{408, true},
		{413, false},
		{422, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{529, true},
	}

	for _, tt := range tests {
		err := ErrorFromStatusCode(tt.status, "test error", "openai", "", nil)
		if got := IsRetryable(err); got != tt.retryable {
			t.Errorf("status %d: IsRetryable = %v, want %v", tt.status, got, tt.retryable)
		}
	}
}

func TestErrorFromStatusCodeTypes(t *testing.T) {
	var rl *RateLimitError
	if !errors.As(ErrorFromStatusCode(429, "slow down", "anthropic", "", nil), &rl) {
		t.Error("429 should map to RateLimitError")
	}
	var cl *ContextLengthError
	if !errors.As(ErrorFromStatusCode(413, "too long", "anthropic", "", nil), &cl) {
		t.Error("413 should map to ContextLengthError")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"auth error", &AuthenticationError{}, false},
		{"access denied", &AccessDeniedError{}, false},
		{"not found", &NotFoundError{}, false},
		{"invalid request", &InvalidRequestError{}, false},
		{"context length", &ContextLengthError{}, false},
		{"quota exceeded", &QuotaExceededError{}, false},
		{"content filter", &ContentFilterError{}, false},
		{"config error", &ConfigurationError{}, false},
		{"abort", &AbortError{}, false},
		{"rate limit", &RateLimitError{ProviderError: ProviderError{Retryable: true}}, true},
		{"server error", &ServerError{ProviderError: ProviderError{Retryable: true}}, true},
		{"network error", &NetworkError{}, true},
		{"stream error", &StreamProtocolError{}, true},
		{"timeout error", &RequestTimeoutError{}, true},
		{"plain provider error", &ProviderError{Retryable: false}, false},
		{"unknown error", errors.New("unknown"), true},
		{"wrapped auth error", fmt.Errorf("calling model: %w", &AuthenticationError{}), false},
		{"wrapped rate limit", fmt.Errorf("calling model: %w", &RateLimitError{}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsRetryable(tt.err)
			if got != tt.retryable {
				t.Errorf("IsRetryable(%T) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestIsContextOverflow(t *testing.T) {
	if !IsContextOverflow(fmt.Errorf("wrapped: %w", &ContextLengthError{})) {
		t.Error("expected wrapped ContextLengthError to be a context overflow")
	}
	if IsContextOverflow(&ServerError{}) {
		t.Error("ServerError is not a context overflow")
	}
}

func TestSDKErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &SDKError{Message: "wrapper", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("expected SDKError to unwrap to its cause")
	}
	if err.Error() != "wrapper: root cause" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{
		SDKError:   SDKError{Message: "rate limit exceeded"},
		Provider:   "openai",
		StatusCode: 429,
		Retryable:  true,
	}
	msg := err.Error()
	if !strings.Contains(msg, "openai") || !strings.Contains(msg, "rate limit") {
		t.Errorf("error message missing expected content: %q", msg)
	}
}
