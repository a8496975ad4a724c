package unifiedllm

import (
	"context"
)

// GenerateOptions configures a single-shot Generate call.
type GenerateOptions struct {
	Model       string
	Prompt      string    // simple text prompt (mutually exclusive with Messages)
	Messages    []Message // full conversation (mutually exclusive with Prompt)
	System      string
	Temperature *float64
	MaxTokens   *int
	Provider    string
	Retry       *RetryPolicy // nil means no retries
}

// Generate sends one request without tools and returns the response. It is
// the building block for helpers that need a plain completion, such as
// history summarization.
func Generate(ctx context.Context, backend Backend, opts GenerateOptions) (*Response, error) {
	if opts.Prompt != "" && len(opts.Messages) > 0 {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "cannot specify both prompt and messages",
		}}
	}
	if backend == nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "no backend configured"}}
	}

	messages := opts.Messages
	if opts.Prompt != "" {
		messages = []Message{UserMessage(opts.Prompt)}
	}

	req := Request{
		Model:       opts.Model,
		System:      opts.System,
		Messages:    messages,
		Provider:    opts.Provider,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	if opts.Retry == nil {
		return backend.Complete(ctx, req)
	}
	return Retry(ctx, *opts.Retry, func(ctx context.Context) (*Response, error) {
		return backend.Complete(ctx, req)
	})
}
