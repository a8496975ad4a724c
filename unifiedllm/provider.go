package unifiedllm

import "context"

// Backend turns a request into a response or a stream of events. The loop
// engine depends only on this contract; Client, GollmAdapter and test fakes
// all satisfy it.
type Backend interface {
	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream sends a request and returns a channel of stream events. The
	// channel is closed after a StreamFinish or StreamError event.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// ProviderAdapter is a named Backend registered on a Client.
type ProviderAdapter interface {
	Backend

	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

// ToolChoiceSupporter is implemented by adapters that can report tool choice support.
type ToolChoiceSupporter interface {
	SupportsToolChoice(mode string) bool
}
