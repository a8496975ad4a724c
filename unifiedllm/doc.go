// Package unifiedllm is the model backend layer of the agent loop. It defines
// the provider-agnostic conversation model (Message, ContentPart, Usage,
// StopReason), the Backend contract the loop calls, a routing Client with
// middleware, a typed error hierarchy with retry classification, and a
// GollmAdapter that reaches real providers through
// github.com/teilomillet/gollm.
//
// # Backends
//
// Anything with Complete and Stream is a Backend:
//
//	adapter, _ := unifiedllm.NewGollmAdapter("anthropic", os.Getenv("ANTHROPIC_API_KEY"))
//	client := unifiedllm.NewClient(
//	    unifiedllm.WithProvider("anthropic", adapter),
//	    unifiedllm.WithMiddleware(unifiedllm.RetryMiddleware(unifiedllm.DefaultRetryPolicy())),
//	)
//
//	resp, _ := client.Complete(ctx, unifiedllm.Request{
//	    Model:    "claude-sonnet-4-5",
//	    Messages: []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	})
//	fmt.Println(resp.Text(), resp.StopReason)
//
// # Errors
//
// Backend failures are reported as the concrete types in errors.go.
// IsRetryable classifies them through any wrapping; Retry and
// RetryMiddleware apply a RetryPolicy. The loop engine never retries on its
// own, so retrying is configured here or not at all.
//
// # Streaming
//
// Stream returns a channel closed after a StreamFinish or StreamError event.
// Collect drains a stream into a Response, and ResponseEvents replays a
// complete Response as events for callers that need a uniform stream.
package unifiedllm
