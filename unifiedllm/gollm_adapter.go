package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter.
// gollm exposes a prompt-in, text-out API, so the adapter flattens history
// into a transcript and recovers tool calls from JSON the model emits.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
}

var _ ProviderAdapter = (*GollmAdapter)(nil)

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key for the adapter.
func WithAPIKey(key string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.apiKey = key
	}
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.temperature = t
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates a new GollmAdapter for the given provider.
// If apiKey is empty, gollm will attempt to read it from environment variables.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		apiKey:      apiKey,
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		if info := GetLatestModel(provider, "tools"); info != nil {
			model = info.ID
		} else {
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries belong to RetryMiddleware
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmAdapter{
		provider: provider,
		llm:      llm,
		model:    model,
	}, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance.
func NewGollmAdapterFromLLM(provider string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{
		provider: provider,
		llm:      llm,
	}
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)
	a.applyRequestOptions(req)

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}
	return a.buildResponse(req, text), nil
}

// Stream sends a streaming request and returns a channel of StreamEvent objects.
func (a *GollmAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	prompt := a.translateRequest(req)
	a.applyRequestOptions(req)

	if !a.llm.SupportsStreaming() {
		text, err := a.llm.Generate(ctx, prompt)
		if err != nil {
			return nil, a.translateError(err)
		}
		return ResponseEvents(a.buildResponse(req, text)), nil
	}

	stream, err := a.llm.Stream(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		defer stream.Close()

		ch <- StreamEvent{Type: StreamStart}

		textID := "text_0"
		started := false
		var fullText strings.Builder

		for {
			token, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				ch <- StreamEvent{Type: StreamError, Error: a.translateError(err)}
				return
			}
			if token == nil {
				continue
			}
			if !started {
				ch <- StreamEvent{Type: TextStart, TextID: textID}
				started = true
			}
			ch <- StreamEvent{Type: TextDelta, Delta: token.Text, TextID: textID}
			fullText.WriteString(token.Text)
		}
		if started {
			ch <- StreamEvent{Type: TextEnd, TextID: textID}
		}

		resp := a.buildResponse(req, fullText.String())
		for _, tc := range resp.ToolCalls() {
			call := tc
			ch <- StreamEvent{Type: ToolCallStart, ToolCall: &call}
			ch <- StreamEvent{Type: ToolCallEnd, ToolCall: &call}
		}
		usage := resp.Usage
		ch <- StreamEvent{Type: StreamFinish, StopReason: resp.StopReason, Usage: &usage, Response: resp}
	}()

	return ch, nil
}

// SupportsToolChoice reports whether the adapter supports a particular tool choice mode.
func (a *GollmAdapter) SupportsToolChoice(mode string) bool {
	switch mode {
	case "auto", "none", "required":
		return true
	case "named":
		return a.provider != "gemini"
	default:
		return false
	}
}

// translateRequest flattens a Request into a gollm Prompt.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	systemPrompt := req.System
	var transcript []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += "\n" + msg.TextContent()
		case RoleUser:
			if summary, ok := msg.Compaction(); ok {
				transcript = append(transcript, "[Summary]: "+summary)
			}
			if text := msg.TextContent(); text != "" {
				transcript = append(transcript, text)
			}
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				transcript = append(transcript, "[Assistant]: "+text)
			}
			for _, call := range msg.ToolCalls() {
				transcript = append(transcript, fmt.Sprintf("[Tool Call %s]: %s(%s)", call.ID, call.Name, string(call.Arguments)))
			}
			if summary, ok := msg.Compaction(); ok {
				transcript = append(transcript, "[Summary]: "+summary)
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind != ContentToolResult || part.ToolResult == nil {
					continue
				}
				prefix := "[Tool Result " + part.ToolResult.ToolCallID + "]"
				if part.ToolResult.IsError {
					prefix = "[Tool Error " + part.ToolResult.ToolCallID + "]"
				}
				transcript = append(transcript, prefix+": "+part.ToolResult.Content)
			}
		}
	}

	promptText := strings.Join(transcript, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if s := strings.TrimSpace(systemPrompt); s != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(s, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}
	if req.ToolChoice != nil {
		promptOpts = append(promptOpts, gollm.WithToolChoice(req.ToolChoice.Mode))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyRequestOptions applies request-level parameters to the gollm LLM.
func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.TopP != nil {
		a.llm.SetOption("top_p", *req.TopP)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// buildResponse constructs a Response from generated text.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	calls, remaining := parseToolCalls(text)

	var content []ContentPart
	if remaining != "" {
		content = append(content, TextPart(remaining))
	}
	for _, tc := range calls {
		content = append(content, ToolCallPart(tc.ID, tc.Name, tc.Arguments))
	}
	if len(content) == 0 {
		content = []ContentPart{TextPart(text)}
	}

	stop := StopEndTurn
	if len(calls) > 0 {
		stop = StopToolUse
	}

	// gollm does not expose provider usage; estimate from text length.
	input := estimateTokens(req)
	output := len(text) / 4
	return &Response{
		ID:            "resp_" + uuid.New().String()[:8],
		Model:         model,
		Provider:      a.provider,
		Message:       Message{Role: RoleAssistant, Content: content},
		StopReason:    stop,
		RawStopReason: string(stop),
		Usage:         Usage{InputTokens: input, OutputTokens: output, TotalTokens: input + output},
	}
}

type rawToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// parseToolCalls extracts tool calls the model wrote as JSON, either
// {"tool_calls": [...]} or a bare [{"name": ...}] array, and returns the text
// preceding them.
func parseToolCalls(text string) ([]ToolCallData, string) {
	var raw []rawToolCall
	start := strings.Index(text, `{"tool_calls"`)
	if start >= 0 {
		var wrapped struct {
			ToolCalls []rawToolCall `json:"tool_calls"`
		}
		if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&wrapped); err == nil {
			raw = wrapped.ToolCalls
		}
	} else if start = strings.Index(text, `[{"name"`); start >= 0 {
		_ = json.NewDecoder(strings.NewReader(text[start:])).Decode(&raw)
	}
	if len(raw) == 0 {
		return nil, text
	}

	calls := make([]ToolCallData, 0, len(raw))
	for _, rc := range raw {
		if rc.Name == "" {
			continue
		}
		id := rc.ID
		if id == "" {
			id = "call_" + uuid.New().String()[:8]
		}
		args := rc.Arguments
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		calls = append(calls, ToolCallData{ID: id, Name: rc.Name, Arguments: args})
	}
	return calls, strings.TrimSpace(text[:start])
}

// translateError converts a gollm error into the unified error hierarchy.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	base := func(status int, retryable bool) ProviderError {
		return ProviderError{
			SDKError:   SDKError{Message: msg, Cause: err},
			Provider:   a.provider,
			StatusCode: status,
			Retryable:  retryable,
		}
	}

	msgLower := strings.ToLower(msg)
	switch {
	case strings.Contains(msgLower, "401") || strings.Contains(msgLower, "unauthorized") || strings.Contains(msgLower, "invalid api key") || strings.Contains(msgLower, "invalid key"):
		return &AuthenticationError{ProviderError: base(401, false)}
	case strings.Contains(msgLower, "403") || strings.Contains(msgLower, "forbidden"):
		return &AccessDeniedError{ProviderError: base(403, false)}
	case strings.Contains(msgLower, "404") || strings.Contains(msgLower, "not found"):
		return &NotFoundError{ProviderError: base(404, false)}
	case strings.Contains(msgLower, "429") || strings.Contains(msgLower, "rate limit"):
		return &RateLimitError{ProviderError: base(429, true)}
	case strings.Contains(msgLower, "context length") || strings.Contains(msgLower, "too many tokens"):
		return &ContextLengthError{ProviderError: base(413, false)}
	case strings.Contains(msgLower, "500") || strings.Contains(msgLower, "internal server") || strings.Contains(msgLower, "overloaded"):
		return &ServerError{ProviderError: base(500, true)}
	case strings.Contains(msgLower, "timeout"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(msgLower, "content filter") || strings.Contains(msgLower, "safety"):
		return &ContentFilterError{ProviderError: base(0, false)}
	default:
		pe := base(0, true)
		return &pe
	}
}

// estimateTokens provides a rough token count estimate from request messages.
func estimateTokens(req Request) int {
	total := len(req.System) / 4
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			switch part.Kind {
			case ContentText, ContentCompaction:
				total += len(part.Text) / 4
			case ContentToolResult:
				if part.ToolResult != nil {
					total += len(part.ToolResult.Content) / 4
				}
			case ContentToolCall:
				if part.ToolCall != nil {
					total += (len(part.ToolCall.Name) + len(part.ToolCall.Arguments)) / 4
				}
			}
		}
	}
	if total == 0 {
		total = 10
	}
	return total
}
