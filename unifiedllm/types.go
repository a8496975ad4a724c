package unifiedllm

import (
	"encoding/json"
	"strings"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentKind is the discriminator tag for ContentPart.
type ContentKind string

const (
	ContentText             ContentKind = "text"
	ContentImage            ContentKind = "image"
	ContentDocument         ContentKind = "document"
	ContentToolCall         ContentKind = "tool_call"
	ContentToolResult       ContentKind = "tool_result"
	ContentThinking         ContentKind = "thinking"
	ContentRedactedThinking ContentKind = "redacted_thinking"
	ContentCompaction       ContentKind = "compaction"
)

// ImageData holds image content as either a URL or raw bytes.
type ImageData struct {
	URL       string `json:"url,omitempty" cbor:"url,omitempty"`
	Data      []byte `json:"data,omitempty" cbor:"data,omitempty"`
	MediaType string `json:"media_type,omitempty" cbor:"media_type,omitempty"`
}

// DocumentData holds document content (PDF, etc.).
type DocumentData struct {
	URL       string `json:"url,omitempty" cbor:"url,omitempty"`
	Data      []byte `json:"data,omitempty" cbor:"data,omitempty"`
	MediaType string `json:"media_type,omitempty" cbor:"media_type,omitempty"`
	FileName  string `json:"file_name,omitempty" cbor:"file_name,omitempty"`
}

// ToolCallData represents a model-initiated tool invocation.
type ToolCallData struct {
	ID        string          `json:"id" cbor:"id"`
	Name      string          `json:"name" cbor:"name"`
	Arguments json.RawMessage `json:"arguments" cbor:"arguments"`
}

// ToolResultData is the outcome of one tool call, matched to it by ToolCallID.
type ToolResultData struct {
	ToolCallID string          `json:"tool_call_id" cbor:"tool_call_id"`
	Content    string          `json:"content" cbor:"content"`
	Structured json.RawMessage `json:"structured,omitempty" cbor:"structured,omitempty"`
	IsError    bool            `json:"is_error" cbor:"is_error"`
}

// ThinkingData represents model reasoning content.
type ThinkingData struct {
	Text      string `json:"text" cbor:"text"`
	Signature string `json:"signature,omitempty" cbor:"signature,omitempty"`
	Redacted  bool   `json:"redacted" cbor:"redacted"`
}

// ContentPart is a tagged union representing one part of a message.
type ContentPart struct {
	Kind       ContentKind     `json:"kind" cbor:"kind"`
	Text       string          `json:"text,omitempty" cbor:"text,omitempty"`
	Image      *ImageData      `json:"image,omitempty" cbor:"image,omitempty"`
	Document   *DocumentData   `json:"document,omitempty" cbor:"document,omitempty"`
	ToolCall   *ToolCallData   `json:"tool_call,omitempty" cbor:"tool_call,omitempty"`
	ToolResult *ToolResultData `json:"tool_result,omitempty" cbor:"tool_result,omitempty"`
	Thinking   *ThinkingData   `json:"thinking,omitempty" cbor:"thinking,omitempty"`
}

// TextPart creates a text ContentPart.
func TextPart(text string) ContentPart {
	return ContentPart{Kind: ContentText, Text: text}
}

// ImageURLPart creates an image ContentPart from a URL.
func ImageURLPart(url, mediaType string) ContentPart {
	return ContentPart{Kind: ContentImage, Image: &ImageData{URL: url, MediaType: mediaType}}
}

// DocumentPart creates a document ContentPart from raw bytes.
func DocumentPart(data []byte, mediaType, fileName string) ContentPart {
	return ContentPart{
		Kind:     ContentDocument,
		Document: &DocumentData{Data: data, MediaType: mediaType, FileName: fileName},
	}
}

// ToolCallPart creates a tool call ContentPart.
func ToolCallPart(id, name string, args json.RawMessage) ContentPart {
	return ContentPart{
		Kind:     ContentToolCall,
		ToolCall: &ToolCallData{ID: id, Name: name, Arguments: args},
	}
}

// ToolResultPart creates a tool result ContentPart.
func ToolResultPart(toolCallID, content string, isError bool) ContentPart {
	return ContentPart{
		Kind:       ContentToolResult,
		ToolResult: &ToolResultData{ToolCallID: toolCallID, Content: content, IsError: isError},
	}
}

// ThinkingPart creates a thinking ContentPart.
func ThinkingPart(text, signature string) ContentPart {
	return ContentPart{Kind: ContentThinking, Thinking: &ThinkingData{Text: text, Signature: signature}}
}

// RedactedThinkingPart creates an opaque reasoning ContentPart.
func RedactedThinkingPart(data string) ContentPart {
	return ContentPart{Kind: ContentRedactedThinking, Thinking: &ThinkingData{Text: data, Redacted: true}}
}

// CompactionPart carries a summary of history a backend compacted server-side.
func CompactionPart(summary string) ContentPart {
	return ContentPart{Kind: ContentCompaction, Text: summary}
}

// Message is the fundamental unit of conversation.
type Message struct {
	Role    Role          `json:"role" cbor:"role"`
	Content []ContentPart `json:"content" cbor:"content"`
}

// TextContent returns the concatenation of all text content parts.
func (m Message) TextContent() string {
	var sb strings.Builder
	for _, part := range m.Content {
		if part.Kind == ContentText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// ToolCalls extracts all tool call data from the message content.
func (m Message) ToolCalls() []ToolCallData {
	var calls []ToolCallData
	for _, part := range m.Content {
		if part.Kind == ContentToolCall && part.ToolCall != nil {
			calls = append(calls, *part.ToolCall)
		}
	}
	return calls
}

// Compaction returns the server-side compaction summary, if the message has one.
func (m Message) Compaction() (string, bool) {
	for _, part := range m.Content {
		if part.Kind == ContentCompaction {
			return part.Text, true
		}
	}
	return "", false
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []ContentPart{TextPart(text)}}
}

// UserMessage creates a user Message with text content.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentPart{TextPart(text)}}
}

// AssistantMessage creates an assistant Message with text content.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentPart{TextPart(text)}}
}

// ToolResultMessage creates a tool Message holding one result.
func ToolResultMessage(toolCallID, content string, isError bool) Message {
	return Message{Role: RoleTool, Content: []ContentPart{ToolResultPart(toolCallID, content, isError)}}
}

// ToolChoice controls whether and how the model uses tools.
type ToolChoice struct {
	Mode     string `json:"mode"`                // "auto", "none", "required", "named"
	ToolName string `json:"tool_name,omitempty"` // required when mode is "named"
}

// ToolDefinition is the schema a backend advertises to the model.
type ToolDefinition struct {
	Name        string                 `json:"name" cbor:"name"`
	Description string                 `json:"description" cbor:"description"`
	Parameters  map[string]interface{} `json:"parameters" cbor:"parameters"`
}

// ResponseFormat specifies the desired output format.
type ResponseFormat struct {
	Type       string                 `json:"type"` // "text", "json", "json_schema"
	JSONSchema map[string]interface{} `json:"json_schema,omitempty"`
	Strict     bool                   `json:"strict,omitempty"`
}

// StopReason describes why generation stopped.
type StopReason string

const (
	StopEndTurn       StopReason = "end_turn"
	StopToolUse       StopReason = "tool_use"
	StopMaxTokens     StopReason = "max_tokens"
	StopSequence      StopReason = "stop_sequence"
	StopContentFilter StopReason = "content_filter"
	StopCompaction    StopReason = "compaction"
)

// Usage tracks token consumption.
type Usage struct {
	InputTokens      int  `json:"input_tokens" cbor:"input_tokens"`
	OutputTokens     int  `json:"output_tokens" cbor:"output_tokens"`
	TotalTokens      int  `json:"total_tokens" cbor:"total_tokens"`
	ReasoningTokens  *int `json:"reasoning_tokens,omitempty" cbor:"reasoning_tokens,omitempty"`
	CacheReadTokens  *int `json:"cache_read_tokens,omitempty" cbor:"cache_read_tokens,omitempty"`
	CacheWriteTokens *int `json:"cache_write_tokens,omitempty" cbor:"cache_write_tokens,omitempty"`
}

// Add returns a new Usage that is the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	u = u.Normalized()
	other = other.Normalized()
	result := Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
	result.ReasoningTokens = addOptionalInt(u.ReasoningTokens, other.ReasoningTokens)
	result.CacheReadTokens = addOptionalInt(u.CacheReadTokens, other.CacheReadTokens)
	result.CacheWriteTokens = addOptionalInt(u.CacheWriteTokens, other.CacheWriteTokens)
	return result
}

// Normalized fills TotalTokens from input and output when a backend left it unset.
func (u Usage) Normalized() Usage {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return u
}

// IsZero reports whether no tokens were recorded.
func (u Usage) IsZero() bool {
	return u.InputTokens == 0 && u.OutputTokens == 0 && u.TotalTokens == 0 &&
		u.ReasoningTokens == nil && u.CacheReadTokens == nil && u.CacheWriteTokens == nil
}

func addOptionalInt(a, b *int) *int {
	if a == nil && b == nil {
		return nil
	}
	va, vb := 0, 0
	if a != nil {
		va = *a
	}
	if b != nil {
		vb = *b
	}
	sum := va + vb
	return &sum
}

// IntPtr returns a pointer to v. Handy for optional usage and sampling fields.
func IntPtr(v int) *int { return &v }

// FloatPtr returns a pointer to v.
func FloatPtr(v float64) *float64 { return &v }

// Warning represents a non-fatal issue.
type Warning struct {
	Message string `json:"message" cbor:"message"`
	Code    string `json:"code,omitempty" cbor:"code,omitempty"`
}

// Request is the input type for both Complete and Stream.
type Request struct {
	Model           string                 `json:"model" cbor:"model"`
	System          string                 `json:"system,omitempty" cbor:"system,omitempty"`
	Messages        []Message              `json:"messages" cbor:"messages"`
	Provider        string                 `json:"provider,omitempty" cbor:"provider,omitempty"`
	Tools           []ToolDefinition       `json:"tools,omitempty" cbor:"tools,omitempty"`
	ToolChoice      *ToolChoice            `json:"tool_choice,omitempty" cbor:"tool_choice,omitempty"`
	ResponseFormat  *ResponseFormat        `json:"response_format,omitempty" cbor:"response_format,omitempty"`
	Temperature     *float64               `json:"temperature,omitempty" cbor:"temperature,omitempty"`
	TopP            *float64               `json:"top_p,omitempty" cbor:"top_p,omitempty"`
	MaxTokens       *int                   `json:"max_tokens,omitempty" cbor:"max_tokens,omitempty"`
	StopSequences   []string               `json:"stop_sequences,omitempty" cbor:"stop_sequences,omitempty"`
	ReasoningEffort string                 `json:"reasoning_effort,omitempty" cbor:"reasoning_effort,omitempty"`
	Metadata        map[string]string      `json:"metadata,omitempty" cbor:"metadata,omitempty"`
	ProviderOptions map[string]interface{} `json:"provider_options,omitempty" cbor:"provider_options,omitempty"`
}

// Response is the output of Complete.
type Response struct {
	ID            string     `json:"id" cbor:"id"`
	Model         string     `json:"model" cbor:"model"`
	Provider      string     `json:"provider" cbor:"provider"`
	Message       Message    `json:"message" cbor:"message"`
	StopReason    StopReason `json:"stop_reason" cbor:"stop_reason"`
	RawStopReason string     `json:"raw_stop_reason,omitempty" cbor:"raw_stop_reason,omitempty"`
	Usage         Usage      `json:"usage" cbor:"usage"`
	Warnings      []Warning  `json:"warnings,omitempty" cbor:"warnings,omitempty"`
}

// Text returns the concatenated text from all text parts in the response message.
func (r Response) Text() string {
	return r.Message.TextContent()
}

// ToolCalls extracts tool calls from the response message.
func (r Response) ToolCalls() []ToolCallData {
	return r.Message.ToolCalls()
}

// Reasoning returns concatenated reasoning text from thinking parts.
func (r Response) Reasoning() string {
	var sb strings.Builder
	for _, part := range r.Message.Content {
		if part.Kind == ContentThinking && part.Thinking != nil && !part.Thinking.Redacted {
			sb.WriteString(part.Thinking.Text)
		}
	}
	return sb.String()
}

// StreamEventType identifies the kind of stream event.
type StreamEventType string

const (
	StreamStart    StreamEventType = "stream_start"
	TextStart      StreamEventType = "text_start"
	TextDelta      StreamEventType = "text_delta"
	TextEnd        StreamEventType = "text_end"
	ReasoningStart StreamEventType = "reasoning_start"
	ReasoningDelta StreamEventType = "reasoning_delta"
	ReasoningEnd   StreamEventType = "reasoning_end"
	ToolCallStart  StreamEventType = "tool_call_start"
	ToolCallDelta  StreamEventType = "tool_call_delta"
	ToolCallEnd    StreamEventType = "tool_call_end"
	StreamFinish   StreamEventType = "finish"
	StreamError    StreamEventType = "error"
)

// StreamEvent is a single event from a streaming response.
type StreamEvent struct {
	Type           StreamEventType `json:"type"`
	Delta          string          `json:"delta,omitempty"`
	TextID         string          `json:"text_id,omitempty"`
	ReasoningDelta string          `json:"reasoning_delta,omitempty"`
	ToolCall       *ToolCallData   `json:"tool_call,omitempty"`
	StopReason     StopReason      `json:"stop_reason,omitempty"`
	Usage          *Usage          `json:"usage,omitempty"`
	Response       *Response       `json:"response,omitempty"`
	Error          error           `json:"-"`
}
