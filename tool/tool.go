package tool

import (
	"context"
	"encoding/json"

	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// Annotations are optional hints about a tool's behavior.
type Annotations struct {
	ReadOnly    bool `json:"read_only,omitempty" yaml:"read_only,omitempty"`
	Destructive bool `json:"destructive,omitempty" yaml:"destructive,omitempty"`
	Idempotent  bool `json:"idempotent,omitempty" yaml:"idempotent,omitempty"`
	OpenWorld   bool `json:"open_world,omitempty" yaml:"open_world,omitempty"`
}

// Definition describes a tool to the model.
type Definition struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	InputSchema  map[string]interface{} `json:"input_schema"`
	OutputSchema map[string]interface{} `json:"output_schema,omitempty"`
	Annotations  *Annotations           `json:"annotations,omitempty"`
}

// LLM converts the definition to the schema advertised in a model request.
func (d Definition) LLM() unifiedllm.ToolDefinition {
	schema := d.InputSchema
	if schema == nil {
		schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return unifiedllm.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: schema}
}

// Output is what a tool returns on success. IsError marks a result the tool
// itself considers a failure but still wants the model to see.
type Output struct {
	Content    string            `json:"content" cbor:"content"`
	Structured json.RawMessage   `json:"structured,omitempty" cbor:"structured,omitempty"`
	IsError    bool              `json:"is_error,omitempty" cbor:"is_error,omitempty"`
	Usage      *unifiedllm.Usage `json:"usage,omitempty" cbor:"usage,omitempty"`
}

// Text returns a successful text Output.
func Text(content string) *Output {
	return &Output{Content: content}
}

// ErrorText returns an Output flagged as an error.
func ErrorText(content string) *Output {
	return &Output{Content: content, IsError: true}
}

// JSON returns an Output whose content is v rendered as JSON, also kept as
// structured data.
func JSON(v interface{}) (*Output, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Output{Content: string(data), Structured: data}, nil
}

// Call is one tool invocation flowing through the middleware pipeline.
type Call struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// CallFrom converts a model tool call into a pipeline Call.
func CallFrom(tc unifiedllm.ToolCallData) Call {
	input := tc.Arguments
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	return Call{ID: tc.ID, Name: tc.Name, Input: input}
}

// Tool is a named capability the model can invoke. Implementations may be
// in-process functions or bridges to remote protocols.
type Tool interface {
	Definition() Definition
	Call(ctx context.Context, input json.RawMessage, tc *ToolContext) (*Output, error)
}

// Func adapts a plain function into a Tool.
type Func struct {
	Def Definition
	Fn  func(ctx context.Context, input json.RawMessage, tc *ToolContext) (*Output, error)
}

// Definition implements Tool.
func (f *Func) Definition() Definition { return f.Def }

// Call implements Tool.
func (f *Func) Call(ctx context.Context, input json.RawMessage, tc *ToolContext) (*Output, error) {
	return f.Fn(ctx, input, tc)
}

// NewFunc builds a Func tool.
func NewFunc(name, description string, schema map[string]interface{}, fn func(ctx context.Context, input json.RawMessage, tc *ToolContext) (*Output, error)) *Func {
	return &Func{
		Def: Definition{Name: name, Description: description, InputSchema: schema},
		Fn:  fn,
	}
}
