package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// NewTyped builds a tool from a function taking a typed input. The input
// schema is reflected from In; struct fields without omitempty are
// required and unknown fields are rejected. Input that does not decode into
// In is returned to the model as a retry hint.
func NewTyped[In any](name, description string, fn func(ctx context.Context, in In, tc *ToolContext) (*Output, error)) *Func {
	return &Func{
		Def: Definition{
			Name:        name,
			Description: description,
			InputSchema: SchemaFor[In](),
		},
		Fn: func(ctx context.Context, input json.RawMessage, tc *ToolContext) (*Output, error) {
			var in In
			if len(input) > 0 {
				if err := json.Unmarshal(input, &in); err != nil {
					return nil, ModelRetry(name, fmt.Sprintf("input does not match the %s schema: %v", name, err))
				}
			}
			return fn(ctx, in, tc)
		},
	}
}

// SchemaFor reflects a JSON Schema object for T.
func SchemaFor[T any]() map[string]interface{} {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	var zero T
	schema := r.Reflect(&zero)

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}
