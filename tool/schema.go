package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ValidateInput performs structural validation of raw against a JSON Schema
// object: the input must be an object when the schema says so, required
// fields must be present, declared property types must match, and unknown
// fields are rejected when additionalProperties is false. Anything richer
// (formats, ranges, nested schemas) is left to the tool.
func ValidateInput(schema map[string]interface{}, raw json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage(`{}`)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var input interface{}
	if err := dec.Decode(&input); err != nil {
		return fmt.Errorf("input is not valid JSON: %v", err)
	}

	obj, isObject := input.(map[string]interface{})
	if ty, _ := schema["type"].(string); ty == "object" && !isObject {
		return fmt.Errorf("expected object input, got %s", jsonTypeName(input))
	}
	if !isObject {
		return nil
	}

	for _, field := range requiredFields(schema["required"]) {
		if _, ok := obj[field]; !ok {
			return fmt.Errorf("missing required field: %s", field)
		}
	}

	properties, hasProperties := schema["properties"].(map[string]interface{})
	additional, _ := schema["additionalProperties"].(bool)
	_, additionalSet := schema["additionalProperties"].(bool)

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		prop, declared := properties[key]
		if !declared {
			if hasProperties && additionalSet && !additional {
				return fmt.Errorf("unknown field: %s", key)
			}
			continue
		}
		propSchema, _ := prop.(map[string]interface{})
		expected, _ := propSchema["type"].(string)
		if expected == "" {
			continue
		}
		if !jsonTypeMatches(obj[key], expected) {
			return fmt.Errorf("field '%s' expected type '%s', got %s", key, expected, jsonTypeName(obj[key]))
		}
	}
	return nil
}

func requiredFields(raw interface{}) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func jsonTypeMatches(value interface{}, expected string) bool {
	switch expected {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(json.Number)
		return ok
	case "integer":
		n, ok := value.(json.Number)
		if !ok {
			return false
		}
		return !strings.ContainsAny(n.String(), ".eE")
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}

func jsonTypeName(value interface{}) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
