package inference

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var bboxSchema = map[string]any{
	"type":     "array",
	"items":    map[string]any{"type": "number"},
	"minItems": 4,
	"maxItems": 4,
}

func recognizeSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]any{"type": "string"},
			"results": map[string]any{
				"type": "object",
				"additionalProperties": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"microClass": map[string]any{"type": "string", "minLength": 1},
						"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
						"bbox":       bboxSchema,
					},
					"required": []string{"microClass", "confidence"},
				},
			},
		},
		"required": []string{"results"},
	}
}

func cutSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]any{"type": "string"},
			"results": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string", "minLength": 1},
			},
			"size":    map[string]any{"type": "integer", "minimum": 0},
			"message": map[string]any{"type": []string{"string", "null"}},
		},
		"required": []string{"results"},
	}
}

func enrichSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"marking": map[string]any{"type": []string{"string", "null"}},
		},
	}
}

// compileSchema compiles a schema given as a generic map.
func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// decodeValidated checks data against schema before decoding it into out.
func decodeValidated(schema *jsonschema.Schema, data []byte, out any) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
