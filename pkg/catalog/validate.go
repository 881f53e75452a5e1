package catalog

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/genui-go/genui/pkg/protocol"
)

// ValidationResult reports whether a tool input conforms to its schema.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateInput checks a tool input map against the tool's input schema.
// Schema compilation failures are returned as an error (the schema itself is
// broken); instance violations come back in the result.
func ValidateInput(schema protocol.ToolSchema, input map[string]any) (ValidationResult, error) {
	if schema.InputSchema == nil {
		return ValidationResult{Valid: true}, nil
	}

	compiler := jsonschema.NewCompiler()
	resource := fmt.Sprintf("genui://tool/%s", schema.Name)
	if err := compiler.AddResource(resource, normalizeSchema(schema.InputSchema)); err != nil {
		return ValidationResult{}, fmt.Errorf("tool %q: invalid input schema: %w", schema.Name, err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("tool %q: schema does not compile: %w", schema.Name, err)
	}

	if err := compiled.Validate(normalizeInstance(input)); err != nil {
		result := ValidationResult{Valid: false}
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			for _, cause := range flattenCauses(ve) {
				result.Errors = append(result.Errors, cause.Error())
			}
		} else {
			result.Errors = append(result.Errors, err.Error())
		}
		return result, nil
	}

	return ValidationResult{Valid: true}, nil
}

func flattenCauses(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var leaves []*jsonschema.ValidationError
	for _, cause := range ve.Causes {
		leaves = append(leaves, flattenCauses(cause)...)
	}
	return leaves
}

// normalizeSchema rewrites Go-typed values into the shapes the compiler
// expects from decoded JSON (string slices become []any, ints become
// float64).
func normalizeSchema(v map[string]any) map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = normalizeValue(val)
	}
	return out
}

func normalizeInstance(v map[string]any) map[string]any {
	return normalizeSchema(v)
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return normalizeSchema(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, m := range val {
			out[i] = normalizeSchema(m)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return v
	}
}
