package util

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a value rejected by a schema.
type ValidationError struct {
	Field   string `json:"field"`   // JSON pointer of the offending value, "" for the root
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Schema is a compiled JSON schema.
type Schema struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles a JSON schema document.
func CompileSchema(raw []byte) (*Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	s, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// MustCompileSchema is CompileSchema for package level schemas.
func MustCompileSchema(raw string) *Schema {
	s, err := CompileSchema([]byte(raw))
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks an arbitrary Go value. The value is normalized through
// JSON first so Go ints, structs and typed slices validate like their JSON
// form.
func (s *Schema) Validate(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("value is not JSON encodable: %v", err)}
	}
	return s.ValidateJSON(string(raw))
}

// ValidateJSON checks a JSON document. Markdown code fences around it are
// tolerated since models like to add them.
func (s *Schema) ValidateJSON(text string) error {
	body := strings.TrimSpace(text)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")

	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(body))
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("not JSON: %v", err)}
	}
	if err := s.schema.Validate(inst); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			for len(verr.Causes) > 0 {
				verr = verr.Causes[0]
			}
			return &ValidationError{Field: "/" + strings.Join(verr.InstanceLocation, "/"), Message: verr.Error()}
		}
		return &ValidationError{Message: err.Error()}
	}
	return nil
}
