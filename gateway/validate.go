package gateway

import (
	"strings"

	"github.com/hupe1980/saathi/internal/util"
)

// Validator inspects model output. It returns the reasons the text is
// unacceptable; nil or empty means valid.
type Validator interface {
	Validate(text string) []string
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(text string) []string

// Validate calls f.
func (f ValidatorFunc) Validate(text string) []string { return f(text) }

// NonEmpty rejects blank output.
var NonEmpty = ValidatorFunc(func(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{"empty output"}
	}
	return nil
})

// Schema requires the output to be a JSON document matching a JSON schema.
type Schema struct {
	schema *util.Schema
}

// CompileSchema compiles a JSON schema document.
func CompileSchema(raw []byte) (*Schema, error) {
	s, err := util.CompileSchema(raw)
	if err != nil {
		return nil, err
	}
	return &Schema{schema: s}, nil
}

// MustCompileSchema is CompileSchema for package level schemas.
func MustCompileSchema(raw string) *Schema {
	return &Schema{schema: util.MustCompileSchema(raw)}
}

// Validate implements Validator.
func (s *Schema) Validate(text string) []string {
	if err := s.schema.ValidateJSON(text); err != nil {
		return []string{err.Error()}
	}
	return nil
}

func validate(text string, req Request) []string {
	var reasons []string
	if req.Schema != nil {
		reasons = append(reasons, req.Schema.Validate(text)...)
	}
	for _, v := range req.Validators {
		reasons = append(reasons, v.Validate(text)...)
	}
	return reasons
}
