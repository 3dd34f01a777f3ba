package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/hupe1980/saathi/internal/util"
)

// Handler implements one tool operation.
type Handler func(ctx context.Context, args map[string]any) (any, error)

type operation struct {
	schema *util.Schema
	fn     Handler
}

// FunctionTool is a generic adapter that exposes plain Go functions as the
// operations of one tool.
//
// Responsibilities:
//   - Holds an optional JSON schema per operation
//   - Normalizes arguments to their JSON shape and validates them against that
//     schema before execution
//   - Normalizes error handling so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR   -> schema / argument mismatch
//     EXECUTION_ERROR    -> underlying function returned an error (non-ToolError)
//     UNKNOWN_OPERATION  -> op was never registered
//     (custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool is safe for concurrent use.
type FunctionTool struct {
	name        string
	description string

	mu  sync.RWMutex
	ops map[string]operation
}

var _ Tool = (*FunctionTool)(nil)

// NewFunctionTool constructs an empty FunctionTool. Add operations with Handle.
func NewFunctionTool(name, description string) *FunctionTool {
	return &FunctionTool{name: name, description: description, ops: map[string]operation{}}
}

// Handle registers fn for op. schema may be empty to skip validation; a
// malformed schema panics since operations are declared at wiring time.
func (t *FunctionTool) Handle(op, schema string, fn Handler) *FunctionTool {
	var compiled *util.Schema
	if schema != "" {
		compiled = util.MustCompileSchema(schema)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops[op] = operation{schema: compiled, fn: fn}
	return t
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description.
func (t *FunctionTool) Description() string { return t.description }

// Operations lists the registered operation names in sorted order.
func (t *FunctionTool) Operations() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Sorted(maps.Keys(t.ops))
}

// Call validates args then invokes the operation's handler.
func (t *FunctionTool) Call(ctx context.Context, op string, args map[string]any) (any, error) {
	t.mu.RLock()
	o, ok := t.ops[op]
	t.mu.RUnlock()
	if !ok {
		return nil, NewToolError(t.name, op, fmt.Sprintf("unknown operation %q", op), CodeUnknownOperation)
	}

	args, err := normalize(args)
	if err != nil {
		return nil, &ToolError{Tool: t.name, Op: op, Message: err.Error(), Code: CodeValidation, Err: err}
	}
	if o.schema != nil {
		if err := o.schema.Validate(args); err != nil {
			return nil, &ToolError{
				Tool:    t.name,
				Op:      op,
				Message: fmt.Sprintf("parameter validation failed: %v", err),
				Code:    CodeValidation,
				Err:     err,
			}
		}
	}

	result, err := o.fn(ctx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			return nil, toolErr
		}
		return nil, &ToolError{Tool: t.name, Op: op, Message: err.Error(), Code: CodeExecution, Err: err}
	}

	return result, nil
}

// normalize gives handlers the JSON shape of args: numbers become float64 and
// nested values become maps and slices of any.
func normalize(args map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if len(args) == 0 {
		return out, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("arguments are not JSON encodable: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
