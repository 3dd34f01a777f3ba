// Package tool implements the external capabilities agents call besides the
// reasoning gateway: scheduling, geo and media lookups, file persistence and
// social posting. Every capability is exposed through the same
// call(operation, args) shape and every failure is recoverable: Invoke turns
// errors and timeouts into a degraded Result instead of an error.
package tool

import (
	"context"
	"errors"
	"fmt"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Reject unknown operations with CodeUnknownOperation
//   - Honor ctx cancellation; Invoke bounds every call with a timeout
//   - Be thread-safe if used concurrently
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	Description() string

	// Call executes one operation with structured arguments.
	Call(ctx context.Context, op string, args map[string]any) (any, error)
}

// Error codes carried by ToolError.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeExecution        = "EXECUTION_ERROR"
	CodeUnknownOperation = "UNKNOWN_OPERATION"
	CodeUnavailable      = "UNAVAILABLE"
	CodeTimeout          = "TIMEOUT"
)

// ErrToolUnavailable is returned when a tool is not configured.
var ErrToolUnavailable = errors.New("tool unavailable")

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Op      string `json:"op,omitempty"`      // Operation that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Err     error  `json:"-"`                 // Underlying cause, if any
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	name := e.Tool
	if e.Op != "" {
		name += "." + e.Op
	}
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, name, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", name, e.Message)
}

func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, op, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Op:      op,
		Message: message,
		Code:    code,
	}
}
