// Package tool implements the tool calling subsystem that lets the turn loop
// invoke structured capabilities (APIs, computations, side-effects) with
// schema validated arguments, consistent error handling and metadata for LLM
// guidance.
package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/miniclaw/internal/util"
)

// Error codes attached to ToolError.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeExecution        = "EXECUTION_ERROR"
	CodeUnknownTool      = "UNKNOWN_TOOL"
	CodeInvalidArguments = "INVALID_ARGUMENTS"
	CodePanic            = "PANIC"
)

var (
	// ErrUnknownTool marks dispatches to a name that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments marks argument payloads that are not a JSON object.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Tool defines the interface for extending the agent with external capabilities.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Validate their own arguments
//   - Honor ctx cancellation for long running work
//   - Be safe for concurrent use when parallel tool execution is enabled
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool. A returned error is treated as a failed Result.
	Call(ctx context.Context, args map[string]any) (Result, error)
}

// Descriptor is the model-facing description of a registered tool.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Describe builds the Descriptor of t.
func Describe(t Tool) Descriptor {
	return Descriptor{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes wrapped sentinel errors carried in Details.
func (e *ToolError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
