package tool

import "fmt"

// Result is the outcome of one tool execution.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Success builds a successful Result.
func Success(output string) Result { return Result{Success: true, Output: output} }

// Failure builds a failed Result.
func Failure(msg string) Result { return Result{Success: false, Error: msg} }

// Failuref builds a failed Result from a format string.
func Failuref(format string, args ...any) Result { return Failure(fmt.Sprintf(format, args...)) }

// Format renders a result the way the model sees it in the conversation:
// "[name] Success:\n<output>" or "[name] Error: <error>".
func Format(name string, r Result) string {
	if r.Success {
		return fmt.Sprintf("[%s] Success:\n%s", name, r.Output)
	}
	return fmt.Sprintf("[%s] Error: %s", name, r.Error)
}
