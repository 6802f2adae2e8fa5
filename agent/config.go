package agent

import (
	"errors"
	"fmt"

	"github.com/hupe1980/miniclaw/model"
)

var (
	// ErrInvalidConfig is returned when a Config violates its bounds.
	ErrInvalidConfig = errors.New("invalid agent config")
	// ErrModel wraps every model fault that ends a run.
	ErrModel = errors.New("model request failed")
)

// Config is the immutable per-run policy of a Loop.
type Config struct {
	// MaxTurns bounds the number of model round trips.
	MaxTurns int `json:"max_turns" mapstructure:"max_turns"`
	// MaxConsecutiveErrors halts the run after this many failed tool calls in a row.
	MaxConsecutiveErrors int `json:"max_consecutive_errors" mapstructure:"max_consecutive_errors"`
	// MaxRepeatedCalls halts the run when one (name, arguments) pair has been
	// requested this many times.
	MaxRepeatedCalls int `json:"max_repeated_calls" mapstructure:"max_repeated_calls"`
	// MaxParallelTools > 1 executes the tool calls of one turn concurrently.
	MaxParallelTools int `json:"max_parallel_tools" mapstructure:"max_parallel_tools"`
	// Model is passed opaquely to the model client.
	Model model.Settings `json:"model" mapstructure:"-"`
}

// DefaultConfig holds the limits used when none are configured.
var DefaultConfig = Config{
	MaxTurns:             10,
	MaxConsecutiveErrors: 3,
	MaxRepeatedCalls:     3,
	MaxParallelTools:     1,
}

// Validate checks that every limit is at least 1.
func (c Config) Validate() error {
	switch {
	case c.MaxTurns < 1:
		return fmt.Errorf("%w: max_turns must be >= 1, got %d", ErrInvalidConfig, c.MaxTurns)
	case c.MaxConsecutiveErrors < 1:
		return fmt.Errorf("%w: max_consecutive_errors must be >= 1, got %d", ErrInvalidConfig, c.MaxConsecutiveErrors)
	case c.MaxRepeatedCalls < 1:
		return fmt.Errorf("%w: max_repeated_calls must be >= 1, got %d", ErrInvalidConfig, c.MaxRepeatedCalls)
	case c.MaxParallelTools < 0:
		return fmt.Errorf("%w: max_parallel_tools must be >= 0, got %d", ErrInvalidConfig, c.MaxParallelTools)
	}

	return nil
}
