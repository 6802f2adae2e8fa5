package agent

import (
	"time"

	"github.com/hupe1980/miniclaw/core"
	"github.com/hupe1980/miniclaw/tool"
)

// StopReason classifies why a run ended.
type StopReason string

const (
	// StopComplete means the model answered without requesting tools.
	StopComplete StopReason = "COMPLETE"
	// StopMaxTurns means the turn budget ran out.
	StopMaxTurns StopReason = "MAX_TURNS"
	// StopConsecutiveErrors means too many tool calls failed in a row.
	StopConsecutiveErrors StopReason = "CONSECUTIVE_ERRORS"
	// StopRepeatedCall means the model kept issuing an identical tool call.
	StopRepeatedCall StopReason = "REPEATED_CALL"
)

func (s StopReason) String() string { return string(s) }

// ToolCallRecord pairs an executed tool call with its outcome.
type ToolCallRecord struct {
	Turn     int           `json:"turn"`
	Call     core.ToolCall `json:"call"`
	Result   tool.Result   `json:"result"`
	Duration time.Duration `json:"duration"`
}

// Result is the terminal artifact of a run.
type Result struct {
	Response   string           `json:"response"`
	StopReason StopReason       `json:"stop_reason"`
	Turns      int              `json:"turns"`
	ToolCalls  []ToolCallRecord `json:"tool_calls"`
	// Messages is the full conversation of the run, system prompt first.
	// Callers may persist it and feed it back through WithHistory.
	Messages  []core.Message `json:"messages,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	RunID     string         `json:"run_id"`
}

// Partial reports whether the run was halted by policy rather than completed.
func (r *Result) Partial() bool { return r.StopReason != StopComplete }
