package testutil

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/miniclaw/core"
	"github.com/hupe1980/miniclaw/model"
)

// Call builds a tool call with JSON arguments given as text.
func Call(id, name, args string) core.ToolCall {
	return core.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

// TextReply builds a reply carrying only text.
func TextReply(text string) model.Reply {
	return model.Reply{Text: text, FinishReason: "stop"}
}

// ToolReply builds a reply requesting the given tool calls.
func ToolReply(calls ...core.ToolCall) model.Reply {
	return model.Reply{ToolCalls: calls, FinishReason: "tool_calls"}
}

// UniqueCalls returns a MockModel fallback that requests name with a fresh
// argument payload ({"n": k}) on every turn, so repetition never triggers.
func UniqueCalls(name string) func(model.Request) (model.Reply, error) {
	var n atomic.Int64

	return func(model.Request) (model.Reply, error) {
		k := n.Add(1)
		return ToolReply(Call(fmt.Sprintf("call-%d", k), name, fmt.Sprintf(`{"n":%d}`, k))), nil
	}
}

// SameCall returns a MockModel fallback that requests the identical call on
// every turn.
func SameCall(name, args string) func(model.Request) (model.Reply, error) {
	var n atomic.Int64

	return func(model.Request) (model.Reply, error) {
		k := n.Add(1)
		return ToolReply(Call(fmt.Sprintf("call-%d", k), name, args)), nil
	}
}
