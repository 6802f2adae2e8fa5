package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Role identifies the author of a Message.
type Role string

const (
	// RoleSystem carries the system instruction that seeds every run.
	RoleSystem Role = "system"
	// RoleUser carries caller supplied input.
	RoleUser Role = "user"
	// RoleAssistant carries model replies (text and/or tool calls).
	RoleAssistant Role = "assistant"
	// RoleTool carries the formatted outcome of one tool call.
	RoleTool Role = "tool"
)

// ToolCall describes a tool invocation request produced by the model.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`        // Opaque id echoed back in the matching tool message
	Name      string          `json:"name"`                // Target tool name
	Arguments json.RawMessage `json:"arguments,omitempty"` // Structured JSON payload (commonly an object)
}

// ArgumentMap decodes the call arguments into a key/value mapping. Empty and
// null payloads decode to an empty map.
func (c ToolCall) ArgumentMap() (map[string]any, error) {
	trimmed := bytes.TrimSpace(c.Arguments)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal(trimmed, &args); err != nil {
		return nil, fmt.Errorf("decode arguments of %s: %w", c.Name, err)
	}

	if args == nil {
		args = map[string]any{}
	}

	return args, nil
}

// Message is a single entry of the conversation history.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // Assistant only
	ToolCallID string     `json:"tool_call_id,omitempty"` // Tool only; matches ToolCall.ID
	Name       string     `json:"name,omitempty"`         // Tool only; name of the executed tool
	IsError    bool       `json:"is_error,omitempty"`     // Tool only; the call failed
}

// SystemMessage builds a system instruction message.
func SystemMessage(text string) Message { return Message{Role: RoleSystem, Content: text} }

// UserMessage builds a user message.
func UserMessage(text string) Message { return Message{Role: RoleUser, Content: text} }

// AssistantMessage builds an assistant message with optional tool calls.
func AssistantMessage(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// ToolMessage builds the history entry answering a tool call.
func ToolMessage(call ToolCall, content string, isError bool) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		Name:       call.Name,
		IsError:    isError,
	}
}

// Clone returns a deep copy so callers can mutate the result freely.
func (m Message) Clone() Message {
	if len(m.ToolCalls) == 0 {
		m.ToolCalls = nil
		return m
	}

	calls := make([]ToolCall, len(m.ToolCalls))
	for i, c := range m.ToolCalls {
		calls[i] = ToolCall{ID: c.ID, Name: c.Name, Arguments: append(json.RawMessage(nil), c.Arguments...)}
	}

	m.ToolCalls = calls

	return m
}

// CloneMessages deep copies a history slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}

	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}

	return out
}
