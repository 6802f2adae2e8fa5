package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/miniclaw/core"
)

// ErrNoReply is returned by MockModel when its script is exhausted and no
// fallback is configured.
var ErrNoReply = errors.New("mock model: no scripted reply left")

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// NewFunctionDefinition builds a "function" typed ToolDefinition.
func NewFunctionDefinition(name, description string, parameters map[string]any) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// Settings carries model selection parameters. The loop passes them through
// untouched; zero values mean "use the adapter default".
type Settings struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int64    `json:"max_tokens,omitempty"`
}

// Request captures the full conversation plus the tool set for one round trip.
type Request struct {
	Messages []core.Message   `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
	Settings Settings         `json:"settings"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Reply is the assistant answer to a Request. A reply carries text, tool
// calls, or (rarely) neither.
type Reply struct {
	ID           string          `json:"id,omitempty"`
	Text         string          `json:"text,omitempty"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage     `json:"usage,omitempty"`
}

// HasToolCalls reports whether the model asked for at least one tool call.
func (r Reply) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// Message converts the reply into its assistant history entry.
func (r Reply) Message() core.Message {
	return core.AssistantMessage(r.Text, r.ToolCalls...)
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "groq", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the turn loop.
type Model interface {
	// Complete performs a single request/response round trip.
	Complete(ctx context.Context, req Request) (Reply, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a scripted in-memory Model useful for tests & examples.
// Replies are consumed in order; once the script is exhausted the fallback
// (if any) answers every further request.
type MockModel struct {
	mu       sync.Mutex
	info     Info
	script   []mockStep
	fallback func(req Request) (Reply, error)
	requests []Request
}

type mockStep struct {
	reply Reply
	err   error
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
	}
}

// AddReply appends scripted replies.
func (m *MockModel) AddReply(replies ...Reply) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range replies {
		m.script = append(m.script, mockStep{reply: r})
	}

	return m
}

// AddError appends a scripted failure.
func (m *MockModel) AddError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.script = append(m.script, mockStep{err: err})

	return m
}

// SetFallback installs a generator used after the script runs out.
func (m *MockModel) SetFallback(fn func(req Request) (Reply, error)) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fallback = fn

	return m
}

// Requests returns a copy of every request received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)

	return out
}

// Calls returns the number of Complete invocations.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, req Request) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	req.Messages = core.CloneMessages(req.Messages)
	m.requests = append(m.requests, req)

	if len(m.script) > 0 {
		step := m.script[0]
		m.script = m.script[1:]

		return step.reply, step.err
	}

	if m.fallback != nil {
		return m.fallback(req)
	}

	return Reply{}, fmt.Errorf("%w (request %d)", ErrNoReply, len(m.requests))
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
