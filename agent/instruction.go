package agent

import (
	"context"
	"strings"

	"github.com/hupe1980/miniclaw/internal/util"
	"github.com/hupe1980/miniclaw/tool"
)

// DefaultSystemPrompt is the template used when no instruction is configured.
const DefaultSystemPrompt = `You are MiniClaw, a helpful assistant that completes tasks by calling tools.

You have access to the following tools:
{{ .ToolList }}

When you need to use a tool, respond with a tool call. Always explain what you're doing before executing commands.

If you cannot complete a task with the available tools, explain why.`

// PromptData is the template data available to instruction templates.
type PromptData struct {
	Tools    []tool.Descriptor
	ToolList string // "- name: description" lines or "No tools available."
}

// NewPromptData builds template data for the given tool set.
func NewPromptData(tools []tool.Descriptor) PromptData {
	return PromptData{Tools: tools, ToolList: ToolList(tools)}
}

// ToolList renders tools as "- name: description" lines.
func ToolList(tools []tool.Descriptor) string {
	if len(tools) == 0 {
		return "No tools available."
	}

	lines := make([]string, len(tools))
	for i, t := range tools {
		lines[i] = "- " + t.Name + ": " + t.Description
	}

	return strings.Join(lines, "\n")
}

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(ctx context.Context, tools []tool.Descriptor) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(ctx context.Context, tools []tool.Descriptor) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx context.Context, tools []tool.Descriptor) (string, error) {
	return f(ctx, tools)
}

// Instruction represents either a template string or a dynamic provider.
// Template text is rendered with PromptData; text without template markers
// is used verbatim.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a (template) string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, tools []tool.Descriptor) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// DefaultInstruction returns the built-in system prompt.
func DefaultInstruction() Instruction { return NewInstructionFromText(DefaultSystemPrompt) }

// IsStatic returns true if the instruction is backed by a string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text for the given tool set.
func (i Instruction) Resolve(ctx context.Context, tools []tool.Descriptor) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ctx, tools)
	}

	return util.RenderTemplate(i.text, NewPromptData(tools))
}
