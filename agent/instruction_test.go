package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/miniclaw/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(context.Context, []tool.Descriptor) (string, error) {
	return m.text, m.err
}

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	assert.True(t, inst.IsStatic())

	text, err := inst.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "static instruction", text)
}

func TestInstruction_Template(t *testing.T) {
	inst := NewInstructionFromText("Tools: {{ len .Tools }}\n{{ .ToolList }}")
	text, err := inst.Resolve(context.Background(), []tool.Descriptor{{Name: "ls", Description: "List files"}})
	require.NoError(t, err)
	assert.Equal(t, "Tools: 1\n- ls: List files", text)

	_, err = NewInstructionFromText("{{ .Broken").Resolve(context.Background(), nil)
	assert.Error(t, err)
}

func TestInstruction_Provider(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{text: "dynamic"})
	assert.False(t, inst.IsStatic())

	text, err := inst.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "dynamic", text)

	boom := errors.New("boom")
	_, err = NewInstructionFromProvider(mockProvider{err: boom}).Resolve(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestInstruction_Func(t *testing.T) {
	inst := NewInstructionFromFunc(func(_ context.Context, tools []tool.Descriptor) (string, error) {
		return ToolList(tools), nil
	})

	text, err := inst.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "No tools available.", text)
}

func TestDefaultInstruction(t *testing.T) {
	text, err := DefaultInstruction().Resolve(context.Background(), []tool.Descriptor{
		{Name: "shell", Description: "Run a command"},
		{Name: "read_file", Description: "Read a file"},
	})
	require.NoError(t, err)
	assert.Contains(t, text, "- shell: Run a command\n- read_file: Read a file")

	text, err = DefaultInstruction().Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, text, "No tools available.")
}
