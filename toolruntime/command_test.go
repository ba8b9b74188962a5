package toolruntime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTool_RunsAndCapturesOutput(t *testing.T) {
	tool := NewCommandTool("", nil)
	res, err := tool.Execute(context.Background(), map[string]any{"command": "echo hello"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Content, "hello")
}

func TestCommandTool_MissingCommandIsAGracefulFailure(t *testing.T) {
	tool := NewCommandTool("", nil)
	res, err := tool.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "command parameter is required")
}

func TestCommandTool_AllowListRejectsDisallowedBaseCommand(t *testing.T) {
	tool := NewCommandTool("", []string{"echo"})
	res, err := tool.Execute(context.Background(), map[string]any{"command": "rm -rf /"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "command not allowed")
}

func TestCommandTool_AllowListPermitsAllowedBaseCommand(t *testing.T) {
	tool := NewCommandTool("", []string{"echo"})
	res, err := tool.Execute(context.Background(), map[string]any{"command": "echo ok"})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestCommandTool_NonZeroExitIsNotASuccess(t *testing.T) {
	tool := NewCommandTool("", nil)
	res, err := tool.Execute(context.Background(), map[string]any{"command": "exit 1"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestExtractBaseCommand(t *testing.T) {
	assert.Equal(t, "ls", extractBaseCommand("ls -la"))
	assert.Equal(t, "ls", extractBaseCommand("ls | grep foo"))
	assert.Equal(t, "", extractBaseCommand(""))
}
