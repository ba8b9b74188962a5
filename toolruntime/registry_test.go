package toolruntime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterGetResolveList(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool{}))

	tool, ok := r.Get("echo")
	assert.True(t, ok)
	assert.Equal(t, "echo", tool.GetName())

	resolved := r.Resolve([]string{"echo", "does_not_exist"})
	assert.Len(t, resolved, 1)

	assert.Equal(t, []string{"echo"}, r.List())
}

func TestRegistry_RegisterRejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	err := r.Register(namedTool{name: ""})
	assert.Error(t, err)
}

func TestRegistry_SealBlocksFurtherRegistration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool{}))
	r.Seal()

	err := r.Register(namedTool{name: "late"})
	assert.Error(t, err)

	_, ok := r.Get("echo")
	assert.True(t, ok)
}

func TestRegistry_ResolveSkipsUnknownNamesSilently(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool{}))
	r.Seal()

	resolved := r.Resolve([]string{"ghost"})
	assert.Empty(t, resolved)
}

type namedTool struct{ name string }

func (n namedTool) GetName() string   { return n.name }
func (n namedTool) GetInfo() ToolInfo { return ToolInfo{Name: n.name} }
func (n namedTool) Execute(_ context.Context, _ map[string]any) (ToolResult, error) {
	return ToolResult{}, nil
}
