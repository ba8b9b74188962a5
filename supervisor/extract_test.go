package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_Direct(t *testing.T) {
	raw := `{"goal":"g","deliverables":"d","process":["a"],"explanation":"e"}`
	got, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "g", got["goal"])
}

func TestExtractJSON_FencedWithBraceInString(t *testing.T) {
	content := "```json\n{\"goal\":\"g with } brace\",\"deliverables\":\"d\",\"process\":[\"a\"],\"explanation\":\"e\"}\n``` trailing text"
	got, err := ExtractJSON(content)
	require.NoError(t, err)
	assert.Equal(t, "g with } brace", got["goal"])
	assert.Equal(t, "d", got["deliverables"])
}

func TestExtractJSON_LeadingAndTrailingProse(t *testing.T) {
	content := "Sure, here's the plan:\n{\"goal\":\"g\",\"deliverables\":\"d\",\"process\":[],\"explanation\":\"e\"}\nHope that helps!"
	got, err := ExtractJSON(content)
	require.NoError(t, err)
	assert.Equal(t, "g", got["goal"])
}

func TestExtractJSON_NoObject(t *testing.T) {
	_, err := ExtractJSON("no json here at all")
	assert.Error(t, err)
}

func TestBraceMatch_EscapedQuoteInString(t *testing.T) {
	content := `{"a":"he said \"hi}\""}`
	span, ok := braceMatch(content)
	require.True(t, ok)
	assert.Equal(t, content, span)
}

func TestLowerKeys(t *testing.T) {
	in := map[string]any{"Goal": "g", "NEXT_AGENT": "W1"}
	out := lowerKeys(in)
	assert.Equal(t, "g", out["goal"])
	assert.Equal(t, "W1", out["next_agent"])
}
