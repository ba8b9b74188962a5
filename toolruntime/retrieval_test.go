package toolruntime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKnowledgeSource struct {
	docs []Document
	err  error
}

func (f *fakeKnowledgeSource) Query(ctx context.Context, query string, topK int) ([]Document, error) {
	return f.docs, f.err
}

func TestRetrievalTool_MissingQueryIsAGracefulFailure(t *testing.T) {
	tool := NewRetrievalTool(&fakeKnowledgeSource{}, 3)
	res, err := tool.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "search_query is required")
}

func TestRetrievalTool_NoResults(t *testing.T) {
	tool := NewRetrievalTool(&fakeKnowledgeSource{}, 3)
	res, err := tool.Execute(context.Background(), map[string]any{"search_query": "anything"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Content, "No relevant information found")
}

func TestRetrievalTool_FormatsDocuments(t *testing.T) {
	source := &fakeKnowledgeSource{docs: []Document{{Source: "doc1.txt", Content: "relevant content", Score: 0.9}}}
	tool := NewRetrievalTool(source, 3)
	res, err := tool.Execute(context.Background(), map[string]any{"search_query": "relevant"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Content, "doc1.txt")
	assert.Contains(t, res.Content, "relevant content")
}

func TestRetrievalTool_SourceErrorIsGraceful(t *testing.T) {
	tool := NewRetrievalTool(&fakeKnowledgeSource{err: assertErr("index unavailable")}, 3)
	res, err := tool.Execute(context.Background(), map[string]any{"search_query": "x"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "index unavailable", res.Error)
}

func TestTruncate800(t *testing.T) {
	long := make([]byte, 900)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, Truncate800(string(long)), 800)
	assert.Equal(t, "short", Truncate800("short"))
}
