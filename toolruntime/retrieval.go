package toolruntime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SearchKnowledgeBaseTool is the retrieval tool name every bound agent
// sees as search_knowledge_base (original_source/src/tools/rag_tools.go's
// get_rag_tool).
const SearchKnowledgeBaseTool = "search_knowledge_base"

// RetrievalDirective is the fixed system-prompt addendum appended whenever
// an agent has a retrieval tool bound (§4.B.1, GLOSSARY "Retrieval
// directive"): it must consult the knowledge base before answering
// domain-specific questions and must not fabricate.
const RetrievalDirective = `You have access to the search_knowledge_base tool. You do not know the contents of the user's private knowledge base by default. If asked about a specific document, identifier, or domain-specific fact, you must call search_knowledge_base first to gather information. Never guess. Form a precise search query, call the tool, then answer using the real information it returns.`

// Document is one retrieved chunk.
type Document struct {
	Source  string
	Content string
	Score   float64
}

// KnowledgeSource is the per-agent backing store a RetrievalTool searches.
// Implementations live outside this package (vector store, full-text index,
// ...); the tool runtime only needs Query.
type KnowledgeSource interface {
	Query(ctx context.Context, query string, topK int) ([]Document, error)
}

// RetrievalTool adapts a KnowledgeSource to the Tool interface, bound to a
// single agent at construction time (§4.B: "the retrieval tool is bound
// per-agent, never shared").
type RetrievalTool struct {
	source KnowledgeSource
	topK   int
}

// NewRetrievalTool constructs a RetrievalTool over source. topK defaults to
// 3, matching the teacher's rag_tools.py.
func NewRetrievalTool(source KnowledgeSource, topK int) *RetrievalTool {
	if topK <= 0 {
		topK = 3
	}
	return &RetrievalTool{source: source, topK: topK}
}

func (t *RetrievalTool) GetName() string { return SearchKnowledgeBaseTool }

func (t *RetrievalTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        SearchKnowledgeBaseTool,
		Description: "Search the agent's local knowledge base for relevant context before answering questions about specific documents, IDs, or domain facts you are not certain of.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"search_query": map[string]any{
					"type":        "string",
					"description": "The concise, search-optimized question or keyword phrase to look up.",
				},
			},
			"required": []string{"search_query"},
		},
	}
}

func (t *RetrievalTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	query, _ := args["search_query"].(string)
	if strings.TrimSpace(query) == "" {
		raw, _ := json.Marshal(args)
		return ToolResult{Success: false, ToolName: t.GetName(), Error: fmt.Sprintf("search_query is required, got %s", raw)}, nil
	}

	docs, err := t.source.Query(ctx, query, t.topK)
	if err != nil {
		return ToolResult{Success: false, ToolName: t.GetName(), Error: err.Error()}, nil
	}
	if len(docs) == 0 {
		return ToolResult{Success: true, ToolName: t.GetName(), Content: "No relevant information found in the knowledge base."}, nil
	}

	var b strings.Builder
	b.WriteString("Retrieved context:\n\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "### source: %s (score: %.2f)\n%s\n\n", d.Source, d.Score, Truncate800(d.Content))
	}
	return ToolResult{Success: true, ToolName: t.GetName(), Content: b.String()}, nil
}

// Truncate800 caps a retrieved chunk at 800 characters, matching the
// teacher's per-document content[:800] slice.
func Truncate800(s string) string {
	const limit = 800
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
