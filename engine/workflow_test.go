package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshcrew/groupchat/config"
	"github.com/meshcrew/groupchat/groupchat"
	"github.com/meshcrew/groupchat/providers"
	"github.com/meshcrew/groupchat/toolruntime"
)

// scriptedOllamaServer replays, per model name, a fixed sequence of chat
// replies against Ollama's /api/chat shape, so ExecuteWorkflow can be
// exercised end to end without a real provider.
type scriptedOllamaServer struct {
	mu      sync.Mutex
	replies map[string][]string
	calls   map[string]int
}

func newScriptedOllamaServer(replies map[string][]string) *httptest.Server {
	s := &scriptedOllamaServer{replies: replies, calls: map[string]int{}}
	return httptest.NewServer(http.HandlerFunc(s.handle))
}

func (s *scriptedOllamaServer) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	i := s.calls[req.Model]
	s.calls[req.Model]++
	s.mu.Unlock()

	replies := s.replies[req.Model]
	text := "no more scripted replies"
	if i < len(replies) {
		text = replies[i]
	}

	resp := map[string]any{
		"message": map[string]any{"role": "assistant", "content": text},
		"done":    true,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func newWorkflowEngine(t *testing.T, host string) *Engine {
	t.Helper()
	providerCfgs := config.ProviderConfigs{LLMs: map[string]config.LLMProviderConfig{
		"executor-model": {Type: "ollama", Model: "executor-model", Host: host, MaxTokens: 512, Timeout: 5},
		"reviewer-model": {Type: "ollama", Model: "reviewer-model", Host: host, MaxTokens: 512, Timeout: 5},
	}}
	registry := providers.NewRegistry(providerCfgs)
	tools := toolruntime.NewRegistry()
	tools.Seal()

	executor := groupchat.AgentConfig{AgentID: "E", Name: "Executor", ProviderID: "executor-model"}
	reviewer := groupchat.AgentConfig{AgentID: "R", Name: "Reviewer", ProviderID: "reviewer-model"}
	group := groupchat.GroupConfig{SupervisorID: "S", MemberIDs: []string{"S", "E", "R"}}
	agents := map[string]groupchat.AgentConfig{
		"S": {AgentID: "S", Name: "Supervisor"},
		"E": executor,
		"R": reviewer,
	}

	eng, err := New(group, agents, registry, tools, nil)
	require.NoError(t, err)
	return eng
}

func TestExecuteWorkflow_ZeroStepsReturnsImmediately(t *testing.T) {
	eng := newWorkflowEngine(t, "http://unused.invalid")
	result, err := eng.ExecuteWorkflow(context.Background(), groupchat.Workflow{PlanName: "empty"}, "do it", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Steps)
}

func TestExecuteWorkflow_RevisionLoopConverges(t *testing.T) {
	// §8 scenario 3: executor produces v1, reviewer rejects with feedback,
	// executor produces v2, reviewer approves.
	server := newScriptedOllamaServer(map[string][]string{
		"executor-model": {"v1", "v2"},
		"reviewer-model": {"REJECTED: add detail", "APPROVED"},
	})
	defer server.Close()

	eng := newWorkflowEngine(t, server.URL)
	plan := groupchat.Workflow{Steps: []groupchat.Step{{
		StepNumber: 1, StepName: "draft",
		ExecutorAgent: "Executor", ExecutorPrompt: "write about {user_input}",
		ReviewerAgent: "Reviewer", ReviewerPrompt: "review: {step_result}",
		MaxRevisionRounds: 3,
	}}}

	result, err := eng.ExecuteWorkflow(context.Background(), plan, "topic", nil, nil)
	require.NoError(t, err)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "v2", result.Steps[0].Result)
}

func TestExecuteWorkflow_RevisionCapAcceptsLatestOutput(t *testing.T) {
	// reviewer always rejects; executor must be called 1 + max_revision_rounds times.
	server := newScriptedOllamaServer(map[string][]string{
		"executor-model": {"v1", "v2", "v3", "v4"},
		"reviewer-model": {"REJECTED: no", "REJECTED: no", "REJECTED: no", "REJECTED: no"},
	})
	defer server.Close()

	eng := newWorkflowEngine(t, server.URL)
	plan := groupchat.Workflow{Steps: []groupchat.Step{{
		StepNumber: 1, StepName: "draft",
		ExecutorAgent: "Executor", ExecutorPrompt: "write about {user_input}",
		ReviewerAgent: "Reviewer", ReviewerPrompt: "review: {step_result}",
		MaxRevisionRounds: 3,
	}}}

	result, err := eng.ExecuteWorkflow(context.Background(), plan, "topic", nil, nil)
	require.NoError(t, err)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "v4", result.Steps[0].Result)
}

func TestExecuteWorkflow_UnresolvableReviewerAcceptsAsIs(t *testing.T) {
	server := newScriptedOllamaServer(map[string][]string{"executor-model": {"only output"}})
	defer server.Close()

	eng := newWorkflowEngine(t, server.URL)
	plan := groupchat.Workflow{Steps: []groupchat.Step{{
		StepNumber: 1, StepName: "draft",
		ExecutorAgent: "Executor", ExecutorPrompt: "write about {user_input}",
		ReviewerAgent: "Nobody", ReviewerPrompt: "review: {step_result}",
	}}}

	result, err := eng.ExecuteWorkflow(context.Background(), plan, "topic", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "only output", result.Steps[0].Result)
}

func TestExecuteWorkflow_NoReviewerRunsExecutorOnce(t *testing.T) {
	server := newScriptedOllamaServer(map[string][]string{"executor-model": {"direct output"}})
	defer server.Close()

	eng := newWorkflowEngine(t, server.URL)
	plan := groupchat.Workflow{Steps: []groupchat.Step{{
		StepNumber: 1, StepName: "draft",
		ExecutorAgent: "Executor", ExecutorPrompt: "write about {user_input}",
	}}}

	result, err := eng.ExecuteWorkflow(context.Background(), plan, "topic", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "direct output", result.Steps[0].Result)
}

func TestExecuteWorkflow_UnknownExecutorFails(t *testing.T) {
	eng := newWorkflowEngine(t, "http://unused.invalid")
	plan := groupchat.Workflow{Steps: []groupchat.Step{{
		StepNumber: 1, StepName: "draft", ExecutorAgent: "Ghost", ExecutorPrompt: "x",
	}}}

	_, err := eng.ExecuteWorkflow(context.Background(), plan, "topic", nil, nil)
	assert.Error(t, err)
}
