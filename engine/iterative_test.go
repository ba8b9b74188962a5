package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshcrew/groupchat/config"
	"github.com/meshcrew/groupchat/groupchat"
	"github.com/meshcrew/groupchat/providers"
	"github.com/meshcrew/groupchat/toolruntime"
)

func newIterativeEngine(t *testing.T, host string) *Engine {
	t.Helper()
	providerCfgs := config.ProviderConfigs{LLMs: map[string]config.LLMProviderConfig{
		"sup-model":    {Type: "ollama", Model: "sup-model", Host: host, MaxTokens: 512, Timeout: 5},
		"worker-model": {Type: "ollama", Model: "worker-model", Host: host, MaxTokens: 512, Timeout: 5},
	}}
	registry := providers.NewRegistry(providerCfgs)
	tools := toolruntime.NewRegistry()
	tools.Seal()

	group := groupchat.GroupConfig{SupervisorID: "S", MemberIDs: []string{"S", "W"}}
	agents := map[string]groupchat.AgentConfig{
		"S": {AgentID: "S", Name: "Supervisor", ProviderID: "sup-model"},
		"W": {AgentID: "W", Name: "Worker", ProviderID: "worker-model"},
	}

	eng, err := New(group, agents, registry, tools, nil)
	require.NoError(t, err)
	return eng
}

func TestEngine_New_UnknownSupervisorIsAnError(t *testing.T) {
	registry := providers.NewRegistry(config.ProviderConfigs{})
	tools := toolruntime.NewRegistry()
	tools.Seal()

	_, err := New(groupchat.GroupConfig{SupervisorID: "missing"}, map[string]groupchat.AgentConfig{}, registry, tools, nil)
	assert.Error(t, err)
}

func TestEngine_Step_FirstCallInitializesPlan(t *testing.T) {
	server := newScriptedOllamaServer(map[string][]string{
		"sup-model": {`{"goal":"ship it","deliverables":"a PR","process":["Step 1: Worker does it"],"explanation":"because"}`},
	})
	defer server.Close()

	eng := newIterativeEngine(t, server.URL)
	plan := &groupchat.PlanState{}

	var messages []groupchat.Message
	var events []groupchat.Event
	shouldContinue, err := eng.Step(context.Background(), plan, nil, "please ship it",
		func(m groupchat.Message) { messages = append(messages, m) },
		func(e groupchat.Event) { events = append(events, e) },
	)

	require.NoError(t, err)
	assert.True(t, shouldContinue)
	assert.True(t, plan.IsInitialized())
	assert.Equal(t, "ship it", plan.Snapshot().Goal)

	var sawPlan bool
	for _, e := range events {
		if e.Tag == groupchat.EventPlan {
			sawPlan = true
		}
	}
	assert.True(t, sawPlan)
}

func TestEngine_Step_DispatchesToNamedWorker(t *testing.T) {
	server := newScriptedOllamaServer(map[string][]string{
		"sup-model":    {`{"next_agent":"Worker","instruction":"write the code","status":"CONTINUE"}`},
		"worker-model": {"done, here is the code"},
	})
	defer server.Close()

	eng := newIterativeEngine(t, server.URL)
	plan := &groupchat.PlanState{}
	plan.Initialize("ship it", "a PR", []string{"Step 1: Worker does it"})

	var messages []groupchat.Message
	shouldContinue, err := eng.Step(context.Background(), plan, nil, "",
		func(m groupchat.Message) { messages = append(messages, m) },
		nil,
	)

	require.NoError(t, err)
	assert.True(t, shouldContinue)
	assert.Equal(t, 1, plan.CurrentIndex())

	var sawWorkerReply bool
	for _, m := range messages {
		if m.AgentName == "Worker" && m.Content == "done, here is the code" {
			sawWorkerReply = true
		}
	}
	assert.True(t, sawWorkerReply)
}

func TestEngine_Step_UnknownNextAgentContinuesWithoutAdvancingOrError(t *testing.T) {
	server := newScriptedOllamaServer(map[string][]string{
		"sup-model": {`{"next_agent":"Ghost","instruction":"do something","status":"CONTINUE"}`},
	})
	defer server.Close()

	eng := newIterativeEngine(t, server.URL)
	plan := &groupchat.PlanState{}
	plan.Initialize("ship it", "a PR", []string{"Step 1"})

	shouldContinue, err := eng.Step(context.Background(), plan, nil, "", nil, nil)
	require.NoError(t, err)
	assert.True(t, shouldContinue)
	assert.Equal(t, 0, plan.CurrentIndex())
}

func TestEngine_Step_UnknownNextAgentStillAppliesProcessReplacement(t *testing.T) {
	server := newScriptedOllamaServer(map[string][]string{
		"sup-model": {`{"next_agent":"Ghost","instruction":"do something","update_process":["new step"],"status":"CONTINUE"}`},
	})
	defer server.Close()

	eng := newIterativeEngine(t, server.URL)
	plan := &groupchat.PlanState{}
	plan.Initialize("ship it", "a PR", []string{"Step 1"})
	plan.AdvanceStep(nil) // simulate a prior successful step so the index is non-zero

	shouldContinue, err := eng.Step(context.Background(), plan, nil, "", nil, nil)
	require.NoError(t, err)
	assert.True(t, shouldContinue)
	assert.Equal(t, []string{"new step"}, plan.Snapshot().Process)
	assert.Equal(t, 0, plan.CurrentIndex())
}

func TestEngine_Step_FinishStatusEndsTheTurn(t *testing.T) {
	server := newScriptedOllamaServer(map[string][]string{
		"sup-model": {`{"next_agent":"","instruction":"All done","status":"FINISH"}`},
	})
	defer server.Close()

	eng := newIterativeEngine(t, server.URL)
	plan := &groupchat.PlanState{}
	plan.Initialize("ship it", "a PR", []string{"Step 1"})

	var messages []groupchat.Message
	shouldContinue, err := eng.Step(context.Background(), plan, nil, "",
		func(m groupchat.Message) { messages = append(messages, m) },
		nil,
	)
	require.NoError(t, err)
	assert.False(t, shouldContinue)
	require.NotEmpty(t, messages)
	assert.Equal(t, "All done", messages[len(messages)-1].Content)
}
