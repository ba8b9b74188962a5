package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/meshcrew/groupchat/groupchat"
	"github.com/meshcrew/groupchat/providers"
	"github.com/meshcrew/groupchat/supervisor"
	"github.com/meshcrew/groupchat/toolruntime"
)

// defaultClosingMessage is used when the supervisor's FINISH decision
// carries no usable instruction text (group_chat.py's closing_msg
// fallback).
const defaultClosingMessage = "This discussion's goal has been met. Anything else you'd like me to address?"

// Engine runs one group's supervisor/worker dispatch against a shared
// Provider registry and tool registry.
type Engine struct {
	Group      groupchat.GroupConfig
	Supervisor groupchat.AgentConfig
	Workers    []groupchat.AgentConfig
	Providers  *providers.Registry
	Tools      *toolruntime.Registry

	// Knowledge maps an agent id to its retrieval backing store. An agent
	// absent from this map has no retrieval tool bound (§6: "if the agent
	// has no index, the tool is absent from the bound set").
	Knowledge map[string]toolruntime.KnowledgeSource
}

// New constructs an Engine for group, resolving its supervisor and worker
// roster from agents.
func New(group groupchat.GroupConfig, agents map[string]groupchat.AgentConfig, prov *providers.Registry, tools *toolruntime.Registry, knowledge map[string]toolruntime.KnowledgeSource) (*Engine, error) {
	supervisorCfg, ok := agents[group.SupervisorID]
	if !ok {
		return nil, groupchat.NewError("engine", "New", fmt.Sprintf("supervisor agent %q not found", group.SupervisorID), nil)
	}
	return &Engine{
		Group:      group,
		Supervisor: supervisorCfg,
		Workers:    ResolveWorkers(group, agents),
		Providers:  prov,
		Tools:      tools,
		Knowledge:  knowledge,
	}, nil
}

func (e *Engine) roster() []supervisor.RosterEntry {
	roster := make([]supervisor.RosterEntry, len(e.Workers))
	for i, w := range e.Workers {
		roster[i] = supervisor.RosterEntry{Name: w.Name, Description: w.SystemPrompt}
	}
	return roster
}

func (e *Engine) supervisorPrompt() string {
	if e.Supervisor.SupervisorPrompt != "" {
		return e.Supervisor.SupervisorPrompt
	}
	return e.Supervisor.SystemPrompt
}

func (e *Engine) supervisorGateway() (providers.Gateway, error) {
	return e.Providers.Get(e.Supervisor.ProviderID)
}

func (e *Engine) loopFor(agent groupchat.AgentConfig) (*toolruntime.Loop, error) {
	gw, err := e.Providers.Get(agent.ProviderID)
	if err != nil {
		return nil, err
	}
	loop := toolruntime.NewLoop(e.Tools, gw, agent)
	if source, ok := e.Knowledge[agent.AgentID]; ok {
		loop.ExtraTools = append(loop.ExtraTools, toolruntime.NewRetrievalTool(source, 3))
	}
	return loop, nil
}

// Step executes exactly one cycle of the iterative engine (§4.D.1): plan
// initialization on the first call for a group, or one execution decision
// plus at most one worker dispatch thereafter. onMessage is invoked
// synchronously, in persistence order, for every message Step produces;
// onEvent likewise for every stream event. Step never mutates history or
// plan beyond what it is explicitly documented to do — callers own
// appending onMessage's output to the durable log.
func (e *Engine) Step(ctx context.Context, plan *groupchat.PlanState, history []groupchat.Message, userMessage string, onMessage func(groupchat.Message), onEvent func(groupchat.Event)) (shouldContinue bool, err error) {
	if onMessage == nil {
		onMessage = func(groupchat.Message) {}
	}
	if onEvent == nil {
		onEvent = func(groupchat.Event) {}
	}

	if userMessage != "" {
		onMessage(groupchat.Message{Role: groupchat.RoleUser, Content: userMessage})
		history = append(history, groupchat.Message{Role: groupchat.RoleUser, Content: userMessage})
	}

	if !plan.IsInitialized() {
		return e.initialize(ctx, plan, history, userMessage, onMessage, onEvent)
	}
	return e.executeStep(ctx, plan, history, onMessage, onEvent)
}

func (e *Engine) initialize(ctx context.Context, plan *groupchat.PlanState, history []groupchat.Message, userMessage string, onMessage func(groupchat.Message), onEvent func(groupchat.Event)) (bool, error) {
	gw, err := e.supervisorGateway()
	if err != nil {
		onEvent(groupchat.Event{Tag: groupchat.EventError, Agent: "Supervisor", Content: err.Error()})
		return false, err
	}

	request := userMessage
	if request == "" && len(history) > 0 {
		request = history[len(history)-1].Content
	}

	planInit, msg, planEvent, err := supervisor.Initialize(ctx, gw, e.supervisorPrompt(), e.roster(), request)
	if err != nil {
		onMessage(groupchat.Message{Role: groupchat.RoleSystem, Content: fmt.Sprintf("Critical Error: Failed to generate plan. %v", err)})
		onEvent(groupchat.Event{Tag: groupchat.EventError, Agent: "Supervisor", Content: err.Error()})
		return false, err
	}

	plan.Initialize(planInit.Goal, planInit.Deliverables, planInit.Process)
	onMessage(msg)
	onEvent(planEvent)
	onEvent(groupchat.Event{Tag: groupchat.EventFinish, Status: groupchat.StatusContinue})
	return true, nil
}

func (e *Engine) executeStep(ctx context.Context, plan *groupchat.PlanState, history []groupchat.Message, onMessage func(groupchat.Message), onEvent func(groupchat.Event)) (bool, error) {
	gw, err := e.supervisorGateway()
	if err != nil {
		onEvent(groupchat.Event{Tag: groupchat.EventError, Agent: "Supervisor", Content: err.Error()})
		return false, err
	}

	snapshot := plan.Snapshot()
	decision, err := supervisor.Decide(ctx, gw, e.supervisorPrompt(), e.roster(), snapshot, plan.CurrentIndex(), history)
	if err != nil {
		onMessage(groupchat.Message{Role: groupchat.RoleSystem, Content: fmt.Sprintf("Critical Error: Supervisor decision could not be parsed. %v", err)})
		onEvent(groupchat.Event{Tag: groupchat.EventError, Agent: "Supervisor", Content: err.Error()})
		return false, err
	}

	if decision.Status == groupchat.StatusFinish {
		closing := strings.TrimSpace(decision.Instruction)
		if closing == "" || closing == "None" {
			closing = defaultClosingMessage
		}
		onMessage(groupchat.Message{Role: groupchat.RoleAssistant, AgentName: "Supervisor", Content: closing})
		onEvent(groupchat.Event{Tag: groupchat.EventFinish, Status: groupchat.StatusFinish})
		return false, nil
	}

	supervisorMsg := groupchat.Message{
		Role:      groupchat.RoleAssistant,
		AgentName: "Supervisor",
		Content:   fmt.Sprintf("@%s, %s", decision.NextAgent, decision.Instruction),
	}
	onMessage(supervisorMsg)

	worker, ok := FindWorkerByName(e.Workers, decision.NextAgent)
	if !ok {
		// Unknown next_agent (or the supervisor naming itself): no worker ran,
		// so the step index must not advance — only apply a process
		// replacement if the supervisor sent one (§4.C, §7, §8 scenario 5;
		// group_chat.py's _execute_decision returns early without touching
		// current_step_index here).
		if len(decision.UpdateProcess) > 0 {
			plan.AdvanceStep(decision.UpdateProcess)
		}
		onEvent(groupchat.Event{Tag: groupchat.EventFinish, Status: groupchat.StatusContinue})
		return true, nil
	}

	loop, err := e.loopFor(worker)
	if err != nil {
		onEvent(groupchat.Event{Tag: groupchat.EventError, Agent: worker.Name, Content: err.Error()})
		return false, err
	}

	dispatchHistory := append(append([]groupchat.Message{}, history...), supervisorMsg)
	reply, err := loop.Execute(ctx, decision.Instruction, dispatchHistory, onEvent)
	if err != nil {
		// The worker's tool loop already emitted its own error event; no
		// partial worker message is written (§5 "Cancellation", §8 scenario 4).
		return false, err
	}

	onMessage(groupchat.Message{Role: groupchat.RoleAssistant, AgentName: worker.Name, Content: reply})
	plan.AdvanceStep(decision.UpdateProcess)
	onEvent(groupchat.Event{Tag: groupchat.EventFinish, Status: groupchat.StatusContinue})
	return true, nil
}
