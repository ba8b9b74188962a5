package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meshcrew/groupchat/groupchat"
	"github.com/meshcrew/groupchat/providers"
)

// initProtocol is the Phase 1 plan-initialization instruction appended
// after the supervisor's own prompt and the team roster (group_chat.py's
// SUPERVISOR_INIT_PROTOCOL).
const initProtocol = `
# TASK: PLAN INITIALIZATION
Analyze the user request. Break it down into a clear Goal, Deliverables, and Execution Process.

OUTPUT FORMAT (JSON ONLY):
{
    "goal": "The overall objective of this discussion",
    "deliverables": "The concrete outputs expected (e.g., Code, PRD, Diagram)",
    "process": ["Step 1: Agent X does...", "Step 2: Agent Y does..."],
    "explanation": "Brief rationale for this plan"
}
`

// executionProtocolTemplate is the Phase 2 step-selection instruction
// (group_chat.py's SUPERVISOR_EXECUTION_PROTOCOL).
const executionProtocolTemplate = `
# TASK: EXECUTION
Current Plan Status:
- Goal: %s (READ ONLY)
- Deliverables: %s (READ ONLY)
- Process: %s
- Current Step Index: %d

Select the next agent to execute the current step. You may update the process steps if needed, but DO NOT modify the Goal.

OUTPUT FORMAT (JSON ONLY):
{
    "next_agent": "<agent_name>",
    "instruction": "<specific task for the agent>",
    "update_process": ["Remaining Step 1", "Remaining Step 2"] (Optional, use only if process needs change),
    "status": "CONTINUE" | "FINISH"
}
`

// RosterEntry is one member of a group's roster as presented to the
// supervisor: name plus the system_prompt doubling as peer-facing
// description (§6 "system_prompt doubles as the member description").
type RosterEntry struct {
	Name        string
	Description string
}

func rosterString(roster []RosterEntry) string {
	lines := make([]string, 0, len(roster))
	for _, r := range roster {
		lines = append(lines, fmt.Sprintf("- Name: %s, Role: %s", r.Name, r.Description))
	}
	return strings.Join(lines, "\n")
}

func buildSupervisorPrompt(supervisorPrompt, protocol string, roster []RosterEntry) string {
	return fmt.Sprintf("%s\n\n# Team Roster\n%s\n\n%s", supervisorPrompt, rosterString(roster), protocol)
}

// Initialize runs the Initialization protocol (§4.C): the supervisor is
// given its prompt, the team roster, and the user's latest request, and
// must return a PlanInit document. On success it returns the decoded plan,
// the Markdown plan-announcement message, and the plan event — callers
// (the iterative engine) are responsible for persisting both and advancing
// PlanState via groupchat.PlanState.Initialize.
func Initialize(ctx context.Context, gw providers.Gateway, supervisorPrompt string, roster []RosterEntry, userRequest string) (PlanInit, groupchat.Message, groupchat.Event, error) {
	systemPrompt := buildSupervisorPrompt(supervisorPrompt, initProtocol, roster)

	messages := []providers.Message{
		{Role: groupchat.RoleSystem, Content: systemPrompt},
		{Role: groupchat.RoleUser, Content: fmt.Sprintf("Current User Request: %s", userRequest)},
	}

	text, _, _, err := gw.Generate(messages, nil)
	if err != nil {
		return PlanInit{}, groupchat.Message{}, groupchat.Event{}, groupchat.NewError("supervisor", "Initialize", "plan generation failed", err)
	}

	raw, err := ExtractJSON(text)
	if err != nil {
		return PlanInit{}, groupchat.Message{}, groupchat.Event{}, groupchat.NewError("supervisor", "Initialize", "could not extract plan JSON", err)
	}

	plan, err := DecodePlanInit(raw)
	if err != nil {
		return PlanInit{}, groupchat.Message{}, groupchat.Event{}, groupchat.NewError("supervisor", "Initialize", "could not decode plan JSON", err)
	}

	snapshot := groupchat.PlanSnapshot{
		Goal:         plan.Goal,
		Deliverables: plan.Deliverables,
		Process:      plan.Process,
		Explanation:  plan.Explanation,
	}

	msg := groupchat.Message{
		Role:      groupchat.RoleAssistant,
		AgentName: "Supervisor",
		Content:   renderPlanMarkdown(snapshot),
		IsPlan:    true,
		PlanData:  &snapshot,
	}

	event := groupchat.Event{Tag: groupchat.EventPlan, Agent: "Supervisor", Plan: &snapshot}

	return plan, msg, event, nil
}

func renderPlanMarkdown(plan groupchat.PlanSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Project Plan\n**Goal**: %s\n**Deliverables**: %s\n\n**Process**:\n", plan.Goal, plan.Deliverables)
	for i, step := range plan.Process {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	return b.String()
}

// Decide runs the Execution protocol (§4.C): the supervisor is given the
// plan state and the full conversation, and must return an
// ExecutionDecision. The conversation is rendered as "[name]: content"
// lines, matching group_chat.py's conversation_str assembly.
func Decide(ctx context.Context, gw providers.Gateway, supervisorPrompt string, roster []RosterEntry, plan groupchat.PlanSnapshot, currentStepIndex int, history []groupchat.Message) (ExecutionDecision, error) {
	processJSON, err := json.Marshal(plan.Process)
	if err != nil {
		return ExecutionDecision{}, groupchat.NewError("supervisor", "Decide", "could not marshal process list", err)
	}

	protocol := fmt.Sprintf(executionProtocolTemplate, plan.Goal, plan.Deliverables, string(processJSON), currentStepIndex+1)
	systemPrompt := buildSupervisorPrompt(supervisorPrompt, protocol, roster)

	var conv strings.Builder
	for _, m := range history {
		name := m.AgentName
		if name == "" {
			name = m.Role
		}
		fmt.Fprintf(&conv, "\n[%s]: %s", name, m.Content)
	}

	messages := []providers.Message{
		{Role: groupchat.RoleSystem, Content: systemPrompt},
		{Role: groupchat.RoleUser, Content: fmt.Sprintf("Current Conversation History:%s\n\nMake your decision based on the Plan.", conv.String())},
	}

	text, _, _, err := gw.Generate(messages, nil)
	if err != nil {
		return ExecutionDecision{}, groupchat.NewError("supervisor", "Decide", "decision generation failed", err)
	}

	raw, err := ExtractJSON(text)
	if err != nil {
		return ExecutionDecision{}, groupchat.NewError("supervisor", "Decide", "could not extract decision JSON", err)
	}

	decision, err := DecodeExecutionDecision(raw)
	if err != nil {
		return ExecutionDecision{}, groupchat.NewError("supervisor", "Decide", "could not decode decision JSON", err)
	}
	return decision, nil
}

// GenerateWorkflow runs the workflow-planning call (§4.D.2): a single
// supervisor invocation producing a complete Workflow document up-front.
func GenerateWorkflow(ctx context.Context, gw providers.Gateway, supervisorPrompt string, roster []RosterEntry, userRequest string) (WorkflowDoc, error) {
	schemaBlock, err := WorkflowSchemaBlock()
	if err != nil {
		return WorkflowDoc{}, err
	}

	systemPrompt := fmt.Sprintf("%s\n\n# Team Roster\n%s\n\n# TASK: WORKFLOW PLANNING\nProduce a complete step-by-step workflow as JSON matching this schema:\n%s",
		supervisorPrompt, rosterString(roster), schemaBlock)

	messages := []providers.Message{
		{Role: groupchat.RoleSystem, Content: systemPrompt},
		{Role: groupchat.RoleUser, Content: userRequest},
	}

	text, _, _, err := gw.Generate(messages, nil)
	if err != nil {
		return WorkflowDoc{}, groupchat.NewError("supervisor", "GenerateWorkflow", "workflow generation failed", err)
	}

	raw, err := ExtractJSON(text)
	if err != nil {
		return WorkflowDoc{PlanName: "Fallback Plan", Description: "Supervisor failed to generate valid workflow"}, nil
	}

	doc, err := DecodeWorkflowDoc(raw)
	if err != nil {
		return WorkflowDoc{PlanName: "Fallback Plan", Description: "Supervisor failed to generate valid workflow"}, nil
	}
	return doc, nil
}
