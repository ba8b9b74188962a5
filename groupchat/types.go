// Package groupchat holds the data model shared by every component of the
// group-chat orchestration core: messages, plan state, agent/group
// configuration, and the events that travel over the stream.
package groupchat

import (
	"fmt"
	"sync"
	"time"
)

// Message roles. "agent" is never persisted — see NormalizeRole.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// NormalizeRole maps the legacy "agent" role onto "assistant" so persisted
// messages only ever carry {user, assistant, system}.
func NormalizeRole(role string) string {
	if role == "agent" {
		return RoleAssistant
	}
	return role
}

// GroupChatError is the component-scoped error type used across this
// module, in the same shape as the teacher's TeamError/ConversationError:
// a component/operation/message triple wrapping an underlying error.
type GroupChatError struct {
	Component string
	Operation string
	Message   string
	Err       error
	Timestamp time.Time
}

func (e *GroupChatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Component, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Component, e.Operation, e.Message)
}

func (e *GroupChatError) Unwrap() error {
	return e.Err
}

// NewError constructs a GroupChatError.
func NewError(component, operation, message string, err error) *GroupChatError {
	return &GroupChatError{
		Component: component,
		Operation: operation,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Message is an immutable record appended to a group's log.
type Message struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	AgentName  string         `json:"agent_name,omitempty"`
	IsPlan     bool           `json:"is_plan,omitempty"`
	PlanData   *PlanSnapshot  `json:"plan_data,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// StorageView returns the wire form of a message returned to API readers:
// role "agent" is normalized to "assistant" and AgentName is mirrored onto
// a generic "name" field for reader compatibility (original_source/
// group_manager.py persists messages this way; this core's own SQL log
// keeps agent_name in its own typed column, so the mirror is applied here,
// at the point messages leave the core for a caller).
func (m Message) StorageView() map[string]any {
	view := map[string]any{
		"id":        m.ID,
		"role":      NormalizeRole(m.Role),
		"content":   m.Content,
		"timestamp": m.Timestamp,
	}
	if m.AgentName != "" {
		view["agent_name"] = m.AgentName
		view["name"] = m.AgentName
	}
	if m.IsPlan {
		view["is_plan"] = true
		view["plan_data"] = m.PlanData
	}
	if m.ToolCallID != "" {
		view["tool_call_id"] = m.ToolCallID
	}
	if len(m.Metadata) > 0 {
		view["metadata"] = m.Metadata
	}
	return view
}

// PlanSnapshot is the structured plan announced to the client, matching the
// JSON document the supervisor's initialization protocol produces.
type PlanSnapshot struct {
	Goal         string   `json:"goal"`
	Deliverables string   `json:"deliverables"`
	Process      []string `json:"process"`
	Explanation  string   `json:"explanation,omitempty"`
}

// PlanState is the mutable per-group plan. Once PlanInitialized is true,
// Goal and Deliverables never change; CurrentStepIndex is monotonically
// non-decreasing unless Process is replaced, in which case it resets to 0
// only when the supervisor flags a new process via update_process.
type PlanState struct {
	mu sync.RWMutex

	PlanInitialized   bool     `json:"plan_initialized"`
	Goal              string   `json:"goal"`
	Deliverables      string   `json:"deliverables"`
	Process           []string `json:"process"`
	CurrentStepIndex  int      `json:"current_step_index"`
}

// Snapshot returns a lock-free copy safe to serialize or hand to a prompt
// builder.
func (p *PlanState) Snapshot() PlanSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	process := make([]string, len(p.Process))
	copy(process, p.Process)
	return PlanSnapshot{
		Goal:         p.Goal,
		Deliverables: p.Deliverables,
		Process:      process,
	}
}

// Initialize populates the plan on the first turn of a group. It is a
// no-op (returns false) if the plan was already initialized, preserving
// the invariant that Goal/Deliverables never change after initialization.
func (p *PlanState) Initialize(goal, deliverables string, process []string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PlanInitialized {
		return false
	}
	p.Goal = goal
	p.Deliverables = deliverables
	p.Process = process
	p.CurrentStepIndex = 0
	p.PlanInitialized = true
	return true
}

// AdvanceStep increments CurrentStepIndex by exactly one, or — when
// updateProcess is non-empty — replaces Process and resets the index to 0.
func (p *PlanState) AdvanceStep(updateProcess []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(updateProcess) > 0 {
		p.Process = updateProcess
		p.CurrentStepIndex = 0
		return
	}
	p.CurrentStepIndex++
}

// CurrentIndex returns CurrentStepIndex under the read lock.
func (p *PlanState) CurrentIndex() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.CurrentStepIndex
}

// IsInitialized reports whether the plan has been populated.
func (p *PlanState) IsInitialized() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.PlanInitialized
}

// AgentConfig describes a single agent available to a group.
type AgentConfig struct {
	AgentID            string   `yaml:"agent_id" json:"agent_id"`
	Name               string   `yaml:"name" json:"name"`
	SystemPrompt       string   `yaml:"system_prompt" json:"system_prompt"`
	ProviderID         string   `yaml:"provider_id" json:"provider_id"`
	ModelName          string   `yaml:"model_name" json:"model_name"`
	Tools              []string `yaml:"tools" json:"tools"`
	PersonaMode        string   `yaml:"persona_mode,omitempty" json:"persona_mode,omitempty"`
	SupervisorPrompt   string   `yaml:"supervisor_prompt,omitempty" json:"supervisor_prompt,omitempty"`
	WorkflowSupervisor string   `yaml:"workflow_supervisor_prompt,omitempty" json:"workflow_supervisor_prompt,omitempty"`
}

// Validate reports whether the agent configuration is well-formed.
func (a *AgentConfig) Validate() error {
	if a.AgentID == "" {
		return NewError("groupchat", "AgentConfig.Validate", "agent_id is required", nil)
	}
	if a.Name == "" {
		return NewError("groupchat", "AgentConfig.Validate", "name is required", nil)
	}
	if a.ProviderID == "" {
		return NewError("groupchat", "AgentConfig.Validate", "provider_id is required", nil)
	}
	return nil
}

// SetDefaults fills in zero-config fallbacks.
func (a *AgentConfig) SetDefaults() {
	if a.PersonaMode == "" {
		a.PersonaMode = PersonaNormal
	}
}

// GroupConfig describes a group of agents collaborating under a supervisor.
type GroupConfig struct {
	GroupID                  string   `yaml:"group_id" json:"group_id"`
	Name                     string   `yaml:"name" json:"name"`
	SupervisorID             string   `yaml:"supervisor_id" json:"supervisor_id"`
	MemberIDs                []string `yaml:"member_ids" json:"member_ids"`
	SupervisorPrompt         string   `yaml:"supervisor_prompt,omitempty" json:"supervisor_prompt,omitempty"`
	WorkflowSupervisorPrompt string   `yaml:"workflow_supervisor_prompt,omitempty" json:"workflow_supervisor_prompt,omitempty"`
}

// Validate reports whether the group configuration is well-formed.
func (g *GroupConfig) Validate() error {
	if g.GroupID == "" {
		return NewError("groupchat", "GroupConfig.Validate", "group_id is required", nil)
	}
	if g.Name == "" {
		return NewError("groupchat", "GroupConfig.Validate", "name is required", nil)
	}
	if g.SupervisorID == "" {
		return NewError("groupchat", "GroupConfig.Validate", "supervisor_id is required", nil)
	}
	return nil
}

// WorkerIDs returns MemberIDs with the supervisor excluded — the
// supervisor orchestrates and never simultaneously appears as a worker.
func (g *GroupConfig) WorkerIDs() []string {
	workers := make([]string, 0, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		if id == g.SupervisorID {
			continue
		}
		workers = append(workers, id)
	}
	return workers
}

// Persona prompt modes (original_source persona_prompts.get_persona_prompt).
const (
	PersonaNormal   = "normal"
	PersonaConcise  = "concise"
	PersonaSocratic = "socratic"
)

// PersonaSnippet returns the appended output-style fragment for a persona
// mode. Unknown modes fall back to PersonaNormal; callers are expected to
// log a warning when that happens.
func PersonaSnippet(mode string) (snippet string, known bool) {
	switch mode {
	case PersonaConcise:
		return "Respond tersely. Prefer short sentences and skip preamble.", true
	case PersonaSocratic:
		return "Favor guiding questions over direct answers where it helps the user reason it out themselves.", true
	case PersonaNormal, "":
		return "", true
	default:
		return "", false
	}
}

// Event is a tagged variant carried on the stream. Exactly one field group
// is populated per Tag.
type Event struct {
	Tag       string        `json:"-"`
	Agent     string        `json:"agent,omitempty"`
	Tool      string        `json:"tool,omitempty"`
	Args      string        `json:"args,omitempty"`
	Result    string        `json:"result,omitempty"`
	Content   string        `json:"content,omitempty"`
	Plan      *PlanSnapshot `json:"data,omitempty"`
	Status    string        `json:"status,omitempty"`
}

const (
	EventThinking     = "thinking"
	EventToolCall     = "tool_call"
	EventToolResult   = "tool_result"
	EventAgentMessage = "agent_message"
	EventPlan         = "plan"
	EventFinish       = "finish"
	EventError        = "error"
)

// Status values carried by EventFinish and the supervisor's decision.
const (
	StatusContinue = "CONTINUE"
	StatusFinish   = "FINISH"
)

// Truncate returns s unchanged when it is at most n bytes long; otherwise it
// keeps the first n bytes and appends the teacher's "...(truncated)" suffix
// (reasoning/chain_of_thought.go), so the result is longer than n.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
