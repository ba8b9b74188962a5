package toolruntime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/meshcrew/groupchat/groupchat"
	"github.com/meshcrew/groupchat/providers"
)

// MaxIterations bounds the number of model round-trips a single Execute
// call may make before it is forced to return its last response
// (original_source/src/core/model_agent.py's execute_with_context,
// max_iterations = 5).
const MaxIterations = 5

// HistoryWindow is the number of trailing history messages handed to the
// model as context (original_source: "history[-10:] if len(history) > 10").
const HistoryWindow = 10

// ToolArgsEventLimit and ToolResultEventLimit cap what Execute reports on
// the event stream, independent of what the model actually sees.
const (
	ToolArgsEventLimit   = 300
	ToolResultEventLimit = 500
)

// defaultTokenBudget bounds the encoded size of the history window handed
// to the gateway, trimmed oldest-first once HistoryWindow alone isn't
// enough (long messages can still blow the context on a small model).
const defaultTokenBudget = 6000

// encodingName is a fixed tiktoken encoding used purely as a token-count
// estimator; the actual vendor tokenizer differs per model, but a stable
// estimator is what the budget trim needs.
const encodingName = "cl100k_base"

// Loop runs the bounded tool-invocation loop for a single agent turn.
type Loop struct {
	Registry    *Registry
	Gateway     providers.Gateway
	Agent       groupchat.AgentConfig
	TokenBudget int

	// ExtraTools are appended to the agent's named tool set without going
	// through the process-wide Registry — the retrieval tool binding
	// lives here, since it is unique per agent (§4.B.2: "append the
	// retrieval tool bound to this agent's index").
	ExtraTools []Tool

	encoder *tiktoken.Tiktoken
}

// NewLoop constructs a Loop bound to one agent's gateway and tool set.
func NewLoop(registry *Registry, gateway providers.Gateway, agent groupchat.AgentConfig) *Loop {
	enc, _ := tiktoken.GetEncoding(encodingName) // nil encoder degrades to no-op trimming
	return &Loop{
		Registry:    registry,
		Gateway:     gateway,
		Agent:       agent,
		TokenBudget: defaultTokenBudget,
		encoder:     enc,
	}
}

// Execute drives one agent turn to completion: it calls the gateway,
// dispatches any requested tool calls against the agent's bound tools, and
// repeats until the model returns a plain answer or MaxIterations is
// reached. onEvent is invoked synchronously for every lifecycle event;
// a nil onEvent is permitted.
func (l *Loop) Execute(ctx context.Context, instruction string, history []groupchat.Message, onEvent func(groupchat.Event)) (string, error) {
	emit := onEvent
	if emit == nil {
		emit = func(groupchat.Event) {}
	}

	tools := append(l.Registry.Resolve(l.Agent.Tools), l.ExtraTools...)
	toolDefs := make([]providers.ToolDefinition, len(tools))
	for i, t := range tools {
		info := t.GetInfo()
		toolDefs[i] = providers.ToolDefinition{Name: info.Name, Description: info.Description, Parameters: info.Parameters}
	}

	messages := l.buildMessages(instruction, history)

	var lastText string
	for iteration := 0; iteration < MaxIterations; iteration++ {
		emit(groupchat.Event{Tag: groupchat.EventThinking, Agent: l.Agent.Name})

		start := time.Now()
		text, toolCalls, _, err := l.Gateway.Generate(messages, toolDefs)
		slog.Debug("provider call finished", "agent", l.Agent.Name, "iteration", iteration, "duration", time.Since(start))
		if err != nil {
			emit(groupchat.Event{Tag: groupchat.EventError, Agent: l.Agent.Name, Content: err.Error()})
			return "", groupchat.NewError("toolruntime", "Execute", fmt.Sprintf("generation failed for agent %q", l.Agent.Name), err)
		}
		lastText = text

		if len(toolCalls) == 0 {
			emit(groupchat.Event{Tag: groupchat.EventAgentMessage, Agent: l.Agent.Name, Content: text})
			return text, nil
		}

		assistantMsg := providers.Message{Role: groupchat.RoleAssistant, Content: text}
		for _, tc := range toolCalls {
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, tc)
		}
		messages = append(messages, assistantMsg)

		for _, tc := range toolCalls {
			argsJSON, _ := json.Marshal(tc.Arguments)
			emit(groupchat.Event{
				Tag:   groupchat.EventToolCall,
				Agent: l.Agent.Name,
				Tool:  tc.Name,
				Args:  groupchat.Truncate(string(argsJSON), ToolArgsEventLimit),
			})

			result := l.runTool(ctx, tc)

			emit(groupchat.Event{
				Tag:    groupchat.EventToolResult,
				Agent:  l.Agent.Name,
				Tool:   tc.Name,
				Result: groupchat.Truncate(result, ToolResultEventLimit),
			})

			messages = append(messages, providers.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
				Name:       tc.Name,
			})
		}
	}

	emit(groupchat.Event{Tag: groupchat.EventAgentMessage, Agent: l.Agent.Name, Content: lastText})
	return lastText, nil
}

// runTool executes a single tool call, translating a missing tool or a
// panic/error from the tool itself into an error string rather than
// failing the whole loop — a single bad tool call never aborts the turn.
func (l *Loop) runTool(ctx context.Context, tc providers.ToolCall) (result string) {
	tool, ok := l.Registry.Get(tc.Name)
	if !ok {
		for _, extra := range l.ExtraTools {
			if extra.GetName() == tc.Name {
				tool, ok = extra, true
				break
			}
		}
	}
	if !ok {
		return fmt.Sprintf("tool %q not found", tc.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			result = fmt.Sprintf("tool %q panicked: %v", tc.Name, r)
		}
	}()

	res, err := tool.Execute(ctx, tc.Arguments)
	if err != nil {
		return fmt.Sprintf("tool %q execution failed: %v", tc.Name, err)
	}
	if !res.Success {
		return res.Error
	}
	return res.Content
}

// buildMessages assembles the system prompt (with persona), the
// token-budget-trimmed trailing history window, and the current
// instruction as the final user turn.
func (l *Loop) buildMessages(instruction string, history []groupchat.Message) []providers.Message {
	systemPrompt := l.Agent.SystemPrompt
	snippet, known := groupchat.PersonaSnippet(l.Agent.PersonaMode)
	if !known {
		slog.Warn("unknown persona mode, falling back to normal", "agent", l.Agent.Name, "persona_mode", l.Agent.PersonaMode)
	}
	if snippet != "" {
		systemPrompt = systemPrompt + "\n\n" + snippet
	}
	if l.hasRetrievalTool() {
		systemPrompt = systemPrompt + "\n\n" + RetrievalDirective
	}

	messages := []providers.Message{{Role: groupchat.RoleSystem, Content: systemPrompt}}

	window := history
	if len(window) > HistoryWindow {
		window = window[len(window)-HistoryWindow:]
	}
	window = l.trimToTokenBudget(window)

	for _, m := range window {
		switch m.Role {
		case groupchat.RoleUser:
			messages = append(messages, providers.Message{Role: groupchat.RoleUser, Content: fmt.Sprintf("[User]: %s", m.Content)})
		case groupchat.RoleAssistant, "agent":
			name := m.AgentName
			if name == "" {
				name = groupchat.RoleAssistant
			}
			messages = append(messages, providers.Message{Role: groupchat.RoleAssistant, Content: fmt.Sprintf("[%s]: %s", name, m.Content)})
		}
	}

	messages = append(messages, providers.Message{Role: groupchat.RoleUser, Content: fmt.Sprintf("[Supervisor Instruction]: %s", instruction)})
	return messages
}

// trimToTokenBudget drops the oldest messages in window until its encoded
// size fits l.TokenBudget. With no encoder available it returns window
// unchanged — the HistoryWindow cap still applies.
func (l *Loop) trimToTokenBudget(window []groupchat.Message) []groupchat.Message {
	if l.encoder == nil || l.TokenBudget <= 0 {
		return window
	}
	for len(window) > 0 && l.countTokens(window) > l.TokenBudget {
		window = window[1:]
	}
	return window
}

func (l *Loop) countTokens(window []groupchat.Message) int {
	total := 0
	for _, m := range window {
		total += len(l.encoder.Encode(m.Content, nil, nil))
	}
	return total
}

func (l *Loop) hasRetrievalTool() bool {
	for _, t := range l.ExtraTools {
		if t.GetName() == SearchKnowledgeBaseTool {
			return true
		}
	}
	return false
}
