// Package server wires the configuration, provider, tool, persistence, and
// execution-engine layers into the wire-protocol endpoints: POST /chat/stream
// (SSE) and POST /chat/turn (buffered JSON) from §6, plus POST /chat/workflow
// (buffered JSON, workflow engine).
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meshcrew/groupchat/config"
	"github.com/meshcrew/groupchat/engine"
	"github.com/meshcrew/groupchat/eventstream"
	"github.com/meshcrew/groupchat/groupchat"
	"github.com/meshcrew/groupchat/providers"
	"github.com/meshcrew/groupchat/store"
	"github.com/meshcrew/groupchat/toolruntime"
)

// Server holds the process-wide, shared-after-startup state (§8 "Global
// mutable state: none in the core ... the registry of tools is process-wide
// but immutable after startup").
type Server struct {
	Config     *config.Config
	Providers  *providers.Registry
	Tools      *toolruntime.Registry
	Store      *store.Store
	Metrics    *eventstream.Metrics
	Knowledge  map[string]toolruntime.KnowledgeSource
	serializer engine.TurnSerializer
}

// New builds a Server from a loaded, validated config document and an open
// persistence store. The tool registry is sealed once assembled (§9).
func New(cfg *config.Config, st *store.Store, metrics *eventstream.Metrics) *Server {
	tools := toolruntime.NewRegistry()
	if err := tools.Register(toolruntime.NewCommandTool(".", nil)); err != nil {
		slog.Error("failed to register built-in tool", "tool", toolruntime.ExecuteCommandTool, "error", err)
	}
	tools.Seal()

	return &Server{
		Config:    cfg,
		Providers: providers.NewRegistry(cfg.Providers),
		Tools:     tools,
		Store:     st,
		Metrics:   metrics,
		Knowledge: make(map[string]toolruntime.KnowledgeSource),
	}
}

// Router mounts this server's stream/turn/workflow handlers onto an
// eventstream.Router.
func (s *Server) Router() *eventstream.Router {
	return eventstream.NewRouter(s.StreamHandler, s.TurnHandler, s.WorkflowHandler)
}

// engineFor builds a fresh Engine for groupID, looking the group and its
// agent roster up in the config document.
func (s *Server) engineFor(groupID string) (*engine.Engine, error) {
	group, ok := s.Config.Groups[groupID]
	if !ok {
		return nil, groupchat.NewError("server", "engineFor", fmt.Sprintf("unknown group %q", groupID), nil)
	}
	return engine.New(group, s.Config.Agents, s.Providers, s.Tools, s.Knowledge)
}

// TurnOutcome is what a completed turn produced, independent of whether it
// was served over SSE or buffered JSON (§6 "Non-streaming variant"):
// exactly the messages appended this turn, the terminal status, and the
// resulting plan snapshot.
type TurnOutcome struct {
	Messages []groupchat.Message
	Status   string
	Plan     *groupchat.PlanSnapshot
}

// RunTurn drives one iterative-engine turn for groupID to completion: it
// loads persisted plan state and history, runs exactly one engine Step, and
// persists every message and the plan-state document along the way (§4.E
// ordering guarantee). The returned Status is FINISH when that Step reported
// shouldContinue false, and CONTINUE otherwise.
//
// Overlapping turns for the same group are serialized (§5): a second
// caller waits for and shares the first caller's outcome rather than
// racing it.
func (s *Server) RunTurn(ctx context.Context, groupID, userMessage string, turn *eventstream.Turn) (TurnOutcome, error) {
	result, err, _ := s.serializer.Do(groupID, func() (any, error) {
		return s.runTurnOnce(ctx, groupID, userMessage, turn)
	})
	outcome, _ := result.(TurnOutcome)
	return outcome, err
}

func (s *Server) runTurnOnce(ctx context.Context, groupID, userMessage string, turn *eventstream.Turn) (TurnOutcome, error) {
	defer turn.Close()
	var outcome TurnOutcome

	eng, err := s.engineFor(groupID)
	if err != nil {
		turn.Emit(groupchat.Event{Tag: groupchat.EventError, Content: err.Error()})
		return outcome, err
	}

	plan, err := s.Store.LoadPlanState(ctx, groupID)
	if err != nil {
		turn.Emit(groupchat.Event{Tag: groupchat.EventError, Content: err.Error()})
		return outcome, err
	}
	history, err := s.Store.ListMessages(ctx, groupID, 0)
	if err != nil {
		turn.Emit(groupchat.Event{Tag: groupchat.EventError, Content: err.Error()})
		return outcome, err
	}

	ctx, span := eventstream.StartTurnSpan(ctx, groupID)
	defer span.End()

	onMessage := func(msg groupchat.Message) {
		if _, err := s.Store.AppendMessage(ctx, groupID, msg); err != nil {
			slog.Error("failed to persist message", "group_id", groupID, "error", err)
		}
		outcome.Messages = append(outcome.Messages, msg)
	}

	shouldContinue, stepErr := eng.Step(ctx, plan, history, userMessage, onMessage, turn.Emit)

	if saveErr := s.Store.SavePlanState(ctx, groupID, plan); saveErr != nil {
		slog.Error("failed to persist plan state", "group_id", groupID, "error", saveErr)
	}

	status := groupchat.StatusContinue
	if !shouldContinue {
		status = groupchat.StatusFinish
	}
	outcome.Status = status
	snapshot := plan.Snapshot()
	outcome.Plan = &snapshot

	if s.Metrics != nil {
		s.Metrics.TurnsTotal.WithLabelValues(groupID, status).Inc()
	}

	return outcome, stepErr
}

// WorkflowOutcome is what a completed workflow run produced (§4.D.2).
type WorkflowOutcome struct {
	Plan     groupchat.Workflow
	Steps    []engine.StepResult
	Messages []groupchat.Message
	Status   string
}

// RunWorkflow drives the workflow engine for groupID to completion
// (§4.D.2): it plans a complete step sequence up front in one supervisor
// call, then runs every step's executor/reviewer revision loop, persisting
// every message along the way.
//
// A workflow run shares the iterative engine's per-group TurnSerializer
// (§5) — a group runs one turn of either kind at a time.
func (s *Server) RunWorkflow(ctx context.Context, groupID, userMessage string, turn *eventstream.Turn) (WorkflowOutcome, error) {
	result, err, _ := s.serializer.Do(groupID, func() (any, error) {
		return s.runWorkflowOnce(ctx, groupID, userMessage, turn)
	})
	outcome, _ := result.(WorkflowOutcome)
	return outcome, err
}

func (s *Server) runWorkflowOnce(ctx context.Context, groupID, userMessage string, turn *eventstream.Turn) (WorkflowOutcome, error) {
	defer turn.Close()
	var outcome WorkflowOutcome

	eng, err := s.engineFor(groupID)
	if err != nil {
		turn.Emit(groupchat.Event{Tag: groupchat.EventError, Content: err.Error()})
		return outcome, err
	}

	ctx, span := eventstream.StartTurnSpan(ctx, groupID)
	defer span.End()

	plan, err := eng.PlanWorkflow(ctx, userMessage)
	if err != nil {
		turn.Emit(groupchat.Event{Tag: groupchat.EventError, Content: err.Error()})
		return outcome, err
	}
	outcome.Plan = plan

	onMessage := func(msg groupchat.Message) {
		if _, err := s.Store.AppendMessage(ctx, groupID, msg); err != nil {
			slog.Error("failed to persist message", "group_id", groupID, "error", err)
		}
		outcome.Messages = append(outcome.Messages, msg)
	}

	result, runErr := eng.ExecuteWorkflow(ctx, plan, userMessage, onMessage, turn.Emit)
	outcome.Steps = result.Steps
	if runErr == nil {
		outcome.Status = groupchat.StatusFinish
	}

	if s.Metrics != nil {
		s.Metrics.TurnsTotal.WithLabelValues(groupID, outcome.Status).Inc()
	}

	return outcome, runErr
}
