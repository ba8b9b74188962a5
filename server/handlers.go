package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/meshcrew/groupchat/eventstream"
	"github.com/meshcrew/groupchat/groupchat"
)

// turnRequest is the wire body both endpoints accept.
type turnRequest struct {
	GroupID string `json:"group_id"`
	Message string `json:"message"`
}

// StreamHandler serves POST /chat/stream: the turn's events are written to
// the client as they're produced, over SSE.
func (s *Server) StreamHandler(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.GroupID == "" {
		http.Error(w, "group_id is required", http.StatusBadRequest)
		return
	}

	turn := eventstream.NewTurn(0)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		if _, err := s.RunTurn(ctx, req.GroupID, req.Message, turn); err != nil {
			// RunTurn already emitted an error event for the stream; nothing
			// further to write here.
			_ = err
		}
	}()

	if err := eventstream.WriteSSE(ctx, w, turn); err != nil {
		cancel()
	}
}

// TurnResponse is the buffered (non-streaming) turn reply (§6 "Non-streaming
// variant"): response is a convenience echo of the last message appended
// this turn, messages holds only what this turn appended (not the full
// history, each rendered through Message.StorageView for reader
// compatibility), and status is the terminal CONTINUE/FINISH the engine
// reached.
type TurnResponse struct {
	Response    string                  `json:"response"`
	Messages    []map[string]any        `json:"messages"`
	Status      string                  `json:"status"`
	CurrentPlan *groupchat.PlanSnapshot `json:"current_plan,omitempty"`
}

// TurnHandler serves POST /chat/turn: it runs the turn to completion and
// returns the appended messages and terminal status as one JSON document.
func (s *Server) TurnHandler(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.GroupID == "" {
		http.Error(w, "group_id is required", http.StatusBadRequest)
		return
	}

	// The turn's events are only needed by the SSE path; this endpoint
	// drives the engine through the same RunTurn and reads its structured
	// outcome instead of draining the event buffer.
	turn := eventstream.NewTurn(0)
	outcome, runErr := s.RunTurn(r.Context(), req.GroupID, req.Message, turn)
	if runErr != nil {
		http.Error(w, runErr.Error(), http.StatusInternalServerError)
		return
	}

	var response string
	messages := make([]map[string]any, len(outcome.Messages))
	for i, msg := range outcome.Messages {
		messages[i] = msg.StorageView()
	}
	if n := len(outcome.Messages); n > 0 {
		response = outcome.Messages[n-1].Content
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TurnResponse{
		Response:    response,
		Messages:    messages,
		Status:      outcome.Status,
		CurrentPlan: outcome.Plan,
	})
}

// WorkflowResponse is the buffered reply from the workflow engine: the plan
// it generated up front, the messages its steps appended, and the terminal
// status.
type WorkflowResponse struct {
	Response string             `json:"response"`
	Messages []map[string]any   `json:"messages"`
	Status   string             `json:"status"`
	Plan     groupchat.Workflow `json:"plan"`
}

// WorkflowHandler serves POST /chat/workflow: it plans a complete workflow
// for the user's request and runs every step to completion, returning the
// same buffered shape as TurnHandler plus the generated plan.
func (s *Server) WorkflowHandler(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.GroupID == "" {
		http.Error(w, "group_id is required", http.StatusBadRequest)
		return
	}

	turn := eventstream.NewTurn(0)
	outcome, runErr := s.RunWorkflow(r.Context(), req.GroupID, req.Message, turn)
	if runErr != nil {
		http.Error(w, runErr.Error(), http.StatusInternalServerError)
		return
	}

	var response string
	messages := make([]map[string]any, len(outcome.Messages))
	for i, msg := range outcome.Messages {
		messages[i] = msg.StorageView()
	}
	if n := len(outcome.Messages); n > 0 {
		response = outcome.Messages[n-1].Content
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(WorkflowResponse{
		Response: response,
		Messages: messages,
		Status:   outcome.Status,
		Plan:     outcome.Plan,
	})
}
