package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/meshcrew/groupchat/groupchat"
)

// SavePlanState persists plan for groupID via whole-document replacement
// (§4.E: "PlanState is persisted via whole-document replacement at the end
// of each turn").
func (s *Store) SavePlanState(ctx context.Context, groupID string, plan *groupchat.PlanState) error {
	snapshot := plan.Snapshot()
	processJSON, err := json.Marshal(snapshot.Process)
	if err != nil {
		return fmt.Errorf("store: marshal process: %w", err)
	}

	const upsertSQL = `
INSERT INTO plan_state (group_id, plan_initialized, goal, deliverables, process_json, current_step_index, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (group_id) DO UPDATE SET
    plan_initialized = excluded.plan_initialized,
    goal = excluded.goal,
    deliverables = excluded.deliverables,
    process_json = excluded.process_json,
    current_step_index = excluded.current_step_index,
    updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, upsertSQL,
		groupID, plan.IsInitialized(), snapshot.Goal, snapshot.Deliverables, string(processJSON), plan.CurrentIndex(), time.Now())
	if err != nil {
		return fmt.Errorf("store: save plan state: %w", err)
	}
	return nil
}

// LoadPlanState loads groupID's persisted plan state, or a freshly-born
// empty PlanState if none has been saved yet (§4.B "PlanState is born
// empty on first turn of a group").
func (s *Store) LoadPlanState(ctx context.Context, groupID string) (*groupchat.PlanState, error) {
	const query = `SELECT plan_initialized, goal, deliverables, process_json, current_step_index FROM plan_state WHERE group_id = ?`

	var (
		initialized bool
		goal        string
		deliverable string
		processJSON string
		stepIndex   int
	)
	err := s.db.QueryRowContext(ctx, query, groupID).Scan(&initialized, &goal, &deliverable, &processJSON, &stepIndex)
	if err == sql.ErrNoRows {
		return &groupchat.PlanState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load plan state: %w", err)
	}

	var process []string
	if processJSON != "" {
		if err := json.Unmarshal([]byte(processJSON), &process); err != nil {
			return nil, fmt.Errorf("store: unmarshal process: %w", err)
		}
	}

	return &groupchat.PlanState{
		PlanInitialized:  initialized,
		Goal:             goal,
		Deliverables:     deliverable,
		Process:          process,
		CurrentStepIndex: stepIndex,
	}, nil
}
