package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/meshcrew/groupchat/groupchat"
)

// AppendMessage appends msg to groupID's log. Writes are all-or-nothing at
// message granularity (§4.E): a single INSERT, no partial rows. msg.ID is
// assigned here if empty.
func (s *Store) AppendMessage(ctx context.Context, groupID string, msg groupchat.Message) (groupchat.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	role := groupchat.NormalizeRole(msg.Role)

	var planJSON sql.NullString
	if msg.IsPlan && msg.PlanData != nil {
		b, err := json.Marshal(msg.PlanData)
		if err != nil {
			return msg, fmt.Errorf("store: marshal plan_data: %w", err)
		}
		planJSON = sql.NullString{String: string(b), Valid: true}
	}

	var metaJSON sql.NullString
	if len(msg.Metadata) > 0 {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return msg, fmt.Errorf("store: marshal metadata: %w", err)
		}
		metaJSON = sql.NullString{String: string(b), Valid: true}
	}

	const insertSQL = `
INSERT INTO messages (group_id, id, role, content, agent_name, is_plan, plan_data, tool_call_id, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, insertSQL,
		groupID, msg.ID, role, msg.Content, nullIfEmpty(msg.AgentName), msg.IsPlan, planJSON,
		nullIfEmpty(msg.ToolCallID), metaJSON, msg.Timestamp)
	if err != nil {
		return msg, fmt.Errorf("store: append message: %w", err)
	}
	msg.Role = role
	return msg, nil
}

// ListMessages returns the most recent limit messages for groupID in
// chronological order. limit <= 0 means no cap.
func (s *Store) ListMessages(ctx context.Context, groupID string, limit int) ([]groupchat.Message, error) {
	cols := `id, role, content, agent_name, is_plan, plan_data, tool_call_id, metadata, created_at`

	var (
		query string
		args  []any
	)
	if limit > 0 {
		query = `SELECT ` + cols + ` FROM (
			SELECT ` + cols + `, seq FROM messages WHERE group_id = ? ORDER BY seq DESC LIMIT ?
		) sub ORDER BY seq ASC`
		args = []any{groupID, limit}
	} else {
		query = `SELECT ` + cols + ` FROM messages WHERE group_id = ? ORDER BY seq ASC`
		args = []any{groupID}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var messages []groupchat.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (groupchat.Message, error) {
	var (
		msg        groupchat.Message
		agentName  sql.NullString
		planJSON   sql.NullString
		toolCallID sql.NullString
		metaJSON   sql.NullString
	)
	if err := row.Scan(&msg.ID, &msg.Role, &msg.Content, &agentName, &msg.IsPlan, &planJSON, &toolCallID, &metaJSON, &msg.Timestamp); err != nil {
		return msg, fmt.Errorf("store: scan message: %w", err)
	}
	msg.AgentName = agentName.String
	msg.ToolCallID = toolCallID.String
	if planJSON.Valid && planJSON.String != "" {
		var plan groupchat.PlanSnapshot
		if err := json.Unmarshal([]byte(planJSON.String), &plan); err != nil {
			return msg, fmt.Errorf("store: unmarshal plan_data: %w", err)
		}
		msg.PlanData = &plan
	}
	if metaJSON.Valid && metaJSON.String != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(metaJSON.String), &meta); err != nil {
			return msg, fmt.Errorf("store: unmarshal metadata: %w", err)
		}
		msg.Metadata = meta
	}
	return msg, nil
}

// ClearMessages deletes groupID's entire message log, implicitly resetting
// any downstream resumption (§4.E).
func (s *Store) ClearMessages(ctx context.Context, groupID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("store: clear messages: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
