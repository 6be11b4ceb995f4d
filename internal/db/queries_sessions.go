package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chris/whispr/internal/llm"
)

// SaveConversation replaces the stored history of a session.
func (d *DB) SaveConversation(ctx context.Context, id string, messages []llm.Message) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO sessions (id) VALUES (?) ON CONFLICT(id) DO UPDATE SET updated_at = datetime('now')",
		id,
	)
	if err != nil {
		return fmt.Errorf("upserting session %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("clearing messages for %s: %w", id, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO messages (session_id, seq, role, content, tool_calls, tool_call_id, is_error) VALUES (?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("preparing message insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range messages {
		var calls any
		if len(m.ToolCalls) > 0 {
			b, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return fmt.Errorf("encoding tool calls: %w", err)
			}
			calls = string(b)
		}
		if _, err := stmt.ExecContext(ctx, id, i, string(m.Role), m.Content, calls, nullStr(m.ToolCallID), m.IsError); err != nil {
			return fmt.Errorf("inserting message %d for %s: %w", i, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session %s: %w", id, err)
	}
	return nil
}

// LoadConversation returns nil, nil when the session does not exist.
func (d *DB) LoadConversation(ctx context.Context, id string) ([]llm.Message, error) {
	rows, err := d.conn.QueryContext(ctx,
		"SELECT role, content, tool_calls, tool_call_id, is_error FROM messages WHERE session_id = ? ORDER BY seq",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	defer rows.Close()

	var messages []llm.Message
	for rows.Next() {
		var m llm.Message
		var role string
		var calls, callID sql.NullString
		if err := rows.Scan(&role, &m.Content, &calls, &callID, &m.IsError); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = llm.Role(role)
		m.ToolCallID = strOrEmpty(callID)
		if calls.Valid {
			if err := json.Unmarshal([]byte(calls.String), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("decoding tool calls: %w", err)
			}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (d *DB) DeleteConversation(ctx context.Context, id string) error {
	if _, err := d.conn.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

// DeleteIdleConversations removes sessions not updated since before.
func (d *DB) DeleteIdleConversations(ctx context.Context, before time.Time) (int64, error) {
	res, err := d.conn.ExecContext(ctx, "DELETE FROM sessions WHERE updated_at < ?", formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("deleting idle sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SessionInfo summarizes a stored session.
type SessionInfo struct {
	ID        string `json:"id"`
	Messages  int    `json:"messages"`
	UpdatedAt string `json:"updated_at"`
}

// ListSessions returns stored sessions, most recently updated first.
func (d *DB) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT s.id, COUNT(m.seq), s.updated_at
		FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var s SessionInfo
		if err := rows.Scan(&s.ID, &s.Messages, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
