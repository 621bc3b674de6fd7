package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/tripdesk/internal/dialog"
	"github.com/soyeahso/tripdesk/internal/domain"
)

var _ dialog.Checkpoints = (*CheckpointStore)(nil)

// CheckpointStore persists dialog sessions (history and dialog stack) per
// thread.
type CheckpointStore struct {
	db *DB
}

// NewCheckpointStore creates a checkpoint store using the given database.
func NewCheckpointStore(db *DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Load returns the session for threadID, or nil if the thread is new.
func (s *CheckpointStore) Load(ctx context.Context, threadID string) (*domain.Session, error) {
	var sess domain.Session
	var stack, createdAt, updatedAt string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT thread_id, caller_id, stack, created_at, updated_at
		 FROM sessions WHERE thread_id = ?`, threadID,
	).Scan(&sess.ThreadID, &sess.CallerID, &stack, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", threadID, err)
	}
	if err := json.Unmarshal([]byte(stack), &sess.Stack); err != nil {
		return nil, fmt.Errorf("decoding stack of %s: %w", threadID, err)
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)

	sess.Messages, err = s.loadMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Save replaces the stored state of the session's thread in one transaction.
func (s *CheckpointStore) Save(ctx context.Context, sess *domain.Session) error {
	stack, err := json.Marshal(nonNil(sess.Stack))
	if err != nil {
		return fmt.Errorf("encoding stack: %w", err)
	}
	created, updated := sess.CreatedAt, sess.UpdatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if updated.IsZero() {
		updated = time.Now()
	}

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save %s: %w", sess.ThreadID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (thread_id, caller_id, stack, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET
		   caller_id = excluded.caller_id,
		   stack = excluded.stack,
		   updated_at = excluded.updated_at`,
		sess.ThreadID, sess.CallerID, string(stack), formatTime(created), formatTime(updated),
	); err != nil {
		return fmt.Errorf("saving session %s: %w", sess.ThreadID, err)
	}

	// Messages are append-only; only rows past the stored count are written.
	var stored int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE thread_id = ?`, sess.ThreadID,
	).Scan(&stored); err != nil {
		return fmt.Errorf("counting messages of %s: %w", sess.ThreadID, err)
	}
	if stored > len(sess.Messages) {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE thread_id = ? AND seq >= ?`, sess.ThreadID, len(sess.Messages),
		); err != nil {
			return fmt.Errorf("truncating messages of %s: %w", sess.ThreadID, err)
		}
		stored = len(sess.Messages)
	}
	for i := stored; i < len(sess.Messages); i++ {
		if err := insertMessage(ctx, tx, sess.ThreadID, i, sess.Messages[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save %s: %w", sess.ThreadID, err)
	}
	return nil
}

// Threads returns thread ids, most recently updated first.
func (s *CheckpointStore) Threads(ctx context.Context) ([]string, error) {
	rows, err := s.db.sql.QueryContext(ctx, `SELECT thread_id FROM sessions ORDER BY updated_at DESC, thread_id`)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes a thread and its history.
func (s *CheckpointStore) Delete(ctx context.Context, threadID string) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete %s: %w", threadID, err)
	}
	defer tx.Rollback()
	for _, q := range []string{
		`DELETE FROM messages WHERE thread_id = ?`,
		`DELETE FROM sessions WHERE thread_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, threadID); err != nil {
			return fmt.Errorf("deleting session %s: %w", threadID, err)
		}
	}
	return tx.Commit()
}

func insertMessage(ctx context.Context, tx *sql.Tx, threadID string, seq int, msg domain.Message) error {
	var toolCalls sql.NullString
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("encoding tool calls: %w", err)
		}
		toolCalls = sql.NullString{String: string(data), Valid: true}
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO messages (thread_id, seq, role, content, tool_calls, tool_call_id, name, agent, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		threadID, seq, msg.Role, msg.Content, toolCalls, msg.ToolCallID, msg.Name, msg.Agent, formatTime(ts),
	)
	if err != nil {
		return fmt.Errorf("appending message %d of %s: %w", seq, threadID, err)
	}
	return nil
}

func (s *CheckpointStore) loadMessages(ctx context.Context, threadID string) ([]domain.Message, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT role, content, tool_calls, tool_call_id, name, agent, timestamp
		 FROM messages WHERE thread_id = ? ORDER BY seq`, threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading messages of %s: %w", threadID, err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var ts string
		var toolCalls sql.NullString
		if err := rows.Scan(&msg.Role, &msg.Content, &toolCalls, &msg.ToolCallID, &msg.Name, &msg.Agent, &ts); err != nil {
			return nil, err
		}
		msg.Timestamp = parseTime(ts)
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decoding tool calls of %s: %w", threadID, err)
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
