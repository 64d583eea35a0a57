package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one conversation turn. Archived messages are covered by a
// checkpoint and excluded from every load below.
type Message struct {
	ID        int64
	SessionID string
	Role      string
	Content   string
	Tokens    int
	CreatedAt time.Time
}

// EnsureSession inserts the session row if absent. Session ids are UUIDs.
func (s *Store) EnsureSession(ctx context.Context, sessionID string) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return fmt.Errorf("invalid session_id: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at)
		VALUES (?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO NOTHING;
	`, sessionID)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// AddMessage appends a message and returns its id.
func (s *Store) AddMessage(ctx context.Context, sessionID, role, content string, tokens int) (int64, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case "system", "user", "assistant", "tool":
	default:
		return 0, fmt.Errorf("invalid role %q", role)
	}

	var id int64
	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO messages (session_id, role, content, tokens, created_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP);
		`, sessionID, role, content, tokens)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

// LoadRecentMessages returns the newest limit active messages, oldest first.
func (s *Store) LoadRecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, tokens, created_at
		FROM messages
		WHERE session_id = ? AND archived_at IS NULL
		ORDER BY id DESC
		LIMIT ?;
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	out, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// Scanned newest-first; reverse into conversation order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountMessages returns the number of active messages in the session.
func (s *Store) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE session_id = ? AND archived_at IS NULL;
	`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// MessageIDRange returns the min and max active message ids. Both are zero
// when the session has no active messages.
func (s *Store) MessageIDRange(ctx context.Context, sessionID string) (minID, maxID int64, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MIN(id), 0), COALESCE(MAX(id), 0)
		FROM messages WHERE session_id = ? AND archived_at IS NULL;
	`, sessionID).Scan(&minID, &maxID)
	if err != nil {
		return 0, 0, fmt.Errorf("message id range: %w", err)
	}
	return minID, maxID, nil
}

// LoadMessagesBetween returns active messages with fromID <= id <= toID,
// oldest first.
func (s *Store) LoadMessagesBetween(ctx context.Context, sessionID string, fromID, toID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, tokens, created_at
		FROM messages
		WHERE session_id = ? AND id >= ? AND id <= ? AND archived_at IS NULL
		ORDER BY id ASC;
	`, sessionID, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("query messages between: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// CutoffIDForRecent returns the id of the newest message that would be
// compacted when the trailing keepRecent messages stay verbatim: exactly
// keepRecent active messages have a larger id. Message ids may be
// non-contiguous (gaps from earlier archiving); OFFSET over the live rows
// handles that. ok is false when the session has no more than keepRecent
// active messages.
func (s *Store) CutoffIDForRecent(ctx context.Context, sessionID string, keepRecent int) (int64, bool, error) {
	if keepRecent < 0 {
		keepRecent = 0
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM messages
		WHERE session_id = ? AND archived_at IS NULL
		ORDER BY id DESC
		LIMIT 1 OFFSET ?;
	`, sessionID, keepRecent).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cutoff id: %w", err)
	}
	return id, true, nil
}

// ArchiveMessages marks every active message with id <= beforeID as archived.
func (s *Store) ArchiveMessages(ctx context.Context, sessionID string, beforeID int64) error {
	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE messages
			SET archived_at = CURRENT_TIMESTAMP
			WHERE session_id = ? AND id <= ? AND archived_at IS NULL;
		`, sessionID, beforeID)
		return err
	})
	if err != nil {
		return fmt.Errorf("archive messages: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Tokens, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message rows: %w", err)
	}
	return out, nil
}
