package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Checkpoint is an immutable persisted summary covering the message id range
// [FromID, ToID]. A new checkpoint supersedes but never edits a prior one;
// sequence numbers are strictly increasing per session.
type Checkpoint struct {
	ID               int64
	SessionID        string
	Seq              int64
	FromID           int64
	ToID             int64
	Summary          string
	KeyFacts         []string
	OriginalTokens   int
	CompressedTokens int
	Cost             float64
	CreatedAt        time.Time
}

// CompressionRatio is original/compressed tokens, defined as 1.0 when the
// compressed side is zero.
func (c *Checkpoint) CompressionRatio() float64 {
	if c.CompressedTokens == 0 {
		return 1.0
	}
	return float64(c.OriginalTokens) / float64(c.CompressedTokens)
}

// SaveCheckpoint persists cp with the session's next sequence number,
// assigning cp.Seq and cp.ID. The seq read and insert share one transaction
// so concurrent writers cannot produce duplicate sequence numbers.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	if cp == nil || cp.SessionID == "" {
		return fmt.Errorf("checkpoint missing session id")
	}
	facts, err := json.Marshal(cp.KeyFacts)
	if err != nil {
		return fmt.Errorf("marshal key facts: %w", err)
	}

	return retryOnBusy(ctx, 5, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin checkpoint tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var seq int64
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(seq), 0) + 1 FROM checkpoints WHERE session_id = ?;
		`, cp.SessionID).Scan(&seq); err != nil {
			return fmt.Errorf("next checkpoint seq: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO checkpoints
				(session_id, seq, from_id, to_id, summary, key_facts,
				 original_tokens, compressed_tokens, cost, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
		`, cp.SessionID, seq, cp.FromID, cp.ToID, cp.Summary, string(facts),
			cp.OriginalTokens, cp.CompressedTokens, cp.Cost)
		if err != nil {
			return fmt.Errorf("insert checkpoint: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("checkpoint id: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit checkpoint: %w", err)
		}
		cp.Seq = seq
		cp.ID = id
		return nil
	})
}

// LatestCheckpoint returns the highest-seq checkpoint for the session, or
// nil when none exists.
func (s *Store) LatestCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, seq, from_id, to_id, summary, key_facts,
		       original_tokens, compressed_tokens, cost, created_at
		FROM checkpoints
		WHERE session_id = ?
		ORDER BY seq DESC
		LIMIT 1;
	`, sessionID)

	var cp Checkpoint
	var facts string
	err := row.Scan(&cp.ID, &cp.SessionID, &cp.Seq, &cp.FromID, &cp.ToID,
		&cp.Summary, &facts, &cp.OriginalTokens, &cp.CompressedTokens,
		&cp.Cost, &cp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}
	if err := json.Unmarshal([]byte(facts), &cp.KeyFacts); err != nil {
		return nil, fmt.Errorf("unmarshal key facts: %w", err)
	}
	return &cp, nil
}

// CountCheckpoints returns the number of checkpoints for the session.
func (s *Store) CountCheckpoints(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM checkpoints WHERE session_id = ?;
	`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count checkpoints: %w", err)
	}
	return n, nil
}
