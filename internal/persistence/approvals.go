package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SetApproval persists a remembered yes/no decision for action, replacing
// any prior record.
func (s *Store) SetApproval(ctx context.Context, action string, approved bool) error {
	if action == "" {
		return fmt.Errorf("empty action name")
	}
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO approvals (action, approved, created_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(action) DO UPDATE SET
				approved = excluded.approved,
				created_at = excluded.created_at;
		`, action, approved)
		if err != nil {
			return fmt.Errorf("set approval: %w", err)
		}
		return nil
	})
}

// GetApproval returns the remembered decision for action. found is false
// when no record exists; absence means "not yet decided".
func (s *Store) GetApproval(ctx context.Context, action string) (approved bool, found bool, err error) {
	var v int
	err = s.db.QueryRowContext(ctx, `
		SELECT approved FROM approvals WHERE action = ?;
	`, action).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("get approval: %w", err)
	}
	return v != 0, true, nil
}

// DeleteApproval removes the record for action; deleting a missing record
// is not an error.
func (s *Store) DeleteApproval(ctx context.Context, action string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM approvals WHERE action = ?;`, action)
	if err != nil {
		return fmt.Errorf("delete approval: %w", err)
	}
	return nil
}

// ClearApprovals removes every remembered decision. Safe on empty state.
func (s *Store) ClearApprovals(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM approvals;`)
	if err != nil {
		return fmt.Errorf("clear approvals: %w", err)
	}
	return nil
}
