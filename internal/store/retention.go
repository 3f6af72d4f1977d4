package store

import (
	"context"
	"fmt"
	"time"
)

// CleanupOldSessions deletes completed, failed and cancelled sessions whose
// last update is older than maxAge, cascading to their sprints, artifacts,
// checkpoints and memory. The age predicate is evaluated by the DELETE itself,
// so a session that was touched concurrently is left alone. Returns the number
// of sessions removed.
func (s *Store) CleanupOldSessions(ctx context.Context, maxAge time.Duration) (int64, error) {
	const op = "cleanup sessions"
	if maxAge < 0 {
		return 0, invalid(op, "max age %s is negative", maxAge)
	}
	cutoff := toNanos(s.clock().Add(-maxAge))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrap(op, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE status IN ('completed', 'failed', 'cancelled') AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap(op, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, wrap(op, fmt.Errorf("commit transaction: %w", err))
	}
	if n > 0 {
		s.logger.Info("old sessions removed", "count", n, "max_age", maxAge.String())
	}
	return n, nil
}

// CleanupOldCheckpoints deletes checkpoints created before now-maxAge,
// regardless of session status.
func (s *Store) CleanupOldCheckpoints(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.deleteOlder(ctx, "cleanup checkpoints", "checkpoints", maxAge)
}

// PurgeAuditLog deletes audit rows older than maxAge.
func (s *Store) PurgeAuditLog(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.deleteOlder(ctx, "purge audit log", "audit_log", maxAge)
}

func (s *Store) deleteOlder(ctx context.Context, op, table string, maxAge time.Duration) (int64, error) {
	if maxAge < 0 {
		return 0, invalid(op, "max age %s is negative", maxAge)
	}
	cutoff := toNanos(s.clock().Add(-maxAge))
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap(op, err)
	}
	if n > 0 {
		s.logger.Info("old rows removed", "table", table, "count", n)
	}
	return n, nil
}

// Vacuum reclaims free pages.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return wrap("vacuum", err)
	}
	return nil
}
