package store

import (
	"context"
	"database/sql"

	"github.com/fentz26/cadence/internal/models"
	"github.com/google/uuid"
)

// WriteAudit records a decision for a state-mutating action.
func (s *Store) WriteAudit(ctx context.Context, action, inputsHash, outcome, sessionID, details string) (*models.AuditEntry, error) {
	entry := &models.AuditEntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		SessionID:  sessionID,
		Details:    details,
		CreatedAt:  s.clock(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, action, inputs_hash, outcome, session_id, details, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, entry.InputsHash, entry.Outcome, nullString(sessionID), nullString(details), toNanos(entry.CreatedAt),
	)
	if err != nil {
		return nil, wrap("write audit", err)
	}
	return entry, nil
}

// ListAudit returns audit rows, newest first. An empty sessionID lists all rows.
func (s *Store) ListAudit(ctx context.Context, sessionID string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, action, inputs_hash, outcome, session_id, details, created_at FROM audit_log`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list audit", err)
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var (
			e         models.AuditEntry
			session   sql.NullString
			details   sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &session, &details, &createdAt); err != nil {
			return nil, wrap("list audit", err)
		}
		e.SessionID = session.String
		e.Details = details.String
		e.CreatedAt = fromNanos(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list audit", err)
	}
	return entries, nil
}
