package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fentz26/cadence/internal/models"
	"github.com/google/uuid"
)

const sessionColumns = `id, task_id, sprint_count, confidence_level, status, started_at, updated_at, completed_at, metadata`

// SessionUpdate carries the fields to change. Nil fields are left untouched.
type SessionUpdate struct {
	SprintCount     *int
	ConfidenceLevel *float64
	Status          *models.SessionStatus
	Metadata        *models.SessionMetadata

	// KeepTerminal ignores Status when the row is already terminal instead of
	// failing, so a late writer still records its counters.
	KeepTerminal bool
}

func scanSession(row scanner) (*models.Session, error) {
	var (
		sess        models.Session
		startedAt   int64
		updatedAt   int64
		completedAt sql.NullInt64
		metadata    string
	)
	if err := row.Scan(&sess.ID, &sess.TaskID, &sess.SprintCount, &sess.ConfidenceLevel, &sess.Status,
		&startedAt, &updatedAt, &completedAt, &metadata); err != nil {
		return nil, err
	}
	sess.StartedAt = fromNanos(startedAt)
	sess.UpdatedAt = fromNanos(updatedAt)
	sess.CompletedAt = timePtr(completedAt)
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &sess.Metadata); err != nil {
			return nil, fmt.Errorf("decode session metadata: %w", err)
		}
	}
	return &sess, nil
}

// CreateSession inserts a new active session with zero sprints and confidence.
func (s *Store) CreateSession(ctx context.Context, taskID string, meta models.SessionMetadata) (*models.Session, error) {
	const op = "create session"
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, invalid(op, "task id is required")
	}
	meta = meta.WithDefaults().Clone()
	if meta.ConfidenceThreshold > 1 {
		return nil, invalid(op, "confidence threshold %v outside [0,1]", meta.ConfidenceThreshold)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, invalid(op, "encode metadata: %v", err)
	}

	now := s.clock()
	sess := &models.Session{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Status:    models.SessionStatusActive,
		StartedAt: now,
		UpdatedAt: now,
		Metadata:  meta,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, task_id, sprint_count, confidence_level, status, started_at, updated_at, metadata)
		 VALUES (?, ?, 0, 0, ?, ?, ?, ?)`,
		sess.ID, sess.TaskID, sess.Status, toNanos(now), toNanos(now), string(metaJSON),
	)
	if err != nil {
		return nil, wrap(op, err)
	}
	return sess, nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get session", "session", id)
	}
	if err != nil {
		return nil, wrap("get session", err)
	}
	return sess, nil
}

// UpdateSession applies the supplied fields atomically and returns the new row.
// Status may only move from active to a terminal status; terminal statuses are
// final. The sprint counter never decreases.
func (s *Store) UpdateSession(ctx context.Context, id string, upd SessionUpdate) (*models.Session, error) {
	const op = "update session"
	if upd.ConfidenceLevel != nil && !inUnitRange(*upd.ConfidenceLevel) {
		return nil, invalid(op, "confidence %v outside [0,1]", *upd.ConfidenceLevel)
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, invalid(op, "unknown status %q", *upd.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap(op, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	sess, err := scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(op, "session", id)
	}
	if err != nil {
		return nil, wrap(op, err)
	}

	now := s.clock()
	if upd.Status != nil && sess.Status.Terminal() && upd.KeepTerminal {
		upd.Status = nil
	}
	if upd.Status != nil && *upd.Status != sess.Status {
		if sess.Status.Terminal() {
			return nil, invalid(op, "session %s is %s", id, sess.Status)
		}
		sess.Status = *upd.Status
		if sess.Status.Terminal() {
			sess.CompletedAt = &now
		}
	}
	if upd.SprintCount != nil {
		if *upd.SprintCount < sess.SprintCount {
			return nil, invalid(op, "sprint count may not decrease (%d -> %d)", sess.SprintCount, *upd.SprintCount)
		}
		sess.SprintCount = *upd.SprintCount
	}
	if upd.ConfidenceLevel != nil {
		sess.ConfidenceLevel = *upd.ConfidenceLevel
	}
	if upd.Metadata != nil {
		sess.Metadata = upd.Metadata.Clone()
	}
	sess.UpdatedAt = now

	metaJSON, err := json.Marshal(sess.Metadata)
	if err != nil {
		return nil, invalid(op, "encode metadata: %v", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET sprint_count = ?, confidence_level = ?, status = ?, updated_at = ?, completed_at = ?, metadata = ?
		 WHERE id = ?`,
		sess.SprintCount, sess.ConfidenceLevel, sess.Status, toNanos(now), nullNanos(sess.CompletedAt), string(metaJSON), id,
	)
	if err != nil {
		return nil, wrap(op, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap(op, fmt.Errorf("commit transaction: %w", err))
	}
	return sess, nil
}

// ListActiveSessions returns active sessions, most recently updated first.
func (s *Store) ListActiveSessions(ctx context.Context) ([]models.Session, error) {
	return s.ListSessions(ctx, models.SessionStatusActive)
}

// ListSessions returns sessions, optionally filtered by status, most recently
// updated first.
func (s *Store) ListSessions(ctx context.Context, status models.SessionStatus) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list sessions", err)
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, wrap("list sessions", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list sessions", err)
	}
	return sessions, nil
}

// DeleteSession removes a session and, through cascading foreign keys, its
// sprints, artifacts, checkpoints and memory.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return wrap("delete session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("delete session", err)
	}
	if n == 0 {
		return notFound("delete session", "session", id)
	}
	return nil
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}
