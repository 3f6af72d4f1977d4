package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fentz26/cadence/internal/models"
	"github.com/google/uuid"
)

const sprintColumns = `id, session_id, sprint_number, objective, confidence, status, started_at, completed_at, result`

// SprintUpdate carries the fields to change. Nil fields are left untouched.
type SprintUpdate struct {
	Objective  *string
	Confidence *float64
	Status     *models.SprintStatus
	Result     *models.SprintResult
}

func scanSprint(row scanner) (*models.Sprint, error) {
	var (
		sp          models.Sprint
		startedAt   int64
		completedAt sql.NullInt64
		result      sql.NullString
	)
	if err := row.Scan(&sp.ID, &sp.SessionID, &sp.SprintNumber, &sp.Objective, &sp.Confidence, &sp.Status,
		&startedAt, &completedAt, &result); err != nil {
		return nil, err
	}
	sp.StartedAt = fromNanos(startedAt)
	sp.CompletedAt = timePtr(completedAt)
	if result.Valid && result.String != "" {
		var r models.SprintResult
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, fmt.Errorf("decode sprint result: %w", err)
		}
		sp.Result = &r
	}
	return &sp, nil
}

// CreateSprint appends a sprint to an active session. The sprint number is
// derived from the existing count inside the same immediate transaction as the
// insert, and UNIQUE(session_id, sprint_number) rejects any duplicate.
func (s *Store) CreateSprint(ctx context.Context, sessionID, objective string) (*models.Sprint, error) {
	const op = "create sprint"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap(op, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	var status models.SessionStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, sessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		// A dangling session reference is a referential failure.
		return nil, &OpError{Op: op, Kind: ErrConstraint, Err: fmt.Errorf("session %q: %w", sessionID, ErrNotFound)}
	}
	if err != nil {
		return nil, wrap(op, err)
	}
	if status != models.SessionStatusActive {
		return nil, &OpError{Op: op, Kind: ErrSessionInactive, Err: fmt.Errorf("session %q is %s", sessionID, status)}
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sprints WHERE session_id = ?`, sessionID).Scan(&count); err != nil {
		return nil, wrap(op, err)
	}

	now := s.clock()
	sp := &models.Sprint{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		SprintNumber: count + 1,
		Objective:    objective,
		Status:       models.SprintStatusPlanning,
		StartedAt:    now,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sprints (id, session_id, sprint_number, objective, confidence, status, started_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		sp.ID, sp.SessionID, sp.SprintNumber, sp.Objective, sp.Status, toNanos(now),
	)
	if err != nil {
		return nil, wrap(op, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap(op, fmt.Errorf("commit transaction: %w", err))
	}
	return sp, nil
}

// GetSprint retrieves a sprint by ID.
func (s *Store) GetSprint(ctx context.Context, id string) (*models.Sprint, error) {
	sp, err := scanSprint(s.db.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get sprint", "sprint", id)
	}
	if err != nil {
		return nil, wrap("get sprint", err)
	}
	return sp, nil
}

// UpdateSprint applies the supplied fields. Status moves forward only, from
// planning through executing to completed or failed. A terminal sprint is
// immutable; completed_at is set when the sprint enters a terminal status.
func (s *Store) UpdateSprint(ctx context.Context, id string, upd SprintUpdate) (*models.Sprint, error) {
	const op = "update sprint"
	if upd.Confidence != nil && !inUnitRange(*upd.Confidence) {
		return nil, invalid(op, "confidence %v outside [0,1]", *upd.Confidence)
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, invalid(op, "unknown status %q", *upd.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap(op, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	sp, err := scanSprint(tx.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(op, "sprint", id)
	}
	if err != nil {
		return nil, wrap(op, err)
	}
	if sp.Status.Terminal() {
		return nil, invalid(op, "sprint %s is %s", id, sp.Status)
	}
	if upd.Status != nil {
		switch {
		case sp.Status == models.SprintStatusPlanning && upd.Status.Terminal():
			return nil, invalid(op, "sprint %s must be executing before it is %s", id, *upd.Status)
		case sp.Status == models.SprintStatusExecuting && *upd.Status == models.SprintStatusPlanning:
			return nil, invalid(op, "sprint %s cannot return to planning", id)
		}
	}

	if upd.Objective != nil {
		sp.Objective = *upd.Objective
	}
	if upd.Confidence != nil {
		sp.Confidence = *upd.Confidence
	}
	if upd.Result != nil {
		r := *upd.Result
		if r.SchemaVersion == 0 {
			r.SchemaVersion = models.SprintResultVersion
		}
		sp.Result = &r
	}
	if upd.Status != nil {
		sp.Status = *upd.Status
		if sp.Status.Terminal() {
			now := s.clock()
			sp.CompletedAt = &now
		}
	}

	var result sql.NullString
	if sp.Result != nil {
		b, err := json.Marshal(sp.Result)
		if err != nil {
			return nil, invalid(op, "encode result: %v", err)
		}
		result = sql.NullString{String: string(b), Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sprints SET objective = ?, confidence = ?, status = ?, completed_at = ?, result = ? WHERE id = ?`,
		sp.Objective, sp.Confidence, sp.Status, nullNanos(sp.CompletedAt), result, id,
	)
	if err != nil {
		return nil, wrap(op, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap(op, fmt.Errorf("commit transaction: %w", err))
	}
	return sp, nil
}

// GetSprintsBySession returns a session's sprints ordered by sprint number.
func (s *Store) GetSprintsBySession(ctx context.Context, sessionID string) ([]models.Sprint, error) {
	return querySprints(ctx, s.db, sessionID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func querySprints(ctx context.Context, q querier, sessionID string) ([]models.Sprint, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+sprintColumns+` FROM sprints WHERE session_id = ? ORDER BY sprint_number ASC`, sessionID)
	if err != nil {
		return nil, wrap("list sprints", err)
	}
	defer rows.Close()

	sprints := []models.Sprint{}
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, wrap("list sprints", err)
		}
		sprints = append(sprints, *sp)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list sprints", err)
	}
	return sprints, nil
}
