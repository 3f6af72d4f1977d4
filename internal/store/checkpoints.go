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

const checkpointColumns = `id, session_id, sprint_id, name, description, state, created_at`

func scanCheckpoint(row scanner) (*models.Checkpoint, error) {
	var (
		cp          models.Checkpoint
		description sql.NullString
		state       string
		createdAt   int64
	)
	if err := row.Scan(&cp.ID, &cp.SessionID, &cp.SprintID, &cp.Name, &description, &state, &createdAt); err != nil {
		return nil, err
	}
	cp.Description = description.String
	cp.CreatedAt = fromNanos(createdAt)
	if err := json.Unmarshal([]byte(state), &cp.State); err != nil {
		return nil, fmt.Errorf("decode checkpoint state: %w", err)
	}
	return &cp, nil
}

// Snapshot reads, inside one transaction, the session, all of its sprints and
// the artifacts of the referenced sprint. The sprint must belong to the session.
func (s *Store) Snapshot(ctx context.Context, sessionID, sprintID string) (*models.CheckpointState, error) {
	const op = "snapshot"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap(op, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	sess, err := scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(op, "session", sessionID)
	}
	if err != nil {
		return nil, wrap(op, err)
	}

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT session_id FROM sprints WHERE id = ?`, sprintID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(op, "sprint", sprintID)
	}
	if err != nil {
		return nil, wrap(op, err)
	}
	if owner != sessionID {
		return nil, invalid(op, "sprint %s does not belong to session %s", sprintID, sessionID)
	}

	sprints, err := querySprints(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	artifacts, err := queryArtifacts(ctx, tx, sprintID)
	if err != nil {
		return nil, err
	}
	memory, err := queryMemory(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, wrap(op, fmt.Errorf("commit transaction: %w", err))
	}
	return &models.CheckpointState{
		SchemaVersion: models.CheckpointStateVersion,
		Session:       *sess,
		Sprints:       sprints,
		Artifacts:     artifacts,
		Memory:        memory,
	}, nil
}

// CreateCheckpoint persists an immutable checkpoint. The state is serialised
// before the transaction starts, so an encoding failure writes nothing.
func (s *Store) CreateCheckpoint(ctx context.Context, cp models.Checkpoint) (*models.Checkpoint, error) {
	const op = "create checkpoint"
	if strings.TrimSpace(cp.Name) == "" {
		return nil, invalid(op, "name is required")
	}
	if cp.SessionID == "" || cp.SprintID == "" {
		return nil, invalid(op, "session id and sprint id are required")
	}
	if cp.State.SchemaVersion == 0 {
		cp.State.SchemaVersion = models.CheckpointStateVersion
	}
	state, err := json.Marshal(cp.State)
	if err != nil {
		return nil, invalid(op, "encode state: %v", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap(op, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT session_id FROM sprints WHERE id = ?`, cp.SprintID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(op, "sprint", cp.SprintID)
	}
	if err != nil {
		return nil, wrap(op, err)
	}
	if owner != cp.SessionID {
		return nil, invalid(op, "sprint %s does not belong to session %s", cp.SprintID, cp.SessionID)
	}

	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	cp.CreatedAt = s.clock()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (id, session_id, sprint_id, name, description, state, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.SessionID, cp.SprintID, cp.Name, nullString(cp.Description), string(state), toNanos(cp.CreatedAt),
	)
	if err != nil {
		return nil, wrap(op, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap(op, fmt.Errorf("commit transaction: %w", err))
	}
	return &cp, nil
}

// LoadCheckpoint retrieves a checkpoint and decodes its state.
func (s *Store) LoadCheckpoint(ctx context.Context, id string) (*models.Checkpoint, error) {
	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx, `SELECT `+checkpointColumns+` FROM checkpoints WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("load checkpoint", "checkpoint", id)
	}
	if err != nil {
		return nil, wrap("load checkpoint", err)
	}
	return cp, nil
}

// LoadCheckpointRaw returns the stored state bytes without decoding them.
func (s *Store) LoadCheckpointRaw(ctx context.Context, id string) (models.Checkpoint, []byte, error) {
	var (
		cp          models.Checkpoint
		description sql.NullString
		state       string
		createdAt   int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+checkpointColumns+` FROM checkpoints WHERE id = ?`, id).
		Scan(&cp.ID, &cp.SessionID, &cp.SprintID, &cp.Name, &description, &state, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cp, nil, notFound("load checkpoint", "checkpoint", id)
	}
	if err != nil {
		return cp, nil, wrap("load checkpoint", err)
	}
	cp.Description = description.String
	cp.CreatedAt = fromNanos(createdAt)
	return cp, []byte(state), nil
}

// CheckpointExists reports whether a checkpoint row is still present.
func (s *Store) CheckpointExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM checkpoints WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap("checkpoint exists", err)
	}
	return true, nil
}

// ListCheckpoints returns a session's checkpoints, newest first.
func (s *Store) ListCheckpoints(ctx context.Context, sessionID string) ([]models.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE session_id = ? ORDER BY created_at DESC, rowid DESC`, sessionID)
	if err != nil {
		return nil, wrap("list checkpoints", err)
	}
	defer rows.Close()

	checkpoints := []models.Checkpoint{}
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, wrap("list checkpoints", err)
		}
		checkpoints = append(checkpoints, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list checkpoints", err)
	}
	return checkpoints, nil
}
