// Package checkpoint takes and restores named snapshots of a session.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/fentz26/cadence/internal/models"
	"github.com/fentz26/cadence/internal/store"
)

const (
	DefaultCacheExpiration = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// ErrInvalidName is returned for an empty checkpoint name.
var ErrInvalidName = errors.New("checkpoint name is required")

// ErrNoSprint is returned by CheckpointLatest when the session has no sprint yet.
var ErrNoSprint = errors.New("session has no sprint to checkpoint against")

// Repository is the persistence the manager needs. *store.Store satisfies it.
type Repository interface {
	Snapshot(ctx context.Context, sessionID, sprintID string) (*models.CheckpointState, error)
	CreateCheckpoint(ctx context.Context, cp models.Checkpoint) (*models.Checkpoint, error)
	LoadCheckpointRaw(ctx context.Context, id string) (models.Checkpoint, []byte, error)
	CheckpointExists(ctx context.Context, id string) (bool, error)
	ListCheckpoints(ctx context.Context, sessionID string) ([]models.Checkpoint, error)
	GetSprintsBySession(ctx context.Context, sessionID string) ([]models.Sprint, error)
}

// Restored is the result of a restore: checkpoint metadata plus a private
// copy of the captured state.
type Restored struct {
	Checkpoint models.Checkpoint      `json:"checkpoint"`
	State      models.CheckpointState `json:"state"`
}

type cached struct {
	meta models.Checkpoint
	raw  []byte
}

// Manager creates and restores checkpoints. Checkpoints are immutable, so the
// encoded state of restored checkpoints is cached by id. Rows can still be
// deleted by retention in another process, so a cache hit is served only
// while the row exists.
type Manager struct {
	repo   Repository
	cache  *gocache.Cache
	logger *slog.Logger
}

// NewManager creates a manager. A zero expiration uses DefaultCacheExpiration.
func NewManager(repo Repository, logger *slog.Logger, expiration time.Duration) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if expiration <= 0 {
		expiration = DefaultCacheExpiration
	}
	return &Manager{
		repo:   repo,
		cache:  gocache.New(expiration, DefaultCleanupInterval),
		logger: logger,
	}
}

// Checkpoint captures the session, its sprints, the referenced sprint's
// artifacts and the session memory, and stores them under name.
func (m *Manager) Checkpoint(ctx context.Context, sessionID, sprintID, name, description string) (*models.Checkpoint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	state, err := m.repo.Snapshot(ctx, sessionID, sprintID)
	if err != nil {
		return nil, fmt.Errorf("snapshot session %s: %w", sessionID, err)
	}

	cp, err := m.repo.CreateCheckpoint(ctx, models.Checkpoint{
		SessionID:   sessionID,
		SprintID:    sprintID,
		Name:        name,
		Description: description,
		State:       *state,
	})
	if err != nil {
		return nil, fmt.Errorf("persist checkpoint: %w", err)
	}
	m.logger.Info("checkpoint created", "checkpoint_id", cp.ID, "session_id", sessionID, "sprint_id", sprintID, "name", name)
	return cp, nil
}

// CheckpointLatest checkpoints against the session's highest-numbered sprint.
func (m *Manager) CheckpointLatest(ctx context.Context, sessionID, name, description string) (*models.Checkpoint, error) {
	sprints, err := m.repo.GetSprintsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list sprints: %w", err)
	}
	if len(sprints) == 0 {
		return nil, ErrNoSprint
	}
	return m.Checkpoint(ctx, sessionID, sprints[len(sprints)-1].ID, name, description)
}

// Restore returns the state captured by a checkpoint. The live session is not
// touched, and each call returns a fresh copy the caller may modify.
func (m *Manager) Restore(ctx context.Context, checkpointID string) (*Restored, error) {
	entry, err := m.load(ctx, checkpointID)
	if err != nil {
		return nil, err
	}

	var state models.CheckpointState
	if err := json.Unmarshal(entry.raw, &state); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", checkpointID, err)
	}
	if state.SchemaVersion > models.CheckpointStateVersion {
		return nil, fmt.Errorf("checkpoint %s has schema version %d, newer than supported %d",
			checkpointID, state.SchemaVersion, models.CheckpointStateVersion)
	}
	if state.Memory == nil {
		state.Memory = map[string]string{}
	}

	meta := entry.meta
	meta.State = state
	return &Restored{Checkpoint: meta, State: state}, nil
}

// Latest restores the newest checkpoint of a session. It returns an error
// matching store.ErrNotFound when the session has none.
func (m *Manager) Latest(ctx context.Context, sessionID string) (*Restored, error) {
	list, err := m.repo.ListCheckpoints(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: session %s has no checkpoints", store.ErrNotFound, sessionID)
	}
	return m.Restore(ctx, list[0].ID)
}

// List returns a session's checkpoints, newest first.
func (m *Manager) List(ctx context.Context, sessionID string) ([]models.Checkpoint, error) {
	return m.repo.ListCheckpoints(ctx, sessionID)
}

// Flush drops every cached checkpoint. Called after in-process retention
// deletes rows.
func (m *Manager) Flush() {
	m.cache.Flush()
}

// Cached reports how many checkpoints the restore cache holds.
func (m *Manager) Cached() int {
	return m.cache.ItemCount()
}

func (m *Manager) load(ctx context.Context, id string) (cached, error) {
	if v, ok := m.cache.Get(id); ok {
		if entry, ok := v.(cached); ok {
			exists, err := m.repo.CheckpointExists(ctx, id)
			if err != nil {
				return cached{}, fmt.Errorf("load checkpoint %s: %w", id, err)
			}
			if exists {
				m.logger.Debug("checkpoint cache hit", "checkpoint_id", id)
				return entry, nil
			}
			m.cache.Delete(id)
		}
	}

	meta, raw, err := m.repo.LoadCheckpointRaw(ctx, id)
	if err != nil {
		return cached{}, fmt.Errorf("load checkpoint %s: %w", id, err)
	}
	entry := cached{meta: meta, raw: raw}
	m.cache.SetDefault(id, entry)
	return entry, nil
}
