package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/fentz26/cadence/internal/models"
)

// SetMemory upserts one key of a session's external memory.
func (s *Store) SetMemory(ctx context.Context, sessionID, key, value string) (*models.MemoryEntry, error) {
	const op = "set memory"
	if strings.TrimSpace(key) == "" {
		return nil, invalid(op, "key is required")
	}
	now := s.clock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_memory (session_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		sessionID, key, value, toNanos(now),
	)
	if err != nil {
		return nil, wrap(op, err)
	}
	return &models.MemoryEntry{SessionID: sessionID, Key: key, Value: value, UpdatedAt: now}, nil
}

// GetMemory returns one memory value.
func (s *Store) GetMemory(ctx context.Context, sessionID, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM session_memory WHERE session_id = ? AND key = ?`, sessionID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("get memory", "memory key", key)
	}
	if err != nil {
		return "", wrap("get memory", err)
	}
	return value, nil
}

// Memory returns all keys of a session's external memory.
func (s *Store) Memory(ctx context.Context, sessionID string) (map[string]string, error) {
	return queryMemory(ctx, s.db, sessionID)
}

// DeleteMemory removes one key. Deleting an absent key is not an error.
func (s *Store) DeleteMemory(ctx context.Context, sessionID, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_memory WHERE session_id = ? AND key = ?`, sessionID, key); err != nil {
		return wrap("delete memory", err)
	}
	return nil
}

func queryMemory(ctx context.Context, q querier, sessionID string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM session_memory WHERE session_id = ? ORDER BY key`, sessionID)
	if err != nil {
		return nil, wrap("list memory", err)
	}
	defer rows.Close()

	memory := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, wrap("list memory", err)
		}
		memory[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list memory", err)
	}
	return memory, nil
}
