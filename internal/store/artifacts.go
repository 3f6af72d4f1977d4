package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/fentz26/cadence/internal/models"
	"github.com/google/uuid"
)

const artifactColumns = `id, sprint_id, type, path, content, checksum, created_at`

func scanArtifact(row scanner) (*models.Artifact, error) {
	var (
		a         models.Artifact
		content   sql.NullString
		checksum  sql.NullString
		createdAt int64
	)
	if err := row.Scan(&a.ID, &a.SprintID, &a.Type, &a.Path, &content, &checksum, &createdAt); err != nil {
		return nil, err
	}
	a.Content = content.String
	a.Checksum = checksum.String
	a.CreatedAt = fromNanos(createdAt)
	return &a, nil
}

// SaveArtifact records an artifact produced by a sprint. When content is
// present and no checksum was supplied, a sha256 checksum is computed.
func (s *Store) SaveArtifact(ctx context.Context, a models.Artifact) (*models.Artifact, error) {
	const op = "save artifact"
	if !a.Type.Valid() {
		return nil, invalid(op, "unknown artifact type %q", a.Type)
	}
	if strings.TrimSpace(a.Path) == "" {
		return nil, invalid(op, "path is required")
	}
	if a.SprintID == "" {
		return nil, invalid(op, "sprint id is required")
	}

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Checksum == "" && a.Content != "" {
		sum := sha256.Sum256([]byte(a.Content))
		a.Checksum = "sha256:" + hex.EncodeToString(sum[:])
	}
	a.CreatedAt = s.clock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, sprint_id, type, path, content, checksum, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SprintID, a.Type, a.Path, nullString(a.Content), nullString(a.Checksum), toNanos(a.CreatedAt),
	)
	if err != nil {
		return nil, wrap(op, err)
	}
	return &a, nil
}

// GetArtifact retrieves an artifact by ID.
func (s *Store) GetArtifact(ctx context.Context, id string) (*models.Artifact, error) {
	a, err := scanArtifact(s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get artifact", "artifact", id)
	}
	if err != nil {
		return nil, wrap("get artifact", err)
	}
	return a, nil
}

// GetArtifactsBySprint returns a sprint's artifacts in creation order.
func (s *Store) GetArtifactsBySprint(ctx context.Context, sprintID string) ([]models.Artifact, error) {
	return queryArtifacts(ctx, s.db, sprintID)
}

func queryArtifacts(ctx context.Context, q querier, sprintID string) ([]models.Artifact, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE sprint_id = ? ORDER BY created_at ASC, rowid ASC`, sprintID)
	if err != nil {
		return nil, wrap("list artifacts", err)
	}
	defer rows.Close()

	artifacts := []models.Artifact{}
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, wrap("list artifacts", fmt.Errorf("scan artifact: %w", err))
		}
		artifacts = append(artifacts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list artifacts", err)
	}
	return artifacts, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
