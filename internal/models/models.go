// Package models defines the core domain types for cadence.
package models

import "time"

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further status change is allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed || s == SessionStatusCancelled
}

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	return s == SessionStatusActive || s.Terminal()
}

// SprintStatus represents the lifecycle state of a sprint.
type SprintStatus string

const (
	SprintStatusPlanning  SprintStatus = "planning"
	SprintStatusExecuting SprintStatus = "executing"
	SprintStatusCompleted SprintStatus = "completed"
	SprintStatusFailed    SprintStatus = "failed"
)

// Terminal reports whether the sprint has finished.
func (s SprintStatus) Terminal() bool {
	return s == SprintStatusCompleted || s == SprintStatusFailed
}

// Valid reports whether s is a known sprint status.
func (s SprintStatus) Valid() bool {
	switch s {
	case SprintStatusPlanning, SprintStatusExecuting, SprintStatusCompleted, SprintStatusFailed:
		return true
	}
	return false
}

// ArtifactType classifies what an artifact points at.
type ArtifactType string

const (
	ArtifactFile      ArtifactType = "file"
	ArtifactDirectory ArtifactType = "directory"
	ArtifactCommand   ArtifactType = "command"
	ArtifactMemory    ArtifactType = "memory"
)

// Valid reports whether t is a known artifact type.
func (t ArtifactType) Valid() bool {
	switch t {
	case ArtifactFile, ArtifactDirectory, ArtifactCommand, ArtifactMemory:
		return true
	}
	return false
}

// Session is one end-to-end task-solving run, composed of sequential sprints.
type Session struct {
	ID              string          `json:"id"`
	TaskID          string          `json:"task_id"`
	SprintCount     int             `json:"sprint_count"`
	ConfidenceLevel float64         `json:"confidence_level"`
	Status          SessionStatus   `json:"status"`
	StartedAt       time.Time       `json:"started_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	Metadata        SessionMetadata `json:"metadata"`
}

// Sprint is one bounded execution cycle within a session.
type Sprint struct {
	ID           string        `json:"id"`
	SessionID    string        `json:"session_id"`
	SprintNumber int           `json:"sprint_number"`
	Objective    string        `json:"objective"`
	Confidence   float64       `json:"confidence"`
	Status       SprintStatus  `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Result       *SprintResult `json:"result,omitempty"`
}

// Artifact is a file, directory, command or memory record produced by a sprint.
type Artifact struct {
	ID        string       `json:"id"`
	SprintID  string       `json:"sprint_id"`
	Type      ArtifactType `json:"type"`
	Path      string       `json:"path"`
	Content   string       `json:"content,omitempty"`
	Checksum  string       `json:"checksum,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Checkpoint is an immutable snapshot of a session's recoverable state.
type Checkpoint struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	SprintID    string          `json:"sprint_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	State       CheckpointState `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`
}

// MemoryEntry is one key of a session's external memory.
type MemoryEntry struct {
	SessionID string    `json:"session_id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuditEntry records a state-mutating control decision.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	SessionID  string    `json:"session_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
