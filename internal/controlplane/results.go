package controlplane

import (
	"time"

	"github.com/fentz26/cadence/internal/confidence"
	"github.com/fentz26/cadence/internal/models"
	"github.com/fentz26/cadence/internal/phase"
)

// InitResult is returned by init.
type InitResult struct {
	SessionID string               `json:"session_id"`
	Status    models.SessionStatus `json:"status"`
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID                  string               `json:"id"`
	TaskID              string               `json:"task_id"`
	Status              models.SessionStatus `json:"status"`
	Phase               string               `json:"phase"`
	SprintCount         int                  `json:"sprint_count"`
	MaxSprints          int                  `json:"max_sprints"`
	ConfidenceLevel     float64              `json:"confidence_level"`
	ConfidenceThreshold float64              `json:"confidence_threshold"`
	Level               string               `json:"level"`
	StartedAt           time.Time            `json:"started_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
	CompletedAt         *time.Time           `json:"completed_at,omitempty"`
}

func summarize(s models.Session) SessionSummary {
	p := s.Metadata.Phase
	if p == "" {
		p = string(phase.Planning)
	}
	return SessionSummary{
		ID:                  s.ID,
		TaskID:              s.TaskID,
		Status:              s.Status,
		Phase:               p,
		SprintCount:         s.SprintCount,
		MaxSprints:          s.Metadata.MaxSprints,
		ConfidenceLevel:     s.ConfidenceLevel,
		ConfidenceThreshold: s.Metadata.ConfidenceThreshold,
		Level:               confidence.LevelFor(s.ConfidenceLevel).String(),
		StartedAt:           s.StartedAt,
		UpdatedAt:           s.UpdatedAt,
		CompletedAt:         s.CompletedAt,
	}
}

// StatusResult is returned by status. Sprints is set when verbose.
type StatusResult struct {
	Session SessionSummary  `json:"session"`
	Sprints []models.Sprint `json:"sprints,omitempty"`
}

// SprintResult is returned by sprint.
type SprintResult struct {
	SprintID       string              `json:"sprint_id"`
	SprintNumber   int                 `json:"sprint_number"`
	Status         models.SprintStatus `json:"status"`
	Confidence     float64             `json:"confidence"`
	Level          string              `json:"level"`
	ShouldContinue bool                `json:"should_continue"`
	Phase          phase.Phase         `json:"phase"`
	Decision       phase.Decision      `json:"decision"`
	CheckpointID   string              `json:"checkpoint_id,omitempty"`
}

// CheckpointResult is returned by checkpoint.
type CheckpointResult struct {
	CheckpointID string    `json:"checkpoint_id"`
	SessionID    string    `json:"session_id"`
	SprintID     string    `json:"sprint_id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
}

// RestoreResult is returned by restore.
type RestoreResult struct {
	SessionID    string                 `json:"session_id"`
	CheckpointID string                 `json:"checkpoint_id"`
	Name         string                 `json:"name"`
	State        models.CheckpointState `json:"state"`
}

// CheckpointSummary is the listing view of a checkpoint.
type CheckpointSummary struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	SprintID    string    `json:"sprint_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListResult is returned by list. Only the requested slice is set.
type ListResult struct {
	Type        ListType            `json:"type"`
	Sessions    []SessionSummary    `json:"sessions,omitempty"`
	Checkpoints []CheckpointSummary `json:"checkpoints,omitempty"`
}

// CancelResult is returned by cancel.
type CancelResult struct {
	SessionID string               `json:"session_id"`
	Status    models.SessionStatus `json:"status"`
	Cancelled bool                 `json:"cancelled"`
}

// MetricsResult aggregates the sprints of a session.
type MetricsResult struct {
	SessionID         string  `json:"session_id"`
	TotalSprints      int     `json:"total_sprints"`
	CompletedSprints  int     `json:"completed_sprints"`
	FailedSprints     int     `json:"failed_sprints"`
	AverageConfidence float64 `json:"average_confidence"`
	MaxConfidence     float64 `json:"max_confidence"`
	TotalDurationMs   int64   `json:"total_duration_ms"`
	TotalTokens       int64   `json:"total_tokens"`
	TotalErrors       int     `json:"total_errors"`

	// Score folds the aggregates through the outcome factor weights.
	Score     *models.ConfidenceScore `json:"score,omitempty"`
	Resources *ResourceMetrics        `json:"resources,omitempty"`
}

// ResourceMetrics are the agent and memory aggregates of a session.
type ResourceMetrics struct {
	TotalAgents      int   `json:"total_agents"`
	PeakAgents       int   `json:"peak_agents"`
	TotalMemoryBytes int64 `json:"total_memory_bytes"`
	PeakMemoryBytes  int64 `json:"peak_memory_bytes"`
}
