package models

import "time"

// Schema versions of the JSON blobs stored alongside relational rows.
// Bump when a field changes meaning; readers accept older versions.
const (
	SessionMetadataVersion = 1
	SprintResultVersion    = 1
	CheckpointStateVersion = 1
)

// Defaults applied to a new session when the caller leaves a tunable unset.
const (
	DefaultConfidenceThreshold = 0.8
	DefaultMaxSprints          = 10
	DefaultParallelSwarms      = 3
)

// SessionMetadata holds the tunables and progress markers of a session.
type SessionMetadata struct {
	SchemaVersion       int               `json:"schema_version"`
	ConfidenceThreshold float64           `json:"confidence_threshold"`
	MaxSprints          int               `json:"max_sprints"`
	ParallelSwarms      int               `json:"parallel_swarms"`
	Phase               string            `json:"phase,omitempty"`
	PhaseIterations     int               `json:"phase_iterations,omitempty"`
	Labels              map[string]string `json:"labels,omitempty"`
}

// WithDefaults fills unset tunables.
func (m SessionMetadata) WithDefaults() SessionMetadata {
	if m.SchemaVersion == 0 {
		m.SchemaVersion = SessionMetadataVersion
	}
	if m.ConfidenceThreshold <= 0 {
		m.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if m.MaxSprints <= 0 {
		m.MaxSprints = DefaultMaxSprints
	}
	if m.ParallelSwarms <= 0 {
		m.ParallelSwarms = DefaultParallelSwarms
	}
	return m
}

// Clone returns a copy that shares no map with m.
func (m SessionMetadata) Clone() SessionMetadata {
	if m.Labels != nil {
		labels := make(map[string]string, len(m.Labels))
		for k, v := range m.Labels {
			labels[k] = v
		}
		m.Labels = labels
	}
	return m
}

// SprintMetrics are the resource counters reported for one sprint.
type SprintMetrics struct {
	DurationMs  int64 `json:"duration_ms"`
	Tokens      int64 `json:"tokens"`
	Agents      int   `json:"agents"`
	MemoryBytes int64 `json:"memory_bytes"`
	Errors      int   `json:"errors"`
}

// SprintResult is the structured outcome attached to a finished sprint.
type SprintResult struct {
	SchemaVersion int              `json:"schema_version"`
	Success       bool             `json:"success"`
	Output        string           `json:"output,omitempty"`
	Artifacts     []string         `json:"artifacts,omitempty"`
	Metrics       SprintMetrics    `json:"metrics"`
	Score         *ConfidenceScore `json:"score,omitempty"`
}

// ConfidenceScore is a bounded value plus the inputs used to compute it.
type ConfidenceScore struct {
	Value       float64            `json:"value"`
	Level       string             `json:"level"`
	Factors     map[string]float64 `json:"factors,omitempty"`
	Weights     map[string]float64 `json:"weights,omitempty"`
	EvaluatedAt time.Time          `json:"evaluated_at"`
}

// CheckpointState is the serialized recoverable state of a session.
type CheckpointState struct {
	SchemaVersion int               `json:"schema_version"`
	Session       Session           `json:"session"`
	Sprints       []Sprint          `json:"sprints"`
	Artifacts     []Artifact        `json:"artifacts"`
	Memory        map[string]string `json:"memory"`
}
