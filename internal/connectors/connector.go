// Package connectors defines the contract with the external execution engine
// that carries out a sprint.
package connectors

import (
	"context"
	"time"
)

// Limits bound one execution.
type Limits struct {
	Timeout      time.Duration `json:"timeout"`
	MaxTokens    int64         `json:"max_tokens,omitempty"`
	MaxAgents    int           `json:"max_agents,omitempty"`
	MaxMemoryMB  int64         `json:"max_memory_mb,omitempty"`
	SprintNumber int           `json:"sprint_number"`
	SessionID    string        `json:"session_id"`
}

// Job is what the engine is asked to do.
type Job struct {
	Task      string `json:"task"`
	Objective string `json:"objective"`
	Limits    Limits `json:"limits"`
}

// Outcome is what the engine reports back. Only Success and Output feed the
// confidence score; the counters are recorded as sprint metrics.
type Outcome struct {
	Success     bool          `json:"success"`
	Output      string        `json:"output"`
	ExitCode    int           `json:"exit_code"`
	Duration    time.Duration `json:"duration"`
	Tokens      int64         `json:"tokens,omitempty"`
	Agents      int           `json:"agents,omitempty"`
	MemoryBytes int64         `json:"memory_bytes,omitempty"`
	Errors      int           `json:"errors,omitempty"`
	Artifacts   []string      `json:"artifacts,omitempty"`
}

// Executor runs jobs.
type Executor interface {
	// Name returns the executor identifier.
	Name() string

	// Execute runs the job. A failed run is an Outcome with Success false;
	// an error means the engine could not be run at all.
	Execute(ctx context.Context, job Job) (*Outcome, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, job Job) (*Outcome, error)

// Name returns "func".
func (f ExecutorFunc) Name() string { return "func" }

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, job Job) (*Outcome, error) {
	return f(ctx, job)
}
