// Package retention deletes aged sessions, checkpoints and audit rows, on
// demand or on a schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config defines the retention windows. A zero window disables that step,
// except MaxAge which always applies.
type Config struct {
	MaxAge           time.Duration `mapstructure:"max_age" yaml:"max_age"`
	CheckpointMaxAge time.Duration `mapstructure:"checkpoint_max_age" yaml:"checkpoint_max_age"`
	AuditMaxAge      time.Duration `mapstructure:"audit_max_age" yaml:"audit_max_age"`
	Vacuum           bool          `mapstructure:"vacuum" yaml:"vacuum"`
	Schedule         string        `mapstructure:"schedule" yaml:"schedule"`
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() Config {
	return Config{
		MaxAge:      30 * 24 * time.Hour,
		AuditMaxAge: 90 * 24 * time.Hour,
		Schedule:    "@every 1h",
	}
}

// Store is the subset of *store.Store used by the policy.
type Store interface {
	CleanupOldSessions(ctx context.Context, maxAge time.Duration) (int64, error)
	CleanupOldCheckpoints(ctx context.Context, maxAge time.Duration) (int64, error)
	PurgeAuditLog(ctx context.Context, maxAge time.Duration) (int64, error)
	Vacuum(ctx context.Context) error
}

// Result reports what one run removed.
type Result struct {
	Sessions    int64         `json:"sessions"`
	Checkpoints int64         `json:"checkpoints"`
	AuditRows   int64         `json:"audit_rows"`
	Vacuumed    bool          `json:"vacuumed"`
	Duration    time.Duration `json:"duration"`
}

// Deleted reports whether the run removed any row.
func (r Result) Deleted() bool {
	return r.Sessions+r.Checkpoints+r.AuditRows > 0
}

// Hook is called after every successful run.
type Hook func(ctx context.Context, r Result)

// Policy runs the cleanup steps in order: sessions, checkpoints, audit log,
// then vacuum. Running it twice in a row deletes nothing the second time.
type Policy struct {
	store  Store
	cfg    Config
	logger *slog.Logger
	hooks  []Hook
}

// NewPolicy creates a policy.
func NewPolicy(st Store, cfg Config, logger *slog.Logger, hooks ...Hook) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{store: st, cfg: cfg, logger: logger, hooks: hooks}
}

// Config returns the policy's configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// Run executes one cleanup pass.
func (p *Policy) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result
	var err error

	if res.Sessions, err = p.store.CleanupOldSessions(ctx, p.cfg.MaxAge); err != nil {
		return res, fmt.Errorf("cleanup sessions: %w", err)
	}
	if p.cfg.CheckpointMaxAge > 0 {
		if res.Checkpoints, err = p.store.CleanupOldCheckpoints(ctx, p.cfg.CheckpointMaxAge); err != nil {
			return res, fmt.Errorf("cleanup checkpoints: %w", err)
		}
	}
	if p.cfg.AuditMaxAge > 0 {
		if res.AuditRows, err = p.store.PurgeAuditLog(ctx, p.cfg.AuditMaxAge); err != nil {
			return res, fmt.Errorf("purge audit log: %w", err)
		}
	}
	if p.cfg.Vacuum {
		if err := p.store.Vacuum(ctx); err != nil {
			return res, fmt.Errorf("vacuum: %w", err)
		}
		res.Vacuumed = true
	}
	res.Duration = time.Since(start)

	if res.Deleted() {
		p.logger.Info("retention run completed",
			"sessions", res.Sessions,
			"checkpoints", res.Checkpoints,
			"audit_rows", res.AuditRows,
			"vacuumed", res.Vacuumed,
			"duration", res.Duration,
		)
	}
	for _, h := range p.hooks {
		h(ctx, res)
	}
	return res, nil
}
