// Package migrate applies versioned DDL to a SQL database and records each
// applied version in a ledger table.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// LedgerTable is the name of the version ledger.
const LedgerTable = "migrations"

// ErrInvalidPlan is returned when the migration list is unsorted, has duplicate
// versions, or contains a non-positive version. Nothing is applied in that case.
var ErrInvalidPlan = errors.New("invalid migration plan")

// Migration is one schema step.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// StepError reports which migration failed. Migrations before it stay applied,
// migrations after it are not attempted.
type StepError struct {
	Version int
	Name    string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("migration %d (%s): %v", e.Version, e.Name, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Runner applies migrations against a database handle it does not own.
type Runner struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewRunner creates a Runner. A nil logger falls back to slog.Default().
func NewRunner(db *sql.DB, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{db: db, logger: logger, now: time.Now}
}

func (r *Runner) ensureLedger(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+LedgerTable+` (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}
	return nil
}

// CurrentVersion returns the highest applied version, or 0 for a fresh database.
func (r *Runner) CurrentVersion(ctx context.Context) (int, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM `+LedgerTable).Scan(&version); err != nil {
		return 0, fmt.Errorf("read ledger: %w", err)
	}
	return version, nil
}

// Applied lists the ledger rows in ascending version order.
func (r *Runner) Applied(ctx context.Context) ([]Migration, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT version, name FROM `+LedgerTable+` ORDER BY version ASC`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []Migration
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Apply runs every migration whose version is above the current ledger maximum,
// in ascending order, each inside its own transaction together with its ledger
// row. It returns the versions applied by this call.
func (r *Runner) Apply(ctx context.Context, migrations []Migration) ([]int, error) {
	if err := validatePlan(migrations); err != nil {
		return nil, err
	}

	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	var applied []int
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := r.applyOne(ctx, m); err != nil {
			r.logger.Error("migration failed", "version", m.Version, "name", m.Name, "error", err)
			return applied, &StepError{Version: m.Version, Name: m.Name, Err: err}
		}
		r.logger.Info("migration applied", "version", m.Version, "name", m.Name)
		applied = append(applied, m.Version)
	}
	return applied, nil
}

func (r *Runner) applyOne(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("exec ddl: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+LedgerTable+` (version, name, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Name, r.now().UTC().UnixNano(),
	); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func validatePlan(migrations []Migration) error {
	prev := 0
	for i, m := range migrations {
		if m.Version <= 0 {
			return fmt.Errorf("%w: entry %d has version %d", ErrInvalidPlan, i, m.Version)
		}
		if m.Version <= prev {
			return fmt.Errorf("%w: version %d follows %d", ErrInvalidPlan, m.Version, prev)
		}
		prev = m.Version
	}
	return nil
}
