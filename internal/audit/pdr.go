// Package audit provides PDR (Process Decision Record) writing for cadence.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"

	"github.com/fentz26/cadence/internal/models"
)

// Outcomes recorded for a decision.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeStalled = "stalled"
)

// Sink persists audit rows. *store.Store satisfies it.
type Sink interface {
	WriteAudit(ctx context.Context, action, inputsHash, outcome, sessionID, details string) (*models.AuditEntry, error)
}

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	sink   Sink
	logger *slog.Logger
}

// NewPDRWriter creates a new PDR writer.
func NewPDRWriter(sink Sink, logger *slog.Logger) *PDRWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDRWriter{sink: sink, logger: logger}
}

// Record writes a PDR entry for a state-mutating action. A write failure is
// logged and returned; callers treat it as non-fatal.
func (w *PDRWriter) Record(ctx context.Context, action string, inputs any, outcome, sessionID, details string) (*models.AuditEntry, error) {
	entry, err := w.sink.WriteAudit(ctx, action, HashInputs(inputs), outcome, sessionID, details)
	if err != nil {
		w.logger.Warn("audit write failed", "action", action, "session_id", sessionID, "error", err)
		return nil, err
	}
	return entry, nil
}

// HashInputs returns the hex sha256 of the JSON encoding of inputs.
func HashInputs(inputs any) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
