package store

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories. Every failing Store operation returns an *OpError whose
// Kind is one of these, so callers can branch with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConstraint = errors.New("constraint violation")
	ErrStorage    = errors.New("storage failure")
)

// ErrSessionInactive indicates a write that requires an active session.
var ErrSessionInactive = fmt.Errorf("%w: session is not active", ErrValidation)

// OpError describes a failed store operation.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func notFound(op, what, id string) error {
	return &OpError{Op: op, Kind: ErrNotFound, Err: fmt.Errorf("%s %q", what, id)}
}

func invalid(op string, format string, args ...any) error {
	return &OpError{Op: op, Kind: ErrValidation, Err: fmt.Errorf(format, args...)}
}

// wrap classifies a driver error as a constraint violation or a storage failure.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return err
	}
	if isConstraint(err) {
		return &OpError{Op: op, Kind: ErrConstraint, Err: err}
	}
	return &OpError{Op: op, Kind: ErrStorage, Err: err}
}

func isConstraint(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "FOREIGN KEY constraint") ||
		strings.Contains(msg, "constraint failed")
}
