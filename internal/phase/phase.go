// Package phase implements the session methodology as a pure reducer over
// an immutable State value.
package phase

import (
	"errors"
	"fmt"
)

// Phase is one stage of the methodology.
type Phase string

const (
	Planning    Phase = "planning"
	Executing   Phase = "executing"
	Testing     Phase = "testing"
	Refactoring Phase = "refactoring"
	Completing  Phase = "completing"
)

// Phases lists every phase in methodology order.
func Phases() []Phase {
	return []Phase{Planning, Executing, Testing, Refactoring, Completing}
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case Planning, Executing, Testing, Refactoring, Completing:
		return true
	}
	return false
}

// Terminal reports whether p allows no further transitions.
func (p Phase) Terminal() bool {
	return len(transitions[p]) == 0
}

// ParsePhase validates s as a phase name. The empty string means Planning.
func ParsePhase(s string) (Phase, error) {
	if s == "" {
		return Planning, nil
	}
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown phase %q", ErrInvalidAction, s)
	}
	return p, nil
}

var transitions = map[Phase][]Phase{
	Planning:    {Executing},
	Executing:   {Testing, Planning},
	Testing:     {Refactoring, Executing},
	Refactoring: {Testing},
	Completing:  nil,
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the phases reachable from p in one step.
func AllowedTargets(p Phase) []Phase {
	return append([]Phase(nil), transitions[p]...)
}

// Errors returned by Reduce. All of them wrap ErrInvalidAction.
var (
	ErrInvalidAction     = errors.New("invalid action")
	ErrInvalidTransition = fmt.Errorf("%w: transition not allowed", ErrInvalidAction)
	ErrInvalidConfidence = fmt.Errorf("%w: confidence outside [0,1]", ErrInvalidAction)
	ErrUnknownTask       = fmt.Errorf("%w: unknown task", ErrInvalidAction)
	ErrUnknownAgent      = fmt.Errorf("%w: unknown agent", ErrInvalidAction)
	ErrDuplicateID       = fmt.Errorf("%w: duplicate id", ErrInvalidAction)
)
