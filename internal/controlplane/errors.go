package controlplane

import (
	"errors"
	"fmt"
)

// Sentinel errors for control plane operations.
var (
	ErrMethodNotFound     = errors.New("method not found")
	ErrInvalidParams      = errors.New("invalid params")
	ErrFailedPrecondition = errors.New("failed precondition")
	ErrSprintLimit        = fmt.Errorf("%w: session reached its sprint limit", ErrFailedPrecondition)
)
