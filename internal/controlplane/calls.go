package controlplane

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fentz26/cadence/internal/mcp"
	"github.com/fentz26/cadence/internal/models"
)

// Method names a control call.
type Method string

const (
	MethodInit       Method = "init"
	MethodStatus     Method = "status"
	MethodSprint     Method = "sprint"
	MethodCheckpoint Method = "checkpoint"
	MethodRestore    Method = "restore"
	MethodList       Method = "list"
	MethodCancel     Method = "cancel"
	MethodMetrics    Method = "metrics"
)

var methods = map[Method]bool{
	MethodInit:       true,
	MethodStatus:     false,
	MethodSprint:     true,
	MethodCheckpoint: true,
	MethodRestore:    false,
	MethodList:       false,
	MethodCancel:     true,
	MethodMetrics:    false,
}

// Methods returns every method, sorted.
func Methods() []Method {
	out := make([]Method, 0, len(methods))
	for m := range methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseMethod returns the Method named s.
func ParseMethod(s string) (Method, bool) {
	m := Method(s)
	_, ok := methods[m]
	return m, ok
}

// Mutating reports whether the method changes stored state.
func (m Method) Mutating() bool { return methods[m] }

// Call is a decoded control call. The set of calls is closed.
type Call interface {
	Method() Method
	// Session returns the session the call targets, if any.
	Session() string
	isCall()
}

// InitCall starts a session. Nil tunables take the configured defaults.
type InitCall struct {
	Task                string   `json:"task"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	MaxSprints          *int     `json:"max_sprints,omitempty"`
	ParallelSwarms      *int     `json:"parallel_swarms,omitempty"`
}

// StatusCall reads a session summary.
type StatusCall struct {
	SessionID string `json:"session_id"`
	Verbose   bool   `json:"verbose,omitempty"`
}

// SprintCall runs the next sprint of a session.
type SprintCall struct {
	SessionID string `json:"session_id"`
	Objective string `json:"objective,omitempty"`
}

// CheckpointCall snapshots a session.
type CheckpointCall struct {
	SessionID   string `json:"session_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RestoreCall reads the state held by a checkpoint.
type RestoreCall struct {
	CheckpointID string `json:"checkpoint_id"`
}

// ListType selects what ListCall lists.
type ListType string

const (
	ListSessions    ListType = "sessions"
	ListCheckpoints ListType = "checkpoints"
)

// ListCall lists sessions or the checkpoints of one session.
type ListCall struct {
	Type      ListType             `json:"type"`
	SessionID string               `json:"session_id,omitempty"`
	Status    models.SessionStatus `json:"status,omitempty"`
}

// CancelCall cancels an active session.
type CancelCall struct {
	SessionID string `json:"session_id"`
}

// MetricsCall aggregates sprint metrics.
type MetricsCall struct {
	SessionID        string `json:"session_id"`
	IncludeResources bool   `json:"include_resources,omitempty"`
}

func (InitCall) Method() Method       { return MethodInit }
func (StatusCall) Method() Method     { return MethodStatus }
func (SprintCall) Method() Method     { return MethodSprint }
func (CheckpointCall) Method() Method { return MethodCheckpoint }
func (RestoreCall) Method() Method    { return MethodRestore }
func (ListCall) Method() Method       { return MethodList }
func (CancelCall) Method() Method     { return MethodCancel }
func (MetricsCall) Method() Method    { return MethodMetrics }

func (InitCall) Session() string         { return "" }
func (c StatusCall) Session() string     { return c.SessionID }
func (c SprintCall) Session() string     { return c.SessionID }
func (c CheckpointCall) Session() string { return c.SessionID }
func (RestoreCall) Session() string      { return "" }
func (c ListCall) Session() string       { return c.SessionID }
func (c CancelCall) Session() string     { return c.SessionID }
func (c MetricsCall) Session() string    { return c.SessionID }

func (InitCall) isCall()       {}
func (StatusCall) isCall()     {}
func (SprintCall) isCall()     {}
func (CheckpointCall) isCall() {}
func (RestoreCall) isCall()    {}
func (ListCall) isCall()       {}
func (CancelCall) isCall()     {}
func (MetricsCall) isCall()    {}

// DecodeCall validates params against the registry's schema for method, when
// a registry is given, and decodes them into the method's Call type.
func DecodeCall(reg *mcp.Registry, method string, params json.RawMessage) (Call, error) {
	m, ok := ParseMethod(method)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMethodNotFound, method)
	}
	if reg != nil {
		tool, ok := reg.Get(method)
		if !ok || !tool.Enabled {
			return nil, fmt.Errorf("%w: %q", ErrMethodNotFound, method)
		}
		if err := reg.Validate(method, params); err != nil {
			return nil, err
		}
	}

	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		params = json.RawMessage(`{}`)
	}

	var call Call
	var err error
	switch m {
	case MethodInit:
		call, err = decodeInto[InitCall](params)
	case MethodStatus:
		call, err = decodeInto[StatusCall](params)
	case MethodSprint:
		call, err = decodeInto[SprintCall](params)
	case MethodCheckpoint:
		call, err = decodeInto[CheckpointCall](params)
	case MethodRestore:
		call, err = decodeInto[RestoreCall](params)
	case MethodList:
		call, err = decodeInto[ListCall](params)
	case MethodCancel:
		call, err = decodeInto[CancelCall](params)
	case MethodMetrics:
		call, err = decodeInto[MetricsCall](params)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParams, method, err)
	}
	return call, nil
}

func decodeInto[T Call](params json.RawMessage) (Call, error) {
	var c T
	if err := json.Unmarshal(params, &c); err != nil {
		return nil, err
	}
	return c, nil
}
