package phase

import (
	"fmt"
	"math"
)

// Action is a state change request. The set of actions is closed.
type Action interface {
	apply(s *State) error
	Name() string
}

// Reduce applies a to s and returns the new aggregate, whose history gains a
// snapshot of s. On error the returned State is s itself, unchanged.
func Reduce(s State, a Action) (State, error) {
	if a == nil {
		return s, fmt.Errorf("%w: nil action", ErrInvalidAction)
	}
	next := s.clone()
	if err := a.apply(&next); err != nil {
		return s, fmt.Errorf("%s: %w", a.Name(), err)
	}
	next.history = append(next.history, s.snapshot())
	return next, nil
}

// ReduceAll applies actions in order and stops at the first error, returning
// the last good State.
func ReduceAll(s State, actions ...Action) (State, error) {
	for _, a := range actions {
		next, err := Reduce(s, a)
		if err != nil {
			return s, err
		}
		s = next
	}
	return s, nil
}

// clone copies every slice so that writes to the result never reach s.
func (s State) clone() State {
	out := s
	out.tasks = cloneTasks(s.tasks)
	out.agents = cloneAgents(s.agents)
	out.history = make([]Snapshot, len(s.history), len(s.history)+1)
	copy(out.history, s.history)
	return out
}

// Transition moves to another phase and resets the iteration counter.
type Transition struct {
	To Phase
}

func (Transition) Name() string { return "transition" }

func (a Transition) apply(s *State) error {
	if !CanTransition(s.phase, a.To) {
		return fmt.Errorf("%w: %s -> %s (allowed: %v)", ErrInvalidTransition, s.phase, a.To, transitions[s.phase])
	}
	s.phase = a.To
	s.iteration = 0
	return nil
}

// BeginIteration counts another pass through the current phase.
type BeginIteration struct{}

func (BeginIteration) Name() string { return "begin iteration" }

func (BeginIteration) apply(s *State) error {
	s.iteration++
	return nil
}

// SetConfidence replaces the confidence value.
type SetConfidence struct {
	Value float64
}

func (SetConfidence) Name() string { return "set confidence" }

func (a SetConfidence) apply(s *State) error {
	if math.IsNaN(a.Value) || a.Value < 0 || a.Value > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidConfidence, a.Value)
	}
	s.confidence = a.Value
	return nil
}

// SetContext replaces the free-text context.
type SetContext struct {
	Text string
}

func (SetContext) Name() string { return "set context" }

func (a SetContext) apply(s *State) error {
	s.context = a.Text
	return nil
}

// AddTask appends a task. A missing status defaults to pending.
type AddTask struct {
	Task Task
}

func (AddTask) Name() string { return "add task" }

func (a AddTask) apply(s *State) error {
	if a.Task.ID == "" {
		return fmt.Errorf("%w: task id is required", ErrInvalidAction)
	}
	if s.taskIndex(a.Task.ID) >= 0 {
		return fmt.Errorf("%w: task %s", ErrDuplicateID, a.Task.ID)
	}
	t := a.Task.clone()
	if t.Status == "" {
		t.Status = TaskPending
	}
	s.tasks = append(s.tasks, t)
	return nil
}

// TaskPatch lists task fields to change. Nil fields are left untouched.
type TaskPatch struct {
	Description  *string
	Status       *TaskStatus
	Dependencies []string
	AssignedTo   *string
}

// UpdateTask patches a task by id.
type UpdateTask struct {
	ID    string
	Patch TaskPatch
}

func (UpdateTask) Name() string { return "update task" }

func (a UpdateTask) apply(s *State) error {
	i := s.taskIndex(a.ID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTask, a.ID)
	}
	t := &s.tasks[i]
	if a.Patch.Description != nil {
		t.Description = *a.Patch.Description
	}
	if a.Patch.Status != nil {
		t.Status = *a.Patch.Status
	}
	if a.Patch.Dependencies != nil {
		t.Dependencies = append([]string(nil), a.Patch.Dependencies...)
	}
	if a.Patch.AssignedTo != nil {
		t.AssignedTo = *a.Patch.AssignedTo
	}
	return nil
}

// AddAgent registers an agent. A missing status defaults to idle.
type AddAgent struct {
	Agent Agent
}

func (AddAgent) Name() string { return "add agent" }

func (a AddAgent) apply(s *State) error {
	if a.Agent.ID == "" {
		return fmt.Errorf("%w: agent id is required", ErrInvalidAction)
	}
	if s.agentIndex(a.Agent.ID) >= 0 {
		return fmt.Errorf("%w: agent %s", ErrDuplicateID, a.Agent.ID)
	}
	ag := a.Agent
	if ag.Status == "" {
		ag.Status = AgentIdle
	}
	s.agents = append(s.agents, ag)
	return nil
}

// AgentPatch lists agent fields to change. Nil fields are left untouched.
type AgentPatch struct {
	Role        *string
	Status      *AgentStatus
	CurrentTask *string
}

// UpdateAgent patches an agent by id.
type UpdateAgent struct {
	ID    string
	Patch AgentPatch
}

func (UpdateAgent) Name() string { return "update agent" }

func (a UpdateAgent) apply(s *State) error {
	i := s.agentIndex(a.ID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, a.ID)
	}
	ag := &s.agents[i]
	if a.Patch.Role != nil {
		ag.Role = *a.Patch.Role
	}
	if a.Patch.Status != nil {
		ag.Status = *a.Patch.Status
	}
	if a.Patch.CurrentTask != nil {
		ag.CurrentTask = *a.Patch.CurrentTask
	}
	return nil
}

// AssignTask hands a task to an agent, marking the agent busy.
type AssignTask struct {
	TaskID  string
	AgentID string
}

func (AssignTask) Name() string { return "assign task" }

func (a AssignTask) apply(s *State) error {
	ti := s.taskIndex(a.TaskID)
	if ti < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTask, a.TaskID)
	}
	ai := s.agentIndex(a.AgentID)
	if ai < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, a.AgentID)
	}
	s.tasks[ti].AssignedTo = a.AgentID
	if s.tasks[ti].Status == TaskPending {
		s.tasks[ti].Status = TaskInProgress
	}
	s.agents[ai].Status = AgentBusy
	s.agents[ai].CurrentTask = a.TaskID
	return nil
}

// RecordTests replaces the test tally with the latest run.
type RecordTests struct {
	Passed int
	Failed int
}

func (RecordTests) Name() string { return "record tests" }

func (a RecordTests) apply(s *State) error {
	if a.Passed < 0 || a.Failed < 0 {
		return fmt.Errorf("%w: negative test counts", ErrInvalidAction)
	}
	s.tests = TestTally{Passed: a.Passed, Failed: a.Failed}
	return nil
}
