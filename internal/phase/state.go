package phase

// TaskStatus is the progress of one tracked task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is a unit of work tracked by the aggregate.
type Task struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	Status       TaskStatus `json:"status"`
	Dependencies []string   `json:"dependencies,omitempty"`
	AssignedTo   string     `json:"assigned_to,omitempty"`
}

func (t Task) clone() Task {
	t.Dependencies = append([]string(nil), t.Dependencies...)
	return t
}

// AgentStatus is the availability of an agent.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentBusy    AgentStatus = "busy"
	AgentOffline AgentStatus = "offline"
)

// Agent is a worker that tasks are assigned to.
type Agent struct {
	ID          string      `json:"id"`
	Role        string      `json:"role,omitempty"`
	Status      AgentStatus `json:"status"`
	CurrentTask string      `json:"current_task,omitempty"`
}

// TestTally is the most recent test run.
type TestTally struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Snapshot is one prior value of a State, without its own history.
type Snapshot struct {
	Phase      Phase     `json:"phase"`
	Confidence float64   `json:"confidence"`
	Context    string    `json:"context,omitempty"`
	Tasks      []Task    `json:"tasks,omitempty"`
	Agents     []Agent   `json:"agents,omitempty"`
	Tests      TestTally `json:"tests"`
	Iteration  int       `json:"iteration"`
}

// State is the session aggregate. It is a value: the reducer never modifies
// a State it was given, and slices returned by accessors are copies.
type State struct {
	phase      Phase
	confidence float64
	context    string
	tasks      []Task
	agents     []Agent
	tests      TestTally
	iteration  int
	history    []Snapshot
}

// NewState returns an empty aggregate in the Planning phase.
func NewState() State {
	return State{phase: Planning}
}

// FromSnapshot rebuilds a State from a snapshot, with empty history.
func FromSnapshot(s Snapshot) State {
	st := State{
		phase:      s.Phase,
		confidence: s.Confidence,
		context:    s.Context,
		tests:      s.Tests,
		iteration:  s.Iteration,
	}
	if !st.phase.Valid() {
		st.phase = Planning
	}
	st.tasks = cloneTasks(s.Tasks)
	st.agents = cloneAgents(s.Agents)
	return st
}

func (s State) Phase() Phase         { return s.phase }
func (s State) Confidence() float64  { return s.confidence }
func (s State) Context() string      { return s.context }
func (s State) Tests() TestTally     { return s.tests }
func (s State) Iteration() int       { return s.iteration }
func (s State) Tasks() []Task        { return cloneTasks(s.tasks) }
func (s State) Agents() []Agent      { return cloneAgents(s.agents) }
func (s State) HistoryLen() int      { return len(s.history) }
func (s State) Snapshot() Snapshot   { return s.snapshot() }

// History returns copies of all prior snapshots, oldest first.
func (s State) History() []Snapshot {
	out := make([]Snapshot, len(s.history))
	for i, h := range s.history {
		out[i] = h
		out[i].Tasks = cloneTasks(h.Tasks)
		out[i].Agents = cloneAgents(h.Agents)
	}
	return out
}

// Task looks up a task by id.
func (s State) Task(id string) (Task, bool) {
	if i := s.taskIndex(id); i >= 0 {
		return s.tasks[i].clone(), true
	}
	return Task{}, false
}

// Agent looks up an agent by id.
func (s State) Agent(id string) (Agent, bool) {
	if i := s.agentIndex(id); i >= 0 {
		return s.agents[i], true
	}
	return Agent{}, false
}

func (s State) snapshot() Snapshot {
	return Snapshot{
		Phase:      s.phase,
		Confidence: s.confidence,
		Context:    s.context,
		Tasks:      cloneTasks(s.tasks),
		Agents:     cloneAgents(s.agents),
		Tests:      s.tests,
		Iteration:  s.iteration,
	}
}

func (s State) taskIndex(id string) int {
	for i, t := range s.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s State) agentIndex(id string) int {
	for i, a := range s.agents {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func cloneTasks(in []Task) []Task {
	if in == nil {
		return nil
	}
	out := make([]Task, len(in))
	for i, t := range in {
		out[i] = t.clone()
	}
	return out
}

func cloneAgents(in []Agent) []Agent {
	if in == nil {
		return nil
	}
	return append([]Agent(nil), in...)
}
