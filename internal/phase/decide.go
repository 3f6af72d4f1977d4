package phase

import (
	"fmt"
	"strings"

	"github.com/fentz26/cadence/internal/confidence"
)

// Criteria are the conditions for leaving a phase.
type Criteria struct {
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
	RequiredRatio float64 `mapstructure:"required_ratio" yaml:"required_ratio"`
	MaxIterations int     `mapstructure:"max_iterations" yaml:"max_iterations"`
}

// CriteriaSet holds the criteria of each working phase.
type CriteriaSet map[Phase]Criteria

// DefaultCriteria returns the built-in advance criteria.
func DefaultCriteria() CriteriaSet {
	return CriteriaSet{
		Planning:    {MinConfidence: 0.6, RequiredRatio: 0, MaxIterations: 3},
		Executing:   {MinConfidence: 0.7, RequiredRatio: 0.8, MaxIterations: 10},
		Testing:     {MinConfidence: 0.8, RequiredRatio: 0.9, MaxIterations: 5},
		Refactoring: {MinConfidence: 0.75, RequiredRatio: 1.0, MaxIterations: 3},
	}
}

// forward is the phase proposed once a phase's criteria are met. Refactoring
// has no forward step: meeting its criteria finishes the work.
var forward = map[Phase]Phase{
	Planning:  Executing,
	Executing: Testing,
	Testing:   Refactoring,
}

// Progress is what the advance decision looks at.
type Progress struct {
	Phase      Phase
	Confidence float64
	// Ratio is completed/total tasks, or the test pass ratio while testing.
	Ratio      float64
	Iterations int
}

// Decision is the outcome of Decide. Stalled is a result, not an error.
type Decision struct {
	Advance  bool   `json:"advance"`
	Complete bool   `json:"complete"`
	Stalled  bool   `json:"stalled"`
	From     Phase  `json:"from"`
	To       Phase  `json:"to,omitempty"`
	Reason   string `json:"reason"`
}

// Decide compares progress against the criteria of its phase. Both the
// confidence and the ratio must be met to advance. If they are not met and
// the iteration cap has been reached, the decision is a stall.
func (c CriteriaSet) Decide(p Progress) Decision {
	d := Decision{From: p.Phase}
	if p.Phase.Terminal() {
		d.Complete = true
		d.Reason = "phase is terminal"
		return d
	}
	crit, ok := c[p.Phase]
	if !ok {
		crit = DefaultCriteria()[p.Phase]
	}

	var unmet []string
	if p.Confidence < crit.MinConfidence {
		unmet = append(unmet, fmt.Sprintf("confidence %.2f < %.2f", p.Confidence, crit.MinConfidence))
	}
	if p.Ratio < crit.RequiredRatio {
		unmet = append(unmet, fmt.Sprintf("ratio %.2f < %.2f", p.Ratio, crit.RequiredRatio))
	}

	if len(unmet) == 0 {
		if to, ok := forward[p.Phase]; ok {
			d.Advance = true
			d.To = to
			d.Reason = fmt.Sprintf("%s criteria met", p.Phase)
		} else {
			d.Complete = true
			d.Reason = fmt.Sprintf("%s criteria met, work complete", p.Phase)
		}
		return d
	}

	d.Reason = strings.Join(unmet, "; ")
	if crit.MaxIterations > 0 && p.Iterations >= crit.MaxIterations {
		d.Stalled = true
		d.Reason = fmt.Sprintf("stalled after %d iterations: %s", p.Iterations, d.Reason)
	}
	return d
}

// ProgressOf derives Progress from an aggregate. The testing phase measures
// the test pass ratio, the others the task completion ratio.
func ProgressOf(s State) Progress {
	p := Progress{Phase: s.phase, Confidence: s.confidence, Iterations: s.iteration}
	if s.phase == Testing {
		if total := s.tests.Passed + s.tests.Failed; total > 0 {
			p.Ratio = float64(s.tests.Passed) / float64(total)
		}
		return p
	}
	p.Ratio = taskRatio(s.tasks, TaskCompleted)
	return p
}

// Factors derives the state factors used by RecomputeConfidence.
func Factors(s State) map[string]float64 {
	var busy, completed, failed int
	for _, a := range s.agents {
		if a.Status == AgentBusy {
			busy++
		}
	}
	for _, t := range s.tasks {
		switch t.Status {
		case TaskCompleted:
			completed++
		case TaskFailed:
			failed++
		}
	}

	f := map[string]float64{
		confidence.FactorTaskCompletion:     taskRatio(s.tasks, TaskCompleted),
		confidence.FactorAgentUtilization:   0,
		confidence.FactorTaskSuccess:        0,
		confidence.FactorIterationFreshness: 1 / float64(1+max(0, s.iteration-1)),
		confidence.FactorContextClarity:     contextClarity(s.context),
	}
	if len(s.agents) > 0 {
		f[confidence.FactorAgentUtilization] = confidence.UtilizationScore(float64(busy) / float64(len(s.agents)))
	}
	if finished := completed + failed; finished > 0 {
		f[confidence.FactorTaskSuccess] = float64(completed) / float64(finished)
	}
	return f
}

// RecomputeConfidence scores the aggregate's state factors and stores the
// value through SetConfidence. Nil weights use the default state weights.
func RecomputeConfidence(s State, e *confidence.Evaluator, weights confidence.Weights) (State, confidence.Score, error) {
	if weights == nil {
		weights = confidence.DefaultStateWeights()
	}
	score := e.Evaluate(Factors(s), weights)
	next, err := Reduce(s, SetConfidence{Value: score.Value})
	return next, score, err
}

func taskRatio(tasks []Task, status TaskStatus) float64 {
	if len(tasks) == 0 {
		return 0
	}
	n := 0
	for _, t := range tasks {
		if t.Status == status {
			n++
		}
	}
	return float64(n) / float64(len(tasks))
}

// contextClarity grows with the amount of context up to 50 words.
func contextClarity(text string) float64 {
	words := len(strings.Fields(text))
	if words >= 50 {
		return 1
	}
	return float64(words) / 50
}
