// Package confidence scores sprint outcomes and session state on [0,1].
package confidence

import (
	"math"
	"sort"
	"time"

	"github.com/fentz26/cadence/internal/models"
)

// Outcome factors, used when a sprint result is folded into a score.
const (
	FactorSuccessRate         = "success_rate"
	FactorConsensusLevel      = "consensus_level"
	FactorResourceUtilization = "resource_utilization"
	FactorProgressRate        = "progress_rate"
	FactorErrorRate           = "error_rate"
	FactorComplexity          = "complexity"
	FactorExperience          = "experience"
)

// State factors, derived from a phase aggregate.
const (
	FactorTaskCompletion     = "task_completion"
	FactorAgentUtilization   = "agent_utilization"
	FactorTaskSuccess        = "task_success"
	FactorIterationFreshness = "iteration_freshness"
	FactorContextClarity     = "context_clarity"
)

// Weights maps a factor name to its relative weight. Weights need not sum to 1.
type Weights map[string]float64

// DefaultWeights returns the outcome factor weights.
func DefaultWeights() Weights {
	return Weights{
		FactorSuccessRate:         0.25,
		FactorConsensusLevel:      0.20,
		FactorResourceUtilization: 0.10,
		FactorProgressRate:        0.20,
		FactorErrorRate:           0.10,
		FactorComplexity:          0.10,
		FactorExperience:          0.05,
	}
}

// DefaultStateWeights returns the state factor weights.
func DefaultStateWeights() Weights {
	return Weights{
		FactorTaskCompletion:     0.35,
		FactorAgentUtilization:   0.15,
		FactorTaskSuccess:        0.25,
		FactorIterationFreshness: 0.15,
		FactorContextClarity:     0.10,
	}
}

// Clone returns a copy of w.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Score is an evaluation result. EvaluatedAt is informational only.
type Score struct {
	Value       float64
	Level       Level
	Factors     map[string]float64
	Weights     Weights
	EvaluatedAt time.Time
}

// Model converts the score into its persisted form.
func (s Score) Model() *models.ConfidenceScore {
	return &models.ConfidenceScore{
		Value:       s.Value,
		Level:       s.Level.String(),
		Factors:     copyMap(s.Factors),
		Weights:     copyMap(s.Weights),
		EvaluatedAt: s.EvaluatedAt,
	}
}

// Evaluator computes scores. The zero value is not usable; use New.
type Evaluator struct {
	policy  OutcomePolicy
	weights Weights
	now     func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithPolicy replaces the outcome scoring policy.
func WithPolicy(p OutcomePolicy) Option {
	return func(e *Evaluator) {
		if p != nil {
			e.policy = p
		}
	}
}

// WithWeights replaces the default factor weights.
func WithWeights(w Weights) Option {
	return func(e *Evaluator) {
		if len(w) > 0 {
			e.weights = w.Clone()
		}
	}
}

// WithClock sets the time source used for EvaluatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Evaluator using KeywordPolicy and DefaultWeights unless overridden.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		policy:  KeywordPolicy{},
		weights: DefaultWeights(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Weights returns a copy of the evaluator's default weights.
func (e *Evaluator) Weights() Weights {
	return e.weights.Clone()
}

// EvaluateOutcome scores a finished execution from its success flag and output.
func (e *Evaluator) EvaluateOutcome(success bool, output string) Score {
	v := clamp(e.policy.Score(success, output))
	return Score{Value: v, Level: LevelFor(v), EvaluatedAt: e.now()}
}

// Evaluate folds factors through weights. A nil weights map uses the
// evaluator's defaults.
func (e *Evaluator) Evaluate(factors map[string]float64, weights Weights) Score {
	if weights == nil {
		weights = e.weights
	}
	v := Combine(factors, weights)
	return Score{
		Value:       v,
		Level:       LevelFor(v),
		Factors:     copyMap(factors),
		Weights:     copyMap(weights),
		EvaluatedAt: e.now(),
	}
}

// Combine returns the weighted mean of factors, with weights renormalised to
// sum to 1. Factor values are clamped to [0,1] first. Negative or NaN weights
// count as zero, missing factors count as zero. When exactly one weight is
// positive the result is that factor's value. With no positive weight the
// result is 0.
func Combine(factors map[string]float64, weights Weights) float64 {
	keys := make([]string, 0, len(weights))
	for k, w := range weights {
		if w > 0 && !math.IsInf(w, 0) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return 0
	}
	sort.Strings(keys)
	if len(keys) == 1 {
		return clamp(factors[keys[0]])
	}

	// Scaled by the largest weight so the sums stay finite.
	var largest float64
	for _, k := range keys {
		largest = math.Max(largest, weights[k])
	}
	var total, sum float64
	for _, k := range keys {
		w := weights[k] / largest
		total += w
		sum += w * clamp(factors[k])
	}
	return clamp(sum / total)
}

// UtilizationScore maps a utilization ratio onto [0,1] with its optimum at
// 80%: below that the score rises linearly, above it falls to 0.5 at 100%.
func UtilizationScore(ratio float64) float64 {
	const optimum = 0.8
	ratio = clamp(ratio)
	if ratio <= optimum {
		return ratio / optimum
	}
	return 1 - (ratio-optimum)/(1-optimum)*0.5
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func copyMap[M ~map[string]float64](m M) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
