package confidence

import "strings"

// OutcomePolicy turns an execution result into a raw score. The evaluator
// clamps whatever the policy returns.
type OutcomePolicy interface {
	Score(success bool, output string) float64
}

// OutcomePolicyFunc adapts a function to OutcomePolicy.
type OutcomePolicyFunc func(success bool, output string) float64

func (f OutcomePolicyFunc) Score(success bool, output string) float64 {
	return f(success, output)
}

// KeywordPolicy starts from a base of 0.5 and adjusts it for indicator words
// found in the output, case-insensitively. A failed execution scores 0.
type KeywordPolicy struct{}

// Keyword adjustments. Each indicator counts at most once.
var keywordSignals = []struct {
	word  string
	delta float64
}{
	{"completed", 0.3},
	{"success", 0.2},
	{"error", -0.3},
	{"failed", -0.2},
}

func (KeywordPolicy) Score(success bool, output string) float64 {
	if !success {
		return 0
	}
	text := strings.ToLower(output)
	score := 0.5
	for _, sig := range keywordSignals {
		if strings.Contains(text, sig.word) {
			score += sig.delta
		}
	}
	return score
}
