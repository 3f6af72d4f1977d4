package confidence

import "strings"

// Level is the qualitative band of a confidence value.
type Level int

const (
	LevelMinimal Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

var levelNames = [...]string{"MINIMAL", "LOW", "MEDIUM", "HIGH", "CRITICAL"}

func (l Level) String() string {
	if l < LevelMinimal || l > LevelCritical {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel is the inverse of Level.String, case-insensitive.
func ParseLevel(s string) (Level, bool) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), true
		}
	}
	return LevelMinimal, false
}

// LevelFor maps v onto the fixed threshold ladder. Values outside [0,1]
// clamp to the nearest end.
func LevelFor(v float64) Level {
	switch {
	case v >= 0.95:
		return LevelCritical
	case v >= 0.80:
		return LevelHigh
	case v >= 0.60:
		return LevelMedium
	case v >= 0.40:
		return LevelLow
	default:
		return LevelMinimal
	}
}
