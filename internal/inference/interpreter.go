package inference

import "fmt"

// Interpret maps a raw score vector to the structured classification.
// The winning class is the maximum score, ties resolved to the lowest
// index. Confidence is the winning score scaled to a percentage and
// bucketed: above 70 is high, above 30 medium, otherwise low.
func Interpret(scores []float32, labels []string) []ParameterResult {
	if len(scores) == 0 {
		return []ParameterResult{}
	}

	maxIdx := 0
	for i, s := range scores {
		if s > scores[maxIdx] {
			maxIdx = i
		}
	}

	confidence := float64(scores[maxIdx]) * 100

	level := LevelLow
	switch {
	case confidence > 70:
		level = LevelHigh
	case confidence > 30:
		level = LevelMedium
	}

	value := fmt.Sprintf("Class %d", maxIdx)
	if maxIdx < len(labels) {
		value = labels[maxIdx]
	}

	return []ParameterResult{{
		Name:           "Classification",
		Value:          value,
		Level:          level,
		Unit:           "%",
		ReferenceRange: fmt.Sprintf("Confidence: %.2f%%", confidence),
	}}
}
