package results

import (
	"math"
	"strconv"
	"strings"
)

const scoreEpsilon = 1e-9

// ParseScore parses operator input into a score.
func ParseScore(raw string) (float64, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, Invalid("score is required")
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, Invalid("score %q is not a number", raw)
	}
	return parsed, nil
}

// ValidateScore checks that score lies within [0, maxScore].
func ValidateScore(score, maxScore float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Invalid("score must be a finite number")
	}
	if score < 0 {
		return Invalid("score %g must not be negative", score)
	}
	if score > maxScore+scoreEpsilon {
		return Invalid("score %g exceeds max score %g", score, maxScore)
	}
	return nil
}

// IsFullScore reports whether score reaches maxScore.
func IsFullScore(score, maxScore float64) bool {
	return maxScore > 0 && score+scoreEpsilon >= maxScore
}
