// Package complexity implements the Complexity Estimator (§4.2): a pure,
// deterministic, O(n) scoring function over a task description.
package complexity

import "strings"

// Verdict is the estimator's easy/hard classification.
type Verdict string

const (
	Easy Verdict = "easy"
	Hard Verdict = "hard"
)

// HardThreshold is the score at or above which a task is judged hard (§4.2).
const HardThreshold = 5

var keywordScores = []struct {
	keywords []string
	points   int
}{
	{[]string{"login", "auth", "oauth", "2fa"}, 3},
	{[]string{"upload", "download", "file"}, 2},
	{[]string{"websocket", "realtime", "sync"}, 3},
	{[]string{"payment", "stripe", "checkout", "billing"}, 4},
	{[]string{"mock"}, 2},
}

// Score computes the §4.2 point total for a description and an optional
// estimated step count (0 means unknown/not provided).
func Score(description string, estimatedSteps int) int {
	lower := strings.ToLower(description)
	score := 0
	if estimatedSteps > 4 {
		score += 2
	}
	for _, group := range keywordScores {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				score += group.points
				break
			}
		}
	}
	return score
}

// Estimate scores description and returns the verdict.
func Estimate(description string, estimatedSteps int) (int, Verdict) {
	score := Score(description, estimatedSteps)
	if score >= HardThreshold {
		return score, Hard
	}
	return score, Easy
}
