package evidence

import (
	"math"
	"time"
)

// QuestionScore converts evidence volume and relevance into a score bounded
// by the question's point value. Coverage and relevance multiply, so plenty
// of irrelevant evidence or a trickle of perfect evidence both score low.
func QuestionScore(items []Evidence, question AuditQuestion, requiredSamples int, cutoff time.Time) int {
	if len(items) == 0 || question.PointValue <= 0 {
		return 0
	}
	if requiredSamples < 1 {
		requiredSamples = 1
	}

	recent := FilterRecentSince(items, cutoff)
	coverageRatio := math.Min(1, float64(len(recent))/float64(requiredSamples))
	relevanceFactor := averageRelevance(items) / 100

	score := int(math.Round(coverageRatio * relevanceFactor * float64(question.PointValue)))
	return clampScore(score, question.PointValue)
}

// CoveragePercentage is the recent-to-required sample ratio as a clamped
// 0-100 percentage.
func CoveragePercentage(recentCount, requiredSamples int) int {
	if requiredSamples < 1 {
		requiredSamples = 1
	}
	ratio := math.Min(1, float64(recentCount)/float64(requiredSamples))
	return int(math.Round(ratio * 100))
}

// averageRelevance averages the evidence relevance scores, treating an unset
// score as the neutral 50.
func averageRelevance(items []Evidence) float64 {
	total := 0.0
	for _, item := range items {
		score := item.RelevanceScore
		if score == 0 {
			score = 50
		}
		total += float64(score)
	}
	return total / float64(len(items))
}

func clampScore(score, maxScore int) int {
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

func clampPercentage(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func roundPercentage(numerator, denominator int) int {
	if denominator <= 0 {
		return 0
	}
	return clampPercentage(int(math.Round(100 * float64(numerator) / float64(denominator))))
}
