package pipeline

import (
	"math"

	"brandbook/backend/go/internal/rag_service/rag/schema"
)

const (
	maxConfidence          = 0.95
	insufficientFloor      = 0.1
	fallbackCitedPassages  = 3
	insufficientMultiplier = 0.5
)

// Confidence combines the model's self-reported certainty with the mean relevance
// of the passages it cited. cited holds 1-based passage numbers; when none of them
// are valid the top three passages stand in. self is nil when the model gave no value.
func Confidence(self *float64, cited []int, passages []schema.RetrievedPassage, insufficient bool, noEvidenceCeiling float64) float64 {
	if len(passages) == 0 {
		if self == nil {
			return 0
		}
		c := clamp01(*self)
		if insufficient {
			c *= insufficientMultiplier
		}
		return math.Min(c, noEvidenceCeiling)
	}

	relevance := meanCitedScore(cited, passages)
	c := relevance
	if self != nil {
		c = (clamp01(*self) + relevance) / 2
	}
	c = math.Min(c, maxConfidence)
	if insufficient {
		c = math.Max(c*insufficientMultiplier, insufficientFloor)
	}
	return c
}

func meanCitedScore(cited []int, passages []schema.RetrievedPassage) float64 {
	seen := make(map[int]bool)
	var sum float64
	for _, n := range cited {
		if n < 1 || n > len(passages) || seen[n] {
			continue
		}
		seen[n] = true
		sum += passages[n-1].Score
	}
	if len(seen) > 0 {
		return sum / float64(len(seen))
	}
	top := min(len(passages), fallbackCitedPassages)
	for _, p := range passages[:top] {
		sum += p.Score
	}
	return sum / float64(top)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
