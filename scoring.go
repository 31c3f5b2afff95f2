package medrag

import "strings"

// Weight-normalization and penalty formulas live here rather than inside the
// components that use them: these constants encode policy decisions that must
// be independently tunable and auditable.

// NormalizeWeights scales weights so they sum to exactly 1.0. Zero or
// negative totals fall back to equal weights.
func NormalizeWeights(weights []float64) []float64 {
	out := make([]float64, len(weights))
	if len(weights) == 0 {
		return out
	}

	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		for i := range out {
			out[i] = 1.0 / float64(len(out))
		}
		return out
	}

	for i, w := range weights {
		if w > 0 {
			out[i] = w / total
		}
	}
	return out
}

// Clamp01 clips v into [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// fingerprintLen is how many characters of normalized text form the
// deduplication key. Longer prefixes catch fewer near-duplicates; shorter
// ones collapse distinct chunks.
const fingerprintLen = 100

// Fingerprint returns the content fingerprint used to deduplicate retrieved
// items: the first fingerprintLen characters, case-folded and trimmed.
func Fingerprint(text string) string {
	key := strings.ToLower(strings.TrimSpace(text))
	if len(key) > fingerprintLen {
		key = key[:fingerprintLen]
	}
	return key
}

// MeanValidScores averages scores, excluding sentinel "no match" values at
// or below InvalidScoreFloor. Returns 0 when no valid score remains.
func MeanValidScores(scores []float64) float64 {
	var sum float64
	var n int
	for _, s := range scores {
		if s <= InvalidScoreFloor {
			continue
		}
		sum += s
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ScoreVariance computes the population variance of scores, excluding
// sentinel values.
func ScoreVariance(scores []float64) float64 {
	valid := make([]float64, 0, len(scores))
	for _, s := range scores {
		if s > InvalidScoreFloor {
			valid = append(valid, s)
		}
	}
	if len(valid) < 2 {
		return 0
	}

	var sum float64
	for _, s := range valid {
		sum += s
	}
	mean := sum / float64(len(valid))

	var sq float64
	for _, s := range valid {
		d := s - mean
		sq += d * d
	}
	return sq / float64(len(valid))
}

// Severity weights for the safety score. A single critical entry outweighs
// five low-severity ones.
var severityWeights = map[Severity]float64{
	SeverityCritical: 1.0,
	SeverityHigh:     0.5,
	SeverityMedium:   0.2,
	SeverityLow:      0.1,
}

// SeverityWeight returns the penalty weight for a severity grade. Unknown
// grades weigh as medium.
func SeverityWeight(s Severity) float64 {
	if w, ok := severityWeights[s]; ok {
		return w
	}
	return severityWeights[SeverityMedium]
}

// SafetyScore computes 1 - weightedPenalty/maxPenalty over a severity
// distribution, clamped to [0, 1]. An empty distribution scores 1.0.
func SafetyScore(bySeverity map[Severity]int, total int) float64 {
	if total <= 0 {
		return 1.0
	}

	var penalty float64
	for sev, count := range bySeverity {
		penalty += SeverityWeight(sev) * float64(count)
	}

	maxPenalty := float64(total) * severityWeights[SeverityCritical]
	return Clamp01(1.0 - penalty/maxPenalty)
}

// Confidence level thresholds. Composite confidence and verification scores
// share the same buckets, so the boundaries live here rather than in the
// packages that grade scores.
const (
	HighConfidenceThreshold   = 0.80
	MediumConfidenceThreshold = 0.50
)

// ConfidenceLevelFor buckets a score in [0, 1] into a confidence level.
func ConfidenceLevelFor(score float64) ConfidenceLevel {
	switch {
	case score >= HighConfidenceThreshold:
		return ConfidenceHigh
	case score >= MediumConfidenceThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// subqueryBoostStep and subqueryBoostCap bound the score boost an item earns
// by being retrieved under multiple sub-queries. The cap keeps hit counts
// from inflating scores by more than 1.3x.
const (
	subqueryBoostStep = 0.1
	subqueryBoostCap  = 1.3
)

// SubqueryBoost returns the multiplicative boost for an item retrieved by
// hitCount distinct sub-queries.
func SubqueryBoost(hitCount int) float64 {
	if hitCount <= 1 {
		return 1.0
	}
	boost := 1.0 + subqueryBoostStep*float64(hitCount-1)
	if boost > subqueryBoostCap {
		boost = subqueryBoostCap
	}
	return boost
}
