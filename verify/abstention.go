package verify

import (
	"fmt"
	"strings"

	"github.com/smallnest/medrag"
)

// DefaultAbstentionThreshold is the minimum verification score to answer.
// The comparison is exclusive: a score exactly at the threshold passes.
const DefaultAbstentionThreshold = 0.5

// criticalKeywords name claim areas where a single unverified claim is
// unacceptable regardless of the overall score.
var criticalKeywords = []string{
	"dosage", "contraindication", "anatomy", "complication management",
}

// Policy decides whether an answer is safe to surface. Disabled policies
// never abstain, which is useful for offline evaluation.
type Policy struct {
	Threshold float64
	Enabled   bool
}

// NewPolicy creates an enabled Policy. A non-positive threshold falls back
// to the default.
func NewPolicy(threshold float64) *Policy {
	if threshold <= 0 {
		threshold = DefaultAbstentionThreshold
	}
	return &Policy{Threshold: threshold, Enabled: true}
}

// Decide applies the three abstention conditions in order: no verifiable
// claims, sub-threshold verification score, and unverified critical-keyword
// claims.
func (p *Policy) Decide(verification *ClaimVerification) medrag.AbstentionDecision {
	if !p.Enabled {
		return medrag.AbstentionDecision{}
	}

	if verification.Total == 0 {
		return medrag.AbstentionDecision{
			ShouldAbstain: true,
			Reason:        "Unable to extract verifiable claims from answer. Question may be too vague or outside knowledge base.",
		}
	}

	if verification.Score < p.Threshold {
		return medrag.AbstentionDecision{
			ShouldAbstain: true,
			Reason: fmt.Sprintf("Insufficient verification confidence (%.0f%%). Only %d/%d claims verified in knowledge graph.",
				verification.Score*100, verification.Verified, verification.Total),
		}
	}

	if n := countCriticalClaims(verification.Unverified); n > 0 {
		return medrag.AbstentionDecision{
			ShouldAbstain: true,
			Reason:        fmt.Sprintf("Detected %d critical error(s) in answer. Cannot provide safe response.", n),
		}
	}

	return medrag.AbstentionDecision{}
}

// countCriticalClaims counts unverified claims touching critical areas.
// Anatomy claims are critical by category; the rest match on keywords in
// the claim text.
func countCriticalClaims(unverified []medrag.VerificationOutcome) int {
	count := 0
	for _, outcome := range unverified {
		if isCriticalClaim(outcome) {
			count++
		}
	}
	return count
}

func isCriticalClaim(outcome medrag.VerificationOutcome) bool {
	if outcome.Category == medrag.CategoryAnatomy {
		return true
	}
	if outcome.Category == medrag.CategoryComplication && strings.Contains(outcome.Claim, "managed by") {
		return true
	}

	text := strings.ToLower(outcome.Claim)
	for _, keyword := range criticalKeywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// WarningBanner returns the banner to prepend to a non-abstained answer,
// or "" for high confidence.
func WarningBanner(level medrag.ConfidenceLevel, score float64) string {
	switch level {
	case medrag.ConfidenceMedium:
		return fmt.Sprintf("MEDIUM CONFIDENCE (%.0f%% verified): this answer is based on available guidelines but has not been fully verified. Cross-reference with primary sources before clinical application.", score*100)
	case medrag.ConfidenceLow:
		return fmt.Sprintf("LOW CONFIDENCE (%.0f%% verified): this answer has limited verification in the knowledge base. Use with caution and consult a supervisor or primary literature.", score*100)
	default:
		return ""
	}
}

