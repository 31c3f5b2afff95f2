package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/medrag"
)

func TestClassifyMapping(t *testing.T) {
	tests := []struct {
		name         string
		outcome      medrag.VerificationOutcome
		wantType     string
		wantCategory string
		wantSeverity medrag.Severity
	}{
		{
			name:         "instrument not found is nonexistent",
			outcome:      medrag.VerificationOutcome{Category: medrag.CategoryInstrument, Reason: reasonComplicationNotFound},
			wantType:     TypeInstrumentNonexistent,
			wantCategory: "instrument",
			wantSeverity: medrag.SeverityCritical,
		},
		{
			name:         "instrument without relationship is incorrect",
			outcome:      medrag.VerificationOutcome{Category: medrag.CategoryInstrument, Reason: reasonNoRelationship},
			wantType:     TypeInstrumentIncorrect,
			wantCategory: "instrument",
			wantSeverity: medrag.SeverityHigh,
		},
		{
			name:         "step order",
			outcome:      medrag.VerificationOutcome{Category: medrag.CategoryStepOrder, Reason: reasonStepOrderNotFound},
			wantType:     TypeStepOrderError,
			wantCategory: "procedural",
			wantSeverity: medrag.SeverityCritical,
		},
		{
			name:         "anatomy location",
			outcome:      medrag.VerificationOutcome{Category: medrag.CategoryAnatomy, Reason: "wrong anatomical location"},
			wantType:     TypeAnatomicalLocationError,
			wantCategory: "anatomical",
			wantSeverity: medrag.SeverityCritical,
		},
		{
			name:         "anatomy structure",
			outcome:      medrag.VerificationOutcome{Category: medrag.CategoryAnatomy, Reason: reasonStructureNotFound},
			wantType:     TypeAnatomicalStructureError,
			wantCategory: "anatomical",
			wantSeverity: medrag.SeverityCritical,
		},
		{
			name:         "complication maps to management error",
			outcome:      medrag.VerificationOutcome{Category: medrag.CategoryComplication, Reason: reasonComplicationNotFound},
			wantType:     TypeManagementError,
			wantCategory: "complication",
			wantSeverity: medrag.SeverityCritical,
		},
		{
			name:         "unknown category defaults to attribution",
			outcome:      medrag.VerificationOutcome{Category: "something_else", Reason: "whatever"},
			wantType:     TypeNoCitation,
			wantCategory: "attribution",
			wantSeverity: medrag.SeverityLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := Classify(tt.outcome)
			assert.Equal(t, tt.wantType, record.Type)
			assert.Equal(t, tt.wantCategory, record.Category)
			assert.Equal(t, tt.wantSeverity, record.Severity)
			assert.Equal(t, tt.outcome, record.Outcome)
		})
	}
}

func TestClassificationConfidence(t *testing.T) {
	assert.Equal(t, 0.95, classificationConfidence(reasonComplicationNotFound))
	assert.Equal(t, 0.95, classificationConfidence(reasonNoRelationship))
	assert.Equal(t, 0.7, classificationConfidence(reasonMissingStepFields))
	assert.Equal(t, 0.5, classificationConfidence("query error: connection refused"))
}

func TestClassifyAll(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		report := ClassifyAll(nil)
		assert.Equal(t, 0, report.Total)
		assert.Equal(t, 0, report.CriticalCount)
		assert.Equal(t, 1.0, report.SafetyScore)
		assert.Empty(t, report.Recommendations)
	})

	t.Run("aggregates counts and safety score", func(t *testing.T) {
		report := ClassifyAll([]medrag.VerificationOutcome{
			{Category: medrag.CategoryAnatomy, Reason: reasonStructureNotFound},
			{Category: medrag.CategoryInstrument, Reason: reasonNoRelationship},
		})

		assert.Equal(t, 2, report.Total)
		assert.Equal(t, 1, report.CriticalCount)
		assert.Equal(t, 1, report.ByCategory["anatomical"])
		assert.Equal(t, 1, report.ByCategory["instrument"])
		assert.Equal(t, 1, report.BySeverity[medrag.SeverityCritical])
		assert.Equal(t, 1, report.BySeverity[medrag.SeverityHigh])
		// Penalty 1.0 + 0.5 against a max of 2.0.
		assert.InDelta(t, 0.25, report.SafetyScore, 1e-9)

		require.NotEmpty(t, report.Recommendations)
		assert.Equal(t, "CRITICAL: manual review required before clinical use", report.Recommendations[0])
		assert.Contains(t, report.Recommendations, "Enhance anatomy knowledge graph with more detailed relationships")
		assert.Contains(t, report.Recommendations, "Expand instrument-procedure mappings in knowledge graph")
	})
}
