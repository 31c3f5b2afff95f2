package verify

import (
	"strings"

	"github.com/smallnest/medrag"
)

// Hallucination types for surgical answers, grouped by error category.
const (
	TypeAnatomicalStructureError = "anatomical_structure_error"
	TypeAnatomicalLocationError  = "anatomical_location_error"
	TypeInstrumentIncorrect      = "instrument_incorrect"
	TypeInstrumentNonexistent    = "instrument_nonexistent"
	TypeStepOrderError           = "step_order_error"
	TypeStepFabrication          = "step_fabrication"
	TypeComplicationExaggerated  = "complication_exaggerated"
	TypeManagementError          = "management_error"
	TypeDosageError              = "dosage_error"
	TypeStatisticError           = "statistic_error"
	TypeNoCitation               = "no_citation"
	TypeFalseCitation            = "false_citation"
)

// taxonomyEntry ties one hallucination type to its error category and
// severity.
type taxonomyEntry struct {
	category string
	severity medrag.Severity
}

var taxonomy = map[string]taxonomyEntry{
	TypeAnatomicalStructureError: {category: "anatomical", severity: medrag.SeverityCritical},
	TypeAnatomicalLocationError:  {category: "anatomical", severity: medrag.SeverityCritical},
	TypeInstrumentIncorrect:      {category: "instrument", severity: medrag.SeverityHigh},
	TypeInstrumentNonexistent:    {category: "instrument", severity: medrag.SeverityCritical},
	TypeStepOrderError:           {category: "procedural", severity: medrag.SeverityCritical},
	TypeStepFabrication:          {category: "procedural", severity: medrag.SeverityHigh},
	TypeComplicationExaggerated:  {category: "complication", severity: medrag.SeverityMedium},
	TypeManagementError:          {category: "complication", severity: medrag.SeverityCritical},
	TypeDosageError:              {category: "quantitative", severity: medrag.SeverityCritical},
	TypeStatisticError:           {category: "quantitative", severity: medrag.SeverityMedium},
	TypeNoCitation:               {category: "attribution", severity: medrag.SeverityLow},
	TypeFalseCitation:            {category: "attribution", severity: medrag.SeverityHigh},
}

// Classify maps one unverified outcome onto the taxonomy.
func Classify(outcome medrag.VerificationOutcome) medrag.HallucinationRecord {
	hType := mapToHallucinationType(outcome.Category, outcome.Reason)
	entry := taxonomy[hType]
	return medrag.HallucinationRecord{
		Type:       hType,
		Category:   entry.category,
		Severity:   entry.severity,
		Confidence: classificationConfidence(outcome.Reason),
		Outcome:    outcome,
	}
}

// ClassifyAll classifies every unverified outcome and aggregates counts,
// the severity-weighted safety score, and targeted recommendations.
func ClassifyAll(unverified []medrag.VerificationOutcome) *medrag.HallucinationReport {
	report := &medrag.HallucinationReport{
		ByCategory: make(map[string]int),
		BySeverity: make(map[medrag.Severity]int),
	}

	for _, outcome := range unverified {
		record := Classify(outcome)
		report.Records = append(report.Records, record)
		report.ByCategory[record.Category]++
		report.BySeverity[record.Severity]++
	}

	report.Total = len(report.Records)
	report.CriticalCount = report.BySeverity[medrag.SeverityCritical]
	report.SafetyScore = medrag.SafetyScore(report.BySeverity, report.Total)
	report.Recommendations = recommendations(report.ByCategory, report.CriticalCount)
	return report
}

// mapToHallucinationType is the fixed category-and-reason lookup. The
// reason string distinguishes a clean "not found in graph" signal from a
// wrong-relationship signal.
func mapToHallucinationType(category medrag.ClaimCategory, reason string) string {
	lower := strings.ToLower(reason)
	switch category {
	case medrag.CategoryInstrument:
		if strings.Contains(lower, "not found") {
			return TypeInstrumentNonexistent
		}
		return TypeInstrumentIncorrect
	case medrag.CategoryStepOrder:
		return TypeStepOrderError
	case medrag.CategoryAnatomy:
		if strings.Contains(lower, "location") {
			return TypeAnatomicalLocationError
		}
		return TypeAnatomicalStructureError
	case medrag.CategoryComplication:
		return TypeManagementError
	default:
		return TypeNoCitation
	}
}

// classificationConfidence reflects certainty of the classification, not
// of the underlying fact.
func classificationConfidence(reason string) float64 {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "not found") || strings.Contains(lower, "no graph relationship"):
		return 0.95
	case strings.Contains(lower, "missing"):
		return 0.7
	default:
		return 0.5
	}
}

func recommendations(byCategory map[string]int, criticalCount int) []string {
	var recs []string
	if criticalCount > 0 {
		recs = append(recs, "CRITICAL: manual review required before clinical use")
	}
	if byCategory["anatomical"] > 0 {
		recs = append(recs, "Enhance anatomy knowledge graph with more detailed relationships")
	}
	if byCategory["instrument"] > 0 {
		recs = append(recs, "Expand instrument-procedure mappings in knowledge graph")
	}
	if byCategory["procedural"] > 0 {
		recs = append(recs, "Add explicit step ordering constraints to graph")
	}
	if byCategory["complication"] > 0 {
		recs = append(recs, "Include comprehensive complication data in knowledge base")
	}
	if byCategory["quantitative"] > 0 {
		recs = append(recs, "Verify all numeric claims against original literature")
	}
	return recs
}
