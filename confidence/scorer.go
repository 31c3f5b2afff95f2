// Package confidence computes composite confidence scores for retrieval
// quality and answer reliability. Four components feed the score: mean
// retrieval similarity, knowledge graph coverage of query entities,
// agreement across retrieved sources, and the claim verification score.
package confidence

import (
	"fmt"
	"strings"

	"github.com/smallnest/medrag"
	"github.com/smallnest/medrag/log"
)

// Default component weights before renormalization.
const (
	DefaultRetrievalWeight       = 0.30
	DefaultGraphCoverageWeight   = 0.25
	DefaultSourceAgreementWeight = 0.20
	DefaultVerificationWeight    = 0.25
)

// Weights are the relative component weights. They are renormalized to sum
// to 1, so only their ratios matter.
type Weights struct {
	Retrieval       float64
	GraphCoverage   float64
	SourceAgreement float64
	Verification    float64
}

// Input carries everything one confidence computation may use. Only Items
// is commonly set; the rest degrade to neutral defaults when absent.
type Input struct {
	Items []medrag.RetrievedItem
	// QueryEntities are entity names extracted from the query.
	QueryEntities []string
	// GraphEntities are entity names confirmed present in the graph.
	GraphEntities []string
	// VerificationScore is the claim verification score, when available.
	VerificationScore *float64
}

// Scorer computes confidence reports. It is stateless per call and safe
// for concurrent use.
type Scorer struct {
	weights Weights
	logger  log.Logger
}

// NewScorer creates a Scorer. Zero weights fall back to the defaults.
func NewScorer(weights Weights, logger log.Logger) *Scorer {
	if weights == (Weights{}) {
		weights = Weights{
			Retrieval:       DefaultRetrievalWeight,
			GraphCoverage:   DefaultGraphCoverageWeight,
			SourceAgreement: DefaultSourceAgreementWeight,
			Verification:    DefaultVerificationWeight,
		}
	}
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	normalized := medrag.NormalizeWeights([]float64{
		weights.Retrieval, weights.GraphCoverage, weights.SourceAgreement, weights.Verification,
	})
	return &Scorer{
		weights: Weights{
			Retrieval:       normalized[0],
			GraphCoverage:   normalized[1],
			SourceAgreement: normalized[2],
			Verification:    normalized[3],
		},
		logger: logger,
	}
}

// Score computes the composite confidence for one query. Missing inputs
// degrade to neutral defaults; this never fails.
func (s *Scorer) Score(input Input) *medrag.ConfidenceReport {
	retrieval := retrievalSimilarity(input.Items)
	coverage := graphCoverage(input.QueryEntities, input.GraphEntities)
	agreement := sourceAgreement(input.Items)

	verification := 1.0
	if input.VerificationScore != nil {
		verification = *input.VerificationScore
	}

	overall := s.weights.Retrieval*retrieval +
		s.weights.GraphCoverage*coverage +
		s.weights.SourceAgreement*agreement +
		s.weights.Verification*verification

	level := medrag.ConfidenceLevelFor(overall)
	report := &medrag.ConfidenceReport{
		Overall: overall,
		Level:   level,
		Components: map[string]medrag.ConfidenceComponent{
			"retrieval":        {Score: retrieval, Weight: s.weights.Retrieval},
			"graph_coverage":   {Score: coverage, Weight: s.weights.GraphCoverage},
			"source_agreement": {Score: agreement, Weight: s.weights.SourceAgreement},
			"verification":     {Score: verification, Weight: s.weights.Verification},
		},
		Warning: warningFor(level, overall),
	}

	s.logger.Debug("confidence %.3f (%s): retrieval=%.3f coverage=%.3f agreement=%.3f verification=%.3f",
		overall, level, retrieval, coverage, agreement, verification)
	return report
}

// retrievalSimilarity is the mean of valid similarity scores, clipped to
// [0,1]. Scores at the invalid sentinel are excluded entirely.
func retrievalSimilarity(items []medrag.RetrievedItem) float64 {
	if len(items) == 0 {
		return 0
	}
	scores := make([]float64, len(items))
	for i, item := range items {
		scores[i] = item.RawScore
	}
	return medrag.Clamp01(medrag.MeanValidScores(scores))
}

// graphCoverage is the fraction of query entities also present in the
// graph entity set, case-insensitively. No query entities means there is
// nothing to miss.
func graphCoverage(queryEntities, graphEntities []string) float64 {
	if len(queryEntities) == 0 {
		return 1.0
	}
	if len(graphEntities) == 0 {
		return 0
	}

	graphSet := make(map[string]bool, len(graphEntities))
	for _, e := range graphEntities {
		graphSet[strings.ToLower(e)] = true
	}

	querySet := make(map[string]bool, len(queryEntities))
	found := 0
	for _, e := range queryEntities {
		key := strings.ToLower(e)
		if querySet[key] {
			continue
		}
		querySet[key] = true
		if graphSet[key] {
			found++
		}
	}
	return float64(found) / float64(len(querySet))
}

// sourceAgreement measures cross-chunk consistency. A single chunk cannot
// corroborate itself and scores 0.5. Multiple chunks combine source
// diversity (60%) with inverse score variance (40%).
func sourceAgreement(items []medrag.RetrievedItem) float64 {
	if len(items) == 0 {
		return 0
	}
	if len(items) == 1 {
		return 0.5
	}

	sources := make(map[string]bool)
	for _, item := range items {
		if source, ok := item.Metadata["source"].(string); ok && source != "" {
			sources[source] = true
		}
	}
	diversity := float64(len(sources)) / float64(len(items))

	var scores []float64
	for _, item := range items {
		if item.RawScore > medrag.InvalidScoreFloor {
			scores = append(scores, item.RawScore)
		}
	}
	consistency := 0.5
	if len(scores) >= 2 {
		variance := medrag.ScoreVariance(scores)
		consistency = 1.0 - min(variance*10, 1.0)
	}

	return medrag.Clamp01(0.6*diversity + 0.4*consistency)
}

func warningFor(level medrag.ConfidenceLevel, overall float64) string {
	switch level {
	case medrag.ConfidenceMedium:
		return fmt.Sprintf("Medium confidence (%.0f%%). Based on available guidelines; verify with an attending or senior resident before clinical application.", overall*100)
	case medrag.ConfidenceLow:
		return fmt.Sprintf("Low confidence (%.0f%%). Insufficient evidence in the knowledge base. Consult a supervisor or primary sources before use.", overall*100)
	default:
		return ""
	}
}
