package confidence

import (
	"testing"

	"github.com/smallnest/medrag"
	"github.com/smallnest/medrag/log"
	"github.com/stretchr/testify/assert"
)

func newTestScorer() *Scorer {
	return NewScorer(Weights{}, &log.NoOpLogger{})
}

func items(scores ...float64) []medrag.RetrievedItem {
	out := make([]medrag.RetrievedItem, len(scores))
	for i, s := range scores {
		out[i] = medrag.RetrievedItem{ID: "d", RawScore: s}
	}
	return out
}

func TestScorerNeutralDefaults(t *testing.T) {
	s := newTestScorer()

	// No entities, no verification: coverage and verification stay 1.0.
	report := s.Score(Input{Items: items(0.9, 0.9)})
	assert.Equal(t, 1.0, report.Components["graph_coverage"].Score)
	assert.Equal(t, 1.0, report.Components["verification"].Score)
	assert.InDelta(t, 0.9, report.Components["retrieval"].Score, 1e-9)
}

func TestScorerWeightsSumToOne(t *testing.T) {
	s := NewScorer(Weights{Retrieval: 3, GraphCoverage: 2.5, SourceAgreement: 2, Verification: 2.5}, &log.NoOpLogger{})
	report := s.Score(Input{Items: items(0.5)})

	var total float64
	for _, comp := range report.Components {
		total += comp.Weight
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.InDelta(t, 0.30, report.Components["retrieval"].Weight, 1e-9)
}

func TestRetrievalSimilarityFiltersSentinel(t *testing.T) {
	score := retrievalSimilarity(items(0.8, medrag.InvalidScoreFloor, 0.6))
	assert.InDelta(t, 0.7, score, 1e-9)

	assert.Equal(t, 0.0, retrievalSimilarity(nil))
	assert.Equal(t, 0.0, retrievalSimilarity(items(medrag.InvalidScoreFloor)))
}

func TestGraphCoverage(t *testing.T) {
	t.Run("No Query Entities Is Full Coverage", func(t *testing.T) {
		assert.Equal(t, 1.0, graphCoverage(nil, []string{"cystic duct"}))
	})

	t.Run("No Graph Entities Is Zero", func(t *testing.T) {
		assert.Equal(t, 0.0, graphCoverage([]string{"appendix"}, nil))
	})

	t.Run("Case Insensitive Overlap", func(t *testing.T) {
		coverage := graphCoverage(
			[]string{"Appendix", "Cecum"},
			[]string{"appendix", "ileum"})
		assert.InDelta(t, 0.5, coverage, 1e-9)
	})
}

func TestSourceAgreement(t *testing.T) {
	t.Run("Single Source Is Half", func(t *testing.T) {
		assert.Equal(t, 0.5, sourceAgreement(items(0.9)))
	})

	t.Run("Diverse Consistent Sources Score High", func(t *testing.T) {
		in := []medrag.RetrievedItem{
			{RawScore: 0.80, Metadata: map[string]any{"source": "atlas.pdf"}},
			{RawScore: 0.81, Metadata: map[string]any{"source": "guidelines.pdf"}},
		}
		agreement := sourceAgreement(in)
		assert.Greater(t, agreement, 0.9)
	})

	t.Run("High Variance Lowers Agreement", func(t *testing.T) {
		consistent := sourceAgreement([]medrag.RetrievedItem{
			{RawScore: 0.80, Metadata: map[string]any{"source": "a"}},
			{RawScore: 0.80, Metadata: map[string]any{"source": "b"}},
		})
		scattered := sourceAgreement([]medrag.RetrievedItem{
			{RawScore: 0.10, Metadata: map[string]any{"source": "a"}},
			{RawScore: 0.95, Metadata: map[string]any{"source": "b"}},
		})
		assert.Less(t, scattered, consistent)
	})
}

func TestConfidenceLevelsAndWarnings(t *testing.T) {
	s := newTestScorer()

	t.Run("High", func(t *testing.T) {
		report := s.Score(Input{
			Items: []medrag.RetrievedItem{
				{RawScore: 0.95, Metadata: map[string]any{"source": "a"}},
				{RawScore: 0.94, Metadata: map[string]any{"source": "b"}},
			},
		})
		assert.Equal(t, medrag.ConfidenceHigh, report.Level)
		assert.Empty(t, report.Warning)
	})

	t.Run("Low With Warning", func(t *testing.T) {
		verification := 0.1
		report := s.Score(Input{
			Items:             items(0.1),
			QueryEntities:     []string{"appendix"},
			VerificationScore: &verification,
		})
		assert.Equal(t, medrag.ConfidenceLow, report.Level)
		assert.Contains(t, report.Warning, "Low confidence")
	})

	t.Run("Medium With Warning", func(t *testing.T) {
		report := s.Score(Input{Items: items(0.4, 0.4)})
		assert.Equal(t, medrag.ConfidenceMedium, report.Level)
		assert.Contains(t, report.Warning, "Medium confidence")
	})
}

func TestScorerIdempotent(t *testing.T) {
	s := newTestScorer()
	in := Input{Items: items(0.7, 0.6), QueryEntities: []string{"appendix"}, GraphEntities: []string{"appendix"}}

	first := s.Score(in)
	second := s.Score(in)
	assert.Equal(t, first, second)
}
