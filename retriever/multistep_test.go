package retriever

import (
	"context"
	"testing"

	"github.com/smallnest/medrag"
	"github.com/stretchr/testify/assert"
)

func newTestMultiStep(index *stubIndex, plan *medrag.SubqueryPlan) *MultiStepRetriever {
	return NewMultiStepRetriever(MultiStepConfig{
		Decomposer: &stubDecomposer{plan: plan},
		Hybrid:     newTestHybrid(index, nil, ""),
		Logger:     quietLogger(),
	})
}

func TestMultiStepRetrieverSimplePlan(t *testing.T) {
	index := &stubIndex{results: []medrag.SearchResult{
		{ID: "d1", Text: "alpha", Score: 0.9},
		{ID: "d2", Text: "beta", Score: 0.8},
	}}
	m := newTestMultiStep(index, &medrag.SubqueryPlan{
		OriginalQuery: "simple question",
		Subqueries:    []string{"simple question"},
		IsComplex:     false,
	})

	results, err := m.Retrieve(context.Background(), "simple question", 5, HybridOptions{})
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 1, index.calls)
	for _, res := range results {
		assert.Equal(t, 1, res.SubqueryHitCount)
		assert.Equal(t, []int{0}, res.SubqueryIndices)
		assert.InDelta(t, res.RawScore, res.FinalScore, 1e-9)
	}
}

func TestMultiStepRetrieverBoostsMultiHits(t *testing.T) {
	// Every sub-query sees the same index, so shared chunks are retrieved
	// by all of them.
	index := &stubIndex{results: []medrag.SearchResult{
		{ID: "d1", Text: "pneumoperitoneum establishment and access", Score: 0.8},
	}}
	m := newTestMultiStep(index, &medrag.SubqueryPlan{
		OriginalQuery: "steps and complications of cholecystectomy",
		Subqueries:    []string{"steps of cholecystectomy", "complications of cholecystectomy"},
		IsComplex:     true,
	})

	results, err := m.Retrieve(context.Background(), "steps and complications of cholecystectomy", 5, HybridOptions{})
	assert.NoError(t, err)
	assert.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, 2, res.SubqueryHitCount)
	assert.Len(t, res.SubqueryIndices, res.SubqueryHitCount)
	assert.ElementsMatch(t, []int{0, 1}, res.SubqueryIndices)
	assert.InDelta(t, 0.8*1.1, res.FinalScore, 1e-9)
}

func TestMultiStepRetrieverOrderingAndTruncation(t *testing.T) {
	index := &stubIndex{results: []medrag.SearchResult{
		{ID: "d1", Text: "alpha", Score: 0.9},
		{ID: "d2", Text: "beta", Score: 0.85},
		{ID: "d3", Text: "gamma", Score: 0.2},
	}}
	m := newTestMultiStep(index, &medrag.SubqueryPlan{
		OriginalQuery: "q",
		Subqueries:    []string{"q part one", "q part two", "q part three"},
		IsComplex:     true,
	})

	results, err := m.Retrieve(context.Background(), "q", 2, HybridOptions{})
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.GreaterOrEqual(t, results[0].FinalScore, results[1].FinalScore)
	assert.Equal(t, 3, index.calls)
}

func TestAggregateBoostCap(t *testing.T) {
	// Five hits would naively give 1.4x; the cap holds it at 1.3x.
	perStep := make([][]medrag.RetrievedItem, 5)
	for i := range perStep {
		perStep[i] = []medrag.RetrievedItem{
			{ID: "d1", Text: "shared chunk", RawScore: 0.5},
		}
	}

	results := aggregate(perStep, 10)
	assert.Len(t, results, 1)
	assert.Equal(t, 5, results[0].SubqueryHitCount)
	assert.InDelta(t, 0.5*1.3, results[0].FinalScore, 1e-9)
}

func TestMultiStepRetrieverWithoutDecomposer(t *testing.T) {
	index := &stubIndex{results: []medrag.SearchResult{
		{ID: "d1", Text: "alpha", Score: 0.9},
	}}
	m := NewMultiStepRetriever(MultiStepConfig{
		Hybrid: newTestHybrid(index, nil, ""),
		Logger: quietLogger(),
	})

	results, err := m.Retrieve(context.Background(), "simple question", 5, HybridOptions{})
	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, results[0].SubqueryHitCount)
	assert.Equal(t, 1, index.calls)
}

func TestMultiStepRetrieverDecompositionFailure(t *testing.T) {
	index := &stubIndex{results: []medrag.SearchResult{
		{ID: "d1", Text: "alpha", Score: 0.9},
	}}
	m := NewMultiStepRetriever(MultiStepConfig{
		Decomposer: &stubDecomposer{err: assert.AnError},
		Hybrid:     newTestHybrid(index, nil, ""),
		Logger:     quietLogger(),
	})

	results, err := m.Retrieve(context.Background(), "what are the steps?", 5, HybridOptions{})
	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.InDelta(t, results[0].RawScore, results[0].FinalScore, 1e-9)
}

func TestMultiStepRetrieverEmptyPlan(t *testing.T) {
	m := newTestMultiStep(&stubIndex{}, nil)
	_, err := m.RetrievePlan(context.Background(), &medrag.SubqueryPlan{}, 5, HybridOptions{})
	assert.Error(t, err)
}
