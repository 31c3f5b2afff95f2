package retriever

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/smallnest/medrag"
	"github.com/smallnest/medrag/log"
)

// stubIndex returns canned search results, optionally failing the first
// few calls to exercise retries.
type stubIndex struct {
	mu       sync.Mutex
	results  []medrag.SearchResult
	failures int
	calls    int
}

func (s *stubIndex) Search(ctx context.Context, queryEmbedding []float32, k int) ([]medrag.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return nil, fmt.Errorf("transient index failure")
	}
	if k > len(s.results) {
		k = len(s.results)
	}
	return s.results[:k], nil
}

func (s *stubIndex) Count(ctx context.Context) (int, error) {
	return len(s.results), nil
}

// stubEmbedder returns a fixed vector for any text.
type stubEmbedder struct{}

func (stubEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (stubEmbedder) GetDimension() int { return 3 }

// stubGraph serves one procedure with a fixed set of relatives.
type stubGraph struct {
	procedure string
	context   *medrag.ProcedureContext
	related   []medrag.RelatedProcedure
	failAll   bool
}

func (g *stubGraph) matches(name string) bool {
	return strings.Contains(strings.ToLower(g.procedure), strings.ToLower(name))
}

func (g *stubGraph) ProcedureContext(ctx context.Context, procedure string) (*medrag.ProcedureContext, error) {
	if g.failAll {
		return nil, fmt.Errorf("graph unavailable")
	}
	if !g.matches(procedure) {
		return nil, nil
	}
	return g.context, nil
}

func (g *stubGraph) RelatedProcedures(ctx context.Context, procedure string, maxDepth int) ([]medrag.RelatedProcedure, error) {
	if g.failAll {
		return nil, fmt.Errorf("graph unavailable")
	}
	if !g.matches(procedure) {
		return nil, nil
	}
	return g.related, nil
}

func (g *stubGraph) RelationExists(ctx context.Context, fromType, fromName string, relTypes []string, toType, toName string) (bool, error) {
	return false, nil
}

func (g *stubGraph) NodeExists(ctx context.Context, nodeType, nameContains string) (bool, error) {
	return false, nil
}

func (g *stubGraph) Stats(ctx context.Context) (*medrag.GraphStats, error) {
	return &medrag.GraphStats{}, nil
}

// stubExtractor reports a procedure entity whenever the text mentions it.
type stubExtractor struct {
	procedure string
}

func (e *stubExtractor) ExtractEntities(ctx context.Context, text string) (map[string][]string, error) {
	if e.procedure != "" && strings.Contains(strings.ToLower(text), strings.ToLower(e.procedure)) {
		return map[string][]string{medrag.EntityProcedures: {e.procedure}}, nil
	}
	return map[string][]string{}, nil
}

// stubDecomposer returns a fixed plan, or a fixed error.
type stubDecomposer struct {
	plan *medrag.SubqueryPlan
	err  error
}

func (d *stubDecomposer) Decompose(ctx context.Context, query string) (*medrag.SubqueryPlan, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.plan != nil {
		return d.plan, nil
	}
	return &medrag.SubqueryPlan{OriginalQuery: query, Subqueries: []string{query}}, nil
}

func quietLogger() log.Logger { return &log.NoOpLogger{} }
