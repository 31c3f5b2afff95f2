package retriever

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smallnest/medrag"
	"github.com/smallnest/medrag/log"
)

// defaultStepTimeout bounds each per-sub-query retrieval call.
const defaultStepTimeout = 15 * time.Second

// MultiStepConfig configures a MultiStepRetriever.
type MultiStepConfig struct {
	Decomposer medrag.Decomposer
	Hybrid     *HybridRetriever
	// StepTimeout bounds each sub-query retrieval. Zero means the default.
	StepTimeout time.Duration
	Logger      log.Logger
}

// MultiStepRetriever decomposes complex queries into sub-queries, fans the
// hybrid retriever out across them, and aggregates the results with a
// bounded boost for items found by more than one sub-query.
type MultiStepRetriever struct {
	decomposer  medrag.Decomposer
	hybrid      *HybridRetriever
	stepTimeout time.Duration
	logger      log.Logger
}

// NewMultiStepRetriever creates a new MultiStepRetriever.
func NewMultiStepRetriever(config MultiStepConfig) *MultiStepRetriever {
	if config.StepTimeout <= 0 {
		config.StepTimeout = defaultStepTimeout
	}
	if config.Logger == nil {
		config.Logger = log.GetDefaultLogger()
	}
	return &MultiStepRetriever{
		decomposer:  config.Decomposer,
		hybrid:      config.Hybrid,
		stepTimeout: config.StepTimeout,
		logger:      config.Logger,
	}
}

// Retrieve runs the full decompose-retrieve-aggregate cycle for one query.
// Decomposition never blocks retrieval: without a decomposer, or when
// decomposition fails, the query runs as its own single sub-query.
func (m *MultiStepRetriever) Retrieve(ctx context.Context, query string, topK int, opts HybridOptions) ([]medrag.AggregatedResult, error) {
	return m.RetrievePlan(ctx, m.decompose(ctx, query), topK, opts)
}

func (m *MultiStepRetriever) decompose(ctx context.Context, query string) *medrag.SubqueryPlan {
	single := &medrag.SubqueryPlan{
		OriginalQuery: query,
		Subqueries:    []string{query},
	}
	if m.decomposer == nil {
		return single
	}
	plan, err := m.decomposer.Decompose(ctx, query)
	if err != nil || plan == nil || len(plan.Subqueries) == 0 {
		m.logger.Warn("query decomposition failed, retrieving with the original query: %v", err)
		return single
	}
	return plan
}

// RetrievePlan retrieves for an already-decomposed plan. Simple plans
// degrade to a single hybrid call; complex plans fan out one concurrent
// retrieval per sub-query.
func (m *MultiStepRetriever) RetrievePlan(ctx context.Context, plan *medrag.SubqueryPlan, topK int, opts HybridOptions) ([]medrag.AggregatedResult, error) {
	if plan == nil || len(plan.Subqueries) == 0 {
		return nil, fmt.Errorf("empty subquery plan")
	}

	if !plan.IsComplex || len(plan.Subqueries) == 1 {
		items, err := m.retrieveStep(ctx, plan.Subqueries[0], topK, opts)
		if err != nil {
			return nil, err
		}
		return aggregate([][]medrag.RetrievedItem{items}, topK), nil
	}

	m.logger.Info("running %d sub-query retrievals for complex query", len(plan.Subqueries))

	perStep := make([][]medrag.RetrievedItem, len(plan.Subqueries))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, subquery := range plan.Subqueries {
		i, subquery := i, subquery
		g.Go(func() error {
			items, err := m.retrieveStep(gctx, subquery, topK, opts)
			if err != nil {
				return fmt.Errorf("sub-query %d (%q): %w", i, subquery, err)
			}
			mu.Lock()
			perStep[i] = items
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return aggregate(perStep, topK), nil
}

func (m *MultiStepRetriever) retrieveStep(ctx context.Context, subquery string, topK int, opts HybridOptions) ([]medrag.RetrievedItem, error) {
	stepCtx, cancel := context.WithTimeout(ctx, m.stepTimeout)
	defer cancel()
	return m.hybrid.Retrieve(stepCtx, subquery, topK, opts)
}

// aggregate groups items across sub-queries by content fingerprint. Each
// group keeps its highest raw-scored item; the final score applies a
// bounded boost that grows with the number of sub-queries that retrieved
// the item.
func aggregate(perStep [][]medrag.RetrievedItem, topK int) []medrag.AggregatedResult {
	groups := make(map[string]*medrag.AggregatedResult)
	var order []string

	for stepIdx, items := range perStep {
		for _, item := range items {
			fp := medrag.Fingerprint(item.Text)
			group, found := groups[fp]
			if !found {
				groups[fp] = &medrag.AggregatedResult{
					RetrievedItem:    item,
					SubqueryIndices:  []int{stepIdx},
					SubqueryHitCount: 1,
				}
				order = append(order, fp)
				continue
			}
			if item.RawScore > group.RawScore {
				group.RetrievedItem = item
			}
			if !containsInt(group.SubqueryIndices, stepIdx) {
				group.SubqueryIndices = append(group.SubqueryIndices, stepIdx)
				group.SubqueryHitCount++
			}
		}
	}

	results := make([]medrag.AggregatedResult, 0, len(order))
	for _, fp := range order {
		group := groups[fp]
		group.FinalScore = group.RawScore * medrag.SubqueryBoost(group.SubqueryHitCount)
		results = append(results, *group)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
