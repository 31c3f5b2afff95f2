package retriever

import (
	"context"
	"fmt"
	"sort"

	"github.com/smallnest/medrag"
	"github.com/smallnest/medrag/log"
)

// Default modality weights before renormalization.
const (
	DefaultVectorWeight = 0.6
	DefaultGraphWeight  = 0.4
)

// maxEnrichmentNames caps the related procedures attached per item.
const maxEnrichmentNames = 3

// HybridConfig configures a HybridRetriever. Vector is required; Graph is
// optional and enables graph-side retrieval and enrichment.
type HybridConfig struct {
	Vector       *VectorRetriever
	Graph        *GraphRetriever
	VectorWeight float64
	GraphWeight  float64
	Logger       log.Logger
}

// HybridOptions are per-call retrieval switches.
type HybridOptions struct {
	// UseGraph adds knowledge graph neighborhoods to the candidate set.
	UseGraph bool
	// ExpandEntities attaches related procedure names to surviving items.
	ExpandEntities bool
}

// HybridRetriever fuses dense vector search with knowledge graph
// neighborhoods into one weighted ranking.
type HybridRetriever struct {
	vector       *VectorRetriever
	graph        *GraphRetriever
	vectorWeight float64
	graphWeight  float64
	logger       log.Logger
}

// NewHybridRetriever creates a HybridRetriever. Zero weights fall back to
// the defaults; weights are renormalized to sum to 1 on every call.
func NewHybridRetriever(config HybridConfig) *HybridRetriever {
	if config.VectorWeight == 0 && config.GraphWeight == 0 {
		config.VectorWeight = DefaultVectorWeight
		config.GraphWeight = DefaultGraphWeight
	}
	if config.Logger == nil {
		config.Logger = log.GetDefaultLogger()
	}
	return &HybridRetriever{
		vector:       config.Vector,
		graph:        config.Graph,
		vectorWeight: config.VectorWeight,
		graphWeight:  config.GraphWeight,
		logger:       config.Logger,
	}
}

// Retrieve returns up to topK items fused from both modalities. Vector
// search fetches 2×topK candidates so graph items compete against a deep
// pool. Duplicates (by text-prefix fingerprint) keep their first, highest
// ranked occurrence; ties preserve retrieval order with vector items ahead
// of graph items. A failing modality drops out with a warning while the
// other answers alone; an error is returned only when neither can.
func (h *HybridRetriever) Retrieve(ctx context.Context, query string, topK int, opts HybridOptions) ([]medrag.RetrievedItem, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}

	vectorItems, vectorErr := h.vector.Retrieve(ctx, query, 2*topK)
	if vectorErr != nil {
		// Vector failures degrade to graph-only retrieval when the graph
		// side can still contribute.
		h.logger.Warn("vector retrieval failed, continuing graph-only: %v", vectorErr)
		vectorItems = nil
	}

	var graphItems []medrag.RetrievedItem
	graphActive := opts.UseGraph && h.graph != nil
	if graphActive {
		items, err := h.graph.Retrieve(ctx, query)
		if err != nil {
			// Graph failures degrade to vector-only retrieval.
			h.logger.Warn("graph retrieval failed, continuing vector-only: %v", err)
			graphActive = false
		} else {
			graphItems = items
		}
	}

	if vectorErr != nil && !graphActive {
		return nil, vectorErr
	}

	weights := medrag.NormalizeWeights([]float64{h.vectorWeight, h.graphWeight})

	items := make([]medrag.RetrievedItem, 0, len(vectorItems)+len(graphItems))
	seen := make(map[string]bool)
	appendWeighted := func(in []medrag.RetrievedItem, weight float64) {
		for _, item := range in {
			fp := medrag.Fingerprint(item.Text)
			if seen[fp] {
				continue
			}
			seen[fp] = true
			item.WeightedScore = item.RawScore * weight
			items = append(items, item)
		}
	}
	appendWeighted(vectorItems, weights[0])
	appendWeighted(graphItems, weights[1])

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].WeightedScore > items[j].WeightedScore
	})
	if len(items) > topK {
		items = items[:topK]
	}

	if opts.ExpandEntities && h.graph != nil {
		h.enrich(ctx, items)
	}

	h.logger.Debug("hybrid retrieval fused %d vector + %d graph items into %d results",
		len(vectorItems), len(graphItems), len(items))
	return items, nil
}

// enrich attaches related procedure names to item metadata. Enrichment is
// advisory and never fails retrieval or affects ranking.
func (h *HybridRetriever) enrich(ctx context.Context, items []medrag.RetrievedItem) {
	for i := range items {
		names, err := h.graph.RelatedProcedureNames(ctx, items[i].Text, maxEnrichmentNames)
		if err != nil {
			h.logger.Warn("entity enrichment failed: %v", err)
			return
		}
		if len(names) == 0 {
			continue
		}
		if items[i].Metadata == nil {
			items[i].Metadata = make(map[string]any)
		}
		items[i].Metadata["related_procedures"] = names
	}
}
