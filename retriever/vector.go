package retriever

import (
	"context"
	"fmt"

	"github.com/smallnest/medrag"
	"github.com/smallnest/medrag/log"
)

// VectorRetriever retrieves document chunks by dense similarity search.
type VectorRetriever struct {
	index    medrag.VectorIndex
	embedder medrag.Embedder
	logger   log.Logger
}

// NewVectorRetriever creates a new VectorRetriever.
func NewVectorRetriever(index medrag.VectorIndex, embedder medrag.Embedder, logger log.Logger) *VectorRetriever {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &VectorRetriever{
		index:    index,
		embedder: embedder,
		logger:   logger,
	}
}

// Retrieve embeds the query and returns up to topK chunks ranked by cosine
// similarity. Entries carrying the invalid-score sentinel are dropped.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, topK int) ([]medrag.RetrievedItem, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}

	var embedding []float32
	err := withRetry(ctx, r.logger, "query embedding", func() error {
		var err error
		embedding, err = r.embedder.EmbedDocument(ctx, query)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var results []medrag.SearchResult
	err = withRetry(ctx, r.logger, "vector search", func() error {
		var err error
		results, err = r.index.Search(ctx, embedding, topK)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	items := make([]medrag.RetrievedItem, 0, len(results))
	for _, res := range results {
		if res.Score <= medrag.InvalidScoreFloor {
			continue
		}
		items = append(items, medrag.RetrievedItem{
			ID:       res.ID,
			Text:     res.Text,
			Source:   medrag.SourceVector,
			RawScore: res.Score,
			Metadata: res.Metadata,
		})
	}

	r.logger.Debug("vector retrieval returned %d of %d requested items", len(items), topK)
	return items, nil
}

// Count reports how many documents the underlying index holds.
func (r *VectorRetriever) Count(ctx context.Context) (int, error) {
	return r.index.Count(ctx)
}
