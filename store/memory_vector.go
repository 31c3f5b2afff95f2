package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/smallnest/medrag"
)

// MemoryVectorStore is a simple in-memory vector store. It is the default
// index for tests and small corpora; production deployments use the
// Postgres or SQLite stores instead.
type MemoryVectorStore struct {
	mu         sync.RWMutex
	documents  []medrag.Document
	embeddings [][]float32
	embedder   medrag.Embedder
}

var _ medrag.VectorStore = (*MemoryVectorStore)(nil)

// NewMemoryVectorStore creates a new MemoryVectorStore. The embedder is
// used for documents added without a precomputed embedding.
func NewMemoryVectorStore(embedder medrag.Embedder) *MemoryVectorStore {
	return &MemoryVectorStore{
		documents:  make([]medrag.Document, 0),
		embeddings: make([][]float32, 0),
		embedder:   embedder,
	}
}

// Add adds documents to the store, embedding those without an embedding.
func (s *MemoryVectorStore) Add(ctx context.Context, documents []medrag.Document) error {
	for _, doc := range documents {
		embedding := doc.Embedding
		if len(embedding) == 0 {
			if s.embedder == nil {
				return fmt.Errorf("no embedder configured and document %q has no embedding", doc.ID)
			}
			var err error
			embedding, err = s.embedder.EmbedDocument(ctx, doc.Text)
			if err != nil {
				return fmt.Errorf("failed to embed document: %w", err)
			}
		}
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}

		s.mu.Lock()
		s.documents = append(s.documents, doc)
		s.embeddings = append(s.embeddings, embedding)
		s.mu.Unlock()
	}
	return nil
}

// Search performs cosine similarity search over all stored documents.
func (s *MemoryVectorStore) Search(ctx context.Context, queryEmbedding []float32, k int) ([]medrag.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.documents) == 0 {
		return []medrag.SearchResult{}, nil
	}

	type docScore struct {
		index int
		score float64
	}

	scores := make([]docScore, len(s.documents))
	for i, docEmb := range s.embeddings {
		scores[i] = docScore{index: i, score: cosineSimilarity32(queryEmbedding, docEmb)}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	if k > len(scores) {
		k = len(scores)
	}

	results := make([]medrag.SearchResult, k)
	for i := 0; i < k; i++ {
		doc := s.documents[scores[i].index]
		results[i] = medrag.SearchResult{
			ID:       doc.ID,
			Text:     doc.Text,
			Score:    scores[i].score,
			Metadata: doc.Metadata,
		}
	}
	return results, nil
}

// Count reports the number of stored documents.
func (s *MemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents), nil
}

// Delete removes documents by ID. Unknown IDs are ignored.
func (s *MemoryVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.documents[:0]
	embs := s.embeddings[:0]
	for i, doc := range s.documents {
		if drop[doc.ID] {
			continue
		}
		docs = append(docs, doc)
		embs = append(embs, s.embeddings[i])
	}
	s.documents = docs
	s.embeddings = embs
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryVectorStore) Close() error { return nil }

// cosineSimilarity32 computes cosine similarity between two float32 vectors.
// Mismatched or zero-norm vectors score zero.
func cosineSimilarity32(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
