// Package adapter bridges external embedding providers into the medrag
// interfaces. Any langchaingo embedder (OpenAI, Ollama, Voyage, local
// models) can back the vector index through LangChainEmbedder.
package adapter

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/smallnest/medrag"
)

// LangChainEmbedder adapts a langchaingo embeddings.Embedder to the
// medrag.Embedder interface.
type LangChainEmbedder struct {
	embedder embeddings.Embedder

	dimOnce sync.Once
	dim     int
}

var _ medrag.Embedder = (*LangChainEmbedder)(nil)

// NewLangChainEmbedder creates a new adapter around a langchaingo embedder.
func NewLangChainEmbedder(embedder embeddings.Embedder) *LangChainEmbedder {
	return &LangChainEmbedder{embedder: embedder}
}

// EmbedDocument embeds a single text.
func (l *LangChainEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return l.embedder.EmbedQuery(ctx, text)
}

// EmbedDocuments embeds a batch of texts.
func (l *LangChainEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return l.embedder.EmbedDocuments(ctx, texts)
}

// GetDimension reports the embedding width. Langchaingo embedders do not
// expose it, so the first call probes with a throwaway embedding and the
// result is cached. A probe failure reports 0.
func (l *LangChainEmbedder) GetDimension() int {
	l.dimOnce.Do(func() {
		probe, err := l.embedder.EmbedQuery(context.Background(), "dimension probe")
		if err != nil {
			return
		}
		l.dim = len(probe)
	})
	return l.dim
}
