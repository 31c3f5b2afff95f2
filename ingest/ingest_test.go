package ingest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/medrag"
	"github.com/smallnest/medrag/log"
	"github.com/smallnest/medrag/store"
)

type stubExtractor struct {
	entities map[string][]string
	err      error
}

func (s *stubExtractor) ExtractEntities(context.Context, string) (map[string][]string, error) {
	return s.entities, s.err
}

func TestMarkdownToText(t *testing.T) {
	md := []byte("# Cholecystectomy\n\nThe **gallbladder** is removed laparoscopically.\n\n- Veress needle\n- Trocar\n\n<script>alert(1)</script>\n")

	text, err := MarkdownToText(md)
	require.NoError(t, err)

	assert.Contains(t, text, "Cholecystectomy")
	assert.Contains(t, text, "The gallbladder is removed laparoscopically.")
	assert.Contains(t, text, "Veress needle")
	assert.NotContains(t, text, "<")
	assert.NotContains(t, text, "alert(1)")
}

func TestHTMLToText(t *testing.T) {
	t.Run("blocks become paragraphs", func(t *testing.T) {
		text, err := HTMLToText("<html><body><h1>Title</h1><p>First   paragraph.</p><p>Second.</p><style>p{}</style></body></html>")
		require.NoError(t, err)
		assert.Equal(t, "Title\n\nFirst paragraph.\n\nSecond.", text)
	})

	t.Run("nested blocks are not duplicated", func(t *testing.T) {
		text, err := HTMLToText("<blockquote><li>only once</li></blockquote>")
		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(text, "only once"))
	})

	t.Run("bare text falls back", func(t *testing.T) {
		text, err := HTMLToText("just some text")
		require.NoError(t, err)
		assert.Equal(t, "just some text", text)
	})
}

func TestChunkerPacksParagraphs(t *testing.T) {
	c := NewChunker(WithChunkSize(10), WithChunkOverlap(0))

	text := "one two three four five.\n\nsix seven eight.\n\nnine ten eleven twelve thirteen fourteen."
	chunks := c.ChunkText(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, "one two three four five. six seven eight.", chunks[0])
	assert.Equal(t, "nine ten eleven twelve thirteen fourteen.", chunks[1])
}

func TestChunkerSplitsLongParagraphBySentence(t *testing.T) {
	c := NewChunker(WithChunkSize(6), WithChunkOverlap(0))

	text := "alpha beta gamma delta. epsilon zeta eta theta. iota kappa."
	chunks := c.ChunkText(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, "alpha beta gamma delta.", chunks[0])
	assert.Equal(t, "epsilon zeta eta theta. iota kappa.", chunks[1])
}

func TestChunkerOverlap(t *testing.T) {
	c := NewChunker(WithChunkSize(4), WithChunkOverlap(1))

	chunks := c.ChunkText("a b c d.\n\ne f g.")

	require.Len(t, chunks, 2)
	assert.Equal(t, "a b c d.", chunks[0])
	// The second chunk starts with the last word of the first.
	assert.Equal(t, "d. e f g.", chunks[1])
}

func TestChunkerHardWordSplit(t *testing.T) {
	c := NewChunker(WithChunkSize(3), WithChunkOverlap(0))

	chunks := c.ChunkText("w1 w2 w3 w4 w5 w6 w7")

	require.Len(t, chunks, 3)
	assert.Equal(t, "w1 w2 w3", chunks[0])
	assert.Equal(t, "w7", chunks[2])
}

func TestChunkDocuments(t *testing.T) {
	c := NewChunker(WithChunkSize(3), WithChunkOverlap(0))

	chunks := c.ChunkDocuments([]medrag.Document{
		{ID: "doc1", Text: "a b c d e", Metadata: map[string]any{"source": "s"}},
	})

	require.Len(t, chunks, 2)
	assert.Equal(t, "doc1_chunk_0", chunks[0].ID)
	assert.Equal(t, 0, chunks[0].Metadata["chunk_index"])
	assert.Equal(t, 2, chunks[0].Metadata["chunk_total"])
	assert.Equal(t, "doc1", chunks[0].Metadata["parent_id"])
	assert.Equal(t, "s", chunks[0].Metadata["source"])
}

func surgicalEntities() map[string][]string {
	return map[string][]string{
		medrag.EntityProcedures:    {"Laparoscopic Cholecystectomy"},
		medrag.EntityAnatomy:       {"Gallbladder", "Cystic duct"},
		medrag.EntityInstruments:   {"Veress needle"},
		medrag.EntityComplications: {"Bile duct injury"},
	}
}

func surgicalText() string {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "The laparoscopic cholecystectomy proceeds through port placement step %d.\n\n", i)
	}
	return b.String()
}

func TestIngestTextVectorAndGraph(t *testing.T) {
	vector := store.NewMemoryVectorStore(store.NewMockEmbedder(32))
	graph := store.NewMemoryGraph()

	ing, err := NewIngestor(Config{
		Vector:    vector,
		Graph:     graph,
		Extractor: &stubExtractor{entities: surgicalEntities()},
		Chunker:   NewChunker(WithChunkSize(40), WithChunkOverlap(5)),
		Logger:    &log.NoOpLogger{},
	})
	require.NoError(t, err)

	stats, err := ing.IngestText(context.Background(), "atlas.md", surgicalText(), map[string]any{"specialty": "general"})
	require.NoError(t, err)

	assert.Greater(t, stats.ChunksCreated, 1)
	assert.Equal(t, stats.ChunksCreated, stats.EmbeddingsAdded)
	assert.Equal(t, 5, stats.EntitiesExtracted)
	assert.Equal(t, 4, stats.GraphEdges)

	count, err := vector.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stats.ChunksCreated, count)

	procCtx, err := graph.ProcedureContext(context.Background(), "Laparoscopic Cholecystectomy")
	require.NoError(t, err)
	require.NotNil(t, procCtx)
	assert.ElementsMatch(t, []string{"Gallbladder", "Cystic duct"}, procCtx.Anatomy)
	assert.Equal(t, []string{"Veress needle"}, procCtx.Instruments)
	assert.Equal(t, []string{"Bile duct injury"}, procCtx.Complications)

	summary, err := ing.IngestionSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, count, summary.Documents)
	require.NotNil(t, summary.Graph)
	assert.Equal(t, 4, summary.Graph.TotalRelationships)
}

func TestIngestTextVectorOnly(t *testing.T) {
	vector := store.NewMemoryVectorStore(store.NewMockEmbedder(32))

	ing, err := NewIngestor(Config{Vector: vector, Logger: &log.NoOpLogger{}})
	require.NoError(t, err)

	stats, err := ing.IngestText(context.Background(), "notes.txt", "A short surgical note.", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChunksCreated)
	assert.Equal(t, 0, stats.GraphNodes)

	summary, err := ing.IngestionSummary(context.Background())
	require.NoError(t, err)
	assert.Nil(t, summary.Graph)
}

func TestIngestTextExtractionFailureDegrades(t *testing.T) {
	vector := store.NewMemoryVectorStore(store.NewMockEmbedder(32))
	graph := store.NewMemoryGraph()

	ing, err := NewIngestor(Config{
		Vector:    vector,
		Graph:     graph,
		Extractor: &stubExtractor{err: fmt.Errorf("extractor offline")},
		Logger:    &log.NoOpLogger{},
	})
	require.NoError(t, err)

	stats, err := ing.IngestText(context.Background(), "atlas.md", "Some surgical text.", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EmbeddingsAdded)
	assert.Equal(t, 0, stats.GraphNodes)
}

func TestIngestTextRejectsEmpty(t *testing.T) {
	vector := store.NewMemoryVectorStore(store.NewMockEmbedder(32))
	ing, err := NewIngestor(Config{Vector: vector, Logger: &log.NoOpLogger{}})
	require.NoError(t, err)

	_, err = ing.IngestText(context.Background(), "empty.txt", "   ", nil)
	assert.Error(t, err)
}

func TestIngestMarkdown(t *testing.T) {
	vector := store.NewMemoryVectorStore(store.NewMockEmbedder(32))
	ing, err := NewIngestor(Config{Vector: vector, Logger: &log.NoOpLogger{}})
	require.NoError(t, err)

	stats, err := ing.IngestMarkdown(context.Background(), "guide.md",
		[]byte("# Appendectomy\n\nRemove the appendix."), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChunksCreated)
}

func TestNewIngestorRequiresVectorStore(t *testing.T) {
	_, err := NewIngestor(Config{})
	assert.Error(t, err)
}
