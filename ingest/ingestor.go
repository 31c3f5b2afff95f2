package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/smallnest/medrag"
	"github.com/smallnest/medrag/log"
)

// categoryTargets maps an extracted entity category to the node type it
// creates and the relation that connects it to a procedure.
var categoryTargets = map[string]struct {
	nodeType string
	relation string
}{
	medrag.EntityAnatomy:       {medrag.NodeAnatomy, medrag.RelInvolves},
	medrag.EntityInstruments:   {medrag.NodeInstrument, medrag.RelRequires},
	medrag.EntityComplications: {medrag.NodeComplication, medrag.RelMayCause},
	medrag.EntityTechniques:    {medrag.NodeTechnique, medrag.RelUsesTechnique},
	medrag.EntityMedications:   {medrag.NodeMedication, medrag.RelMedication},
}

// Stats summarizes one ingestion run.
type Stats struct {
	Source            string `json:"source"`
	ChunksCreated     int    `json:"chunks_created"`
	EmbeddingsAdded   int    `json:"embeddings_added"`
	EntitiesExtracted int    `json:"entities_extracted"`
	GraphNodes        int    `json:"graph_nodes_created"`
	GraphEdges        int    `json:"graph_relationships_created"`
}

// Config configures an Ingestor. Graph and Extractor are optional; when
// either is nil the ingestor runs in vector-only mode.
type Config struct {
	Vector    medrag.VectorStore
	Graph     medrag.GraphStore
	Extractor medrag.EntityExtractor
	Chunker   *Chunker
	Logger    log.Logger
}

// Ingestor writes documents into the vector store and, when a graph and an
// entity extractor are configured, mirrors their surgical entities into the
// knowledge graph.
type Ingestor struct {
	vector     medrag.VectorStore
	graph      medrag.GraphStore
	extractor  medrag.EntityExtractor
	chunker    *Chunker
	buildGraph bool
	logger     log.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(config Config) (*Ingestor, error) {
	if config.Vector == nil {
		return nil, fmt.Errorf("ingestor requires a vector store")
	}
	if config.Chunker == nil {
		config.Chunker = NewChunker()
	}
	if config.Logger == nil {
		config.Logger = log.GetDefaultLogger()
	}

	ing := &Ingestor{
		vector:     config.Vector,
		graph:      config.Graph,
		extractor:  config.Extractor,
		chunker:    config.Chunker,
		buildGraph: config.Graph != nil && config.Extractor != nil,
		logger:     config.Logger,
	}
	if ing.buildGraph {
		ing.logger.Info("graph-enhanced ingestion enabled")
	} else {
		ing.logger.Info("graph-enhanced ingestion disabled, vector-only mode")
	}
	return ing, nil
}

// IngestText chunks plain text, embeds the chunks into the vector store,
// and builds graph entities from the full text. Graph failures degrade to
// vector-only ingestion instead of failing the document.
func (ing *Ingestor) IngestText(ctx context.Context, source, text string, metadata map[string]any) (*Stats, error) {
	stats := &Stats{Source: source}

	if strings.TrimSpace(text) == "" {
		return stats, fmt.Errorf("no text to ingest from %s", source)
	}

	chunks := ing.chunker.ChunkText(text)
	stats.ChunksCreated = len(chunks)

	docs := make([]medrag.Document, 0, len(chunks))
	for i, chunk := range chunks {
		chunkMeta := map[string]any{
			"source":       source,
			"chunk_index":  i,
			"total_chunks": len(chunks),
		}
		for k, v := range metadata {
			chunkMeta[k] = v
		}
		docs = append(docs, medrag.Document{
			ID:       uuid.NewString(),
			Text:     chunk,
			Metadata: chunkMeta,
		})
	}

	if err := ing.vector.Add(ctx, docs); err != nil {
		return stats, fmt.Errorf("failed to index chunks from %s: %w", source, err)
	}
	stats.EmbeddingsAdded = len(docs)

	if ing.buildGraph {
		if err := ing.buildGraphFromText(ctx, text, source, stats); err != nil {
			ing.logger.Warn("graph build failed for %s, continuing vector-only: %v", source, err)
		}
	}

	ing.logger.Info("ingested %s: %d chunks, %d entities", source, stats.ChunksCreated, stats.EntitiesExtracted)
	return stats, nil
}

// IngestMarkdown normalizes markdown to plain text and ingests it.
func (ing *Ingestor) IngestMarkdown(ctx context.Context, source string, content []byte, metadata map[string]any) (*Stats, error) {
	text, err := MarkdownToText(content)
	if err != nil {
		return &Stats{Source: source}, fmt.Errorf("failed to normalize markdown %s: %w", source, err)
	}
	return ing.IngestText(ctx, source, text, metadata)
}

// IngestHTML normalizes an HTML document to plain text and ingests it.
func (ing *Ingestor) IngestHTML(ctx context.Context, source, content string, metadata map[string]any) (*Stats, error) {
	text, err := HTMLToText(content)
	if err != nil {
		return &Stats{Source: source}, fmt.Errorf("failed to normalize html %s: %w", source, err)
	}
	return ing.IngestText(ctx, source, text, metadata)
}

// buildGraphFromText extracts entities and mirrors them into the graph.
// Every procedure found in the document is linked to the document's other
// entities: co-occurrence within one source document is the relation signal.
func (ing *Ingestor) buildGraphFromText(ctx context.Context, text, source string, stats *Stats) error {
	entities, err := ing.extractor.ExtractEntities(ctx, text)
	if err != nil {
		return fmt.Errorf("entity extraction failed: %w", err)
	}

	for _, names := range entities {
		stats.EntitiesExtracted += len(names)
	}
	if stats.EntitiesExtracted == 0 {
		ing.logger.Warn("no entities extracted from %s", source)
		return nil
	}

	procedures := entities[medrag.EntityProcedures]
	if len(procedures) == 0 {
		ing.logger.Warn("no procedures found in %s, skipping graph build", source)
		return nil
	}

	for _, procedure := range procedures {
		procNode := &medrag.GraphNode{Type: medrag.NodeProcedure, Name: procedure, Properties: map[string]any{"source": source}}
		if err := ing.graph.AddNode(ctx, procNode); err != nil {
			return fmt.Errorf("failed to add procedure %q: %w", procedure, err)
		}
		stats.GraphNodes++

		for category, target := range categoryTargets {
			for _, name := range entities[category] {
				node := &medrag.GraphNode{Type: target.nodeType, Name: name, Properties: map[string]any{"source": source}}
				if err := ing.graph.AddNode(ctx, node); err != nil {
					return fmt.Errorf("failed to add %s %q: %w", target.nodeType, name, err)
				}
				stats.GraphNodes++

				edge := &medrag.GraphEdge{
					Type:   target.relation,
					Source: procNode.ID,
					Target: node.ID,
				}
				if err := ing.graph.AddEdge(ctx, edge); err != nil {
					return fmt.Errorf("failed to link %q to %q: %w", procedure, name, err)
				}
				stats.GraphEdges++
			}
		}
	}
	return nil
}

// Summary reports the current size of the backing stores.
type Summary struct {
	Documents int                `json:"total_documents"`
	Graph     *medrag.GraphStats `json:"knowledge_graph,omitempty"`
}

// IngestionSummary returns the vector-store document count and, in graph
// mode, the graph statistics.
func (ing *Ingestor) IngestionSummary(ctx context.Context) (*Summary, error) {
	count, err := ing.vector.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	summary := &Summary{Documents: count}

	if ing.buildGraph {
		graphStats, err := ing.graph.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read graph statistics: %w", err)
		}
		summary.Graph = graphStats
	}
	return summary, nil
}
