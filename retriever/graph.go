package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/medrag"
	"github.com/smallnest/medrag/log"
)

// graphTraversalDepth bounds the related-procedure walk.
const graphTraversalDepth = 2

// GraphRetriever turns knowledge graph neighborhoods into retrievable
// items. Procedures named in the query yield their full context with score
// 1.0; procedures reachable through shared entities score 1/(1+distance).
type GraphRetriever struct {
	graph     medrag.KnowledgeGraph
	extractor medrag.EntityExtractor
	logger    log.Logger
}

// NewGraphRetriever creates a new GraphRetriever.
func NewGraphRetriever(graph medrag.KnowledgeGraph, extractor medrag.EntityExtractor, logger log.Logger) *GraphRetriever {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &GraphRetriever{
		graph:     graph,
		extractor: extractor,
		logger:    logger,
	}
}

// Retrieve extracts entities from the query and converts the graph
// neighborhood of each mentioned procedure into synthetic items.
func (r *GraphRetriever) Retrieve(ctx context.Context, query string) ([]medrag.RetrievedItem, error) {
	entities, err := r.extractor.ExtractEntities(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("entity extraction failed: %w", err)
	}

	procedures := entities[medrag.EntityProcedures]
	if len(procedures) == 0 {
		r.logger.Debug("no procedure entities in query, skipping graph retrieval")
		return nil, nil
	}

	var items []medrag.RetrievedItem
	seen := make(map[string]bool)
	for _, procedure := range procedures {
		var pc *medrag.ProcedureContext
		err := withRetry(ctx, r.logger, "procedure context", func() error {
			var err error
			pc, err = r.graph.ProcedureContext(ctx, procedure)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("graph lookup failed for %q: %w", procedure, err)
		}
		if pc == nil {
			continue
		}

		key := strings.ToLower(pc.Procedure)
		if !seen[key] {
			seen[key] = true
			items = append(items, medrag.RetrievedItem{
				ID:       "graph:procedure:" + key,
				Text:     renderProcedureContext(pc),
				Source:   medrag.SourceGraph,
				RawScore: 1.0,
				Metadata: map[string]any{
					"entity":    pc.Procedure,
					"node_type": medrag.NodeProcedure,
				},
			})
		}

		related, err := r.graph.RelatedProcedures(ctx, pc.Procedure, graphTraversalDepth)
		if err != nil {
			return nil, fmt.Errorf("related procedure lookup failed for %q: %w", pc.Procedure, err)
		}
		for _, rel := range related {
			key := strings.ToLower(rel.Procedure)
			if seen[key] {
				continue
			}
			seen[key] = true
			items = append(items, medrag.RetrievedItem{
				ID:       "graph:procedure:" + key,
				Text:     fmt.Sprintf("Related procedure: %s (connected to %s through shared surgical entities)", rel.Procedure, pc.Procedure),
				Source:   medrag.SourceGraph,
				RawScore: 1.0 / float64(1+rel.Distance),
				Metadata: map[string]any{
					"entity":    rel.Procedure,
					"node_type": medrag.NodeProcedure,
					"distance":  rel.Distance,
				},
			})
		}
	}

	r.logger.Debug("graph retrieval produced %d items for %d procedure entities", len(items), len(procedures))
	return items, nil
}

// RelatedProcedureNames returns up to limit procedures related to any
// procedure mentioned in the text. Used for enrichment metadata.
func (r *GraphRetriever) RelatedProcedureNames(ctx context.Context, text string, limit int) ([]string, error) {
	entities, err := r.extractor.ExtractEntities(ctx, text)
	if err != nil {
		return nil, err
	}

	var names []string
	seen := make(map[string]bool)
	for _, procedure := range entities[medrag.EntityProcedures] {
		related, err := r.graph.RelatedProcedures(ctx, procedure, graphTraversalDepth)
		if err != nil {
			return nil, err
		}
		for _, rel := range related {
			key := strings.ToLower(rel.Procedure)
			if seen[key] {
				continue
			}
			seen[key] = true
			names = append(names, rel.Procedure)
			if len(names) >= limit {
				return names, nil
			}
		}
	}
	return names, nil
}

// renderProcedureContext flattens a graph neighborhood into chunk-like text.
func renderProcedureContext(pc *medrag.ProcedureContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Procedure: %s", pc.Procedure)
	if pc.Description != "" {
		fmt.Fprintf(&b, "\nDescription: %s", pc.Description)
	}
	if len(pc.Steps) > 0 {
		b.WriteString("\nSteps:")
		for i, step := range pc.Steps {
			fmt.Fprintf(&b, "\n  %d. %s", i+1, step)
		}
	}
	writeNameList(&b, "Anatomy", pc.Anatomy)
	writeNameList(&b, "Instruments", pc.Instruments)
	writeNameList(&b, "Complications", pc.Complications)
	writeNameList(&b, "Techniques", pc.Techniques)
	writeNameList(&b, "Medications", pc.Medications)
	return b.String()
}

func writeNameList(b *strings.Builder, label string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s: %s", label, strings.Join(names, ", "))
}
