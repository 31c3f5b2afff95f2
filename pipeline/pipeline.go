// Package pipeline wires the retrieval, confidence, and verification
// components into the query-level surface the surrounding application
// consumes. Each query runs as an independent, stateless pass over the
// injected stores and services.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallnest/medrag"
	"github.com/smallnest/medrag/confidence"
	"github.com/smallnest/medrag/log"
	"github.com/smallnest/medrag/retriever"
	"github.com/smallnest/medrag/verify"
)

// NoDocumentsMessage is the fixed answer for queries against an empty
// index. It replaces retrieval and verification entirely; abstention never
// triggers on this path.
const NoDocumentsMessage = "No documents have been uploaded yet. Please upload a document first to enable question answering."

// ErrNoDocuments reports that the vector index holds no documents.
var ErrNoDocuments = errors.New("no documents in the vector index")

// entityNodeTypes maps extracted query-entity categories to graph node
// types, for the graph-coverage confidence component.
var entityNodeTypes = map[string]string{
	medrag.EntityProcedures:    medrag.NodeProcedure,
	medrag.EntityAnatomy:       medrag.NodeAnatomy,
	medrag.EntityInstruments:   medrag.NodeInstrument,
	medrag.EntityComplications: medrag.NodeComplication,
	medrag.EntityTechniques:    medrag.NodeTechnique,
	medrag.EntityMedications:   medrag.NodeMedication,
}

// RetrieveOptions are per-query retrieval switches.
type RetrieveOptions struct {
	// UseGraph adds knowledge graph neighborhoods to the candidate set.
	UseGraph bool
	// ExpandEntities attaches related procedure names to surviving items.
	ExpandEntities bool
}

// Config configures a Pipeline. Vector and Embedder are required. Graph,
// Entities, Claims, and Decompose are optional; missing ones disable the
// features they power (graph retrieval, claim verification, decomposition).
type Config struct {
	Vector   medrag.VectorIndex
	Graph    medrag.KnowledgeGraph
	Embedder medrag.Embedder

	Entities  medrag.EntityExtractor
	Claims    medrag.ClaimExtractor
	Decompose medrag.Decomposer

	// VectorWeight and GraphWeight are the hybrid fusion weights. Both
	// zero means the defaults (0.6/0.4).
	VectorWeight float64
	GraphWeight  float64
	// StepTimeout bounds each per-sub-query retrieval call.
	StepTimeout time.Duration
	// ConfidenceWeights override the default component weights.
	ConfidenceWeights confidence.Weights
	// AbstentionThreshold is the minimum verification score to answer.
	AbstentionThreshold float64

	Logger log.Logger
}

// Pipeline is the produced query surface: hybrid retrieval with
// decomposition, composite confidence scoring, and answer verification.
type Pipeline struct {
	vector   medrag.VectorIndex
	graph    medrag.KnowledgeGraph
	entities medrag.EntityExtractor

	multi    *retriever.MultiStepRetriever
	scorer   *confidence.Scorer
	verifier *verify.Pipeline
	logger   log.Logger
}

// New creates a Pipeline from the injected components.
func New(config Config) (*Pipeline, error) {
	if config.Vector == nil {
		return nil, fmt.Errorf("pipeline requires a vector index")
	}
	if config.Embedder == nil {
		return nil, fmt.Errorf("pipeline requires an embedder")
	}
	if config.Logger == nil {
		config.Logger = log.GetDefaultLogger()
	}

	vectorRetriever := retriever.NewVectorRetriever(config.Vector, config.Embedder, config.Logger)

	var graphRetriever *retriever.GraphRetriever
	if config.Graph != nil && config.Entities != nil {
		graphRetriever = retriever.NewGraphRetriever(config.Graph, config.Entities, config.Logger)
	}

	hybrid := retriever.NewHybridRetriever(retriever.HybridConfig{
		Vector:       vectorRetriever,
		Graph:        graphRetriever,
		VectorWeight: config.VectorWeight,
		GraphWeight:  config.GraphWeight,
		Logger:       config.Logger,
	})

	multi := retriever.NewMultiStepRetriever(retriever.MultiStepConfig{
		Decomposer:  config.Decompose,
		Hybrid:      hybrid,
		StepTimeout: config.StepTimeout,
		Logger:      config.Logger,
	})

	p := &Pipeline{
		vector:   config.Vector,
		graph:    config.Graph,
		entities: config.Entities,
		multi:    multi,
		scorer:   confidence.NewScorer(config.ConfidenceWeights, config.Logger),
		logger:   config.Logger,
	}

	if config.Graph != nil && config.Claims != nil {
		p.verifier = verify.NewPipeline(verify.PipelineConfig{
			Graph:               config.Graph,
			Claims:              config.Claims,
			AbstentionThreshold: config.AbstentionThreshold,
			Logger:              config.Logger,
		})
	}
	return p, nil
}

// Retrieve answers one query with decomposed hybrid retrieval. It returns
// ErrNoDocuments when the index is empty; callers surface
// NoDocumentsMessage instead of an answer on that path.
func (p *Pipeline) Retrieve(ctx context.Context, query string, topK int, opts RetrieveOptions) ([]medrag.AggregatedResult, error) {
	count, err := p.vector.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check index size: %w", err)
	}
	if count == 0 {
		return nil, ErrNoDocuments
	}

	return p.multi.Retrieve(ctx, query, topK, retriever.HybridOptions{
		UseGraph:       opts.UseGraph && p.graph != nil,
		ExpandEntities: opts.ExpandEntities,
	})
}

// Verify checks a generated answer's claims against the knowledge graph
// and returns the verification report with its abstention decision.
func (p *Pipeline) Verify(ctx context.Context, query, answer string) (*medrag.VerificationReport, error) {
	if p.verifier == nil {
		return nil, fmt.Errorf("verification requires a knowledge graph and a claim extractor")
	}
	return p.verifier.VerifyAnswer(ctx, query, answer)
}

// Confidence computes the composite confidence for one query's results.
// The verification report is optional; without it the verification
// component scores neutral.
func (p *Pipeline) Confidence(ctx context.Context, query string, results []medrag.AggregatedResult, verification *medrag.VerificationReport) *medrag.ConfidenceReport {
	items := make([]medrag.RetrievedItem, len(results))
	for i, r := range results {
		items[i] = r.RetrievedItem
	}

	input := confidence.Input{Items: items}
	if verification != nil {
		score := verification.Score
		input.VerificationScore = &score
	}
	input.QueryEntities, input.GraphEntities = p.entityCoverage(ctx, query)

	return p.scorer.Score(input)
}

// entityCoverage extracts entities from the query and checks which of them
// the graph knows. Extraction or lookup failures degrade to the neutral
// empty lists.
func (p *Pipeline) entityCoverage(ctx context.Context, query string) (queryEntities, graphEntities []string) {
	if p.entities == nil || p.graph == nil {
		return nil, nil
	}

	extracted, err := p.entities.ExtractEntities(ctx, query)
	if err != nil {
		p.logger.Warn("query entity extraction failed: %v", err)
		return nil, nil
	}

	for category, names := range extracted {
		nodeType, ok := entityNodeTypes[category]
		if !ok {
			continue
		}
		for _, name := range names {
			queryEntities = append(queryEntities, name)
			exists, err := p.graph.NodeExists(ctx, nodeType, name)
			if err != nil {
				p.logger.Warn("graph lookup failed for %s %q: %v", nodeType, name, err)
				continue
			}
			if exists {
				graphEntities = append(graphEntities, name)
			}
		}
	}
	return queryEntities, graphEntities
}
