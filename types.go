package medrag

import (
	"context"
	"time"
)

// SourceModality identifies which retrieval component produced an item.
type SourceModality string

const (
	// SourceVector marks items produced by vector similarity search
	SourceVector SourceModality = "vector"
	// SourceGraph marks items produced by knowledge graph traversal
	SourceGraph SourceModality = "graph"
)

// InvalidScoreFloor is the sentinel floor for similarity scores. Vector
// indexes report "no match" with very large negative values; any score at or
// below this floor must be filtered out, never averaged in.
const InvalidScoreFloor = -1e30

// RetrievedItem is a single retrieval candidate from either modality.
// Items are never mutated after creation; re-scoring produces a new record.
type RetrievedItem struct {
	ID             string         `json:"id"`
	Text           string         `json:"text"`
	Source         SourceModality `json:"source"`
	RawScore       float64        `json:"raw_score"`
	WeightedScore  float64        `json:"weighted_score"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// AggregatedResult is a RetrievedItem annotated with multi-sub-query
// provenance. SubqueryHitCount always equals len(SubqueryIndices).
type AggregatedResult struct {
	RetrievedItem
	SubqueryIndices []int   `json:"subquery_indices,omitempty"`
	SubqueryHitCount int    `json:"subquery_hit_count"`
	FinalScore       float64 `json:"final_score"`
}

// SubqueryPlan is the immutable output of query decomposition.
type SubqueryPlan struct {
	OriginalQuery   string   `json:"original_query"`
	Subqueries      []string `json:"subqueries"`
	IsComplex       bool     `json:"is_complex"`
	ComplexityScore float64  `json:"complexity_score"`
}

// SearchResult is one hit from a vector index.
type SearchResult struct {
	ID       string
	Text     string
	Score    float64
	Metadata map[string]any
}

// VectorIndex is the read interface over a dense vector store. Scores are
// cosine similarities; entries with scores at or below InvalidScoreFloor
// represent "no match" and must be skipped by callers.
type VectorIndex interface {
	Search(ctx context.Context, queryEmbedding []float32, k int) ([]SearchResult, error)
	// Count reports how many documents the index holds.
	Count(ctx context.Context) (int, error)
}

// VectorStore extends VectorIndex with write operations for ingestion.
type VectorStore interface {
	VectorIndex
	Add(ctx context.Context, docs []Document) error
	Delete(ctx context.Context, ids []string) error
	Close() error
}

// Document is a text chunk with its embedding, as stored in a VectorStore.
type Document struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Embedding []float32      `json:"-"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// Node and relation types used by the surgical knowledge graph.
const (
	NodeProcedure    = "Procedure"
	NodeAnatomy      = "Anatomy"
	NodeInstrument   = "Instrument"
	NodeStep         = "Step"
	NodeComplication = "Complication"
	NodeTechnique    = "Technique"
	NodeMedication   = "Medication"

	RelInvolves       = "INVOLVES"
	RelRequires       = "REQUIRES"
	RelUses           = "USES"
	RelMayCause       = "MAY_CAUSE"
	RelUsesTechnique  = "USES_TECHNIQUE"
	RelMedication     = "REQUIRES_MEDICATION"
	RelPrecedes       = "PRECEDES"
	RelFollows        = "FOLLOWS"
	RelTargets        = "TARGETS"
	RelAvoids         = "AVOIDS"
	RelIdentifies     = "IDENTIFIES"
)

// GraphNode is a typed node in the knowledge graph. Identity at this layer
// is by case-insensitive name within a type, not by surrogate key.
type GraphNode struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

// GraphEdge is a typed, directed edge between two nodes.
type GraphEdge struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Properties map[string]any `json:"properties,omitempty"`
}

// ProcedureContext is the direct graph neighborhood of one procedure.
type ProcedureContext struct {
	Procedure     string   `json:"procedure"`
	Description   string   `json:"description,omitempty"`
	Steps         []string `json:"steps,omitempty"`
	Anatomy       []string `json:"anatomy,omitempty"`
	Instruments   []string `json:"instruments,omitempty"`
	Complications []string `json:"complications,omitempty"`
	Techniques    []string `json:"techniques,omitempty"`
	Medications   []string `json:"medications,omitempty"`
}

// RelatedProcedure is a procedure reachable from another through shared
// entities, with its traversal distance.
type RelatedProcedure struct {
	Procedure string `json:"procedure"`
	Distance  int    `json:"distance"`
}

// GraphStats summarizes graph contents by node and edge type.
type GraphStats struct {
	Nodes              map[string]int `json:"nodes"`
	Relationships      map[string]int `json:"relationships"`
	TotalNodes         int            `json:"total_nodes"`
	TotalRelationships int            `json:"total_relationships"`
}

// KnowledgeGraph is the read interface over the typed knowledge graph.
// Name matching in RelationExists and NodeExists is case-insensitive
// substring containment, tolerating lexical variation between extracted
// claim text and stored node names.
type KnowledgeGraph interface {
	// RelationExists reports whether any edge of one of relTypes connects a
	// node of fromType whose name contains fromName to a node of toType
	// whose name contains toName.
	RelationExists(ctx context.Context, fromType, fromName string, relTypes []string, toType, toName string) (bool, error)
	// NodeExists reports whether any node of nodeType has a name containing
	// the given substring.
	NodeExists(ctx context.Context, nodeType, nameContains string) (bool, error)
	// ProcedureContext returns the direct neighborhood of a procedure, or
	// nil when the procedure is unknown.
	ProcedureContext(ctx context.Context, procedure string) (*ProcedureContext, error)
	// RelatedProcedures finds procedures reachable within maxDepth hops,
	// ordered by distance.
	RelatedProcedures(ctx context.Context, procedure string, maxDepth int) ([]RelatedProcedure, error)
	Stats(ctx context.Context) (*GraphStats, error)
}

// GraphStore extends KnowledgeGraph with write operations for ingestion.
type GraphStore interface {
	KnowledgeGraph
	AddNode(ctx context.Context, node *GraphNode) error
	AddEdge(ctx context.Context, edge *GraphEdge) error
	Close() error
}

// Embedder turns text into dense vectors.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	GetDimension() int
}

// Entity categories returned by entity extraction.
const (
	EntityProcedures    = "procedures"
	EntityAnatomy       = "anatomy"
	EntityInstruments   = "instruments"
	EntityComplications = "complications"
	EntityTechniques    = "techniques"
	EntityMedications   = "medications"
)

// EntityExtractor tags text spans with surgical entity categories. It is
// best effort: implementations return an empty map rather than an error on
// malformed upstream output.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) (map[string][]string, error)
}

// ClaimCategory identifies which kind of factual claim a record carries.
type ClaimCategory string

const (
	CategoryInstrument   ClaimCategory = "instrument"
	CategoryStepOrder    ClaimCategory = "step_order"
	CategoryAnatomy      ClaimCategory = "anatomy"
	CategoryComplication ClaimCategory = "complication"
)

// InstrumentClaim asserts that a surgical step uses an instrument.
type InstrumentClaim struct {
	Step       string `json:"step"`
	Instrument string `json:"instrument"`
	Usage      string `json:"usage,omitempty"`
}

// StepOrderClaim asserts an ordering relation between two procedure steps.
type StepOrderClaim struct {
	Procedure  string `json:"procedure"`
	StepBefore string `json:"step_before"`
	StepAfter  string `json:"step_after"`
	Relation   string `json:"relationship"`
}

// AnatomyClaim asserts that a procedure involves an anatomical structure.
type AnatomyClaim struct {
	Procedure string `json:"procedure"`
	Structure string `json:"anatomical_structure"`
	Relation  string `json:"relationship"`
}

// ComplicationClaim asserts a complication of a procedure and, optionally,
// its management.
type ComplicationClaim struct {
	Procedure    string `json:"procedure"`
	Complication string `json:"complication"`
	Management   string `json:"management,omitempty"`
}

// ClaimSet holds the structured claims extracted from one answer.
type ClaimSet struct {
	Instruments   []InstrumentClaim   `json:"instrument_claims"`
	StepOrders    []StepOrderClaim    `json:"step_order_claims"`
	Anatomy       []AnatomyClaim      `json:"anatomy_claims"`
	Complications []ComplicationClaim `json:"complication_claims"`
}

// Total counts claims across all categories.
func (c *ClaimSet) Total() int {
	if c == nil {
		return 0
	}
	return len(c.Instruments) + len(c.StepOrders) + len(c.Anatomy) + len(c.Complications)
}

// ClaimExtractor extracts structured claims from a generated answer. It is
// best effort: implementations return an empty ClaimSet rather than an error
// on extraction failure or missing credentials.
type ClaimExtractor interface {
	ExtractClaims(ctx context.Context, answer, query string) (*ClaimSet, error)
}

// Decomposer turns a raw query into a SubqueryPlan. Decomposition failure
// must never block retrieval; implementations fall back to a single-subquery
// plan.
type Decomposer interface {
	Decompose(ctx context.Context, query string) (*SubqueryPlan, error)
}

// VerificationOutcome is the result of checking one claim against the graph.
type VerificationOutcome struct {
	Category ClaimCategory `json:"category"`
	Claim    string        `json:"claim"`
	Verified bool          `json:"verified"`
	Reason   string        `json:"reason,omitempty"`
}

// ConfidenceLevel is the coarse bucket derived from a composite score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ConfidenceComponent is one scored input to the composite confidence.
type ConfidenceComponent struct {
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// ConfidenceReport is the composite confidence for one query. It is
// stateless and recomputed per query, never persisted.
type ConfidenceReport struct {
	Overall    float64                        `json:"overall_confidence"`
	Level      ConfidenceLevel                `json:"confidence_level"`
	Components map[string]ConfidenceComponent `json:"components"`
	Warning    string                         `json:"warning,omitempty"`
}

// Severity grades how dangerous an unverified claim is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// HallucinationRecord classifies one unverified claim into the taxonomy.
type HallucinationRecord struct {
	Type       string              `json:"hallucination_type"`
	Category   string              `json:"category"`
	Severity   Severity            `json:"severity"`
	Confidence float64             `json:"confidence"`
	Outcome    VerificationOutcome `json:"outcome"`
}

// HallucinationReport aggregates classified hallucinations for one answer.
type HallucinationReport struct {
	Total           int                  `json:"total_hallucinations"`
	Records         []HallucinationRecord `json:"records,omitempty"`
	ByCategory      map[string]int       `json:"category_distribution"`
	BySeverity      map[Severity]int     `json:"severity_distribution"`
	CriticalCount   int                  `json:"critical_count"`
	SafetyScore     float64              `json:"safety_score"`
	Recommendations []string             `json:"recommendations,omitempty"`
}

// AbstentionDecision is the terminal artifact of one verification cycle.
type AbstentionDecision struct {
	ShouldAbstain bool   `json:"should_abstain"`
	Reason        string `json:"reason,omitempty"`
}

// VerificationReport is the full outcome of verifying one answer.
// Score equals VerifiedClaims/TotalClaims when TotalClaims > 0, and 1.0
// otherwise: no claims means no falsifiable statements, not an error.
type VerificationReport struct {
	Score           float64                   `json:"verification_score"`
	Level           ConfidenceLevel           `json:"confidence_level"`
	TotalClaims     int                       `json:"total_claims"`
	VerifiedClaims  int                       `json:"verified_claims"`
	UnverifiedClaims int                      `json:"unverified_claims"`
	CategoryScores  map[ClaimCategory]float64 `json:"category_scores"`
	Unverified      []VerificationOutcome     `json:"unverified,omitempty"`
	Claims          *ClaimSet                 `json:"extracted_claims,omitempty"`
	Hallucinations  *HallucinationReport      `json:"hallucination_analysis,omitempty"`
	Abstention      AbstentionDecision        `json:"abstention_decision"`
	Warning         string                    `json:"warning,omitempty"`
}
