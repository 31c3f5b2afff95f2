package verify

import (
	"context"

	"github.com/smallnest/medrag"
	"github.com/smallnest/medrag/log"
)

// PipelineConfig configures a verification Pipeline.
type PipelineConfig struct {
	Graph  medrag.KnowledgeGraph
	Claims medrag.ClaimExtractor
	// AbstentionThreshold is the minimum verification score to answer.
	// Zero means the default.
	AbstentionThreshold float64
	// DisableAbstention turns the abstention gate off, for offline
	// evaluation runs.
	DisableAbstention bool
	Logger            log.Logger
}

// Pipeline runs the full verification chain for one answer: claim
// extraction, graph verification, hallucination classification, and the
// abstention decision.
type Pipeline struct {
	extractor medrag.ClaimExtractor
	verifier  *Verifier
	policy    *Policy
	logger    log.Logger
}

// NewPipeline creates a verification Pipeline.
func NewPipeline(config PipelineConfig) *Pipeline {
	if config.Logger == nil {
		config.Logger = log.GetDefaultLogger()
	}
	policy := NewPolicy(config.AbstentionThreshold)
	if config.DisableAbstention {
		policy.Enabled = false
	}
	return &Pipeline{
		extractor: config.Claims,
		verifier:  NewVerifier(config.Graph, config.Logger),
		policy:    policy,
		logger:    config.Logger,
	}
}

// VerifyAnswer verifies one generated answer against the knowledge graph.
// Extraction failures degrade to an empty claim set, which the abstention
// policy then treats as unverifiable.
func (p *Pipeline) VerifyAnswer(ctx context.Context, query, answer string) (*medrag.VerificationReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claims, err := p.extractor.ExtractClaims(ctx, answer, query)
	if err != nil {
		p.logger.Warn("claim extraction failed, treating answer as unverifiable: %v", err)
		claims = &medrag.ClaimSet{}
	}
	p.logger.Info("extracted %d claims from answer", claims.Total())

	verification := p.verifier.VerifyClaims(ctx, claims)
	hallucinations := ClassifyAll(verification.Unverified)
	decision := p.policy.Decide(verification)
	level := medrag.ConfidenceLevelFor(verification.Score)

	report := &medrag.VerificationReport{
		Score:            verification.Score,
		Level:            level,
		TotalClaims:      verification.Total,
		VerifiedClaims:   verification.Verified,
		UnverifiedClaims: verification.Total - verification.Verified,
		CategoryScores:   verification.CategoryScores,
		Unverified:       verification.Unverified,
		Claims:           claims,
		Hallucinations:   hallucinations,
		Abstention:       decision,
	}
	if !decision.ShouldAbstain {
		report.Warning = WarningBanner(level, verification.Score)
	}

	if decision.ShouldAbstain {
		p.logger.Info("abstaining: %s", decision.Reason)
	}
	return report, nil
}
