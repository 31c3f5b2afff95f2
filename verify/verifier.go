// Package verify implements the answer safety chain: claim verification
// against the knowledge graph, hallucination classification, abstention
// policy, and user-facing report formatting.
package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/medrag"
	"github.com/smallnest/medrag/log"
)

// Unverified-claim reasons. The taxonomy keys its classification
// confidence off these strings, so they are fixed.
const (
	reasonMissingInstrumentFields = "missing step or instrument name"
	reasonNoRelationship          = "no graph relationship found"
	reasonMissingStepFields       = "missing step names"
	reasonStepOrderNotFound       = "step ordering not found in graph"
	reasonMissingStructure        = "missing anatomical structure"
	reasonStructureNotFound       = "anatomical structure not found in graph"
	reasonMissingComplication     = "missing complication name"
	reasonComplicationNotFound    = "complication not found in graph"
)

// stepOrderRelations are the orderings the graph can express.
var stepOrderRelations = map[string]bool{
	medrag.RelPrecedes: true,
	medrag.RelFollows:  true,
	medrag.RelRequires: true,
}

// anatomyRelations connect procedures to anatomical structures.
var anatomyRelations = []string{
	medrag.RelInvolves, medrag.RelTargets, medrag.RelAvoids, medrag.RelIdentifies,
}

// ClaimVerification aggregates the outcome of checking one claim set.
type ClaimVerification struct {
	Score          float64
	Total          int
	Verified       int
	CategoryScores map[medrag.ClaimCategory]float64
	Unverified     []medrag.VerificationOutcome
}

// Verifier checks extracted claims against the knowledge graph. Graph
// lookup errors mark the affected claim unverified instead of failing the
// batch.
type Verifier struct {
	graph  medrag.KnowledgeGraph
	logger log.Logger
}

// NewVerifier creates a new Verifier.
func NewVerifier(graph medrag.KnowledgeGraph, logger log.Logger) *Verifier {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Verifier{graph: graph, logger: logger}
}

// VerifyClaims checks every claim in the set. The overall score is
// verified/total, or 1.0 when the set is empty: no claims means no
// falsifiable statements.
func (v *Verifier) VerifyClaims(ctx context.Context, claims *medrag.ClaimSet) *ClaimVerification {
	result := &ClaimVerification{
		CategoryScores: make(map[medrag.ClaimCategory]float64),
	}
	if claims == nil {
		claims = &medrag.ClaimSet{}
	}

	categories := []struct {
		category medrag.ClaimCategory
		total    int
		verified int
	}{
		{medrag.CategoryInstrument, len(claims.Instruments), v.verifyInstruments(ctx, claims.Instruments, result)},
		{medrag.CategoryStepOrder, len(claims.StepOrders), v.verifyStepOrders(ctx, claims.StepOrders, result)},
		{medrag.CategoryAnatomy, len(claims.Anatomy), v.verifyAnatomy(ctx, claims.Anatomy, result)},
		{medrag.CategoryComplication, len(claims.Complications), v.verifyComplications(ctx, claims.Complications, result)},
	}

	for _, c := range categories {
		result.Total += c.total
		result.Verified += c.verified
		if c.total > 0 {
			result.CategoryScores[c.category] = float64(c.verified) / float64(c.total)
		} else {
			result.CategoryScores[c.category] = 1.0
		}
	}

	if result.Total > 0 {
		result.Score = float64(result.Verified) / float64(result.Total)
	} else {
		result.Score = 1.0
	}

	v.logger.Info("verified %d/%d claims (score %.2f)", result.Verified, result.Total, result.Score)
	return result
}

func (v *Verifier) verifyInstruments(ctx context.Context, claims []medrag.InstrumentClaim, result *ClaimVerification) int {
	verified := 0
	for _, claim := range claims {
		text := fmt.Sprintf("step %q uses instrument %q", claim.Step, claim.Instrument)
		if claim.Step == "" || claim.Instrument == "" {
			result.fail(medrag.CategoryInstrument, text, reasonMissingInstrumentFields)
			continue
		}

		ok, err := v.graph.RelationExists(ctx, medrag.NodeStep, claim.Step,
			[]string{medrag.RelUses}, medrag.NodeInstrument, claim.Instrument)
		if err != nil {
			v.failQuery(result, medrag.CategoryInstrument, text, err)
			continue
		}
		if !ok {
			// Fall back to checking that both entities exist at all.
			ok, err = v.bothNodesExist(ctx, claim.Step, claim.Instrument)
			if err != nil {
				v.failQuery(result, medrag.CategoryInstrument, text, err)
				continue
			}
		}

		if ok {
			verified++
		} else {
			result.fail(medrag.CategoryInstrument, text, reasonNoRelationship)
		}
	}
	return verified
}

func (v *Verifier) verifyStepOrders(ctx context.Context, claims []medrag.StepOrderClaim, result *ClaimVerification) int {
	verified := 0
	for _, claim := range claims {
		relation := strings.ToUpper(claim.Relation)
		if relation == "" {
			relation = medrag.RelPrecedes
		}
		text := fmt.Sprintf("step %q %s step %q", claim.StepBefore, relation, claim.StepAfter)

		if claim.StepBefore == "" || claim.StepAfter == "" {
			result.fail(medrag.CategoryStepOrder, text, reasonMissingStepFields)
			continue
		}
		if !stepOrderRelations[relation] {
			// A relation the graph cannot express never matches.
			result.fail(medrag.CategoryStepOrder, text, reasonStepOrderNotFound)
			continue
		}

		ok, err := v.graph.RelationExists(ctx, medrag.NodeStep, claim.StepBefore,
			[]string{relation}, medrag.NodeStep, claim.StepAfter)
		if err != nil {
			v.failQuery(result, medrag.CategoryStepOrder, text, err)
			continue
		}
		if ok {
			verified++
		} else {
			result.fail(medrag.CategoryStepOrder, text, reasonStepOrderNotFound)
		}
	}
	return verified
}

func (v *Verifier) verifyAnatomy(ctx context.Context, claims []medrag.AnatomyClaim, result *ClaimVerification) int {
	verified := 0
	for _, claim := range claims {
		text := fmt.Sprintf("procedure %q involves anatomical structure %q", claim.Procedure, claim.Structure)
		if claim.Structure == "" {
			result.fail(medrag.CategoryAnatomy, text, reasonMissingStructure)
			continue
		}

		ok := false
		var err error
		if claim.Procedure != "" {
			ok, err = v.graph.RelationExists(ctx, medrag.NodeProcedure, claim.Procedure,
				anatomyRelations, medrag.NodeAnatomy, claim.Structure)
			if err != nil {
				v.failQuery(result, medrag.CategoryAnatomy, text, err)
				continue
			}
		}
		if !ok {
			// Partial credit when the structure exists anywhere in the
			// graph, even without the claimed relation. Sparse graphs
			// would otherwise produce false negatives.
			ok, err = v.graph.NodeExists(ctx, medrag.NodeAnatomy, claim.Structure)
			if err != nil {
				v.failQuery(result, medrag.CategoryAnatomy, text, err)
				continue
			}
		}

		if ok {
			verified++
		} else {
			result.fail(medrag.CategoryAnatomy, text, reasonStructureNotFound)
		}
	}
	return verified
}

func (v *Verifier) verifyComplications(ctx context.Context, claims []medrag.ComplicationClaim, result *ClaimVerification) int {
	verified := 0
	for _, claim := range claims {
		text := fmt.Sprintf("procedure %q may cause complication %q", claim.Procedure, claim.Complication)
		if claim.Management != "" {
			text += fmt.Sprintf(" managed by %q", claim.Management)
		}
		if claim.Complication == "" {
			result.fail(medrag.CategoryComplication, text, reasonMissingComplication)
			continue
		}

		ok, err := v.graph.NodeExists(ctx, medrag.NodeComplication, claim.Complication)
		if err != nil {
			v.failQuery(result, medrag.CategoryComplication, text, err)
			continue
		}
		if ok {
			verified++
		} else {
			result.fail(medrag.CategoryComplication, text, reasonComplicationNotFound)
		}
	}
	return verified
}

func (v *Verifier) bothNodesExist(ctx context.Context, step, instrument string) (bool, error) {
	stepExists, err := v.graph.NodeExists(ctx, medrag.NodeStep, step)
	if err != nil {
		return false, err
	}
	if !stepExists {
		return false, nil
	}
	return v.graph.NodeExists(ctx, medrag.NodeInstrument, instrument)
}

func (v *Verifier) failQuery(result *ClaimVerification, category medrag.ClaimCategory, claim string, err error) {
	v.logger.Error("verification query failed for %s claim: %v", category, err)
	result.fail(category, claim, fmt.Sprintf("query error: %v", err))
}

func (r *ClaimVerification) fail(category medrag.ClaimCategory, claim, reason string) {
	r.Unverified = append(r.Unverified, medrag.VerificationOutcome{
		Category: category,
		Claim:    claim,
		Verified: false,
		Reason:   reason,
	})
}
