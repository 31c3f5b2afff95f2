package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/medrag"
	"github.com/smallnest/medrag/log"
)

// fakeGraph answers existence checks from fixed sets. Setting err makes
// every lookup fail.
type fakeGraph struct {
	relations map[string]bool
	nodes     map[string]bool
	err       error
}

func relKey(fromType, fromName, rel, toType, toName string) string {
	return strings.ToLower(fmt.Sprintf("%s/%s-[%s]->%s/%s", fromType, fromName, rel, toType, toName))
}

func nodeKey(nodeType, name string) string {
	return strings.ToLower(nodeType + "/" + name)
}

func (g *fakeGraph) RelationExists(_ context.Context, fromType, fromName string, relTypes []string, toType, toName string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	for _, rel := range relTypes {
		if g.relations[relKey(fromType, fromName, rel, toType, toName)] {
			return true, nil
		}
	}
	return false, nil
}

func (g *fakeGraph) NodeExists(_ context.Context, nodeType, nameContains string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	return g.nodes[nodeKey(nodeType, nameContains)], nil
}

func (g *fakeGraph) ProcedureContext(context.Context, string) (*medrag.ProcedureContext, error) {
	return nil, nil
}

func (g *fakeGraph) RelatedProcedures(context.Context, string, int) ([]medrag.RelatedProcedure, error) {
	return nil, nil
}

func (g *fakeGraph) Stats(context.Context) (*medrag.GraphStats, error) {
	return &medrag.GraphStats{}, nil
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		relations: make(map[string]bool),
		nodes:     make(map[string]bool),
	}
}

func TestVerifyClaimsEmptySet(t *testing.T) {
	v := NewVerifier(newFakeGraph(), &log.NoOpLogger{})

	result := v.VerifyClaims(context.Background(), &medrag.ClaimSet{})

	assert.Equal(t, 1.0, result.Score)
	assert.Equal(t, 0, result.Total)
	for _, category := range []medrag.ClaimCategory{
		medrag.CategoryInstrument, medrag.CategoryStepOrder,
		medrag.CategoryAnatomy, medrag.CategoryComplication,
	} {
		assert.Equal(t, 1.0, result.CategoryScores[category])
	}

	result = v.VerifyClaims(context.Background(), nil)
	assert.Equal(t, 1.0, result.Score)
}

func TestVerifyInstrumentClaims(t *testing.T) {
	graph := newFakeGraph()
	graph.relations[relKey(medrag.NodeStep, "Dissect Calot's triangle", medrag.RelUses,
		medrag.NodeInstrument, "Maryland dissector")] = true
	graph.nodes[nodeKey(medrag.NodeStep, "Clip cystic duct")] = true
	graph.nodes[nodeKey(medrag.NodeInstrument, "Clip applier")] = true

	v := NewVerifier(graph, &log.NoOpLogger{})

	t.Run("direct relationship verifies", func(t *testing.T) {
		result := v.VerifyClaims(context.Background(), &medrag.ClaimSet{
			Instruments: []medrag.InstrumentClaim{
				{Step: "Dissect Calot's triangle", Instrument: "Maryland dissector"},
			},
		})
		assert.Equal(t, 1, result.Verified)
		assert.Empty(t, result.Unverified)
	})

	t.Run("falls back to node existence", func(t *testing.T) {
		result := v.VerifyClaims(context.Background(), &medrag.ClaimSet{
			Instruments: []medrag.InstrumentClaim{
				{Step: "Clip cystic duct", Instrument: "Clip applier"},
			},
		})
		assert.Equal(t, 1, result.Verified)
	})

	t.Run("unknown instrument fails", func(t *testing.T) {
		result := v.VerifyClaims(context.Background(), &medrag.ClaimSet{
			Instruments: []medrag.InstrumentClaim{
				{Step: "Clip cystic duct", Instrument: "Sonic screwdriver"},
			},
		})
		assert.Equal(t, 0, result.Verified)
		require.Len(t, result.Unverified, 1)
		assert.Equal(t, reasonNoRelationship, result.Unverified[0].Reason)
		assert.Contains(t, result.Unverified[0].Claim, "Sonic screwdriver")
	})

	t.Run("missing fields fail without querying", func(t *testing.T) {
		result := v.VerifyClaims(context.Background(), &medrag.ClaimSet{
			Instruments: []medrag.InstrumentClaim{{Instrument: "Scalpel"}},
		})
		require.Len(t, result.Unverified, 1)
		assert.Equal(t, reasonMissingInstrumentFields, result.Unverified[0].Reason)
	})
}

func TestVerifyStepOrderClaims(t *testing.T) {
	graph := newFakeGraph()
	graph.relations[relKey(medrag.NodeStep, "Establish pneumoperitoneum", medrag.RelPrecedes,
		medrag.NodeStep, "Insert trocars")] = true

	v := NewVerifier(graph, &log.NoOpLogger{})

	t.Run("lowercase relation is normalized", func(t *testing.T) {
		result := v.VerifyClaims(context.Background(), &medrag.ClaimSet{
			StepOrders: []medrag.StepOrderClaim{
				{StepBefore: "Establish pneumoperitoneum", StepAfter: "Insert trocars", Relation: "precedes"},
			},
		})
		assert.Equal(t, 1, result.Verified)
	})

	t.Run("empty relation defaults to precedes", func(t *testing.T) {
		result := v.VerifyClaims(context.Background(), &medrag.ClaimSet{
			StepOrders: []medrag.StepOrderClaim{
				{StepBefore: "Establish pneumoperitoneum", StepAfter: "Insert trocars"},
			},
		})
		assert.Equal(t, 1, result.Verified)
	})

	t.Run("inexpressible relation never verifies", func(t *testing.T) {
		result := v.VerifyClaims(context.Background(), &medrag.ClaimSet{
			StepOrders: []medrag.StepOrderClaim{
				{StepBefore: "Establish pneumoperitoneum", StepAfter: "Insert trocars", Relation: "DURING"},
			},
		})
		assert.Equal(t, 0, result.Verified)
		require.Len(t, result.Unverified, 1)
		assert.Equal(t, reasonStepOrderNotFound, result.Unverified[0].Reason)
	})

	t.Run("missing step names fail", func(t *testing.T) {
		result := v.VerifyClaims(context.Background(), &medrag.ClaimSet{
			StepOrders: []medrag.StepOrderClaim{{StepBefore: "Insert trocars"}},
		})
		require.Len(t, result.Unverified, 1)
		assert.Equal(t, reasonMissingStepFields, result.Unverified[0].Reason)
	})
}

func TestVerifyAnatomyClaims(t *testing.T) {
	graph := newFakeGraph()
	graph.relations[relKey(medrag.NodeProcedure, "Laparoscopic Cholecystectomy", medrag.RelInvolves,
		medrag.NodeAnatomy, "Cystic duct")] = true
	graph.nodes[nodeKey(medrag.NodeAnatomy, "Common bile duct")] = true

	v := NewVerifier(graph, &log.NoOpLogger{})

	t.Run("procedure relationship verifies", func(t *testing.T) {
		result := v.VerifyClaims(context.Background(), &medrag.ClaimSet{
			Anatomy: []medrag.AnatomyClaim{
				{Procedure: "Laparoscopic Cholecystectomy", Structure: "Cystic duct"},
			},
		})
		assert.Equal(t, 1, result.Verified)
	})

	t.Run("partial credit when structure exists", func(t *testing.T) {
		result := v.VerifyClaims(context.Background(), &medrag.ClaimSet{
			Anatomy: []medrag.AnatomyClaim{
				{Procedure: "Appendectomy", Structure: "Common bile duct"},
			},
		})
		assert.Equal(t, 1, result.Verified)
	})

	t.Run("no procedure checks structure only", func(t *testing.T) {
		result := v.VerifyClaims(context.Background(), &medrag.ClaimSet{
			Anatomy: []medrag.AnatomyClaim{{Structure: "Common bile duct"}},
		})
		assert.Equal(t, 1, result.Verified)
	})

	t.Run("unknown structure fails", func(t *testing.T) {
		result := v.VerifyClaims(context.Background(), &medrag.ClaimSet{
			Anatomy: []medrag.AnatomyClaim{{Structure: "Flux capacitor"}},
		})
		require.Len(t, result.Unverified, 1)
		assert.Equal(t, reasonStructureNotFound, result.Unverified[0].Reason)
	})
}

func TestVerifyComplicationClaims(t *testing.T) {
	graph := newFakeGraph()
	graph.nodes[nodeKey(medrag.NodeComplication, "Bile duct injury")] = true

	v := NewVerifier(graph, &log.NoOpLogger{})

	result := v.VerifyClaims(context.Background(), &medrag.ClaimSet{
		Complications: []medrag.ComplicationClaim{
			{Procedure: "Laparoscopic Cholecystectomy", Complication: "Bile duct injury", Management: "ERCP with stenting"},
			{Procedure: "Laparoscopic Cholecystectomy", Complication: "Spontaneous combustion"},
			{Procedure: "Laparoscopic Cholecystectomy"},
		},
	})

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Verified)
	assert.InDelta(t, 1.0/3.0, result.Score, 1e-9)
	require.Len(t, result.Unverified, 2)
	assert.Equal(t, reasonComplicationNotFound, result.Unverified[0].Reason)
	assert.Equal(t, reasonMissingComplication, result.Unverified[1].Reason)
	assert.Contains(t, result.Unverified[0].Claim, "Spontaneous combustion")
}

func TestVerifyClaimsQueryErrors(t *testing.T) {
	graph := newFakeGraph()
	graph.err = errors.New("connection refused")

	v := NewVerifier(graph, &log.NoOpLogger{})
	result := v.VerifyClaims(context.Background(), &medrag.ClaimSet{
		Instruments: []medrag.InstrumentClaim{{Step: "Clip cystic duct", Instrument: "Clip applier"}},
		Anatomy:     []medrag.AnatomyClaim{{Structure: "Cystic duct"}},
	})

	assert.Equal(t, 0, result.Verified)
	assert.Equal(t, 0.0, result.Score)
	require.Len(t, result.Unverified, 2)
	for _, outcome := range result.Unverified {
		assert.Contains(t, outcome.Reason, "query error:")
		assert.Contains(t, outcome.Reason, "connection refused")
	}
}

func TestVerifyClaimsCategoryScores(t *testing.T) {
	graph := newFakeGraph()
	graph.nodes[nodeKey(medrag.NodeComplication, "Bleeding")] = true

	v := NewVerifier(graph, &log.NoOpLogger{})
	result := v.VerifyClaims(context.Background(), &medrag.ClaimSet{
		Complications: []medrag.ComplicationClaim{
			{Complication: "Bleeding"},
			{Complication: "Gremlins"},
		},
	})

	assert.Equal(t, 0.5, result.CategoryScores[medrag.CategoryComplication])
	// Untouched categories score perfect.
	assert.Equal(t, 1.0, result.CategoryScores[medrag.CategoryAnatomy])
	assert.Equal(t, 0.5, result.Score)
}
