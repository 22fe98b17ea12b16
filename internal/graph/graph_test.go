package graph

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/trustcore/internal/core"
)

// ============================================================================
// EDGE STRENGTH TESTS
// ============================================================================

func TestStrength_BaseValues(t *testing.T) {
	assert.InDelta(t, 0.8, Strength(Endorsement, 0), 1e-9)
	assert.InDelta(t, 0.6, Strength(Collaboration, 0), 1e-9)
	assert.InDelta(t, 0.7, Strength(Supervision, 0), 1e-9)
	assert.InDelta(t, -0.6, Strength(Dispute, 0), 1e-9)
	assert.InDelta(t, 0, Strength("UNKNOWN", 3), 1e-9)
}

func TestParseRelationshipType(t *testing.T) {
	for _, raw := range []string{"ENDORSEMENT", "endorsement", "Endorsement"} {
		got, err := ParseRelationshipType(raw)
		require.NoError(t, err)
		assert.Equal(t, Endorsement, got)
	}
	_, err := ParseRelationshipType("friendship")
	assert.Error(t, err)
}

func TestStrength_EvidenceBonus(t *testing.T) {
	// +0.05 per evidence item
	assert.InDelta(t, 0.9, Strength(Endorsement, 2), 1e-9)

	// Bonus caps at 0.20
	assert.InDelta(t, 1.0, Strength(Endorsement, 4), 1e-9)
	assert.InDelta(t, 1.0, Strength(Endorsement, 100), 1e-9)

	// Negative base pushes further negative
	assert.InDelta(t, -0.7, Strength(Dispute, 2), 1e-9)
	assert.InDelta(t, -0.8, Strength(Dispute, 50), 1e-9)
}

func TestStrength_ClampedToUnitInterval(t *testing.T) {
	for _, typ := range []RelationshipType{Endorsement, Collaboration, Supervision, Dispute} {
		for evidence := 0; evidence <= 10; evidence++ {
			s := Strength(typ, evidence)
			assert.LessOrEqual(t, s, 1.0)
			assert.GreaterOrEqual(t, s, -1.0)
		}
	}
}

// ============================================================================
// PATH SEARCH TESTS
// ============================================================================

func TestFindTrustPath_EndorsementChain(t *testing.T) {
	g := New()
	now := time.Now()
	a, b, c := core.AgentID("x:p:a"), core.AgentID("x:p:b"), core.AgentID("x:p:c")

	edgeAB := g.AddEdge(a, b, Endorsement, []string{"task-1", "task-2"}, now)
	assert.InDelta(t, 0.9, edgeAB.Strength, 1e-9)

	edgeBC := g.AddEdge(b, c, Endorsement, nil, now)
	assert.InDelta(t, 0.8, edgeBC.Strength, 1e-9)

	path := g.FindTrustPath(a, c, DefaultMaxHops, DefaultMinEdgeStrength)
	assert.Equal(t, []core.AgentID{a, b, c}, path)
}

func TestFindTrustPath_SelfIsTrivial(t *testing.T) {
	g := New()
	a := core.AgentID("x:p:a")
	assert.Equal(t, []core.AgentID{a}, g.FindTrustPath(a, a, DefaultMaxHops, DefaultMinEdgeStrength))
}

func TestFindTrustPath_NoPath(t *testing.T) {
	g := New()
	a, b := core.AgentID("x:p:a"), core.AgentID("x:p:b")
	assert.Nil(t, g.FindTrustPath(a, b, DefaultMaxHops, DefaultMinEdgeStrength))
}

func TestFindTrustPath_WeakEdgesExcluded(t *testing.T) {
	g := New()
	now := time.Now()
	a, b, c := core.AgentID("x:p:a"), core.AgentID("x:p:b"), core.AgentID("x:p:c")

	g.AddEdge(a, b, Endorsement, nil, now)
	g.AddEdge(b, c, Endorsement, nil, now)

	// 0.8 edges do not clear a 0.9 threshold
	assert.Nil(t, g.FindTrustPath(a, c, DefaultMaxHops, 0.9))
}

func TestFindTrustPath_NonEndorsementEdgesIgnored(t *testing.T) {
	g := New()
	now := time.Now()
	a, b := core.AgentID("x:p:a"), core.AgentID("x:p:b")

	// Strength 0.7 > 0.5 threshold, but supervision is not an endorsement
	g.AddEdge(a, b, Supervision, nil, now)
	assert.Nil(t, g.FindTrustPath(a, b, DefaultMaxHops, DefaultMinEdgeStrength))
}

func TestFindTrustPath_HopBound(t *testing.T) {
	g := New()
	now := time.Now()

	// Chain of 4 hops: n0 → n1 → n2 → n3 → n4
	ids := make([]core.AgentID, 5)
	for i := range ids {
		ids[i] = core.AgentID(fmt.Sprintf("x:p:n%d", i))
	}
	for i := 0; i < 4; i++ {
		g.AddEdge(ids[i], ids[i+1], Endorsement, nil, now)
	}

	assert.NotNil(t, g.FindTrustPath(ids[0], ids[4], 4, DefaultMinEdgeStrength))
	assert.Nil(t, g.FindTrustPath(ids[0], ids[4], 3, DefaultMinEdgeStrength),
		"a 4-hop chain must be unreachable under a 3-hop bound")
}

func TestFindTrustPath_EndorsementsTraverseBothDirections(t *testing.T) {
	g := New()
	now := time.Now()
	a, b := core.AgentID("x:p:a"), core.AgentID("x:p:b")

	g.AddEdge(a, b, Endorsement, nil, now)

	// The edge was added a → b, but endorsement reachability is mutual
	assert.Equal(t, []core.AgentID{b, a}, g.FindTrustPath(b, a, DefaultMaxHops, DefaultMinEdgeStrength))
}

func TestFindTrustPath_CycleSafe(t *testing.T) {
	g := New()
	now := time.Now()
	a, b, c := core.AgentID("x:p:a"), core.AgentID("x:p:b"), core.AgentID("x:p:c")

	g.AddEdge(a, b, Endorsement, nil, now)
	g.AddEdge(b, a, Endorsement, nil, now)
	g.AddEdge(b, c, Endorsement, nil, now)

	assert.Equal(t, []core.AgentID{a, b, c}, g.FindTrustPath(a, c, DefaultMaxHops, DefaultMinEdgeStrength))
}

func TestFindTrustPath_Deterministic(t *testing.T) {
	g := New()
	now := time.Now()
	a, b1, b2, c := core.AgentID("x:p:a"), core.AgentID("x:p:b1"), core.AgentID("x:p:b2"), core.AgentID("x:p:c")

	// Two equal-length routes a→b1→c and a→b2→c; insertion order picks b1
	g.AddEdge(a, b1, Endorsement, nil, now)
	g.AddEdge(a, b2, Endorsement, nil, now)
	g.AddEdge(b1, c, Endorsement, nil, now)
	g.AddEdge(b2, c, Endorsement, nil, now)

	want := g.FindTrustPath(a, c, DefaultMaxHops, DefaultMinEdgeStrength)
	assert.Equal(t, []core.AgentID{a, b1, c}, want)
	for i := 0; i < 20; i++ {
		assert.Equal(t, want, g.FindTrustPath(a, c, DefaultMaxHops, DefaultMinEdgeStrength))
	}
}

// ============================================================================
// MULTIGRAPH AND WEIGHT TESTS
// ============================================================================

func TestAddEdge_AppendOnlyMultigraph(t *testing.T) {
	g := New()
	now := time.Now()
	a, b := core.AgentID("x:p:a"), core.AgentID("x:p:b")

	g.AddEdge(a, b, Collaboration, nil, now)
	g.AddEdge(a, b, Collaboration, []string{"run-7"}, now.Add(time.Minute))

	edges := g.Edges(a)
	require.Len(t, edges, 2, "repeat interactions append, never overwrite")
	assert.InDelta(t, 0.6, edges[0].Strength, 1e-9)
	assert.InDelta(t, 0.65, edges[1].Strength, 1e-9)
}

func TestTrustWeight_AggregatesAndClamps(t *testing.T) {
	g := New()
	now := time.Now()
	a, b := core.AgentID("x:p:a"), core.AgentID("x:p:b")

	assert.InDelta(t, 0, g.TrustWeight(a, b), 1e-9)

	g.AddEdge(a, b, Endorsement, nil, now)
	assert.InDelta(t, 0.8, g.TrustWeight(a, b), 1e-9)

	g.AddEdge(a, b, Collaboration, nil, now)
	assert.InDelta(t, 1.0, g.TrustWeight(a, b), 1e-9, "0.8 + 0.6 clamps to 1")

	// Disputes pull the aggregate down
	c := core.AgentID("x:p:c")
	g.AddEdge(a, c, Dispute, nil, now)
	assert.InDelta(t, -0.6, g.TrustWeight(a, c), 1e-9)
}
