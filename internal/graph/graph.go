// Package graph stores the endorsement multigraph and answers trust-path
// queries. Edges are append-only: a new interaction adds a new edge, history
// is never rewritten, so reads are safely concurrent with writes as long as
// individual insertion is atomic (it is, under the graph lock).
package graph

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ocx/trustcore/internal/core"
)

// RelationshipType classifies a directed edge between two identities.
type RelationshipType string

const (
	Endorsement   RelationshipType = "ENDORSEMENT"
	Collaboration RelationshipType = "COLLABORATION"
	Supervision   RelationshipType = "SUPERVISION"
	Dispute       RelationshipType = "DISPUTE"
)

// ParseRelationshipType validates a wire value against the known types.
func ParseRelationshipType(s string) (RelationshipType, error) {
	switch t := RelationshipType(strings.ToUpper(s)); t {
	case Endorsement, Collaboration, Supervision, Dispute:
		return t, nil
	default:
		return "", fmt.Errorf("unknown relationship type %q", s)
	}
}

// Base strengths per relationship type. Strength is a pure function of type
// and evidence count so any auditor can recompute why trust was granted.
const (
	baseEndorsement   = 0.8
	baseCollaboration = 0.6
	baseSupervision   = 0.7
	baseDispute       = -0.6

	evidenceBonus    = 0.05
	evidenceBonusCap = 0.20
)

// Defaults for path search.
const (
	DefaultMaxHops         = 6
	DefaultMinEdgeStrength = 0.5
)

// Edge is one directed relationship observation. Never mutated in place.
type Edge struct {
	From              core.AgentID
	To                core.AgentID
	Type              RelationshipType
	Strength          float64
	EvidenceRefs      []string
	EstablishedAt     time.Time
	LastInteractionAt time.Time
}

// Strength computes the deterministic edge strength for a relationship type
// and evidence count: base ± 0.05 per evidence item (capped at 0.20), pushed
// in the direction of the base sign, clamped to [-1, 1].
func Strength(t RelationshipType, evidenceCount int) float64 {
	var base float64
	switch t {
	case Endorsement:
		base = baseEndorsement
	case Collaboration:
		base = baseCollaboration
	case Supervision:
		base = baseSupervision
	case Dispute:
		base = baseDispute
	default:
		return 0
	}

	bonus := evidenceBonus * float64(evidenceCount)
	if bonus > evidenceBonusCap {
		bonus = evidenceBonusCap
	}

	s := base + bonus
	if base < 0 {
		s = base - bonus
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return s
}

// TrustGraph is the append-only endorsement multigraph.
type TrustGraph struct {
	mu sync.RWMutex

	// adjacency holds, per node, the edges discoverable from that node in
	// insertion order. Endorsement edges are registered under both endpoints
	// so path search can traverse them from either side; all other types are
	// informational and stay one-directional.
	adjacency map[core.AgentID][]*Edge
}

// New creates an empty trust graph.
func New() *TrustGraph {
	return &TrustGraph{adjacency: make(map[core.AgentID][]*Edge)}
}

// AddEdge appends a new relationship edge. Strength is computed here, never
// supplied by the caller. Returns the stored edge for event emission.
func (g *TrustGraph) AddEdge(from, to core.AgentID, t RelationshipType, evidenceRefs []string, now time.Time) *Edge {
	edge := &Edge{
		From:              from,
		To:                to,
		Type:              t,
		Strength:          Strength(t, len(evidenceRefs)),
		EvidenceRefs:      append([]string(nil), evidenceRefs...),
		EstablishedAt:     now,
		LastInteractionAt: now,
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.adjacency[from] = append(g.adjacency[from], edge)
	if t == Endorsement {
		g.adjacency[to] = append(g.adjacency[to], edge)
	}
	return edge
}

// Edges returns a copy of the edges discoverable from the given node, in
// insertion order.
func (g *TrustGraph) Edges(id core.AgentID) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.adjacency[id]))
	for _, e := range g.adjacency[id] {
		out = append(out, *e)
	}
	return out
}

// FindTrustPath runs a hop-bounded breadth-first search over Endorsement
// edges stronger than minStrength and returns the shortest path by hop
// count, or nil when no such path exists. Neighbor iteration follows
// insertion order, so an identical edge set always yields an identical
// path — required for reproducible tests and for auditability of why trust
// was granted. Visited tracking makes the search cycle-safe, and the hop
// bound terminates it on any graph, fully connected included.
func (g *TrustGraph) FindTrustPath(from, to core.AgentID, maxHops int, minStrength float64) []core.AgentID {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	if from == to {
		return []core.AgentID{from}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	type queued struct {
		node core.AgentID
		hops int
	}
	visited := map[core.AgentID]bool{from: true}
	parent := make(map[core.AgentID]core.AgentID)
	queue := []queued{{node: from, hops: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.hops >= maxHops {
			continue
		}

		for _, edge := range g.adjacency[cur.node] {
			if edge.Type != Endorsement || edge.Strength <= minStrength {
				continue
			}
			next := edge.To
			if next == cur.node {
				next = edge.From
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			parent[next] = cur.node

			if next == to {
				return reconstructPath(parent, from, to)
			}
			queue = append(queue, queued{node: next, hops: cur.hops + 1})
		}
	}
	return nil
}

func reconstructPath(parent map[core.AgentID]core.AgentID, from, to core.AgentID) []core.AgentID {
	var path []core.AgentID
	for cur := to; ; cur = parent[cur] {
		path = append([]core.AgentID{cur}, path...)
		if cur == from {
			return path
		}
	}
}

// TrustWeight returns the aggregate strength of all direct edges from → to,
// clamped to [-1, 1]. This feeds the social component of the score engine;
// it is an edge-strength aggregate, not a hop count.
func (g *TrustGraph) TrustWeight(from, to core.AgentID) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var sum float64
	for _, e := range g.adjacency[from] {
		if e.From == from && e.To == to {
			sum += e.Strength
		}
	}
	if sum > 1 {
		sum = 1
	} else if sum < -1 {
		sum = -1
	}
	return sum
}
