package graph

import (
	"fmt"

	"github.com/dominikbraun/graph"

	"github.com/fathoms-io/sounder/pkg/resource"
)

// sortRank is the tie-break tuple for nodes that become available at the
// same time during the topological sort: explicit weight first, then the
// kind tier, then lexicographic (namespace, kind, name). The tier never
// overrides an explicit weight.
type sortRank struct {
	weight int
	tier   resource.Tier
	key    string
}

func (g *DependencyGraph) ranks() map[string]sortRank {
	ranks := make(map[string]sortRank, len(g.identities))
	for _, id := range g.identities {
		r := g.resources[id]
		ranks[id.Key()] = sortRank{
			weight: r.Weight(),
			tier:   g.tierFor(id.Kind),
			key:    id.SortKey(),
		}
	}
	return ranks
}

func (g *DependencyGraph) tierFor(kind string) resource.Tier {
	if t, ok := g.tiers[kind]; ok {
		return t
	}
	return resource.KindTier(kind)
}

func rankLess(ranks map[string]sortRank) func(a, b string) bool {
	return func(a, b string) bool {
		ra, rb := ranks[a], ranks[b]
		if ra.weight != rb.weight {
			return ra.weight < rb.weight
		}
		if ra.tier != rb.tier {
			return ra.tier < rb.tier
		}
		return ra.key < rb.key
	}
}

// TopologicalOrder computes the deterministic total update order: every
// edge's target (dependency) appears before its source (dependent). Ties
// among simultaneously available nodes break by weight, kind tier, then
// (namespace, kind, name), so identical inputs always produce identical
// output. When the graph contains cycles a CircularDependencyError with
// every cycle's full membership is returned.
func (g *DependencyGraph) TopologicalOrder() ([]resource.Identity, error) {
	if cycles := g.Cycles(); len(cycles) > 0 {
		return nil, &CircularDependencyError{Cycles: cycles}
	}

	keys, err := graph.StableTopologicalSort(g.simple, rankLess(g.ranks()))
	if err != nil {
		return nil, fmt.Errorf("topological sort failed: %w", err)
	}
	return g.keysToIdentities(keys), nil
}

// AcyclicOrder orders the portion of the graph that is not inside any
// cycle. Cycle members are excluded entirely; analyze and validate use
// this to keep producing output for the rest of the graph.
func (g *DependencyGraph) AcyclicOrder() []resource.Identity {
	cyclic := make(map[resource.Identity]bool)
	for _, cycle := range g.Cycles() {
		for _, id := range cycle {
			cyclic[id] = true
		}
	}
	if len(cyclic) == 0 {
		order, err := g.TopologicalOrder()
		if err != nil {
			return g.identities
		}
		return order
	}

	sub := graph.New(graph.StringHash, graph.Directed())
	for _, id := range g.identities {
		if !cyclic[id] {
			_ = sub.AddVertex(id.Key())
		}
	}
	for _, e := range g.edges {
		if cyclic[e.Source] || cyclic[e.Target] {
			continue
		}
		_ = sub.AddEdge(e.Target.Key(), e.Source.Key())
	}

	keys, err := graph.StableTopologicalSort(sub, rankLess(g.ranks()))
	if err != nil {
		// Removing all SCC members leaves an acyclic graph, so this is
		// unreachable; fall back to the sorted identity list.
		var rest []resource.Identity
		for _, id := range g.identities {
			if !cyclic[id] {
				rest = append(rest, id)
			}
		}
		return rest
	}
	return g.keysToIdentities(keys)
}

func (g *DependencyGraph) keysToIdentities(keys []string) []resource.Identity {
	ids := make([]resource.Identity, 0, len(keys))
	for _, k := range keys {
		if id, ok := g.byKey[k]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
