package graph

import (
	"sort"

	"github.com/dominikbraun/graph"

	"github.com/fathoms-io/sounder/pkg/resource"
)

type dfsColor int

const (
	colorWhite dfsColor = iota // not visited
	colorGray                  // on the current DFS path
	colorBlack                 // fully explored
)

// HasCycles detects whether any back-edge exists, using an iterative
// three-color depth-first traversal over the forward adjacency lists.
func (g *DependencyGraph) HasCycles() bool {
	colors := make(map[resource.Identity]dfsColor, len(g.identities))

	var visit func(id resource.Identity) bool
	visit = func(id resource.Identity) bool {
		colors[id] = colorGray
		for _, e := range g.forward[id] {
			switch colors[e.Target] {
			case colorGray:
				return true // back-edge
			case colorWhite:
				if visit(e.Target) {
					return true
				}
			}
		}
		colors[id] = colorBlack
		return false
	}

	for _, id := range g.identities {
		if colors[id] == colorWhite && visit(id) {
			return true
		}
	}
	return false
}

// Cycles returns every cycle's full membership via strongly connected
// components. Self-edges are rejected at build time, so only components
// with two or more members count. Members and cycles come back sorted so
// reports are reproducible.
func (g *DependencyGraph) Cycles() [][]resource.Identity {
	if !g.HasCycles() {
		return nil
	}

	sccs, err := graph.StronglyConnectedComponents(g.simple)
	if err != nil {
		return nil
	}

	var cycles [][]resource.Identity
	for _, scc := range sccs {
		if len(scc) < 2 {
			continue
		}
		members := g.keysToIdentities(scc)
		sort.Slice(members, func(i, j int) bool { return members[i].Less(members[j]) })
		cycles = append(cycles, members)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0].Less(cycles[j][0]) })
	return cycles
}

// CycleMembers returns the set of identities that sit inside any cycle.
func (g *DependencyGraph) CycleMembers() map[resource.Identity]bool {
	members := make(map[resource.Identity]bool)
	for _, cycle := range g.Cycles() {
		for _, id := range cycle {
			members[id] = true
		}
	}
	return members
}
