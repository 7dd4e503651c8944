package graph

import (
	"sort"

	"github.com/fathoms-io/sounder/pkg/resource"
)

// TransitiveDependencies walks forward from id and returns everything it
// transitively requires, sorted, excluding id itself.
func (g *DependencyGraph) TransitiveDependencies(id resource.Identity) []resource.Identity {
	return g.bfs(id, g.forward, func(e Edge) resource.Identity { return e.Target })
}

// TransitiveDependents walks the reverse adjacency from id and returns
// everything that transitively depends on it, sorted, excluding id itself.
func (g *DependencyGraph) TransitiveDependents(id resource.Identity) []resource.Identity {
	return g.bfs(id, g.reverse, func(e Edge) resource.Identity { return e.Source })
}

func (g *DependencyGraph) bfs(start resource.Identity, adj map[resource.Identity][]Edge, next func(Edge) resource.Identity) []resource.Identity {
	visited := map[resource.Identity]bool{start: true}
	queue := []resource.Identity{start}
	var out []resource.Identity

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range adj[cur] {
			n := next(e)
			if visited[n] {
				continue
			}
			visited[n] = true
			out = append(out, n)
			queue = append(queue, n)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// reachableWithout walks forward from start while treating removed as
// absent from the graph. Used by the single-point-of-failure check.
func (g *DependencyGraph) reachableWithout(start, removed resource.Identity) map[resource.Identity]bool {
	visited := map[resource.Identity]bool{start: true}
	queue := []resource.Identity{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.forward[cur] {
			if e.Target == removed || visited[e.Target] {
				continue
			}
			visited[e.Target] = true
			queue = append(queue, e.Target)
		}
	}
	delete(visited, start)
	return visited
}

// IsSinglePointOfFailure reports whether removing id would cut some
// dependent off from a requirement it can otherwise still reach. For each
// direct dependent the forward reachable set is recomputed with id
// removed; if any requirement beyond id itself becomes unreachable, id is
// the only path to it.
func (g *DependencyGraph) IsSinglePointOfFailure(id resource.Identity) bool {
	if len(g.reverse[id]) == 0 {
		return false
	}

	for _, e := range g.reverse[id] {
		dependent := e.Source
		with := g.reachableWithout(dependent, resource.Identity{})
		without := g.reachableWithout(dependent, id)
		for req := range with {
			if req == id {
				continue
			}
			if !without[req] {
				return true
			}
		}
	}
	return false
}
