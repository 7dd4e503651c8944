package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dominikbraun/graph"

	"github.com/fathoms-io/sounder/pkg/resource"
)

// DependencyGraph is an immutable directed multigraph over a resource
// snapshot. It is rebuilt fresh for every invocation and never mutated
// after Build returns; all methods are read-only and safe to call from
// the analysis passes.
type DependencyGraph struct {
	resources map[resource.Identity]*resource.Resource

	// identities holds every identity sorted by (namespace, kind, name).
	identities []resource.Identity

	// edges is the deduplicated edge list. Distinct relations between the
	// same pair are kept as separate edges.
	edges []Edge

	// forward maps an identity to the edges it is the source of (its
	// dependencies); reverse maps to the edges it is the target of (its
	// dependents).
	forward map[resource.Identity][]Edge
	reverse map[resource.Identity][]Edge

	// simple is the collapsed single-edge digraph handed to the ordering
	// and SCC algorithms. Edges run target -> source so that a resource's
	// dependencies sort before it.
	simple graph.Graph[string, string]

	byKey map[string]resource.Identity

	// tiers overrides the built-in kind tier table for ordering
	// tie-breaks.
	tiers map[string]resource.Tier
}

// BuildOption adjusts graph construction.
type BuildOption func(*DependencyGraph)

// WithKindTiers overrides the apply-order tier for the given kinds. The
// override affects ordering tie-breaks only; explicit weights still win.
func WithKindTiers(tiers map[string]resource.Tier) BuildOption {
	return func(g *DependencyGraph) {
		g.tiers = tiers
	}
}

// Build assembles a DependencyGraph from a resource set and extracted
// edges. Duplicate (source, target, relation) triples are merged,
// self-edges are rejected, and edges naming an identity outside the
// resource set are dropped. Rejections come back as warnings.
func Build(resources []*resource.Resource, edges []Edge, opts ...BuildOption) (*DependencyGraph, []string) {
	g := &DependencyGraph{
		resources: make(map[resource.Identity]*resource.Resource, len(resources)),
		forward:   make(map[resource.Identity][]Edge),
		reverse:   make(map[resource.Identity][]Edge),
		byKey:     make(map[string]resource.Identity, len(resources)),
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, r := range resources {
		g.resources[r.Identity] = r
		g.identities = append(g.identities, r.Identity)
		g.byKey[r.Identity.Key()] = r.Identity
	}
	sort.Slice(g.identities, func(i, j int) bool { return g.identities[i].Less(g.identities[j]) })

	var warnings []string
	seen := make(map[Edge]bool, len(edges))
	for _, e := range edges {
		if e.Source == e.Target {
			warnings = append(warnings, fmt.Sprintf("self-edge rejected: %s", e))
			continue
		}
		if _, ok := g.resources[e.Source]; !ok {
			warnings = append(warnings, fmt.Sprintf("edge source not in resource set, dropped: %s", e))
			continue
		}
		if _, ok := g.resources[e.Target]; !ok {
			warnings = append(warnings, fmt.Sprintf("edge target not in resource set, dropped: %s", e))
			continue
		}
		key := Edge{Source: e.Source, Target: e.Target, Relation: e.Relation}
		if seen[key] {
			continue
		}
		seen[key] = true
		g.edges = append(g.edges, e)
	}

	sort.Slice(g.edges, func(i, j int) bool {
		a, b := g.edges[i], g.edges[j]
		if a.Source != b.Source {
			return a.Source.Less(b.Source)
		}
		if a.Target != b.Target {
			return a.Target.Less(b.Target)
		}
		return a.Relation < b.Relation
	})

	for _, e := range g.edges {
		g.forward[e.Source] = append(g.forward[e.Source], e)
		g.reverse[e.Target] = append(g.reverse[e.Target], e)
	}

	g.simple = graph.New(graph.StringHash, graph.Directed())
	for _, id := range g.identities {
		// Vertices are pre-sorted, so AddVertex cannot collide.
		_ = g.simple.AddVertex(id.Key())
	}
	for _, e := range g.edges {
		// Parallel relations collapse to one ordering edge.
		err := g.simple.AddEdge(e.Target.Key(), e.Source.Key())
		if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
			warnings = append(warnings, fmt.Sprintf("edge skipped by graph backend: %s: %v", e, err))
		}
	}

	return g, warnings
}

// Size returns the number of resources in the graph.
func (g *DependencyGraph) Size() int {
	return len(g.identities)
}

// Identities returns every identity sorted by (namespace, kind, name).
func (g *DependencyGraph) Identities() []resource.Identity {
	return g.identities
}

// Resource looks up a resource by identity.
func (g *DependencyGraph) Resource(id resource.Identity) (*resource.Resource, bool) {
	r, ok := g.resources[id]
	return r, ok
}

// Resolve maps a reference to a graph identity. An exact identity
// resolves to itself. A reference with an empty namespace resolves when
// exactly one resource matches its kind and name; ambiguity and absence
// are errors that name the Kind/Name/Namespace form as the fix.
func (g *DependencyGraph) Resolve(ref resource.Identity) (resource.Identity, error) {
	if _, ok := g.resources[ref]; ok {
		return ref, nil
	}
	if ref.Namespace == "" {
		var matches []resource.Identity
		for _, id := range g.identities {
			if id.Kind == ref.Kind && id.Name == ref.Name {
				matches = append(matches, id)
			}
		}
		if len(matches) == 1 {
			return matches[0], nil
		}
		if len(matches) > 1 {
			namespaces := make([]string, len(matches))
			for i, m := range matches {
				namespaces[i] = m.Namespace
			}
			return resource.Identity{}, fmt.Errorf("reference %s matches resources in namespaces %s; use the Kind/Name/Namespace form",
				ref, strings.Join(namespaces, ", "))
		}
	}
	return resource.Identity{}, fmt.Errorf("resource %s is not in the analyzed set (namespaced resources need the Kind/Name/Namespace form)", ref)
}

// Edges returns the deduplicated edge list in deterministic order.
func (g *DependencyGraph) Edges() []Edge {
	return g.edges
}

// Dependencies returns the edges id is the source of: the resources id
// depends on.
func (g *DependencyGraph) Dependencies(id resource.Identity) []Edge {
	return g.forward[id]
}

// Dependents returns the edges id is the target of: the resources that
// depend on id.
func (g *DependencyGraph) Dependents(id resource.Identity) []Edge {
	return g.reverse[id]
}

// FanOut counts the edges leaving id.
func (g *DependencyGraph) FanOut(id resource.Identity) int {
	return len(g.forward[id])
}

// FanIn counts the edges entering id.
func (g *DependencyGraph) FanIn(id resource.Identity) int {
	return len(g.reverse[id])
}

// Roots returns resources with no dependencies, sorted.
func (g *DependencyGraph) Roots() []resource.Identity {
	var roots []resource.Identity
	for _, id := range g.identities {
		if len(g.forward[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Leaves returns resources with no dependents, sorted.
func (g *DependencyGraph) Leaves() []resource.Identity {
	var leaves []resource.Identity
	for _, id := range g.identities {
		if len(g.reverse[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	return leaves
}
