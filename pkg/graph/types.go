package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fathoms-io/sounder/pkg/resource"
)

// Relation classifies how one resource depends on another.
type Relation string

const (
	// RelationDependsOn is an explicit ordering constraint.
	RelationDependsOn Relation = "depends_on"

	// RelationConfigures links a resource to the config object it consumes.
	RelationConfigures Relation = "configures"

	// RelationAuthenticates links a resource to the credential it consumes.
	RelationAuthenticates Relation = "authenticates"

	// RelationSelects links a selector-bearing resource to each resource
	// its label selector matches.
	RelationSelects Relation = "selects"

	// RelationRoutesTo links a routing resource to its backend service.
	RelationRoutesTo Relation = "routes_to"

	// RelationSourcesFrom links a resource to the provisioner, repository,
	// or chart it is materialized from.
	RelationSourcesFrom Relation = "sources_from"

	// RelationOwns is the mirror of RelationOwnedBy.
	RelationOwns Relation = "owns"

	// RelationOwnedBy links a resource to its ownership reference.
	RelationOwnedBy Relation = "owned_by"
)

// Edge is a directed dependency: Source depends on Target.
type Edge struct {
	Source   resource.Identity `json:"source"`
	Target   resource.Identity `json:"target"`
	Relation Relation          `json:"relation"`

	// Weight is the explicit apply-order weight carried by the edge,
	// default 0. Kind tiers break ties between equal weights but never
	// override an explicit one.
	Weight int `json:"weight"`
}

// Mirror returns the relation as seen from the target's side. Only
// ownership has a distinct mirror; owned_by edges enter the graph and owns
// is derived when reading the reverse adjacency.
func (r Relation) Mirror() Relation {
	switch r {
	case RelationOwnedBy:
		return RelationOwns
	case RelationOwns:
		return RelationOwnedBy
	default:
		return r
	}
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -[%s]-> %s", e.Source, e.Relation, e.Target)
}

// CircularDependencyError reports one or more dependency cycles with the
// full membership of each.
type CircularDependencyError struct {
	// Cycles lists each cycle's membership, members sorted by
	// (namespace, kind, name), cycles sorted by their first member.
	Cycles [][]resource.Identity
}

// Members returns the union of all cycle members, sorted.
func (e *CircularDependencyError) Members() []resource.Identity {
	seen := make(map[resource.Identity]bool)
	var members []resource.Identity
	for _, cycle := range e.Cycles {
		for _, id := range cycle {
			if !seen[id] {
				seen[id] = true
				members = append(members, id)
			}
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Less(members[j]) })
	return members
}

func (e *CircularDependencyError) Error() string {
	parts := make([]string, len(e.Cycles))
	for i, cycle := range e.Cycles {
		names := make([]string, len(cycle))
		for j, id := range cycle {
			names[j] = id.String()
		}
		parts[i] = strings.Join(names, " <-> ")
	}
	return fmt.Sprintf("circular dependency: %s", strings.Join(parts, "; "))
}
