// Package extract derives dependency edges from a resource snapshot. A
// registry of per-kind extraction rules plus generic rules produces edge
// candidates; candidates whose target is absent from the snapshot become
// dangling-reference warnings instead of edges.
package extract

import (
	"fmt"
	"sort"

	"github.com/go-logr/logr"

	"github.com/fathoms-io/sounder/pkg/graph"
	"github.com/fathoms-io/sounder/pkg/resource"
)

// DanglingReferenceWarning records a reference to a resource that is not
// part of the loaded or queried set. The edge is omitted from the graph
// but the warning is surfaced in reports.
type DanglingReferenceWarning struct {
	Source   resource.Identity `json:"source"`
	Target   resource.Identity `json:"target"`
	Relation graph.Relation    `json:"relation"`
}

func (w *DanglingReferenceWarning) String() string {
	return fmt.Sprintf("%s references %s (%s), which is not in the loaded set",
		w.Source, w.Target, w.Relation)
}

// Result is the outcome of relationship extraction over a snapshot.
type Result struct {
	Edges    []graph.Edge
	Dangling []*DanglingReferenceWarning

	// RefErrors lists malformed explicit references (unparseable
	// depends-on entries). They never abort extraction.
	RefErrors []error
}

// DanglingDependsOn returns the dangling warnings for explicit depends_on
// references; the planner treats these as validation failures.
func (r *Result) DanglingDependsOn() []*DanglingReferenceWarning {
	var out []*DanglingReferenceWarning
	for _, w := range r.Dangling {
		if w.Relation == graph.RelationDependsOn {
			out = append(out, w)
		}
	}
	return out
}

// Rule derives edge candidates for a single resource. Targets that do not
// resolve are filtered out afterwards, so rules emit references freely.
type Rule func(r *resource.Resource, idx *Index) []graph.Edge

// Registry holds the extraction rule set: per-kind rules plus generic
// rules applied to every resource.
type Registry struct {
	log     logr.Logger
	byKind  map[string][]Rule
	generic []Rule
}

// NewRegistry creates a registry pre-populated with the built-in rules.
func NewRegistry(log logr.Logger) *Registry {
	reg := &Registry{
		log:    log,
		byKind: make(map[string][]Rule),
	}
	reg.registerBuiltins()
	return reg
}

// RegisterKind adds a rule applied only to resources of the given kind.
func (reg *Registry) RegisterKind(kind string, rule Rule) {
	reg.byKind[kind] = append(reg.byKind[kind], rule)
}

// RegisterGeneric adds a rule applied to every resource regardless of kind.
func (reg *Registry) RegisterGeneric(rule Rule) {
	reg.generic = append(reg.generic, rule)
}

// Extract runs the rule set over the snapshot and resolves every candidate
// edge against it. The input must already be sorted and deduplicated.
func (reg *Registry) Extract(resources []*resource.Resource) *Result {
	idx := NewIndex(resources)
	result := &Result{}

	for _, r := range resources {
		var candidates []graph.Edge

		for _, rule := range reg.generic {
			candidates = append(candidates, rule(r, idx)...)
		}
		for _, rule := range reg.byKind[r.Identity.Kind] {
			candidates = append(candidates, rule(r, idx)...)
		}

		// Explicit depends-on parse failures are recorded per resource.
		_, errs := r.ExplicitDependencies()
		result.RefErrors = append(result.RefErrors, errs...)

		for _, e := range candidates {
			if _, ok := idx.ByIdentity(e.Target); !ok {
				result.Dangling = append(result.Dangling, &DanglingReferenceWarning{
					Source: e.Source, Target: e.Target, Relation: e.Relation,
				})
				continue
			}
			result.Edges = append(result.Edges, e)
		}
	}

	sort.Slice(result.Dangling, func(i, j int) bool {
		a, b := result.Dangling[i], result.Dangling[j]
		if a.Source != b.Source {
			return a.Source.Less(b.Source)
		}
		if a.Target != b.Target {
			return a.Target.Less(b.Target)
		}
		return a.Relation < b.Relation
	})
	return result
}
