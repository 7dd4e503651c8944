package extract

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/fathoms-io/sounder/pkg/resource"
)

// Index provides the lookups extraction rules need: identity resolution
// and label matching within a snapshot.
type Index struct {
	byIdentity map[resource.Identity]*resource.Resource
	byKind     map[string][]*resource.Resource
}

// NewIndex builds an index over a sorted, deduplicated snapshot.
func NewIndex(resources []*resource.Resource) *Index {
	idx := &Index{
		byIdentity: make(map[resource.Identity]*resource.Resource, len(resources)),
		byKind:     make(map[string][]*resource.Resource),
	}
	for _, r := range resources {
		idx.byIdentity[r.Identity] = r
		idx.byKind[r.Identity.Kind] = append(idx.byKind[r.Identity.Kind], r)
	}
	return idx
}

// ByIdentity resolves an exact identity.
func (idx *Index) ByIdentity(id resource.Identity) (*resource.Resource, bool) {
	r, ok := idx.byIdentity[id]
	return r, ok
}

// Kind returns all resources of a kind, in snapshot (sorted) order.
func (idx *Index) Kind(kind string) []*resource.Resource {
	return idx.byKind[kind]
}

// KindInNamespace returns resources of a kind within one namespace.
func (idx *Index) KindInNamespace(kind, namespace string) []*resource.Resource {
	var out []*resource.Resource
	for _, r := range idx.byKind[kind] {
		if r.Identity.Namespace == namespace {
			out = append(out, r)
		}
	}
	return out
}

// MatchSelector returns the resources of the given kinds, within namespace,
// whose effective label set matches the selector. Workloads match on their
// pod template labels as well as their own.
func (idx *Index) MatchSelector(selector map[string]string, namespace string, kinds ...string) []*resource.Resource {
	if len(selector) == 0 {
		return nil
	}
	sel := labels.SelectorFromSet(labels.Set(selector))

	var out []*resource.Resource
	for _, kind := range kinds {
		for _, r := range idx.KindInNamespace(kind, namespace) {
			if sel.Matches(labels.Set(r.Labels)) || sel.Matches(labels.Set(templateLabels(r))) {
				out = append(out, r)
			}
		}
	}
	return out
}

func templateLabels(r *resource.Resource) map[string]string {
	raw, found, err := unstructured.NestedStringMap(r.Object.Object, "spec", "template", "metadata", "labels")
	if !found || err != nil {
		return nil
	}
	return raw
}
