package resource

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Annotation keys recognized on any resource.
const (
	// DependsOnAnnotation lists explicit dependencies as comma-separated
	// references in Kind/Name or Kind/Name/Namespace form.
	DependsOnAnnotation = "sounder.io/depends-on"

	// WeightAnnotation overrides the apply-order weight for a resource.
	WeightAnnotation = "sounder.io/weight"
)

// Identity uniquely identifies a resource within a loaded set.
type Identity struct {
	Kind      string `json:"kind"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// Key returns the canonical string form used as a graph vertex ID.
func (id Identity) Key() string {
	return id.Kind + "/" + id.Namespace + "/" + id.Name
}

// String renders the identity in the user-facing Kind/Name/Namespace form.
func (id Identity) String() string {
	if id.Namespace == "" {
		return id.Kind + "/" + id.Name
	}
	return fmt.Sprintf("%s/%s/%s", id.Kind, id.Name, id.Namespace)
}

// SortKey orders identities by (namespace, kind, name).
func (id Identity) SortKey() string {
	return id.Namespace + "\x00" + id.Kind + "\x00" + id.Name
}

// Less reports whether id sorts before other by (namespace, kind, name).
func (id Identity) Less(other Identity) bool {
	return id.SortKey() < other.SortKey()
}

// ParseRef parses a Kind/Name or Kind/Name/Namespace reference.
// defaultNamespace is applied when the reference omits a namespace.
func ParseRef(ref, defaultNamespace string) (Identity, error) {
	parts := strings.Split(strings.TrimSpace(ref), "/")
	switch len(parts) {
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return Identity{}, fmt.Errorf("invalid resource reference %q: empty kind or name", ref)
		}
		return Identity{Kind: parts[0], Name: parts[1], Namespace: defaultNamespace}, nil
	case 3:
		if parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return Identity{}, fmt.Errorf("invalid resource reference %q: empty segment", ref)
		}
		return Identity{Kind: parts[0], Name: parts[1], Namespace: parts[2]}, nil
	default:
		return Identity{}, fmt.Errorf("invalid resource reference %q: want Kind/Name or Kind/Name/Namespace", ref)
	}
}

// Resource is a normalized record of a declared or observed object.
// The Object field carries the full structured spec; everything the graph
// engine needs frequently is lifted into dedicated fields at load time.
type Resource struct {
	Identity Identity `json:"identity"`

	// UID is set only for resources taken from a live snapshot.
	UID string `json:"uid,omitempty"`

	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`

	// Object is the opaque structured spec as parsed.
	Object unstructured.Unstructured `json:"object"`

	// Source records where the resource came from: a file path for
	// manifest loads, or a cluster reference for live snapshots.
	Source string `json:"source"`
}

// Weight returns the explicit apply-order weight, or 0 when none is set.
// A malformed weight annotation is treated as absent.
func (r *Resource) Weight() int {
	raw, ok := r.Annotations[WeightAnnotation]
	if !ok {
		return 0
	}
	w, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return w
}

// ExplicitDependencies returns the identities named by the depends-on
// annotation. Unparseable entries are returned as errors alongside the
// parsed ones so the caller can report them without dropping the rest.
func (r *Resource) ExplicitDependencies() ([]Identity, []error) {
	raw, ok := r.Annotations[DependsOnAnnotation]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var ids []Identity
	var errs []error
	for _, ref := range strings.Split(raw, ",") {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		id, err := ParseRef(ref, r.Identity.Namespace)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Identity, err))
			continue
		}
		ids = append(ids, id)
	}
	return ids, errs
}

// FromUnstructured builds a Resource from a parsed object.
func FromUnstructured(obj *unstructured.Unstructured, source string) (*Resource, error) {
	if obj.GetKind() == "" {
		return nil, fmt.Errorf("object from %s has no kind", source)
	}
	if obj.GetName() == "" {
		return nil, fmt.Errorf("%s object from %s has no name", obj.GetKind(), source)
	}

	return &Resource{
		Identity: Identity{
			Kind:      obj.GetKind(),
			Namespace: obj.GetNamespace(),
			Name:      obj.GetName(),
		},
		UID:         string(obj.GetUID()),
		Labels:      obj.GetLabels(),
		Annotations: obj.GetAnnotations(),
		Object:      *obj,
		Source:      source,
	}, nil
}

// Sort orders resources in place by (namespace, kind, name). All graph
// algorithms run over sorted input so output is independent of load order.
func Sort(resources []*Resource) {
	sort.Slice(resources, func(i, j int) bool {
		return resources[i].Identity.Less(resources[j].Identity)
	})
}

// Dedupe removes resources sharing an identity, keeping the first
// occurrence in sorted order. It returns the identities that were seen
// more than once.
func Dedupe(resources []*Resource) ([]*Resource, []Identity) {
	seen := make(map[Identity]bool, len(resources))
	var out []*Resource
	var dupes []Identity
	for _, r := range resources {
		if seen[r.Identity] {
			dupes = append(dupes, r.Identity)
			continue
		}
		seen[r.Identity] = true
		out = append(out, r)
	}
	return out, dupes
}
