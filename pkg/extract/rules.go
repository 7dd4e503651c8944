package extract

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/fathoms-io/sounder/pkg/graph"
	"github.com/fathoms-io/sounder/pkg/resource"
)

var workloadKinds = []string{"Deployment", "StatefulSet", "DaemonSet", "ReplicaSet", "Job", "CronJob", "Pod"}

// registerBuiltins installs the generic and per-kind extraction rules.
func (reg *Registry) registerBuiltins() {
	reg.RegisterGeneric(explicitDependsOn)
	reg.RegisterGeneric(ownerReferences)

	for _, kind := range workloadKinds {
		reg.RegisterKind(kind, workloadReferences)
	}
	reg.RegisterKind("Service", serviceSelector)
	reg.RegisterKind("Ingress", ingressBackends)
	reg.RegisterKind("NetworkPolicy", networkPolicySelector)
	reg.RegisterKind("PersistentVolumeClaim", storageClassReference)
	reg.RegisterKind("Kustomization", compositionReferences)
	reg.RegisterKind("HelmRelease", helmReleaseReferences)
}

// edge builds a candidate edge carrying the source resource's weight.
func edge(r *resource.Resource, target resource.Identity, rel graph.Relation) graph.Edge {
	return graph.Edge{Source: r.Identity, Target: target, Relation: rel, Weight: r.Weight()}
}

// explicitDependsOn handles the depends-on annotation on any resource.
func explicitDependsOn(r *resource.Resource, _ *Index) []graph.Edge {
	ids, _ := r.ExplicitDependencies()
	var edges []graph.Edge
	for _, id := range ids {
		edges = append(edges, edge(r, id, graph.RelationDependsOn))
	}
	return edges
}

// ownerReferences maps metadata.ownerReferences to owned_by edges. Only
// the owned_by direction enters the graph; its mirror (owns) is derived
// when reading the reverse adjacency, so ownership never forms a two-node
// cycle.
func ownerReferences(r *resource.Resource, _ *Index) []graph.Edge {
	refs := r.Object.GetOwnerReferences()
	var edges []graph.Edge
	for _, ref := range refs {
		if ref.Kind == "" || ref.Name == "" {
			continue
		}
		owner := resource.Identity{Kind: ref.Kind, Name: ref.Name, Namespace: r.Identity.Namespace}
		edges = append(edges, edge(r, owner, graph.RelationOwnedBy))
	}
	return edges
}

// workloadReferences scans a workload's pod spec for config, credential,
// and storage references.
func workloadReferences(r *resource.Resource, _ *Index) []graph.Edge {
	podSpec := podSpecOf(r)
	if podSpec == nil {
		return nil
	}
	ns := r.Identity.Namespace
	var edges []graph.Edge

	add := func(kind, name string, rel graph.Relation) {
		if name == "" {
			return
		}
		edges = append(edges, edge(r, resource.Identity{Kind: kind, Name: name, Namespace: ns}, rel))
	}

	if sa, _, _ := unstructured.NestedString(podSpec, "serviceAccountName"); sa != "" && sa != "default" {
		add("ServiceAccount", sa, graph.RelationAuthenticates)
	}

	pullSecrets, _, _ := unstructured.NestedSlice(podSpec, "imagePullSecrets")
	for _, ps := range pullSecrets {
		if m, ok := ps.(map[string]interface{}); ok {
			name, _ := m["name"].(string)
			add("Secret", name, graph.RelationAuthenticates)
		}
	}

	containers := containersOf(podSpec)
	for _, c := range containers {
		envFrom, _, _ := unstructured.NestedSlice(c, "envFrom")
		for _, ef := range envFrom {
			m, ok := ef.(map[string]interface{})
			if !ok {
				continue
			}
			add("ConfigMap", nestedName(m, "configMapRef"), graph.RelationConfigures)
			add("Secret", nestedName(m, "secretRef"), graph.RelationAuthenticates)
		}

		env, _, _ := unstructured.NestedSlice(c, "env")
		for _, ev := range env {
			m, ok := ev.(map[string]interface{})
			if !ok {
				continue
			}
			from, ok := m["valueFrom"].(map[string]interface{})
			if !ok {
				continue
			}
			add("ConfigMap", nestedName(from, "configMapKeyRef"), graph.RelationConfigures)
			add("Secret", nestedName(from, "secretKeyRef"), graph.RelationAuthenticates)
		}
	}

	volumes, _, _ := unstructured.NestedSlice(podSpec, "volumes")
	for _, v := range volumes {
		m, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		add("ConfigMap", nestedName(m, "configMap"), graph.RelationConfigures)
		if sec, ok := m["secret"].(map[string]interface{}); ok {
			name, _ := sec["secretName"].(string)
			add("Secret", name, graph.RelationAuthenticates)
		}
		if pvc, ok := m["persistentVolumeClaim"].(map[string]interface{}); ok {
			name, _ := pvc["claimName"].(string)
			add("PersistentVolumeClaim", name, graph.RelationConfigures)
		}
	}

	return edges
}

// serviceSelector matches a Service's spec.selector against workload
// labels in the same namespace. A selector can fan out to many targets.
func serviceSelector(r *resource.Resource, idx *Index) []graph.Edge {
	selector, found, err := unstructured.NestedStringMap(r.Object.Object, "spec", "selector")
	if !found || err != nil {
		return nil
	}
	var edges []graph.Edge
	for _, target := range idx.MatchSelector(selector, r.Identity.Namespace, workloadKinds...) {
		if target.Identity == r.Identity {
			continue
		}
		edges = append(edges, edge(r, target.Identity, graph.RelationSelects))
	}
	return edges
}

// ingressBackends resolves an Ingress's rule and default backends to
// Services, and its TLS secrets to Secrets. The backend's port selects a
// port within the named Service and never changes which Service object
// the route depends on, so only the name participates in the edge.
func ingressBackends(r *resource.Resource, _ *Index) []graph.Edge {
	ns := r.Identity.Namespace
	var edges []graph.Edge

	addService := func(name string) {
		if name == "" {
			return
		}
		edges = append(edges, edge(r, resource.Identity{Kind: "Service", Name: name, Namespace: ns}, graph.RelationRoutesTo))
	}

	if name, _, _ := unstructured.NestedString(r.Object.Object, "spec", "defaultBackend", "service", "name"); name != "" {
		addService(name)
	}

	rules, _, _ := unstructured.NestedSlice(r.Object.Object, "spec", "rules")
	for _, rule := range rules {
		m, ok := rule.(map[string]interface{})
		if !ok {
			continue
		}
		paths, _, _ := unstructured.NestedSlice(m, "http", "paths")
		for _, p := range paths {
			pm, ok := p.(map[string]interface{})
			if !ok {
				continue
			}
			if name, _, _ := unstructured.NestedString(pm, "backend", "service", "name"); name != "" {
				addService(name)
			}
		}
	}

	tls, _, _ := unstructured.NestedSlice(r.Object.Object, "spec", "tls")
	for _, t := range tls {
		m, ok := t.(map[string]interface{})
		if !ok {
			continue
		}
		if name, _ := m["secretName"].(string); name != "" {
			edges = append(edges, edge(r, resource.Identity{Kind: "Secret", Name: name, Namespace: ns}, graph.RelationAuthenticates))
		}
	}

	return edges
}

// networkPolicySelector matches spec.podSelector.matchLabels against
// workloads in the same namespace.
func networkPolicySelector(r *resource.Resource, idx *Index) []graph.Edge {
	selector, found, err := unstructured.NestedStringMap(r.Object.Object, "spec", "podSelector", "matchLabels")
	if !found || err != nil {
		return nil
	}
	var edges []graph.Edge
	for _, target := range idx.MatchSelector(selector, r.Identity.Namespace, workloadKinds...) {
		edges = append(edges, edge(r, target.Identity, graph.RelationSelects))
	}
	return edges
}

// storageClassReference resolves a claim's storage class to its
// cluster-scoped provisioner.
func storageClassReference(r *resource.Resource, _ *Index) []graph.Edge {
	name, _, _ := unstructured.NestedString(r.Object.Object, "spec", "storageClassName")
	if name == "" {
		return nil
	}
	return []graph.Edge{edge(r, resource.Identity{Kind: "StorageClass", Name: name}, graph.RelationSourcesFrom)}
}

// compositionReferences handles Flux-style Kustomization fields: explicit
// dependsOn entries and the sourceRef repository reference.
func compositionReferences(r *resource.Resource, _ *Index) []graph.Edge {
	var edges []graph.Edge

	deps, _, _ := unstructured.NestedSlice(r.Object.Object, "spec", "dependsOn")
	for _, d := range deps {
		m, ok := d.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if name == "" {
			continue
		}
		ns, _ := m["namespace"].(string)
		if ns == "" {
			ns = r.Identity.Namespace
		}
		edges = append(edges, edge(r, resource.Identity{Kind: r.Identity.Kind, Name: name, Namespace: ns}, graph.RelationDependsOn))
	}

	if e, ok := sourceRefEdge(r, "spec", "sourceRef"); ok {
		edges = append(edges, e)
	}
	return edges
}

// helmReleaseReferences resolves a HelmRelease's chart source.
func helmReleaseReferences(r *resource.Resource, _ *Index) []graph.Edge {
	var edges []graph.Edge
	if e, ok := sourceRefEdge(r, "spec", "chart", "spec", "sourceRef"); ok {
		edges = append(edges, e)
	}
	return edges
}

func sourceRefEdge(r *resource.Resource, fields ...string) (graph.Edge, bool) {
	ref, found, err := unstructured.NestedMap(r.Object.Object, fields...)
	if !found || err != nil {
		return graph.Edge{}, false
	}
	kind, _ := ref["kind"].(string)
	name, _ := ref["name"].(string)
	if kind == "" || name == "" {
		return graph.Edge{}, false
	}
	ns, _ := ref["namespace"].(string)
	if ns == "" {
		ns = r.Identity.Namespace
	}
	return edge(r, resource.Identity{Kind: kind, Name: name, Namespace: ns}, graph.RelationSourcesFrom), true
}

func podSpecOf(r *resource.Resource) map[string]interface{} {
	var fields []string
	switch r.Identity.Kind {
	case "Pod":
		fields = []string{"spec"}
	case "CronJob":
		fields = []string{"spec", "jobTemplate", "spec", "template", "spec"}
	default:
		fields = []string{"spec", "template", "spec"}
	}
	spec, found, err := unstructured.NestedMap(r.Object.Object, fields...)
	if !found || err != nil {
		return nil
	}
	return spec
}

func containersOf(podSpec map[string]interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	for _, field := range []string{"containers", "initContainers"} {
		list, _, _ := unstructured.NestedSlice(podSpec, field)
		for _, c := range list {
			if m, ok := c.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

func nestedName(m map[string]interface{}, field string) string {
	ref, ok := m[field].(map[string]interface{})
	if !ok {
		return ""
	}
	name, _ := ref["name"].(string)
	return name
}
