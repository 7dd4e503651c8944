package extract

import (
	"testing"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"

	"github.com/fathoms-io/sounder/pkg/graph"
	"github.com/fathoms-io/sounder/pkg/resource"
)

func fromYAML(t *testing.T, doc string) *resource.Resource {
	t.Helper()
	var m map[string]interface{}
	if err := yaml.Unmarshal([]byte(doc), &m); err != nil {
		t.Fatal(err)
	}
	r, err := resource.FromUnstructured(&unstructured.Unstructured{Object: m}, "test")
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func edgeSet(result *Result) map[string]bool {
	set := make(map[string]bool, len(result.Edges))
	for _, e := range result.Edges {
		set[e.String()] = true
	}
	return set
}

func TestWorkloadReferences(t *testing.T) {
	resources := []*resource.Resource{
		fromYAML(t, `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: test-app
  namespace: prod
spec:
  template:
    spec:
      serviceAccountName: app-sa
      containers:
        - name: app
          envFrom:
            - configMapRef:
                name: app-config
          env:
            - name: DB_PASSWORD
              valueFrom:
                secretKeyRef:
                  name: app-secrets
                  key: password
      volumes:
        - name: data
          persistentVolumeClaim:
            claimName: app-data
`),
		fromYAML(t, "apiVersion: v1\nkind: ConfigMap\nmetadata: {name: app-config, namespace: prod}"),
		fromYAML(t, "apiVersion: v1\nkind: Secret\nmetadata: {name: app-secrets, namespace: prod}"),
		fromYAML(t, "apiVersion: v1\nkind: ServiceAccount\nmetadata: {name: app-sa, namespace: prod}"),
		fromYAML(t, "apiVersion: v1\nkind: PersistentVolumeClaim\nmetadata: {name: app-data, namespace: prod}"),
	}
	resource.Sort(resources)

	result := NewRegistry(logr.Discard()).Extract(resources)
	edges := edgeSet(result)

	want := []string{
		"Deployment/test-app/prod -[configures]-> ConfigMap/app-config/prod",
		"Deployment/test-app/prod -[authenticates]-> Secret/app-secrets/prod",
		"Deployment/test-app/prod -[authenticates]-> ServiceAccount/app-sa/prod",
		"Deployment/test-app/prod -[configures]-> PersistentVolumeClaim/app-data/prod",
	}
	for _, w := range want {
		if !edges[w] {
			t.Errorf("missing edge %q in %v", w, result.Edges)
		}
	}
	if len(result.Dangling) != 0 {
		t.Errorf("unexpected dangling references: %v", result.Dangling)
	}
}

func TestDefaultServiceAccountIgnored(t *testing.T) {
	resources := []*resource.Resource{
		fromYAML(t, `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: app
  namespace: prod
spec:
  template:
    spec:
      serviceAccountName: default
      containers:
        - name: app
`),
	}
	result := NewRegistry(logr.Discard()).Extract(resources)
	if len(result.Edges) != 0 || len(result.Dangling) != 0 {
		t.Errorf("the default ServiceAccount must not produce a reference, got edges=%v dangling=%v",
			result.Edges, result.Dangling)
	}
}

func TestDanglingReference(t *testing.T) {
	resources := []*resource.Resource{
		fromYAML(t, `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: app
  namespace: prod
spec:
  template:
    spec:
      containers:
        - name: app
          envFrom:
            - secretRef:
                name: missing-secret
`),
	}
	result := NewRegistry(logr.Discard()).Extract(resources)
	if len(result.Edges) != 0 {
		t.Errorf("no edges expected, got %v", result.Edges)
	}
	if len(result.Dangling) != 1 {
		t.Fatalf("got %d dangling warnings, want 1", len(result.Dangling))
	}
	w := result.Dangling[0]
	if w.Target.Name != "missing-secret" || w.Relation != graph.RelationAuthenticates {
		t.Errorf("dangling = %s", w)
	}
}

func TestExplicitDependsOn(t *testing.T) {
	resources := []*resource.Resource{
		fromYAML(t, `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: app
  namespace: prod
  annotations:
    sounder.io/depends-on: "ConfigMap/app-config, Secret/gone"
`),
		fromYAML(t, "apiVersion: v1\nkind: ConfigMap\nmetadata: {name: app-config, namespace: prod}"),
	}
	resource.Sort(resources)

	result := NewRegistry(logr.Discard()).Extract(resources)
	if len(result.Edges) != 1 || result.Edges[0].Relation != graph.RelationDependsOn {
		t.Errorf("edges = %v, want one depends_on to the ConfigMap", result.Edges)
	}

	// The missing Secret is a dangling depends_on, which validate treats
	// as an error rather than a warning.
	strict := result.DanglingDependsOn()
	if len(strict) != 1 || strict[0].Target.Name != "gone" {
		t.Errorf("DanglingDependsOn() = %v", strict)
	}
}

func TestServiceSelector(t *testing.T) {
	resources := []*resource.Resource{
		fromYAML(t, `
apiVersion: v1
kind: Service
metadata:
  name: app-service
  namespace: prod
spec:
  selector:
    app: web
`),
		fromYAML(t, `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
  namespace: prod
spec:
  template:
    metadata:
      labels:
        app: web
    spec:
      containers:
        - name: web
`),
		fromYAML(t, `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: other
  namespace: prod
  labels:
    app: other
`),
		fromYAML(t, `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
  namespace: staging
  labels:
    app: web
`),
	}
	resource.Sort(resources)

	result := NewRegistry(logr.Discard()).Extract(resources)
	edges := edgeSet(result)
	if !edges["Service/app-service/prod -[selects]-> Deployment/web/prod"] {
		t.Errorf("selector should match the pod template labels in the same namespace, got %v", result.Edges)
	}
	for e := range edges {
		if e == "Service/app-service/prod -[selects]-> Deployment/web/staging" {
			t.Error("selector matched across namespaces")
		}
		if e == "Service/app-service/prod -[selects]-> Deployment/other/prod" {
			t.Error("selector matched non-matching labels")
		}
	}
}

func TestIngressBackends(t *testing.T) {
	resources := []*resource.Resource{
		fromYAML(t, `
apiVersion: networking.k8s.io/v1
kind: Ingress
metadata:
  name: app-ingress
  namespace: prod
spec:
  tls:
    - secretName: tls-cert
  rules:
    - host: app.example.com
      http:
        paths:
          - path: /
            backend:
              service:
                name: app-service
                port:
                  number: 80
`),
		fromYAML(t, "apiVersion: v1\nkind: Service\nmetadata: {name: app-service, namespace: prod}"),
		fromYAML(t, "apiVersion: v1\nkind: Secret\nmetadata: {name: tls-cert, namespace: prod}"),
	}
	resource.Sort(resources)

	result := NewRegistry(logr.Discard()).Extract(resources)
	edges := edgeSet(result)
	if !edges["Ingress/app-ingress/prod -[routes_to]-> Service/app-service/prod"] {
		t.Errorf("missing routes_to edge: %v", result.Edges)
	}
	if !edges["Ingress/app-ingress/prod -[authenticates]-> Secret/tls-cert/prod"] {
		t.Errorf("missing TLS secret edge: %v", result.Edges)
	}
}

func TestStorageClassReference(t *testing.T) {
	resources := []*resource.Resource{
		fromYAML(t, `
apiVersion: v1
kind: PersistentVolumeClaim
metadata:
  name: app-data
  namespace: prod
spec:
  storageClassName: fast
`),
		fromYAML(t, "apiVersion: storage.k8s.io/v1\nkind: StorageClass\nmetadata: {name: fast}"),
	}
	resource.Sort(resources)

	result := NewRegistry(logr.Discard()).Extract(resources)
	edges := edgeSet(result)
	if !edges["PersistentVolumeClaim/app-data/prod -[sources_from]-> StorageClass/fast"] {
		t.Errorf("missing cluster-scoped StorageClass edge: %v", result.Edges)
	}
}

func TestOwnerReferences(t *testing.T) {
	resources := []*resource.Resource{
		fromYAML(t, `
apiVersion: apps/v1
kind: ReplicaSet
metadata:
  name: app-7d9f
  namespace: prod
  ownerReferences:
    - apiVersion: apps/v1
      kind: Deployment
      name: app
      uid: abc
`),
		fromYAML(t, "apiVersion: apps/v1\nkind: Deployment\nmetadata: {name: app, namespace: prod}"),
	}
	resource.Sort(resources)

	result := NewRegistry(logr.Discard()).Extract(resources)
	edges := edgeSet(result)
	if !edges["ReplicaSet/app-7d9f/prod -[owned_by]-> Deployment/app/prod"] {
		t.Errorf("missing owned_by edge: %v", result.Edges)
	}
	for _, e := range result.Edges {
		if e.Relation == graph.RelationOwns {
			t.Error("owns must stay derived, never extracted as an edge")
		}
	}
}

func TestMalformedExplicitReference(t *testing.T) {
	resources := []*resource.Resource{
		fromYAML(t, `
apiVersion: v1
kind: ConfigMap
metadata:
  name: cfg
  namespace: prod
  annotations:
    sounder.io/depends-on: "justaname"
`),
	}
	result := NewRegistry(logr.Discard()).Extract(resources)
	if len(result.RefErrors) != 1 {
		t.Errorf("got %d reference errors, want 1", len(result.RefErrors))
	}
}
