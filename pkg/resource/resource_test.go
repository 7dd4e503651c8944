package resource

import (
	"testing"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		name      string
		ref       string
		defaultNS string
		want      Identity
		wantErr   bool
	}{
		{
			name:      "kind and name",
			ref:       "ConfigMap/app-config",
			defaultNS: "prod",
			want:      Identity{Kind: "ConfigMap", Name: "app-config", Namespace: "prod"},
		},
		{
			name: "kind name and namespace",
			ref:  "Service/app-service/staging",
			want: Identity{Kind: "Service", Name: "app-service", Namespace: "staging"},
		},
		{
			name:      "surrounding whitespace",
			ref:       "  Secret/app-secrets  ",
			defaultNS: "default",
			want:      Identity{Kind: "Secret", Name: "app-secrets", Namespace: "default"},
		},
		{
			name:    "single segment",
			ref:     "ConfigMap",
			wantErr: true,
		},
		{
			name:    "empty segment",
			ref:     "ConfigMap//prod",
			wantErr: true,
		},
		{
			name:    "too many segments",
			ref:     "a/b/c/d",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRef(tt.ref, tt.defaultNS)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRef() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseRef() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIdentityString(t *testing.T) {
	id := Identity{Kind: "Deployment", Name: "test-app", Namespace: "prod"}
	if got := id.String(); got != "Deployment/test-app/prod" {
		t.Errorf("String() = %q", got)
	}

	clusterScoped := Identity{Kind: "StorageClass", Name: "fast"}
	if got := clusterScoped.String(); got != "StorageClass/fast" {
		t.Errorf("String() = %q", got)
	}
}

func makeResource(kind, namespace, name string, annotations map[string]string) *Resource {
	obj := &unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": "v1",
			"kind":       kind,
			"metadata": map[string]interface{}{
				"name":      name,
				"namespace": namespace,
			},
		},
	}
	obj.SetAnnotations(annotations)
	r, err := FromUnstructured(obj, "test")
	if err != nil {
		panic(err)
	}
	return r
}

func TestWeight(t *testing.T) {
	tests := []struct {
		name        string
		annotations map[string]string
		want        int
	}{
		{name: "no annotation", want: 0},
		{name: "valid weight", annotations: map[string]string{WeightAnnotation: "30"}, want: 30},
		{name: "padded weight", annotations: map[string]string{WeightAnnotation: " 10 "}, want: 10},
		{name: "negative weight", annotations: map[string]string{WeightAnnotation: "-5"}, want: -5},
		{name: "malformed weight", annotations: map[string]string{WeightAnnotation: "heavy"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := makeResource("Deployment", "default", "app", tt.annotations)
			if got := r.Weight(); got != tt.want {
				t.Errorf("Weight() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExplicitDependencies(t *testing.T) {
	r := makeResource("Deployment", "prod", "app", map[string]string{
		DependsOnAnnotation: "ConfigMap/app-config, Secret/app-secrets/shared, bogus",
	})

	ids, errs := r.ExplicitDependencies()
	if len(ids) != 2 {
		t.Fatalf("got %d identities, want 2: %v", len(ids), ids)
	}
	if ids[0] != (Identity{Kind: "ConfigMap", Name: "app-config", Namespace: "prod"}) {
		t.Errorf("first dependency = %v; namespace should default to the owner's", ids[0])
	}
	if ids[1] != (Identity{Kind: "Secret", Name: "app-secrets", Namespace: "shared"}) {
		t.Errorf("second dependency = %v", ids[1])
	}
	if len(errs) != 1 {
		t.Errorf("got %d errors, want 1 for the malformed entry", len(errs))
	}
}

func TestSortAndDedupe(t *testing.T) {
	resources := []*Resource{
		makeResource("Service", "b-ns", "svc", nil),
		makeResource("Deployment", "a-ns", "app", nil),
		makeResource("ConfigMap", "a-ns", "cfg", nil),
		makeResource("ConfigMap", "a-ns", "cfg", nil),
	}

	Sort(resources)
	deduped, dupes := Dedupe(resources)

	if len(deduped) != 3 {
		t.Fatalf("got %d resources after dedupe, want 3", len(deduped))
	}
	if len(dupes) != 1 || dupes[0].Name != "cfg" {
		t.Errorf("dupes = %v, want the duplicated ConfigMap", dupes)
	}

	want := []string{"ConfigMap/cfg/a-ns", "Deployment/app/a-ns", "Service/svc/b-ns"}
	for i, r := range deduped {
		if r.Identity.String() != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, r.Identity, want[i])
		}
	}
}

func TestKindTiers(t *testing.T) {
	if KindTier("Namespace") >= KindTier("ConfigMap") {
		t.Error("Namespace should order before ConfigMap")
	}
	if KindTier("Secret") >= KindTier("Deployment") {
		t.Error("Secret should order before Deployment")
	}
	if KindTier("Deployment") >= KindTier("Ingress") {
		t.Error("Deployment should order before Ingress")
	}
	if KindTier("SomethingCustom") != TierOther {
		t.Error("unrecognized kinds should fall into TierOther")
	}
	if !IsClusterRoot("StorageClass") || IsClusterRoot("ConfigMap") {
		t.Error("IsClusterRoot misclassified")
	}
}
