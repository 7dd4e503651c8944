package plan

import (
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/fathoms-io/sounder/pkg/config"
	"github.com/fathoms-io/sounder/pkg/extract"
	"github.com/fathoms-io/sounder/pkg/graph"
	"github.com/fathoms-io/sounder/pkg/resource"
)

func newResource(kind, namespace, name, weight string) *resource.Resource {
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
	if weight != "" {
		obj.SetAnnotations(map[string]string{resource.WeightAnnotation: weight})
	}
	r, err := resource.FromUnstructured(obj, "test")
	Expect(err).NotTo(HaveOccurred())
	return r
}

func ident(kind, namespace, name string) resource.Identity {
	return resource.Identity{Kind: kind, Namespace: namespace, Name: name}
}

func stepFor(p *Plan, id resource.Identity) *Step {
	for i := range p.Steps {
		if p.Steps[i].Identity == id {
			return &p.Steps[i]
		}
	}
	return nil
}

var _ = Describe("Planner", func() {
	var (
		planner *Planner
		ext     *extract.Result
	)

	BeforeEach(func() {
		planner = NewPlanner(config.PlanConfig{CyclePolicy: "warn"}, logr.Discard())
		ext = &extract.Result{}
	})

	// appGraph is the usual stack: config and secret feed the
	// deployment, the service selects it, the ingress routes to the
	// service.
	appGraph := func() *graph.DependencyGraph {
		resources := []*resource.Resource{
			newResource("ConfigMap", "prod", "app-config", "10"),
			newResource("Secret", "prod", "app-secrets", "10"),
			newResource("Deployment", "prod", "test-app", "30"),
			newResource("Service", "prod", "app-service", "20"),
			newResource("Ingress", "prod", "app-ingress", "40"),
		}
		edges := []graph.Edge{
			{Source: ident("Deployment", "prod", "test-app"), Target: ident("ConfigMap", "prod", "app-config"), Relation: graph.RelationConfigures},
			{Source: ident("Deployment", "prod", "test-app"), Target: ident("Secret", "prod", "app-secrets"), Relation: graph.RelationAuthenticates},
			{Source: ident("Service", "prod", "app-service"), Target: ident("Deployment", "prod", "test-app"), Relation: graph.RelationSelects},
			{Source: ident("Ingress", "prod", "app-ingress"), Target: ident("Service", "prod", "app-service"), Relation: graph.RelationRoutesTo},
		}
		g, warnings := graph.Build(resources, edges)
		Expect(warnings).To(BeEmpty())
		return g
	}

	cyclicGraph := func() *graph.DependencyGraph {
		resources := []*resource.Resource{
			newResource("Deployment", "prod", "service-a", ""),
			newResource("Deployment", "prod", "service-b", ""),
			newResource("ConfigMap", "other", "standalone", ""),
		}
		edges := []graph.Edge{
			{Source: ident("Deployment", "prod", "service-a"), Target: ident("Deployment", "prod", "service-b"), Relation: graph.RelationDependsOn},
			{Source: ident("Deployment", "prod", "service-b"), Target: ident("Deployment", "prod", "service-a"), Relation: graph.RelationDependsOn},
		}
		g, _ := graph.Build(resources, edges)
		return g
	}

	Describe("planning the whole graph", func() {
		It("assigns every resource a wave after its dependencies", func() {
			p, err := planner.Plan(appGraph(), nil, ext, Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Steps).To(HaveLen(5))
			Expect(p.Waves).To(Equal(4))

			Expect(stepFor(p, ident("ConfigMap", "prod", "app-config")).Wave).To(Equal(1))
			Expect(stepFor(p, ident("Secret", "prod", "app-secrets")).Wave).To(Equal(1))
			Expect(stepFor(p, ident("Deployment", "prod", "test-app")).Wave).To(Equal(2))
			Expect(stepFor(p, ident("Service", "prod", "app-service")).Wave).To(Equal(3))
			Expect(stepFor(p, ident("Ingress", "prod", "app-ingress")).Wave).To(Equal(4))
		})

		It("carries the explicit weights into the steps", func() {
			p, err := planner.Plan(appGraph(), nil, ext, Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(stepFor(p, ident("Deployment", "prod", "test-app")).Weight).To(Equal(30))
		})

		It("is deterministic across runs", func() {
			first, err := planner.Plan(appGraph(), nil, ext, Options{})
			Expect(err).NotTo(HaveOccurred())
			second, err := planner.Plan(appGraph(), nil, ext, Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Steps).To(Equal(first.Steps))
		})
	})

	Describe("planning a target subset", func() {
		It("includes the target and everything it requires, nothing more", func() {
			p, err := planner.Plan(appGraph(), nil, ext, Options{
				Targets: []resource.Identity{ident("Deployment", "prod", "test-app")},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Steps).To(HaveLen(3))
			Expect(stepFor(p, ident("Ingress", "prod", "app-ingress"))).To(BeNil())
			Expect(stepFor(p, ident("Deployment", "prod", "test-app")).Wave).To(Equal(2))
		})

		It("rejects targets outside the loaded set", func() {
			_, err := planner.Plan(appGraph(), nil, ext, Options{
				Targets: []resource.Identity{ident("Deployment", "prod", "ghost")},
			})
			var verr *ValidationError
			Expect(err).To(BeAssignableToTypeOf(verr))
			Expect(err.Error()).To(ContainSubstring("ghost"))
		})
	})

	Describe("cycles in the change set", func() {
		It("refuses to plan and names every member", func() {
			_, err := planner.Plan(cyclicGraph(), nil, ext, Options{})
			var cerr *graph.CircularDependencyError
			Expect(err).To(BeAssignableToTypeOf(cerr))
			Expect(err.Error()).To(ContainSubstring("service-a"))
			Expect(err.Error()).To(ContainSubstring("service-b"))
		})

		It("downgrades the refusal to a warning under dry-run", func() {
			p, err := planner.Plan(cyclicGraph(), nil, ext, Options{DryRun: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.DryRun).To(BeTrue())
			Expect(p.Warnings).To(HaveLen(1))
			Expect(p.Warnings[0]).To(ContainSubstring("dry-run"))

			// Only the acyclic remainder is planned.
			Expect(p.Steps).To(HaveLen(1))
			Expect(p.Steps[0].Identity.Name).To(Equal("standalone"))
		})
	})

	Describe("cycles outside the change set", func() {
		target := []resource.Identity{ident("ConfigMap", "other", "standalone")}

		It("warns under the default policy", func() {
			p, err := planner.Plan(cyclicGraph(), nil, ext, Options{Targets: target})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Warnings).To(HaveLen(1))
			Expect(p.Warnings[0]).To(ContainSubstring("outside the change set"))
			Expect(p.Steps).To(HaveLen(1))
		})

		It("refuses under the block policy", func() {
			planner = NewPlanner(config.PlanConfig{CyclePolicy: "block"}, logr.Discard())
			_, err := planner.Plan(cyclicGraph(), nil, ext, Options{Targets: target})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("cycle policy is block"))
		})
	})

	Describe("validation", func() {
		It("aggregates every dangling explicit dependency", func() {
			ext := &extract.Result{
				Dangling: []*extract.DanglingReferenceWarning{
					{Source: ident("Deployment", "prod", "a"), Target: ident("ConfigMap", "prod", "gone"), Relation: graph.RelationDependsOn},
					{Source: ident("Deployment", "prod", "b"), Target: ident("Secret", "prod", "also-gone"), Relation: graph.RelationDependsOn},
					{Source: ident("Deployment", "prod", "c"), Target: ident("Secret", "prod", "implicit"), Relation: graph.RelationAuthenticates},
				},
			}
			verr := planner.Validate(nil, ext)
			Expect(verr).NotTo(BeNil())
			// Implicit dangling references stay warnings; only the two
			// explicit depends_on failures count.
			Expect(verr.Problems).To(HaveLen(2))
		})

		It("passes a clean extraction", func() {
			Expect(planner.Validate(nil, ext)).To(BeNil())
		})
	})
})
