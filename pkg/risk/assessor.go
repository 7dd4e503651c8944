// Package risk classifies each resource in a dependency graph by how much
// damage losing it would cause.
package risk

import (
	"fmt"
	"sort"

	"github.com/fathoms-io/sounder/pkg/config"
	"github.com/fathoms-io/sounder/pkg/graph"
	"github.com/fathoms-io/sounder/pkg/resource"
)

// Level is the criticality classification of a resource.
type Level string

const (
	LevelCritical Level = "critical"
	LevelHigh     Level = "high"
	LevelMedium   Level = "medium"
	LevelLow      Level = "low"
)

var levelRank = map[Level]int{
	LevelCritical: 3,
	LevelHigh:     2,
	LevelMedium:   1,
	LevelLow:      0,
}

// Rank returns a numeric severity for sorting, higher is more severe.
func (l Level) Rank() int {
	return levelRank[l]
}

// Assessment is the per-resource risk classification.
type Assessment struct {
	Identity resource.Identity `json:"identity"`
	Level    Level             `json:"level"`
	Reasons  []string          `json:"reasons"`
	FanIn    int               `json:"fan_in"`
	FanOut   int               `json:"fan_out"`

	// IsSinglePointOfFailure is true when removing this resource cuts a
	// dependent off from a requirement it has no other path to.
	IsSinglePointOfFailure bool `json:"is_single_point_of_failure"`
}

// Assessor classifies resources using configurable thresholds.
type Assessor struct {
	cfg config.RiskConfig
}

// NewAssessor creates an assessor with the given thresholds.
func NewAssessor(cfg config.RiskConfig) *Assessor {
	return &Assessor{cfg: cfg}
}

// Assess classifies every resource in the graph. The result is sorted by
// descending severity, then descending fan-in, then identity.
func (a *Assessor) Assess(g *graph.DependencyGraph) []*Assessment {
	assessments := make([]*Assessment, 0, g.Size())
	for _, id := range g.Identities() {
		assessments = append(assessments, a.assessOne(g, id))
	}

	sort.Slice(assessments, func(i, j int) bool {
		x, y := assessments[i], assessments[j]
		if x.Level.Rank() != y.Level.Rank() {
			return x.Level.Rank() > y.Level.Rank()
		}
		if x.FanIn != y.FanIn {
			return x.FanIn > y.FanIn
		}
		return x.Identity.Less(y.Identity)
	})
	return assessments
}

// assessOne applies the classification rules most severe first; the first
// matching rule wins.
func (a *Assessor) assessOne(g *graph.DependencyGraph, id resource.Identity) *Assessment {
	fanIn := g.FanIn(id)
	fanOut := g.FanOut(id)
	spof := g.IsSinglePointOfFailure(id)
	kind := id.Kind

	as := &Assessment{
		Identity:               id,
		FanIn:                  fanIn,
		FanOut:                 fanOut,
		IsSinglePointOfFailure: spof,
	}

	// critical
	if resource.IsClusterRoot(kind) {
		as.Level = LevelCritical
		as.Reasons = append(as.Reasons, fmt.Sprintf("%s is a cluster-wide root object", kind))
		return as
	}
	if fanIn >= a.cfg.HighFanInThreshold {
		as.Level = LevelCritical
		as.Reasons = append(as.Reasons, fmt.Sprintf("fan-in %d meets the critical threshold %d", fanIn, a.cfg.HighFanInThreshold))
		return as
	}
	if resource.IsConfigOrCredential(kind) {
		if n := a.dependentNamespaces(g, id); n > a.cfg.CrossNamespaceCount {
			as.Level = LevelCritical
			as.Reasons = append(as.Reasons, fmt.Sprintf("%s reaches dependents across %d namespaces (limit %d)", kind, n, a.cfg.CrossNamespaceCount))
			return as
		}
	}

	// high
	if resource.IsConfigOrCredential(kind) && fanIn >= a.cfg.MediumFanInThreshold {
		as.Level = LevelHigh
		as.Reasons = append(as.Reasons, fmt.Sprintf("%s with fan-in %d (threshold %d)", kind, fanIn, a.cfg.MediumFanInThreshold))
		return as
	}
	if resource.IsRouting(kind) && spof {
		as.Level = LevelHigh
		as.Reasons = append(as.Reasons, fmt.Sprintf("sole non-redundant %s instance", kind))
		return as
	}

	// medium
	if fanIn >= 1 && (resource.IsWorkload(kind) || resource.IsRouting(kind)) {
		as.Level = LevelMedium
		as.Reasons = append(as.Reasons, fmt.Sprintf("%s with %d dependent(s)", kind, fanIn))
		return as
	}

	as.Level = LevelLow
	if fanIn == 0 {
		as.Reasons = append(as.Reasons, "no dependents")
	} else {
		as.Reasons = append(as.Reasons, fmt.Sprintf("%d dependent(s), no elevated classification", fanIn))
	}
	return as
}

// dependentNamespaces counts the distinct namespaces of the transitive
// dependents of id.
func (a *Assessor) dependentNamespaces(g *graph.DependencyGraph, id resource.Identity) int {
	namespaces := make(map[string]bool)
	for _, dep := range g.TransitiveDependents(id) {
		namespaces[dep.Namespace] = true
	}
	return len(namespaces)
}
