// Package impact computes blast radius: what breaks when a resource goes
// away, what it needs to come back, and a rough recovery-time estimate.
package impact

import (
	"fmt"
	"time"

	"github.com/fathoms-io/sounder/pkg/config"
	"github.com/fathoms-io/sounder/pkg/graph"
	"github.com/fathoms-io/sounder/pkg/resource"
	"github.com/fathoms-io/sounder/pkg/risk"
)

// Report describes the blast radius of losing one resource.
type Report struct {
	Root resource.Identity `json:"root"`

	// Affected is the transitive set of dependents: everything that
	// breaks, directly or indirectly, when Root goes away.
	Affected []resource.Identity `json:"affected"`

	// Required is the transitive set of dependencies Root needs to be
	// restored.
	Required []resource.Identity `json:"required"`

	// RecoveryTimeEstimate is a heuristic, not a measurement: a per-kind
	// base cost plus a linear term in len(Affected), capped.
	RecoveryTimeEstimate time.Duration `json:"recovery_time_estimate"`

	// CriticalServicesImpacted lists affected resources that carry a
	// critical risk level of their own.
	CriticalServicesImpacted []resource.Identity `json:"critical_services_impacted"`

	// CriticalImpact is true when any member of Affected is critical;
	// the overall impact is then elevated regardless of Root's own level.
	CriticalImpact bool `json:"critical_impact"`
}

// Analyzer computes impact reports over an assessed graph.
type Analyzer struct {
	cfg config.RecoveryConfig
}

// NewAnalyzer creates an analyzer with the given recovery constants.
func NewAnalyzer(cfg config.RecoveryConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze computes the impact report for target. assessments must cover
// the graph; it is keyed by identity.
func (a *Analyzer) Analyze(g *graph.DependencyGraph, assessments map[resource.Identity]*risk.Assessment, target resource.Identity) (*Report, error) {
	if _, ok := g.Resource(target); !ok {
		return nil, fmt.Errorf("resource %s is not in the analyzed set", target)
	}

	report := &Report{
		Root:     target,
		Affected: g.TransitiveDependents(target),
		Required: g.TransitiveDependencies(target),
	}

	for _, id := range report.Affected {
		if as, ok := assessments[id]; ok && as.Level == risk.LevelCritical {
			report.CriticalServicesImpacted = append(report.CriticalServicesImpacted, id)
		}
	}
	report.CriticalImpact = len(report.CriticalServicesImpacted) > 0

	seconds := a.cfg.BaseFor(target.Kind) + a.cfg.PerDependentSeconds*len(report.Affected)
	if seconds > a.cfg.CapSeconds {
		seconds = a.cfg.CapSeconds
	}
	report.RecoveryTimeEstimate = time.Duration(seconds) * time.Second

	return report, nil
}

// AssessmentIndex keys a risk assessment slice by identity.
func AssessmentIndex(assessments []*risk.Assessment) map[resource.Identity]*risk.Assessment {
	idx := make(map[resource.Identity]*risk.Assessment, len(assessments))
	for _, as := range assessments {
		idx[as.Identity] = as
	}
	return idx
}
