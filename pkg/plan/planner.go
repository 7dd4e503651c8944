// Package plan turns a dependency graph into a wave-structured apply
// sequence. The planner only computes the sequence; it never applies
// anything and never talks to a cluster.
package plan

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/fathoms-io/sounder/pkg/config"
	"github.com/fathoms-io/sounder/pkg/extract"
	"github.com/fathoms-io/sounder/pkg/graph"
	"github.com/fathoms-io/sounder/pkg/manifest"
	"github.com/fathoms-io/sounder/pkg/resource"
)

// ValidationError aggregates every validation failure in a resource set.
// It always lists every offending resource, not just the first.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed with %d problem(s):\n  - %s",
		len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

// Step is one entry in the apply sequence.
type Step struct {
	Identity resource.Identity `json:"identity"`

	// Wave groups steps that are mutually independent; a caller may apply
	// all steps of a wave concurrently. Waves are numbered from 1.
	Wave int `json:"wave"`

	Weight int `json:"weight"`
}

// Plan is an ordered, wave-annotated apply sequence.
type Plan struct {
	Steps []Step `json:"steps"`

	// Waves is the number of waves in the plan.
	Waves int `json:"waves"`

	DryRun bool `json:"dry_run"`

	// Warnings carries non-fatal findings, e.g. cycles outside the
	// requested change set under the warn policy.
	Warnings []string `json:"warnings,omitempty"`
}

// Options selects what to plan.
type Options struct {
	// Targets restricts the plan to the given resources plus everything
	// they transitively require. Empty means the whole graph.
	Targets []resource.Identity

	// DryRun returns the plan without treating it as actionable; cycles
	// inside the change set are reported as warnings instead of refusing.
	DryRun bool
}

// Planner computes apply plans.
type Planner struct {
	cfg config.PlanConfig
	log logr.Logger
}

// NewPlanner creates a planner with the given policy configuration.
func NewPlanner(cfg config.PlanConfig, log logr.Logger) *Planner {
	return &Planner{cfg: cfg, log: log}
}

// Validate checks that every document parsed and every explicit
// depends_on reference resolves within the loaded scope. All failures are
// aggregated; nil means the set is valid.
func (p *Planner) Validate(load *manifest.LoadResult, ext *extract.Result) *ValidationError {
	var problems []string

	if load != nil {
		for _, perr := range load.ParseErrors {
			problems = append(problems, perr.Error())
		}
		for _, ioerr := range load.IOErrors {
			problems = append(problems, ioerr.Error())
		}
	}
	for _, err := range ext.RefErrors {
		problems = append(problems, err.Error())
	}
	for _, w := range ext.DanglingDependsOn() {
		problems = append(problems, fmt.Sprintf("%s depends on %s, which is not in the loaded set", w.Source, w.Target))
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// Plan validates the set, then produces the ordered apply sequence for
// the requested scope. Non-dry-run planning refuses when a cycle touches
// the change set, returning a CircularDependencyError naming every member.
func (p *Planner) Plan(g *graph.DependencyGraph, load *manifest.LoadResult, ext *extract.Result, opts Options) (*Plan, error) {
	if verr := p.Validate(load, ext); verr != nil {
		return nil, verr
	}

	scope, err := p.resolveScope(g, opts.Targets)
	if err != nil {
		return nil, err
	}

	plan := &Plan{DryRun: opts.DryRun}

	cycles := g.Cycles()
	if len(cycles) > 0 {
		inScope, outOfScope := splitCycles(cycles, scope)

		if len(inScope) > 0 {
			cerr := &graph.CircularDependencyError{Cycles: inScope}
			if !opts.DryRun {
				return nil, cerr
			}
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("dry-run: %v", cerr))
		}
		if len(outOfScope) > 0 {
			cerr := &graph.CircularDependencyError{Cycles: outOfScope}
			if p.cfg.CyclePolicy == "block" {
				return nil, fmt.Errorf("cycle outside the change set and cycle policy is block: %w", cerr)
			}
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("cycle outside the change set: %v", cerr))
		}
	}

	order := g.AcyclicOrder()

	waves := make(map[resource.Identity]int, len(scope))
	for _, id := range order {
		if !scope[id] {
			continue
		}
		wave := 1
		for _, e := range g.Dependencies(id) {
			if !scope[e.Target] {
				continue
			}
			if w, ok := waves[e.Target]; ok && w >= wave {
				wave = w + 1
			}
		}
		waves[id] = wave
		if wave > plan.Waves {
			plan.Waves = wave
		}

		r, _ := g.Resource(id)
		weight := 0
		if r != nil {
			weight = r.Weight()
		}
		plan.Steps = append(plan.Steps, Step{Identity: id, Wave: wave, Weight: weight})
	}

	return plan, nil
}

// resolveScope expands the target subset to include everything the
// targets transitively require. Unknown targets are an aggregate error.
func (p *Planner) resolveScope(g *graph.DependencyGraph, targets []resource.Identity) (map[resource.Identity]bool, error) {
	scope := make(map[resource.Identity]bool, g.Size())
	if len(targets) == 0 {
		for _, id := range g.Identities() {
			scope[id] = true
		}
		return scope, nil
	}

	var missing []string
	for _, t := range targets {
		if _, ok := g.Resource(t); !ok {
			missing = append(missing, t.String())
			continue
		}
		scope[t] = true
		for _, dep := range g.TransitiveDependencies(t) {
			scope[dep] = true
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Problems: []string{
			fmt.Sprintf("target resource(s) not in the loaded set: %s", strings.Join(missing, ", ")),
		}}
	}
	return scope, nil
}

func splitCycles(cycles [][]resource.Identity, scope map[resource.Identity]bool) (inScope, outOfScope [][]resource.Identity) {
	for _, cycle := range cycles {
		touches := false
		for _, id := range cycle {
			if scope[id] {
				touches = true
				break
			}
		}
		if touches {
			inScope = append(inScope, cycle)
		} else {
			outOfScope = append(outOfScope, cycle)
		}
	}
	return inScope, outOfScope
}
