// Package engine wires the analysis pipeline: load a snapshot, extract
// relationships, build the graph, assess risk. Each invocation builds a
// fresh immutable graph; nothing is shared between runs.
package engine

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/fathoms-io/sounder/pkg/cluster"
	"github.com/fathoms-io/sounder/pkg/config"
	"github.com/fathoms-io/sounder/pkg/extract"
	"github.com/fathoms-io/sounder/pkg/graph"
	"github.com/fathoms-io/sounder/pkg/impact"
	"github.com/fathoms-io/sounder/pkg/manifest"
	"github.com/fathoms-io/sounder/pkg/resource"
	"github.com/fathoms-io/sounder/pkg/risk"
)

// Snapshot is a loaded resource set plus everything non-fatal that
// happened while loading it.
type Snapshot struct {
	Resources []*resource.Resource

	// Load is set for manifest-based snapshots.
	Load *manifest.LoadResult

	// Timeouts is set for cluster-based snapshots.
	Timeouts []string
}

// Analysis is the result of one full pass over a snapshot.
type Analysis struct {
	Snapshot    *Snapshot
	Extraction  *extract.Result
	Graph       *graph.DependencyGraph
	Assessments []*risk.Assessment

	// BuildWarnings come from graph assembly: rejected self-edges and
	// edges with endpoints outside the set.
	BuildWarnings []string
}

// Warnings flattens every non-fatal finding for reports.
func (a *Analysis) Warnings() []string {
	var out []string
	if a.Snapshot.Load != nil {
		for _, e := range a.Snapshot.Load.ParseErrors {
			out = append(out, e.Error())
		}
		for _, e := range a.Snapshot.Load.IOErrors {
			out = append(out, e.Error())
		}
		for _, d := range a.Snapshot.Load.Duplicates {
			out = append(out, fmt.Sprintf("duplicate resource %s; first occurrence kept", d))
		}
	}
	out = append(out, a.Snapshot.Timeouts...)
	for _, err := range a.Extraction.RefErrors {
		out = append(out, err.Error())
	}
	out = append(out, a.BuildWarnings...)
	return out
}

// Engine runs analysis passes.
type Engine struct {
	cfg *config.Config
	log logr.Logger
}

// New creates an engine with the given configuration.
func New(cfg *config.Config, log logr.Logger) *Engine {
	return &Engine{cfg: cfg, log: log}
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// LoadManifests builds a snapshot from file or directory paths.
func (e *Engine) LoadManifests(ctx context.Context, paths []string) (*Snapshot, error) {
	loader := manifest.NewLoader(e.log)
	result, err := loader.Load(ctx, paths)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Resources: result.Resources, Load: result}, nil
}

// LoadCluster builds a snapshot from a live, read-only cluster client.
func (e *Engine) LoadCluster(ctx context.Context, reader client.Reader, namespaces []string) (*Snapshot, error) {
	snapshotter := cluster.NewSnapshotter(reader, e.log)
	result, err := snapshotter.Snapshot(ctx, namespaces)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Resources: result.Resources}
	for _, t := range result.Timeouts {
		snap.Timeouts = append(snap.Timeouts, t.String())
	}
	for _, e := range result.Errors {
		snap.Timeouts = append(snap.Timeouts, e.Error())
	}
	return snap, nil
}

// Analyze runs extraction, graph construction, and risk assessment over a
// snapshot.
func (e *Engine) Analyze(snap *Snapshot) *Analysis {
	registry := extract.NewRegistry(e.log)
	extraction := registry.Extract(snap.Resources)

	g, buildWarnings := graph.Build(snap.Resources, extraction.Edges,
		graph.WithKindTiers(kindTierOverrides(e.cfg.Order.KindTiers)))
	assessments := risk.NewAssessor(e.cfg.Risk).Assess(g)

	return &Analysis{
		Snapshot:      snap,
		Extraction:    extraction,
		Graph:         g,
		Assessments:   assessments,
		BuildWarnings: buildWarnings,
	}
}

// kindTierOverrides translates configured tier names into tiers. Names
// are validated by the CUE schema, so unknown ones cannot reach here; any
// that do are skipped.
func kindTierOverrides(names map[string]string) map[string]resource.Tier {
	if len(names) == 0 {
		return nil
	}
	tiers := make(map[string]resource.Tier, len(names))
	for kind, name := range names {
		if t, ok := resource.TierByName(name); ok {
			tiers[kind] = t
		}
	}
	return tiers
}

// Impact computes the blast-radius report for one target.
func (e *Engine) Impact(a *Analysis, target resource.Identity) (*impact.Report, error) {
	analyzer := impact.NewAnalyzer(e.cfg.Recovery)
	return analyzer.Analyze(a.Graph, impact.AssessmentIndex(a.Assessments), target)
}
