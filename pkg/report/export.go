// Package report renders analysis results: a JSON export with stable
// field names, a Markdown report, and a Graphviz visualization.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/fathoms-io/sounder/pkg/extract"
	"github.com/fathoms-io/sounder/pkg/graph"
	"github.com/fathoms-io/sounder/pkg/impact"
	"github.com/fathoms-io/sounder/pkg/resource"
	"github.com/fathoms-io/sounder/pkg/risk"
)

// ExportedResource is one resource entry in the JSON export.
type ExportedResource struct {
	Kind      string            `json:"kind"`
	Namespace string            `json:"namespace,omitempty"`
	Name      string            `json:"name"`
	UID       string            `json:"uid,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Source    string            `json:"source"`
	Weight    int               `json:"weight,omitempty"`
}

// Identity returns the exported resource's identity.
func (r ExportedResource) Identity() resource.Identity {
	return resource.Identity{Kind: r.Kind, Namespace: r.Namespace, Name: r.Name}
}

// ExportMetadata carries run information. GeneratedAt is the only field
// that varies between runs over identical input; SnapshotHash covers the
// resources and relations.
type ExportMetadata struct {
	GeneratedAt  time.Time `json:"generated_at"`
	SnapshotHash string    `json:"snapshot_hash"`
}

// ExportWarnings carries non-fatal findings for external consumers.
type ExportWarnings struct {
	DanglingReferences []*extract.DanglingReferenceWarning `json:"dangling_references,omitempty"`
	FetchTimeouts      []string                            `json:"fetch_timeouts,omitempty"`
	Other              []string                            `json:"other,omitempty"`
}

// Export is the JSON export schema. Field names are stable for external
// consumption.
type Export struct {
	Metadata        ExportMetadata        `json:"metadata"`
	Resources       []ExportedResource    `json:"resources"`
	Relations       []graph.Edge          `json:"relations"`
	RiskAssessments []*risk.Assessment    `json:"risk_assessments"`
	Cycles          [][]resource.Identity `json:"cycles,omitempty"`
	Impacts         []*impact.Report      `json:"impacts,omitempty"`
	Warnings        *ExportWarnings       `json:"warnings,omitempty"`
}

// NewExport assembles the export document from an analyzed graph. The
// snapshot hash covers resources and relations, so two runs over the same
// input differ only in generated_at.
func NewExport(g *graph.DependencyGraph, assessments []*risk.Assessment, impacts []*impact.Report, warnings *ExportWarnings) *Export {
	exp := &Export{
		Metadata:        ExportMetadata{GeneratedAt: time.Now().UTC()},
		Relations:       g.Edges(),
		RiskAssessments: assessments,
		Cycles:          g.Cycles(),
		Impacts:         impacts,
		Warnings:        warnings,
	}

	for _, id := range g.Identities() {
		r, _ := g.Resource(id)
		exp.Resources = append(exp.Resources, ExportedResource{
			Kind:      id.Kind,
			Namespace: id.Namespace,
			Name:      id.Name,
			UID:       r.UID,
			Labels:    r.Labels,
			Source:    r.Source,
			Weight:    r.Weight(),
		})
	}

	exp.normalize()
	exp.Metadata.SnapshotHash = exp.computeHash()
	return exp
}

// normalize replaces nil collections with empty ones so an empty graph
// still marshals with the full schema shape. It runs before hashing so
// the hash is stable across both forms.
func (e *Export) normalize() {
	if e.Resources == nil {
		e.Resources = []ExportedResource{}
	}
	if e.Relations == nil {
		e.Relations = []graph.Edge{}
	}
	if e.RiskAssessments == nil {
		e.RiskAssessments = []*risk.Assessment{}
	}
}

// computeHash hashes resources and relations only, never the timestamp.
func (e *Export) computeHash() string {
	type hashable struct {
		Resources []ExportedResource `json:"resources"`
		Relations []graph.Edge       `json:"relations"`
	}
	data, err := json.Marshal(hashable{Resources: e.Resources, Relations: e.Relations})
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", xxhash.Sum64(data))
}

// Marshal renders the export as indented JSON.
func (e *Export) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return append(data, '\n'), nil
}

// FilterExport prunes the export to resources whose identity contains
// substr. Relations, assessments, and impacts touching pruned resources
// are dropped; cycles are kept only when every member survives. The
// snapshot hash is recomputed over the pruned set.
func FilterExport(exp *Export, substr string) *Export {
	if substr == "" {
		return exp
	}

	out := &Export{Metadata: exp.Metadata, Warnings: exp.Warnings}
	kept := make(map[resource.Identity]bool)
	for _, r := range exp.Resources {
		if strings.Contains(r.Identity().String(), substr) {
			out.Resources = append(out.Resources, r)
			kept[r.Identity()] = true
		}
	}
	for _, e := range exp.Relations {
		if kept[e.Source] && kept[e.Target] {
			out.Relations = append(out.Relations, e)
		}
	}
	for _, as := range exp.RiskAssessments {
		if kept[as.Identity] {
			out.RiskAssessments = append(out.RiskAssessments, as)
		}
	}
	for _, cycle := range exp.Cycles {
		all := true
		for _, id := range cycle {
			if !kept[id] {
				all = false
				break
			}
		}
		if all {
			out.Cycles = append(out.Cycles, cycle)
		}
	}
	for _, rep := range exp.Impacts {
		if kept[rep.Root] {
			out.Impacts = append(out.Impacts, rep)
		}
	}

	out.normalize()
	out.Metadata.SnapshotHash = out.computeHash()
	return out
}

// ParseExport reads an export document back, for consumers that rebuild
// the identity set and relation list from a prior run.
func ParseExport(data []byte) (*Export, error) {
	var exp Export
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("failed to parse export: %w", err)
	}
	return &exp, nil
}
