package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/fathoms-io/sounder/pkg/extract"
	"github.com/fathoms-io/sounder/pkg/graph"
	"github.com/fathoms-io/sounder/pkg/impact"
	"github.com/fathoms-io/sounder/pkg/risk"
)

// MarkdownInput bundles everything the Markdown report renders.
type MarkdownInput struct {
	Graph       *graph.DependencyGraph
	Assessments []*risk.Assessment
	Impacts     []*impact.Report
	Dangling    []*extract.DanglingReferenceWarning
	Warnings    []string
	GeneratedAt time.Time
}

// RenderMarkdown produces the full analysis report. Every section is
// generated from computed fields; there is no free-form prose.
func RenderMarkdown(in MarkdownInput) string {
	var b strings.Builder
	g := in.Graph

	fmt.Fprintf(&b, "# Dependency Analysis Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", in.GeneratedAt.UTC().Format(time.RFC3339))

	// Summary
	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Resources | %d |\n", g.Size())
	fmt.Fprintf(&b, "| Relations | %d |\n", len(g.Edges()))
	fmt.Fprintf(&b, "| Roots (no dependencies) | %d |\n", len(g.Roots()))
	fmt.Fprintf(&b, "| Leaves (no dependents) | %d |\n", len(g.Leaves()))
	fmt.Fprintf(&b, "| Cycles | %d |\n\n", len(g.Cycles()))

	kindCounts := map[string]int{}
	var kinds []string
	for _, id := range g.Identities() {
		if kindCounts[id.Kind] == 0 {
			kinds = append(kinds, id.Kind)
		}
		kindCounts[id.Kind]++
	}
	if len(kinds) > 0 {
		fmt.Fprintf(&b, "| Kind | Count |\n|---|---|\n")
		for _, k := range kinds {
			fmt.Fprintf(&b, "| %s | %d |\n", k, kindCounts[k])
		}
		fmt.Fprintf(&b, "\n")
	}

	// Risk table
	fmt.Fprintf(&b, "## Risk Assessment\n\n")
	fmt.Fprintf(&b, "| Resource | Level | Fan-in | Fan-out | SPOF | Reasons |\n|---|---|---|---|---|---|\n")
	for _, as := range in.Assessments {
		spof := ""
		if as.IsSinglePointOfFailure {
			spof = "yes"
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %s | %s |\n",
			as.Identity, as.Level, as.FanIn, as.FanOut, spof, strings.Join(as.Reasons, "; "))
	}
	fmt.Fprintf(&b, "\n")

	// Cycles
	fmt.Fprintf(&b, "## Circular Dependencies\n\n")
	cycles := g.Cycles()
	if len(cycles) == 0 {
		fmt.Fprintf(&b, "None detected.\n\n")
	} else {
		for i, cycle := range cycles {
			names := make([]string, len(cycle))
			for j, id := range cycle {
				names[j] = id.String()
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, strings.Join(names, " <-> "))
		}
		fmt.Fprintf(&b, "\n")
	}

	// Impact per analyzed target
	for _, rep := range in.Impacts {
		fmt.Fprintf(&b, "## Impact: %s\n\n", rep.Root)
		if rep.CriticalImpact {
			fmt.Fprintf(&b, "**Critical impact**: %d critical service(s) would be affected.\n\n",
				len(rep.CriticalServicesImpacted))
		}
		fmt.Fprintf(&b, "- Affected (transitive dependents): %d\n", len(rep.Affected))
		for _, id := range rep.Affected {
			fmt.Fprintf(&b, "  - %s\n", id)
		}
		fmt.Fprintf(&b, "- Required (transitive dependencies): %d\n", len(rep.Required))
		for _, id := range rep.Required {
			fmt.Fprintf(&b, "  - %s\n", id)
		}
		fmt.Fprintf(&b, "- Estimated recovery time: %s (heuristic estimate, not a measurement)\n\n",
			rep.RecoveryTimeEstimate)
	}

	// Warnings
	if len(in.Dangling) > 0 || len(in.Warnings) > 0 {
		fmt.Fprintf(&b, "## Warnings\n\n")
		for _, w := range in.Dangling {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		for _, w := range in.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		fmt.Fprintf(&b, "\n")
	}

	// Recommendations, derived entirely from computed fields.
	fmt.Fprintf(&b, "## Recommendations\n\n")
	recs := recommendations(in)
	if len(recs) == 0 {
		fmt.Fprintf(&b, "No findings.\n")
	} else {
		for _, r := range recs {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}

	return b.String()
}

func recommendations(in MarkdownInput) []string {
	var recs []string

	for _, cycle := range in.Graph.Cycles() {
		names := make([]string, len(cycle))
		for i, id := range cycle {
			names[i] = id.String()
		}
		recs = append(recs, fmt.Sprintf("Break the dependency cycle between %s before planning updates.",
			strings.Join(names, " and ")))
	}

	for _, as := range in.Assessments {
		if as.Level == risk.LevelCritical && as.IsSinglePointOfFailure {
			recs = append(recs, fmt.Sprintf("%s is critical and a single point of failure (fan-in %d); add redundancy or reduce dependents.",
				as.Identity, as.FanIn))
		}
	}

	for _, w := range in.Dangling {
		recs = append(recs, fmt.Sprintf("Fix the dangling reference from %s to %s (%s).",
			w.Source, w.Target, w.Relation))
	}

	return recs
}
