package report

import (
	"fmt"
	"strings"

	"github.com/fathoms-io/sounder/pkg/graph"
	"github.com/fathoms-io/sounder/pkg/impact"
	"github.com/fathoms-io/sounder/pkg/resource"
	"github.com/fathoms-io/sounder/pkg/risk"
)

// DotOptions controls the Graphviz rendering.
type DotOptions struct {
	// Filter keeps only nodes whose identity contains the substring; it
	// is applied before rendering, edges to filtered nodes are dropped.
	Filter string

	// ClusterByNamespace groups nodes into one subgraph per namespace.
	ClusterByNamespace bool
}

var levelColors = map[risk.Level]string{
	risk.LevelCritical: "#d64541",
	risk.LevelHigh:     "#e87e04",
	risk.LevelMedium:   "#f4d03f",
	risk.LevelLow:      "#7dcea0",
}

// RenderDot renders the graph in Graphviz DOT form: node color follows
// risk level, node size follows fan-in plus fan-out.
func RenderDot(g *graph.DependencyGraph, assessments []*risk.Assessment, opts DotOptions) string {
	byID := impact.AssessmentIndex(assessments)

	keep := make(map[resource.Identity]bool, g.Size())
	for _, id := range g.Identities() {
		if opts.Filter == "" || strings.Contains(id.String(), opts.Filter) {
			keep[id] = true
		}
	}

	var b strings.Builder
	b.WriteString("digraph dependencies {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [style=filled, fontname=\"Helvetica\"];\n")

	writeNode := func(indent string, id resource.Identity) {
		color := levelColors[risk.LevelLow]
		size := 1.0
		if as, ok := byID[id]; ok {
			color = levelColors[as.Level]
			size = 1.0 + float64(as.FanIn+as.FanOut)*0.15
		}
		fmt.Fprintf(&b, "%s%q [label=%q, fillcolor=%q, width=%.2f];\n",
			indent, id.Key(), id.String(), color, size)
	}

	if opts.ClusterByNamespace {
		byNamespace := map[string][]resource.Identity{}
		var namespaces []string
		for _, id := range g.Identities() {
			if !keep[id] {
				continue
			}
			if _, ok := byNamespace[id.Namespace]; !ok {
				namespaces = append(namespaces, id.Namespace)
			}
			byNamespace[id.Namespace] = append(byNamespace[id.Namespace], id)
		}
		for i, ns := range namespaces {
			label := ns
			if label == "" {
				label = "cluster-scoped"
			}
			fmt.Fprintf(&b, "  subgraph cluster_%d {\n    label=%q;\n", i, label)
			for _, id := range byNamespace[ns] {
				writeNode("    ", id)
			}
			b.WriteString("  }\n")
		}
	} else {
		for _, id := range g.Identities() {
			if keep[id] {
				writeNode("  ", id)
			}
		}
	}

	for _, e := range g.Edges() {
		if !keep[e.Source] || !keep[e.Target] {
			continue
		}
		fmt.Fprintf(&b, "  %q -> %q [label=%q];\n", e.Source.Key(), e.Target.Key(), string(e.Relation))
	}

	b.WriteString("}\n")
	return b.String()
}
