package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fathoms-io/sounder/internal/engine"
	"github.com/fathoms-io/sounder/pkg/impact"
	"github.com/fathoms-io/sounder/pkg/report"
)

func newAnalyzeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Build the dependency graph and report order, risk, and cycles",
		Long: `Analyze loads a snapshot, derives the dependency graph, and reports the
update order, per-resource risk, and every dependency cycle. Cycles are
reported as errors but analysis continues for the rest of the graph and
the exit code stays zero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := opts.newEngine()
			if err != nil {
				return err
			}
			snap, err := opts.snapshot(cmd.Context(), eng)
			if err != nil {
				return err
			}
			analysis := eng.Analyze(snap)

			var impacts []*impact.Report
			if target, ok, err := opts.targetIdentity(); err != nil {
				return err
			} else if ok {
				target, err = analysis.Graph.Resolve(target)
				if err != nil {
					return err
				}
				rep, err := eng.Impact(analysis, target)
				if err != nil {
					return err
				}
				impacts = append(impacts, rep)
			}

			return opts.emit(renderAnalysis(opts, analysis, impacts))
		},
	}
}

func renderAnalysis(opts *options, analysis *engine.Analysis, impacts []*impact.Report) string {
	switch opts.output {
	case OutputJSON:
		exp := report.NewExport(analysis.Graph, analysis.Assessments, impacts, exportWarnings(analysis))
		data, err := report.FilterExport(exp, opts.filter).Marshal()
		if err != nil {
			return fmt.Sprintf("export failed: %v\n", err)
		}
		return string(data)

	case OutputMarkdown:
		return report.RenderMarkdown(report.MarkdownInput{
			Graph:       analysis.Graph,
			Assessments: analysis.Assessments,
			Impacts:     impacts,
			Dangling:    analysis.Extraction.Dangling,
			Warnings:    analysis.Warnings(),
			GeneratedAt: time.Now(),
		})

	default:
		return renderAnalysisText(opts, analysis, impacts)
	}
}

func renderAnalysisText(opts *options, analysis *engine.Analysis, impacts []*impact.Report) string {
	var b strings.Builder
	g := analysis.Graph

	fmt.Fprintf(&b, "Resources: %d, relations: %d\n", g.Size(), len(g.Edges()))

	cycles := g.Cycles()
	if len(cycles) > 0 {
		fmt.Fprintf(&b, "\nCircular dependencies (%d):\n", len(cycles))
		for _, cycle := range cycles {
			names := make([]string, len(cycle))
			for i, id := range cycle {
				names[i] = id.String()
			}
			fmt.Fprintf(&b, "  ERROR: %s\n", strings.Join(names, " <-> "))
		}
	}

	fmt.Fprintf(&b, "\nUpdate order:\n")
	for i, id := range g.AcyclicOrder() {
		if opts.filter != "" && !strings.Contains(id.String(), opts.filter) {
			continue
		}
		fmt.Fprintf(&b, "  %3d. %s\n", i+1, id)
	}

	fmt.Fprintf(&b, "\nRisk:\n")
	for _, as := range analysis.Assessments {
		if opts.filter != "" && !strings.Contains(as.Identity.String(), opts.filter) {
			continue
		}
		spof := ""
		if as.IsSinglePointOfFailure {
			spof = " [SPOF]"
		}
		fmt.Fprintf(&b, "  %-8s %s (fan-in %d, fan-out %d)%s\n",
			as.Level, as.Identity, as.FanIn, as.FanOut, spof)
	}

	for _, rep := range impacts {
		fmt.Fprintf(&b, "\nImpact of %s:\n", rep.Root)
		fmt.Fprintf(&b, "  affected: %d, required: %d, estimated recovery: %s\n",
			len(rep.Affected), len(rep.Required), rep.RecoveryTimeEstimate)
		if rep.CriticalImpact {
			fmt.Fprintf(&b, "  CRITICAL IMPACT: %d critical service(s) affected\n", len(rep.CriticalServicesImpacted))
		}
	}

	if warnings := analysis.Warnings(); len(warnings) > 0 || len(analysis.Extraction.Dangling) > 0 {
		fmt.Fprintf(&b, "\nWarnings:\n")
		for _, w := range analysis.Extraction.Dangling {
			fmt.Fprintf(&b, "  %s\n", w)
		}
		for _, w := range warnings {
			fmt.Fprintf(&b, "  %s\n", w)
		}
	}

	return b.String()
}

func exportWarnings(analysis *engine.Analysis) *report.ExportWarnings {
	w := &report.ExportWarnings{
		DanglingReferences: analysis.Extraction.Dangling,
		FetchTimeouts:      analysis.Snapshot.Timeouts,
		Other:              analysis.BuildWarnings,
	}
	if len(w.DanglingReferences) == 0 && len(w.FetchTimeouts) == 0 && len(w.Other) == 0 {
		return nil
	}
	return w
}
