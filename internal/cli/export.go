package cli

import (
	"github.com/spf13/cobra"

	"github.com/fathoms-io/sounder/pkg/impact"
	"github.com/fathoms-io/sounder/pkg/report"
)

func newExportCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export resources, relations, and risk assessments as JSON",
		Long: `Export renders the analyzed graph in the stable JSON schema for external
consumers. Two runs over identical input produce byte-identical output
except for the generated_at timestamp.`,
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

			exp := report.NewExport(analysis.Graph, analysis.Assessments, impacts, exportWarnings(analysis))
			data, err := report.FilterExport(exp, opts.filter).Marshal()
			if err != nil {
				return err
			}
			return opts.emit(string(data))
		},
	}
}
