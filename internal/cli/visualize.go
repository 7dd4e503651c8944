package cli

import (
	"github.com/spf13/cobra"

	"github.com/fathoms-io/sounder/pkg/report"
)

func newVisualizeCommand(opts *options) *cobra.Command {
	var clusterByNamespace bool

	cmd := &cobra.Command{
		Use:   "visualize",
		Short: "Render the dependency graph as Graphviz DOT",
		Long: `Visualize renders the graph in DOT form: node color follows risk level
and node size follows fan-in plus fan-out. Pipe the output through dot
to produce an SVG or image. --filter prunes nodes before rendering.`,
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

			dot := report.RenderDot(analysis.Graph, analysis.Assessments, report.DotOptions{
				Filter:             opts.filter,
				ClusterByNamespace: clusterByNamespace,
			})
			return opts.emit(dot)
		},
	}
	cmd.Flags().BoolVar(&clusterByNamespace, "cluster-by-namespace", false, "Group nodes into one cluster per namespace.")
	return cmd
}
