package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fathoms-io/sounder/pkg/graph"
	"github.com/fathoms-io/sounder/pkg/plan"
)

func newValidateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate that every resource parses and every reference resolves",
		Long: `Validate checks that every document parses, every explicit depends-on
reference resolves within the loaded scope, and no dependency cycles
exist. All failures are reported together; the exit code is non-zero
when any are found.`,
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

			planner := plan.NewPlanner(eng.Config().Plan, opts.log)
			verr := planner.Validate(analysis.Snapshot.Load, analysis.Extraction)

			var cerr *graph.CircularDependencyError
			if cycles := analysis.Graph.Cycles(); len(cycles) > 0 {
				cerr = &graph.CircularDependencyError{Cycles: cycles}
			}

			if verr == nil && cerr == nil {
				return opts.emit(fmt.Sprintf("OK: %d resource(s), %d relation(s), no validation errors\n",
					analysis.Graph.Size(), len(analysis.Graph.Edges())))
			}

			var b strings.Builder
			if verr != nil {
				fmt.Fprintf(&b, "%s\n", verr.Error())
			}
			if cerr != nil {
				fmt.Fprintf(&b, "%s\n", cerr.Error())
			}
			if err := opts.emit(b.String()); err != nil {
				return err
			}
			return fmt.Errorf("validation failed")
		},
	}
}
