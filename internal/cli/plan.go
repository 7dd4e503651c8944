package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fathoms-io/sounder/pkg/plan"
	"github.com/fathoms-io/sounder/pkg/resource"
)

func newPlanCommand(opts *options) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute a wave-structured apply plan",
		Long: `Plan validates the loaded set and produces the ordered apply sequence,
annotated into waves of mutually independent resources. The planner
never applies anything. Without --dry-run, a dependency cycle touching
the requested change set makes the command fail.`,
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

			var targets []resource.Identity
			if target, ok, err := opts.targetIdentity(); err != nil {
				return err
			} else if ok {
				target, err = analysis.Graph.Resolve(target)
				if err != nil {
					return err
				}
				targets = append(targets, target)
			}

			planner := plan.NewPlanner(eng.Config().Plan, opts.log)
			p, err := planner.Plan(analysis.Graph, analysis.Snapshot.Load, analysis.Extraction, plan.Options{
				Targets: targets,
				DryRun:  dryRun,
			})
			if err != nil {
				return err
			}

			return opts.emit(renderPlan(opts, p))
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Return the plan without treating it as actionable.")
	return cmd
}

func renderPlan(opts *options, p *plan.Plan) string {
	if opts.output == OutputJSON {
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return fmt.Sprintf("plan marshal failed: %v\n", err)
		}
		return string(data) + "\n"
	}

	var b strings.Builder
	mode := "apply plan"
	if p.DryRun {
		mode = "apply plan (dry-run)"
	}
	fmt.Fprintf(&b, "%s: %d step(s) in %d wave(s)\n", mode, len(p.Steps), p.Waves)

	// Steps stay in apply order inside each wave; group for display.
	for wave := 1; wave <= p.Waves; wave++ {
		fmt.Fprintf(&b, "\nWave %d:\n", wave)
		for _, step := range p.Steps {
			if step.Wave == wave {
				fmt.Fprintf(&b, "  %s (weight %d)\n", step.Identity, step.Weight)
			}
		}
	}

	for _, w := range p.Warnings {
		fmt.Fprintf(&b, "\nWARNING: %s\n", w)
	}
	return b.String()
}
