// Package cli implements the sounder command surface. Typed errors from
// the analysis packages are converted to messages and exit codes here and
// nowhere else.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/fathoms-io/sounder/internal/engine"
	"github.com/fathoms-io/sounder/pkg/config"
	"github.com/fathoms-io/sounder/pkg/resource"
)

// Output formats accepted by --output.
const (
	OutputText     = "text"
	OutputJSON     = "json"
	OutputMarkdown = "markdown"
)

// options holds the flags shared by every subcommand.
type options struct {
	manifests  []string
	cluster    bool
	namespaces []string
	target     string
	filter     string
	output     string
	reportPath string
	configPath string

	log logr.Logger
}

// New builds the root command with all subcommands attached.
func New(log logr.Logger) *cobra.Command {
	opts := &options{log: log}

	root := &cobra.Command{
		Use:   "sounder",
		Short: "Dependency graph analysis for declaratively managed clusters",
		Long: `Sounder ingests declared infrastructure resources from manifests or a
live snapshot, derives the dependency graph between them, and answers
ordering, risk, and blast-radius questions about it. It never mutates
cluster state.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringSliceVar(&opts.manifests, "manifests", nil, "Manifest files or directories to load (mutually exclusive with --cluster).")
	pf.BoolVar(&opts.cluster, "cluster", false, "Fetch a read-only snapshot from the current cluster context.")
	pf.StringSliceVar(&opts.namespaces, "namespaces", nil, "Namespaces to fetch with --cluster; all when empty.")
	pf.StringVar(&opts.target, "resource", "", "Target resource as Kind/Name[/Namespace] for impact analysis or plan scoping.")
	pf.StringVar(&opts.filter, "filter", "", "Name substring filter applied to output.")
	pf.StringVar(&opts.output, "output", OutputText, "Output format: text, json, or markdown.")
	pf.StringVar(&opts.reportPath, "report", "", "Write the rendered report to this path as well as stdout.")
	pf.StringVar(&opts.configPath, "config", "", "Path to a CUE configuration file overriding the defaults.")

	root.AddCommand(
		newAnalyzeCommand(opts),
		newValidateCommand(opts),
		newPlanCommand(opts),
		newVisualizeCommand(opts),
		newExportCommand(opts),
		newConfigCommand(opts),
	)
	return root
}

// newEngine loads configuration and constructs the engine.
func (o *options) newEngine() (*engine.Engine, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return engine.New(cfg, o.log), nil
}

// snapshot resolves the input source: --manifests XOR --cluster.
func (o *options) snapshot(ctx context.Context, e *engine.Engine) (*engine.Snapshot, error) {
	switch {
	case len(o.manifests) > 0 && o.cluster:
		return nil, fmt.Errorf("--manifests and --cluster are mutually exclusive")
	case len(o.manifests) > 0:
		return e.LoadManifests(ctx, o.manifests)
	case o.cluster:
		restCfg, err := ctrlconfig.GetConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load cluster configuration: %w", err)
		}
		reader, err := client.New(restCfg, client.Options{})
		if err != nil {
			return nil, fmt.Errorf("failed to create cluster client: %w", err)
		}
		return e.LoadCluster(ctx, reader, o.namespaces)
	default:
		return nil, fmt.Errorf("one of --manifests or --cluster is required")
	}
}

// targetIdentity parses --resource when set. A reference without the
// namespace segment is resolved against the analyzed graph by the caller.
func (o *options) targetIdentity() (resource.Identity, bool, error) {
	if strings.TrimSpace(o.target) == "" {
		return resource.Identity{}, false, nil
	}
	id, err := resource.ParseRef(o.target, "")
	if err != nil {
		return resource.Identity{}, false, err
	}
	return id, true, nil
}

// emit writes rendered output to stdout and, when --report is set, to the
// report file as well.
func (o *options) emit(content string) error {
	if _, err := fmt.Fprint(os.Stdout, content); err != nil {
		return err
	}
	if o.reportPath != "" {
		if err := os.WriteFile(o.reportPath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write report to %s: %w", o.reportPath, err)
		}
	}
	return nil
}
