package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fathoms-io/sounder/pkg/config"
)

func newConfigCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Config evaluates the embedded schema defaults, applies the optional
--config file on top, and prints the result. Use it to check what
thresholds an analysis will run with.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to render configuration: %w", err)
			}
			return opts.emit(string(data) + "\n")
		},
	}
}
