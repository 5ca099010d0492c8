package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/config"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d\n", len(cfg.Providers), len(cfg.Models))
			fmt.Fprintf(out, "Workspace root: %s, writes allowed: %v, metrics: %v\n",
				cfg.Workspace.Root, cfg.Workspace.AllowWrite, cfg.Server.MetricsEnabled)
			return nil
		},
	}
}
