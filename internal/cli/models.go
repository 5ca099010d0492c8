package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/rpc"
)

// NewModelsCmd lists the models the gateway can route to.
func NewModelsCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available models",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := baseURL(opts)
			if err != nil {
				return err
			}

			var body rpc.ListResponse[rpc.ModelInfo]
			if err := getJSON(cmd.Context(), base+"/v1/models", &body); err != nil {
				return err
			}
			for _, m := range body.Data {
				marker := " "
				if m.Default {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (provider: %s)\n", marker, m.ID, m.Provider)
			}
			return nil
		},
	}
}
