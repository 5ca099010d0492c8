package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/rpc"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/tools"
)

// NewToolsCmd lists the gateway's tools and their parameters.
func NewToolsCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List available workspace tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := baseURL(opts)
			if err != nil {
				return err
			}

			var body rpc.ListResponse[tools.Schema]
			if err := getJSON(cmd.Context(), base+"/v1/tools", &body); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range body.Data {
				fmt.Fprintf(out, "%s: %s\n", s.Name, s.Description)
				for _, p := range s.Parameters {
					req := ""
					if p.Required {
						req = " (required)"
					}
					fmt.Fprintf(out, "    %s: %s%s\n", p.Name, p.Type, req)
				}
			}
			return nil
		},
	}
}
