// Package cli implements the copilot client binary, a thin HTTP client
// for the gateway daemon.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MartyZhou/vscode-copilot-as-service/internal/config"
	"github.com/MartyZhou/vscode-copilot-as-service/internal/version"
)

// Options holds global CLI options.
type Options struct {
	ConfigPath string
	ServerURL  string
}

// NewRootCmd constructs the base CLI command tree.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:           "copilot",
		Short:         "Drive the copilot gateway over HTTP",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to config file (default: configs/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.ServerURL, "server", "", "Gateway base URL (default: from config server.addr)")

	cmd.AddCommand(NewChatCmd(opts))
	cmd.AddCommand(NewDoctorCmd(opts))
	cmd.AddCommand(NewModelsCmd(opts))
	cmd.AddCommand(NewToolsCmd(opts))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// baseURL resolves the gateway address from the --server flag or config.
func baseURL(opts *Options) (string, error) {
	if opts.ServerURL != "" {
		return daemonURL(opts.ServerURL), nil
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return daemonURL(cfg.Server.Addr), nil
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
