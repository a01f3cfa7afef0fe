// Command polysearchctl is an operator tool for the search stack. It runs
// one-off queries against the live catalog and prints diagnostics about what
// the Polymarket API returns and how queries score against it.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/polysearch/internal/app"
	"github.com/alanyoungcy/polysearch/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "polysearchctl",
		Short:        "Query and diagnose the Polymarket search stack",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "config.toml", "path to configuration file")
	root.PersistentFlags().String("gamma-host", "", "override the Gamma API base URL")
	root.PersistentFlags().BoolP("verbose", "v", false, "log at debug level to stderr")

	root.AddCommand(newSearchCmd(), newDiagnoseCmd())
	return root
}

// loadStack reads configuration honoring the persistent flags and wires the
// search stack.
func loadStack(cmd *cobra.Command) (*app.SearchStack, *config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if cmd.Flags().Changed("gamma-host") {
		cfg.Polymarket.GammaHost, _ = cmd.Flags().GetString("gamma-host")
	}

	stack, err := app.WireSearch(cfg, cliLogger(cmd))
	if err != nil {
		return nil, nil, err
	}
	return stack, cfg, nil
}

func cliLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}
