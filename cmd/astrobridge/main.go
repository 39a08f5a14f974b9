// astrobridge - observatory equipment bridge
//
// astrobridge runs long-lived equipment processes (slews, autofocus runs,
// meridian flips) on behalf of front ends, refuses starts that would
// conflict with running work, and streams observatory events to WebSocket
// clients by channel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := buildRoot().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands.
func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "astrobridge",
		Short: "Observatory equipment process and event bridge",
		Long: `astrobridge coordinates equipment processes and relays observatory
events to WebSocket clients.

Examples:
  astrobridge serve --config=configs/config.yaml
  astrobridge types
  astrobridge migrate status`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", getConfigPath(), "path to YAML config file")

	root.AddCommand(
		createServeCommand(flags),
		createVersionCommand(),
		createTypesCommand(),
		createMigrateCommand(flags),
	)
	return root
}

// createServeCommand creates the serve subcommand.
func createServeCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags.ConfigPath)
		},
	}
}

// createVersionCommand creates the version subcommand.
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "astrobridge %s (commit %s, built %s)\n", version, commit, date)
			return err
		},
	}
}

// getConfigPath returns the configuration file path.
// Uses ASTROBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ASTROBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
