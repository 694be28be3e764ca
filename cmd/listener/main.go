package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "listener",
		Short: "Realtime event listener for the meal ordering platform",
		Long: `listener connects to the realtime endpoint the way a browser client does.

It keeps its channel subscriptions across reconnects, applies every event
to a local cache model and prints the resulting invalidations and
notifications.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		buildConnectCmd(),
		buildTokenCmd(),
	)
	return rootCmd
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
