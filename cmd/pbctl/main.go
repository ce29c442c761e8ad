// Pbctl is a command-line controller for Pixelblaze LED controllers.
//
// It discovers controllers with mDNS, queries patterns, settings and
// playlists over the controller's websocket API, changes brightness and the
// running pattern, and provides a live watch view with optional Prometheus
// metrics.
//
// Usage:
//
//	pbctl [command] [flags]
//
// See 'pbctl --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hkolbeck/pixelblaze-go/internal/logging"
	"github.com/hkolbeck/pixelblaze-go/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logging.Sync()
		os.Exit(1)
	}
	logging.Sync()
}

var rootCmd = &cobra.Command{
	Use:   "pbctl",
	Short: "Pixelblaze Controller Utility",
	Long: `A command-line utility for Pixelblaze LED controllers.

Provides controller discovery, pattern and playlist control, settings
inspection and a live telemetry view over the controller's websocket API.

Controllers are named with --host, either as an address or as a device
name saved by 'pbctl scan'. Without --host the default device from the
configuration file is used.`,
	Version: version.Version,
	Example: `  # Find controllers on the local network
  pbctl scan

  # List patterns on a controller
  pbctl patterns --host 192.168.1.40

  # Watch a saved controller and serve metrics
  pbctl watch --host desk --metrics-addr :9110`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pbctl %s (commit: %s)\n", version.Version, version.Commit)
	},
}
