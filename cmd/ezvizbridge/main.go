// Gray Logic EZVIZ Bridge
//
// This is the main entry point for the EZVIZ bridge. The bridge polls one
// EZVIZ HP7 video intercom through the EZVIZ cloud and exposes it to Gray Logic:
//   - Observations (doorbell, motion, alarms, battery, Wi-Fi) on MQTT and WebSocket
//   - Door and gate unlock commands from MQTT and the HTTP API
//   - Snapshot and alarm history in SQLite, telemetry in InfluxDB
//
// Subcommands:
//
//	ezvizbridge run                 Run the bridge (default)
//	ezvizbridge devices             List the devices of the account
//	ezvizbridge unlock door|gate    Unlock once and print the result
//	ezvizbridge snapshot -o f.jpg   Save the latest alarm picture
//	ezvizbridge token               Mint an API access token
//	ezvizbridge migrate [--down]    Show or change the database schema
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

// configEnvVar overrides the default configuration path.
const configEnvVar = "EZVIZBRIDGE_CONFIG"

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root command without a
// subcommand runs the bridge.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "ezvizbridge",
		Short: "Gray Logic bridge for EZVIZ HP7 video intercoms",
		Long: `Polls an EZVIZ HP7 through the EZVIZ cloud and bridges its doorbell,
motion and alarm state and its door and gate locks to Gray Logic.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(),
		"config file (env "+configEnvVar+")")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the bridge until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), configPath)
			},
		},
		newDevicesCmd(&configPath),
		newUnlockCmd(&configPath),
		newSnapshotCmd(&configPath),
		newTokenCmd(&configPath),
		newMigrateCmd(&configPath),
	)
	return root
}

// getConfigPath returns the configuration file path.
// Uses EZVIZBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}
