// Phased is a phase-gated task orchestration daemon for agent sessions.
//
// The daemon speaks the Model Context Protocol over stdio and walks each
// session through a fixed phase sequence, gating completion behind task
// verification. An optional HTTP sidecar serves health and Prometheus
// metrics.
//
// Usage:
//
//	# Start the daemon with defaults
//	phased
//
//	# Use a specific config file
//	phased --config ~/.config/phased/config.yaml
//
//	# Show version information
//	phased version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "phased",
	Short: "Phase-gated task orchestration daemon",
	Long: `phased drives agent sessions through a fixed phase sequence
(INIT, QUERY, ENHANCE, KNOWLEDGE, PLAN, EXECUTE, VERIFY, DONE) over the
Model Context Protocol on stdio. Completion is gated behind task
verification; failed verification rolls the session back to execution.`,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon (same as running phased with no command)",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("phased by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/phased/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
