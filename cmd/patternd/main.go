// Patternd is the adaptive pattern lifecycle daemon.
//
// It maintains quality scores, tenancy graduation state, anomaly findings,
// and per-tenant rate limits for learned patterns. Configuration is loaded
// from an optional YAML file and PATTERND_* environment variables.
//
// Usage:
//
//	# Start the daemon with defaults (in-memory state store)
//	patternd serve
//
//	# One-shot maintenance jobs
//	patternd decay
//	patternd sweep
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

// configPath is the --config flag shared by all subcommands.
var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "patternd",
	Short: "Adaptive pattern lifecycle daemon",
	Long: `patternd maintains the adaptive lifecycle of learned patterns:
quality scoring with time decay, tenancy graduation, anomaly detection,
and per-tenant rate limiting over a shared state store.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(decayCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("patternd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}
