package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configFile  string
	logFormat   string
	logLevel    string
	metricsFile string
)

var rootCmd = &cobra.Command{
	Use:   "fixfactory",
	Short: "Clone, test, repair and publish repositories",
	Long: `fixfactory clones a repository, works out how to build and test it, runs the
tests and, while they fail, asks a code-repair model for single-file fixes.
After at most three failing test runs the result is committed to a fix branch
and pushed, and the run is scored.

Reports are stored in ~/.fixfactory/ (JSON per run, SQLite or Postgres for
history and stats).`,
	SilenceUsage: true,
}

// ExecuteContext runs the root command with ctx, so cancelling ctx cancels
// any run in progress.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to fixfactory.yaml (default: ./fixfactory.yaml, then ~/.fixfactory/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log encoding: console or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile when the command finishes")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
