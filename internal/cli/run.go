package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixfactory/internal/orchestrator"
	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

var (
	runTeam      string
	runLeader    string
	runNoPublish bool
	runKeep      bool
	runFormat    string
)

var runCmd = &cobra.Command{
	Use:   "run <repo-url>",
	Short: "Repair one repository",
	Long: `Clone the repository, analyze it, run its tests and apply fixes until the
tests pass or the iteration budget is spent, then commit the fixes to
<TEAM>_<LEADER>_AI_Fix and push.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(runFormat); err != nil {
			return err
		}
		req := orchestrator.Request{RepoURL: args[0], TeamName: runTeam, LeaderName: runLeader}
		if err := req.Validate(); err != nil {
			return err
		}

		a, err := newApp(cmd, appOptions{noPublish: runNoPublish, keep: runKeep})
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.orch.RunRepair(cmd.Context(), req)
		if err != nil {
			return describeFailure(cmd, err)
		}
		return emitReport(cmd, report, runFormat)
	},
}

func emitReport(cmd *cobra.Command, r *pipeline.RunReport, format string) error {
	if format == "json" {
		return writeJSON(cmd.OutOrStdout(), r)
	}
	printReport(cmd.OutOrStdout(), r)
	return nil
}

// describeFailure prints what a failed run got through before returning err.
func describeFailure(cmd *cobra.Command, err error) error {
	var se *orchestrator.StageError
	if errors.As(err, &se) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Run %s stopped in %s after %d iteration(s) and %d fix(es).\n",
			se.RunID, se.Stage, se.State.Iterations, len(se.State.Fixes))
		if workingCopyKept(se.State.RepoPath) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Working copy kept at %s.\n", se.State.RepoPath)
			fmt.Fprintf(cmd.ErrOrStderr(), "Resume with: fixfactory resume %s\n", se.RunID)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "Working copy was removed; resuming restarts the run from setup: fixfactory resume %s\n", se.RunID)
		}
	}
	return err
}

func workingCopyKept(dir string) bool {
	if dir == "" {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

func init() {
	runCmd.Flags().StringVar(&runTeam, "team", "", "team name (used in the fix branch)")
	runCmd.Flags().StringVar(&runLeader, "leader", "", "team leader name (used in the fix branch)")
	runCmd.Flags().BoolVar(&runNoPublish, "no-publish", false, "commit locally but do not push or open a pull request")
	runCmd.Flags().BoolVar(&runKeep, "keep", false, "keep the working copy after the run")
	runCmd.Flags().StringVar(&runFormat, "format", "text", "output format: text or json")
}
