package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

var (
	runsStatus string
	runsLimit  int
	runsFormat string
	showEvents bool
	showFormat string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect past and in-flight runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List finished runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(runsFormat); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		runs, err := database.ListRuns(runsStatus, runsLimit)
		if err != nil {
			return err
		}
		if runsFormat == "json" {
			return writeJSON(cmd.OutOrStdout(), runs)
		}
		if len(runs) == 0 {
			cmd.Println("No runs found.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tTEAM\tSTATUS\tSCORE\tITER\tFIXES\tDURATION\tSTARTED")
		for _, r := range runs {
			d := time.Duration(r.DurationMs) * time.Millisecond
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
				r.RunID, r.TeamName, r.Status, r.ScoreFinal, r.Iterations, r.TotalFixes,
				d.Round(time.Second), r.StartedAt)
		}
		return tw.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run's report, or its checkpoint if it has not finished",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(showFormat); err != nil {
			return err
		}
		runID := args[0]
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store := pipeline.NewStore(cfg.Store.Dir)

		report, reportErr := store.GetReport(runID)
		var cp *pipeline.Checkpoint
		if reportErr != nil {
			cp, err = store.GetCheckpoint(runID)
			if err != nil {
				return fmt.Errorf("run %q not found", runID)
			}
		}

		out := cmd.OutOrStdout()
		switch {
		case showFormat == "json" && report != nil:
			if err := writeJSON(out, report); err != nil {
				return err
			}
		case showFormat == "json":
			if err := writeJSON(out, cp); err != nil {
				return err
			}
		case report != nil:
			printReport(out, report)
		default:
			fmt.Fprintf(out, "Run %s is in progress (next stage: %s).\n", cp.RunID, cp.Next)
			fmt.Fprintf(out, "Repository: %s\n", cp.State.RepoURL)
			fmt.Fprintf(out, "Iterations: %d, fixes: %d\n", cp.State.Iterations, len(cp.State.Fixes))
			fmt.Fprintf(out, "Last update: %s\n", cp.UpdatedAt.Format(time.RFC3339))
			printFixes(out, cp.State.Fixes)
		}

		if !showEvents || showFormat == "json" {
			return nil
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		events, err := database.GetRunEvents(runID)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tEVENT\tSTAGE\tITER\tDETAIL")
		for _, e := range events {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", e.Timestamp, e.Event, e.Stage, e.Iteration, e.Detail)
		}
		return tw.Flush()
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Remove a run's report, checkpoint and database rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID := args[0]
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := database.DeleteRun(runID); err != nil {
			return err
		}
		if err := pipeline.NewStore(cfg.Store.Dir).Delete(runID); err != nil {
			return err
		}
		cmd.Printf("Deleted run %s.\n", runID)
		return nil
	},
}

func init() {
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status (PASSED, FAILED, NO_TESTS)")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list (0 for all)")
	runsListCmd.Flags().StringVar(&runsFormat, "format", "text", "output format: text or json")

	runsShowCmd.Flags().BoolVar(&showEvents, "events", false, "include the run's event log")
	runsShowCmd.Flags().StringVar(&showFormat, "format", "text", "output format: text or json")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}
