package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixfactory/internal/analytics"
)

var (
	statsSince  string
	statsFormat string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate statistics over persisted runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(statsFormat); err != nil {
			return err
		}
		since, err := parseSince(statsSince, time.Now())
		if err != nil {
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

		summary, err := analytics.QuerySummary(database, since)
		if err != nil {
			return err
		}
		bugTypes, err := analytics.QueryBugTypes(database, since)
		if err != nil {
			return err
		}
		durations, err := analytics.QueryDurations(database, since)
		if err != nil {
			return err
		}
		stages, err := analytics.QueryStageFailures(database, since)
		if err != nil {
			return err
		}
		teams, err := analytics.QueryTeams(database, since)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if statsFormat == "json" {
			return writeJSON(out, map[string]any{
				"summary":        summary,
				"bug_types":      bugTypes,
				"durations":      durations,
				"stage_failures": stages,
				"teams":          teams,
			})
		}

		if summary.Runs == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}

		fmt.Fprintf(out, "Runs: %d (passed %d, failed %d, no tests %d), pass rate %.1f%%\n",
			summary.Runs, summary.Passed, summary.Failed, summary.NoTests, summary.PassRate)
		fmt.Fprintf(out, "Average score %.1f, iterations %.1f, fixes %.1f; %d published\n",
			summary.AvgScore, summary.AvgIterations, summary.AvgFixes, summary.Published)
		fmt.Fprintf(out, "Duration: avg %.1fs, p50 %.1fs, p95 %.1fs, %.1f%% under 5m\n",
			durations.Avg, durations.P50, durations.P95, durations.Fast)

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		if len(bugTypes) > 0 {
			fmt.Fprintln(tw, "\nBUG TYPE\tCOUNT\tFIXED\tFAILED\tSHARE %")
			for _, b := range bugTypes {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f\n", b.BugType, b.Count, b.Fixed, b.Failed, b.Share)
			}
		}
		if len(stages) > 0 {
			fmt.Fprintln(tw, "\nSTAGE\tFAILURES")
			for _, s := range stages {
				fmt.Fprintf(tw, "%s\t%d\n", s.Stage, s.Count)
			}
		}
		if len(teams) > 0 {
			fmt.Fprintln(tw, "\nTEAM\tRUNS\tPASS %\tBEST\tAVG")
			for _, t := range teams {
				fmt.Fprintf(tw, "%s\t%d\t%.1f\t%d\t%.1f\n", t.Team, t.Runs, t.PassRate, t.BestScore, t.AvgScore)
			}
		}
		return tw.Flush()
	},
}

// parseSince turns a --since value into the database timestamp format.
// It accepts a duration back from now ("24h", "168h") or a date (2006-01-02).
func parseSince(v string, now time.Time) (string, error) {
	if v == "" {
		return "", nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return now.UTC().Add(-d).Format("2006-01-02 15:04:05"), nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t.Format("2006-01-02 15:04:05"), nil
	}
	return "", fmt.Errorf("invalid --since %q: want a duration (24h) or a date (2006-01-02)", v)
}

func init() {
	statsCmd.Flags().StringVar(&statsSince, "since", "", "only count runs started after this duration ago or date")
	statsCmd.Flags().StringVar(&statsFormat, "format", "text", "output format: text or json")
}
