package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixfactory/internal/orchestrator"
)

var (
	batchParallel  int
	batchNoPublish bool
	batchFormat    string
)

var batchCmd = &cobra.Command{
	Use:   "batch <file.yaml>",
	Short: "Repair every repository listed in a batch file",
	Long: `Run independent repairs from a YAML file of the form:

  runs:
    - repo_url: https://github.com/acme/calc
      team: Code Warriors
      leader: Jane Doe

Runs share nothing but the stores they report to.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(batchFormat); err != nil {
			return err
		}
		reqs, err := orchestrator.LoadBatch(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd, appOptions{noPublish: batchNoPublish})
		if err != nil {
			return err
		}
		defer a.close()

		parallel := batchParallel
		if parallel <= 0 {
			parallel = a.cfg.Batch.Parallelism
		}
		results := a.orch.RunBatch(cmd.Context(), reqs, parallel)

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}

		if batchFormat == "json" {
			type row struct {
				RepoURL string `json:"repo_url"`
				Team    string `json:"team"`
				Report  any    `json:"report,omitempty"`
				Error   string `json:"error,omitempty"`
			}
			rows := make([]row, len(results))
			for i, r := range results {
				rows[i] = row{RepoURL: r.Request.RepoURL, Team: r.Request.TeamName}
				if r.Report != nil {
					rows[i].Report = r.Report
				}
				if r.Err != nil {
					rows[i].Error = r.Err.Error()
				}
			}
			if err := writeJSON(cmd.OutOrStdout(), rows); err != nil {
				return err
			}
		} else {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REPO\tTEAM\tRUN\tSTATUS\tSCORE\tBRANCH/ERROR")
			for _, r := range results {
				if r.Err != nil {
					fmt.Fprintf(tw, "%s\t%s\t-\tERROR\t-\t%s\n", r.Request.RepoURL, r.Request.TeamName, r.Err)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", r.Request.RepoURL, r.Request.TeamName,
					r.Report.RunID, r.Report.Status, r.Report.Score.Final, r.Report.Summary.Branch)
			}
			tw.Flush()
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d runs failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchParallel, "parallel", 0, "concurrent runs (default: batch.parallelism from config)")
	batchCmd.Flags().BoolVar(&batchNoPublish, "no-publish", false, "commit locally but do not push or open pull requests")
	batchCmd.Flags().StringVar(&batchFormat, "format", "text", "output format: text or json")
}
