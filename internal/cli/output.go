package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func checkFormat(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid --format %q: want text or json", format)
	}
	return nil
}

// printReport writes a human-readable summary of a finished run.
func printReport(w io.Writer, r *pipeline.RunReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", r.RunID)
	fmt.Fprintf(tw, "Repository:\t%s\n", r.State.RepoURL)
	fmt.Fprintf(tw, "Team:\t%s (%s)\n", r.State.TeamName, r.State.LeaderName)
	fmt.Fprintf(tw, "Status:\t%s\n", r.Status)
	fmt.Fprintf(tw, "Branch:\t%s\n", r.Summary.Branch)
	fmt.Fprintf(tw, "Language:\t%s\n", r.Analysis.Language)
	fmt.Fprintf(tw, "Test command:\t%s\n", r.Analysis.TestCmd)
	fmt.Fprintf(tw, "Iterations:\t%d\n", r.State.Iterations)
	fmt.Fprintf(tw, "Fixes:\t%d\n", r.Summary.TotalFixes)
	fmt.Fprintf(tw, "Failures:\t%d\n", r.Summary.TotalFailures)
	fmt.Fprintf(tw, "Time taken:\t%s\n", r.Summary.TimeTaken)
	fmt.Fprintf(tw, "Score:\t%d (base %d, speed +%d, efficiency -%d)\n",
		r.Score.Final, r.Score.Base, r.Score.SpeedBonus, r.Score.EfficiencyPenalty)
	if r.Published {
		fmt.Fprintf(tw, "Commit:\t%s\n", r.CommitHash)
	}
	if r.PullRequestURL != "" {
		fmt.Fprintf(tw, "Pull request:\t%s\n", r.PullRequestURL)
	}
	tw.Flush()

	printFixes(w, r.State.Fixes)
}

func printFixes(w io.Writer, fixes []pipeline.FixRecord) {
	if len(fixes) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tFILE\tTYPE\tLINE\tSTATUS\tCOMMIT")
	for _, f := range fixes {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", f.ID, f.File, f.Type, f.Line, f.Status, f.Commit)
	}
	tw.Flush()
}
