package cli

import (
	"github.com/spf13/cobra"
)

var (
	resumeKeep   bool
	resumeFormat string
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Continue an interrupted run from its last checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(resumeFormat); err != nil {
			return err
		}
		a, err := newApp(cmd, appOptions{keep: resumeKeep})
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.orch.Resume(cmd.Context(), args[0])
		if err != nil {
			return describeFailure(cmd, err)
		}
		return emitReport(cmd, report, resumeFormat)
	},
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeKeep, "keep", false, "keep the working copy after the run")
	resumeCmd.Flags().StringVar(&resumeFormat, "format", "text", "output format: text or json")
}
