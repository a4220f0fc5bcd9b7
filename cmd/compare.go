package cmd

import (
	"github.com/spf13/cobra"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Show the differences between source and destination",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, out, err := setup(cmd)
		if err != nil {
			return err
		}

		c, err := eng.Compare(cmd.Context())
		if err != nil {
			out.Fail("comparison failed: %v", err)
			return err
		}

		out.Block(c.Summary)
		if !c.Diff.HasChanges() {
			out.OK("schemas are in sync")
		}
		out.Info("Report written to %s", eng.Config.OutputPath(eng.Config.Output.DiffReportFile))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
}
