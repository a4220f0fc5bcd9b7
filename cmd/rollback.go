package cmd

import (
	"github.com/spf13/cobra"
)

var rollbackDryRun bool

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Apply the rollback script to the destination",
	Long: `Validate the generated rollback script and apply it in a single transaction.
The rollback removes objects the migration created; types and extensions are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, out, err := setup(cmd)
		if err != nil {
			return err
		}

		res, err := eng.Rollback(cmd.Context(), rollbackDryRun)
		if err != nil {
			out.Fail("%v", err)
			return err
		}
		if res.DryRun {
			out.OK("%s passed validation; nothing was executed", res.Script)
			return nil
		}
		out.OK("rollback applied in %s", res.Duration)
		return nil
	},
}

func init() {
	rollbackCmd.Flags().BoolVar(&rollbackDryRun, "dry-run", false, "validate only")
	rootCmd.AddCommand(rollbackCmd)
}
