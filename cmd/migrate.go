package cmd

import (
	"github.com/spf13/cobra"
)

var (
	migrateSkipBackup bool
	migrateDryRun     bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the migration script to the destination",
	Long: `Validate the generated migration script against the safety gate, take a
backup of the destination and apply the script in a single transaction.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd, migrateDryRun)
	},
}

var dryRunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Validate the migration script without applying it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd, true)
	},
}

func runMigrate(cmd *cobra.Command, dryRun bool) error {
	eng, out, err := setup(cmd)
	if err != nil {
		return err
	}
	if migrateSkipBackup {
		eng.Config.Backup.Required = new(bool)
		out.Warn("backup skipped")
	}

	res, err := eng.Migrate(cmd.Context(), dryRun)
	if err != nil {
		out.Fail("%v", err)
		return err
	}

	if dryRun {
		out.OK("%s passed validation; nothing was executed", res.Script)
		return nil
	}
	if eng.State.BackupTaken {
		out.Info("Backup: %s", eng.State.BackupPath)
	}
	out.OK("migration applied in %s", res.Duration)
	return nil
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "validate only, same as the dry-run command")
	migrateCmd.Flags().BoolVar(&migrateSkipBackup, "skip-backup", false, "apply without taking a backup first")
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(dryRunCmd)
}
