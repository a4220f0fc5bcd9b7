package cmd

import (
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Dump the destination database",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, out, err := setup(cmd)
		if err != nil {
			return err
		}

		path, err := eng.Backup(cmd.Context())
		if err != nil {
			out.Fail("backup failed: %v", err)
			return err
		}
		out.OK("backup written to %s", path)
		if eng.State.BackupS3URI != "" {
			out.OK("archived to %s", eng.State.BackupS3URI)
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [backup-file]",
	Short: "Restore the destination from a backup",
	Long:  `Replay a backup into the destination. Without an argument the most recent backup is used.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, out, err := setup(cmd)
		if err != nil {
			return err
		}

		var path string
		if len(args) == 1 {
			path = args[0]
		}
		if err := eng.Restore(cmd.Context(), path); err != nil {
			out.Fail("restore failed: %v", err)
			return err
		}
		out.OK("destination restored")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}
