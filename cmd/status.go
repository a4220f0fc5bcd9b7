package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/reloquent/pgpromote/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show generated artifacts and recorded progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, out, err := setup(cmd)
		if err != nil {
			return err
		}

		r, err := eng.Status()
		if err != nil {
			return err
		}
		st := r.State

		out.Title("pgpromote status")
		steps := []state.Step{
			state.StepExtract, state.StepCompare, state.StepGenerate,
			state.StepBackup, state.StepMigrate, state.StepRollback, state.StepRestore,
		}
		for _, step := range steps {
			ss, ok := st.Steps[step]
			if !ok {
				out.Info("  [  ] %s", step)
				continue
			}
			mark := "OK"
			switch ss.Status {
			case state.StatusFailed:
				mark = "!!"
			case state.StatusDryRun:
				mark = "DR"
			}
			out.Info("  [%s] %-9s %s", mark, step, ss.CompletedAt.Format(time.DateTime))
			if ss.Detail != "" {
				out.Detail("%s", ss.Detail)
			}
		}

		out.Info("")
		if r.MigrationExists {
			out.OK("migration script %s (%d pending statements)", r.MigrationPath, st.PendingChanges)
		} else {
			out.Warn("no migration script, run generate")
		}
		if r.RollbackExists {
			out.OK("rollback script %s", r.RollbackPath)
		}
		switch {
		case r.BackupExists:
			out.OK("backup %s", st.BackupPath)
		case st.BackupTaken:
			out.Warn("backup %s is missing", st.BackupPath)
		default:
			out.Info("no backup taken")
		}
		if st.BackupS3URI != "" {
			out.Detail("archived at %s", st.BackupS3URI)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
