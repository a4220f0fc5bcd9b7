package cmd

import (
	"github.com/spf13/cobra"

	"github.com/reloquent/pgpromote/internal/schema"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the migration and rollback scripts",
	Long: `Compare the schemas and write an additive migration script that creates
what the destination lacks, plus a rollback script that removes it again.
Modified objects are listed in the script but never applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, out, err := setup(cmd)
		if err != nil {
			return err
		}

		g, err := eng.Generate(cmd.Context())
		if err != nil {
			out.Fail("generation failed: %v", err)
			return err
		}

		out.Block(g.Summary)
		for _, k := range schema.Kinds {
			if n := len(g.Diff.Bucket(k).Added); n > 0 {
				out.Detail("%-12s %d to create", k, n)
			}
		}
		for _, n := range g.Forward.Notes {
			out.Warn("%s", n)
		}
		if len(g.Forward.Modified) > 0 {
			out.Warn("%d modified objects need manual review (listed in the script)", len(g.Forward.Modified))
		}
		if g.Forward.Empty() {
			out.OK("no changes to apply")
		}

		out.OK("migration script: %s (%d statements)", g.MigrationPath, g.Forward.Len())
		out.OK("rollback script:  %s (%d statements)", g.RollbackPath, g.Rollback.Len())
		if g.Archive != nil {
			out.OK("archived to %s", eng.State.ArtifactS3Prefix)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
}
