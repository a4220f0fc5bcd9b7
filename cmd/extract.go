package cmd

import (
	"github.com/spf13/cobra"

	"github.com/reloquent/pgpromote/internal/schema"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Capture both schemas and write them as SQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, out, err := setup(cmd)
		if err != nil {
			return err
		}

		pair, err := eng.Extract(cmd.Context())
		if err != nil {
			out.Fail("extraction failed: %v", err)
			return err
		}

		cfg := eng.Config
		for _, s := range []struct {
			snap *schema.Snapshot
			file string
		}{{pair.Source, cfg.Output.SourceSchemaFile}, {pair.Destination, cfg.Output.DestSchemaFile}} {
			out.OK("%s %s: %d objects -> %s", s.snap.Label, s.snap.Database, s.snap.Total(), cfg.OutputPath(s.file))
			out.Detail("%s", s.snap.Summary())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
