package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity to both databases",
	Long:  `Open a connection to the source and destination and, when aws.s3_bucket is set, check S3 credentials and bucket access.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, out, err := setup(cmd)
		if err != nil {
			return err
		}

		out.Title("Connection test")
		r := eng.TestConnections(cmd.Context())
		for _, db := range r.Databases {
			if db.Err != nil {
				out.Fail("%s %s: %v", db.Label, db.Target, db.Err)
			} else {
				out.OK("%s %s", db.Label, db.Target)
			}
		}
		switch {
		case r.ArchiveErr != nil:
			out.Fail("S3 archive: %v", r.ArchiveErr)
		case r.Archive != nil && r.Archive.Writable:
			out.OK("S3 archive s3://%s (%s)", r.Archive.Bucket, r.Archive.Identity.ARN)
		case r.Archive != nil:
			out.Fail("S3 archive s3://%s: %s", r.Archive.Bucket, r.Archive.Message)
		}

		if !r.OK() {
			return errors.New("connection test failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
}
