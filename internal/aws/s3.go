package aws

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
)

// ArtifactUploader archives the artifacts of one run under a common prefix.
type ArtifactUploader struct {
	client Client
	bucket string
	prefix string
}

// NewArtifactUploader creates a new artifact uploader. Objects are written
// below prefix/runID.
func NewArtifactUploader(client Client, bucket, prefix, runID string) *ArtifactUploader {
	return &ArtifactUploader{
		client: client,
		bucket: bucket,
		prefix: path.Join(prefix, runID),
	}
}

// ArtifactSet holds the artifacts of a run. Empty fields are skipped.
type ArtifactSet struct {
	MigrationScript []byte
	RollbackScript  []byte
	DiffReport      []byte
	BackupPath      string
}

// UploadResult holds the S3 URIs of uploaded artifacts.
type UploadResult struct {
	ScriptS3URI   string
	RollbackS3URI string
	ReportS3URI   string
	BackupS3URI   string
}

// URI returns the s3:// address of name under the uploader's prefix.
func (u *ArtifactUploader) URI(name string) string {
	return fmt.Sprintf("s3://%s/%s", u.bucket, path.Join(u.prefix, name))
}

// UploadArtifacts uploads every non-empty artifact.
func (u *ArtifactUploader) UploadArtifacts(ctx context.Context, artifacts ArtifactSet) (*UploadResult, error) {
	result := &UploadResult{}

	blobs := []struct {
		name string
		data []byte
		uri  *string
	}{
		{"migration_script.sql", artifacts.MigrationScript, &result.ScriptS3URI},
		{"rollback_script.sql", artifacts.RollbackScript, &result.RollbackS3URI},
		{"schema_diff_report.txt", artifacts.DiffReport, &result.ReportS3URI},
	}
	for _, b := range blobs {
		if len(b.data) == 0 {
			continue
		}
		if err := u.client.UploadToS3(ctx, u.bucket, path.Join(u.prefix, b.name), b.data); err != nil {
			return nil, fmt.Errorf("uploading %s: %w", b.name, err)
		}
		*b.uri = u.URI(b.name)
	}

	if artifacts.BackupPath != "" {
		uri, err := u.UploadBackup(ctx, artifacts.BackupPath)
		if err != nil {
			return nil, err
		}
		result.BackupS3URI = uri
	}

	return result, nil
}

// UploadBackup uploads a dump file and returns its URI.
func (u *ArtifactUploader) UploadBackup(ctx context.Context, localPath string) (string, error) {
	name := filepath.Base(localPath)
	if err := u.client.UploadFileToS3(ctx, u.bucket, path.Join(u.prefix, name), localPath); err != nil {
		return "", fmt.Errorf("uploading backup: %w", err)
	}
	return u.URI(name), nil
}
