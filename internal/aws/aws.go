package aws

import (
	"context"
	"fmt"
)

// Client defines the AWS operations used to archive migration artifacts.
type Client interface {
	VerifyCredentials(ctx context.Context) (*CallerIdentity, error)
	CheckBucketAccess(ctx context.Context, bucket string) error
	UploadToS3(ctx context.Context, bucket, key string, data []byte) error
	UploadFileToS3(ctx context.Context, bucket, key, localPath string) error
}

// CallerIdentity holds AWS STS caller identity information.
type CallerIdentity struct {
	Account string
	ARN     string
	UserID  string
}

// ArchiveAccess describes whether artifacts can be archived to a bucket.
type ArchiveAccess struct {
	Identity *CallerIdentity
	Bucket   string
	Writable bool
	Message  string
}

// CheckArchiveAccess verifies credentials and that bucket is reachable.
// Credential failures are errors; an unreachable bucket is reported in the
// result.
func CheckArchiveAccess(ctx context.Context, client Client, bucket string) (*ArchiveAccess, error) {
	identity, err := client.VerifyCredentials(ctx)
	if err != nil {
		return nil, err
	}

	access := &ArchiveAccess{Identity: identity, Bucket: bucket}
	if err := client.CheckBucketAccess(ctx, bucket); err != nil {
		access.Message = fmt.Sprintf("Bucket %s is not accessible as %s: %v", bucket, identity.ARN, err)
		return access, nil
	}

	access.Writable = true
	access.Message = fmt.Sprintf("Archiving to s3://%s as %s.", bucket, identity.ARN)
	return access, nil
}
