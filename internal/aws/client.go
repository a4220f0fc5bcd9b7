package aws

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// RealClient archives artifacts with the AWS SDK. Objects are written with
// server-side encryption since dumps and scripts describe production.
type RealClient struct {
	sts *sts.Client
	s3  *s3.Client
}

// NewRealClient loads the shared AWS configuration, optionally narrowed to a
// profile and region.
func NewRealClient(ctx context.Context, profile, region string) (*RealClient, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &RealClient{sts: sts.NewFromConfig(cfg), s3: s3.NewFromConfig(cfg)}, nil
}

// VerifyCredentials asks STS who the caller is.
func (c *RealClient) VerifyCredentials(ctx context.Context) (*CallerIdentity, error) {
	out, err := c.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("verifying AWS credentials: %w", err)
	}
	return &CallerIdentity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}

// CheckBucketAccess confirms the bucket exists and the caller may use it.
func (c *RealClient) CheckBucketAccess(ctx context.Context, bucket string) error {
	if _, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("checking s3://%s: %w", bucket, err)
	}
	return nil
}

// UploadToS3 stores an in-memory artifact.
func (c *RealClient) UploadToS3(ctx context.Context, bucket, key string, data []byte) error {
	return c.put(ctx, bucket, key, bytes.NewReader(data))
}

// UploadFileToS3 stores a file such as a pg_dump backup.
func (c *RealClient) UploadFileToS3(ctx context.Context, bucket, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()
	return c.put(ctx, bucket, key, f)
}

func (c *RealClient) put(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(bucket),
		Key:                  aws.String(key),
		Body:                 body,
		ContentType:          aws.String(contentType(key)),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".sql":
		return "application/sql"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
