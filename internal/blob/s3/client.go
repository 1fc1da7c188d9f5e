// Package s3blob archives iteration results to S3 and reads replay
// snapshots from it, using AWS SDK v2. S3-compatible providers such as MinIO
// and Cloudflare R2 work through Endpoint and ForcePathStyle.
package s3blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// ClientConfig selects the bucket and how to reach it.
type ClientConfig struct {
	// Endpoint overrides the AWS endpoint for S3-compatible stores. A bare
	// host:port gets http:// or https:// depending on UseSSL.
	Endpoint string
	Region   string
	Bucket   string
	// AccessKey and SecretKey are optional; without them the default AWS
	// credential chain applies.
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
}

// Client is an S3 client bound to one bucket.
type Client struct {
	api    *s3.Client
	bucket string
}

// New builds the SDK client. It does not contact the store; call Ping for
// that.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	errs := &domain.ConfigError{}
	if cfg.Bucket == "" {
		errs.Add("s3: bucket is required")
	}
	if cfg.Region == "" {
		errs.Add("s3: region is required")
	}
	if (cfg.AccessKey == "") != (cfg.SecretKey == "") {
		errs.Add("s3: access_key and secret_key must be set together")
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normaliseEndpoint(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &Client{api: api, bucket: cfg.Bucket}, nil
}

// Ping checks the bucket is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close is a no-op; the SDK's HTTP client needs no teardown.
func (c *Client) Close() error { return nil }

func normaliseEndpoint(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
