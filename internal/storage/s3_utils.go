package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3ClientConfig describes the object store. An empty Endpoint targets AWS S3,
// anything else is treated as a MinIO style server.
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

func (c S3ClientConfig) validate() error {
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.New("s3 access key id and secret access key must be set together")
	}
	if c.Endpoint == "" {
		return nil
	}

	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid s3 endpoint %q: %w", c.Endpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid s3 endpoint %q: expected http(s)://host[:port]", c.Endpoint)
	}
	return nil
}

func (c S3ClientConfig) customEndpoint() bool {
	return c.Endpoint != ""
}

func loadAWSConfig(ctx context.Context, cfg S3ClientConfig) (aws.Config, error) {
	var opts []func(*aws_config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, aws_config.WithRegion(cfg.Region))
	}
	// Without static keys the default chain applies (env, shared files, IAM role).
	if cfg.AccessKeyID != "" {
		opts = append(opts, aws_config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	return aws_config.LoadDefaultConfig(ctx, opts...)
}

func initializeS3Client(ctx context.Context, cfg S3ClientConfig) (*s3.Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.customEndpoint() {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// MinIO serves buckets under the path, not as subdomains.
			o.UsePathStyle = true
		}
	})

	return client, nil
}

func isBucketExists(err error) bool {
	var existErr *types.BucketAlreadyExists
	var ownedErr *types.BucketAlreadyOwnedByYou
	return errors.As(err, &existErr) || errors.As(err, &ownedErr)
}

func isObjectNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}
