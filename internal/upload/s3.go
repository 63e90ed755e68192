package upload

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Sink uploads recordings to S3-compatible object storage.
type S3Sink struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// S3Config contains S3Sink configuration.
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	PathStyle    bool
	AccessKey    string
	SecretKey    string
	SessionToken string // optional
}

// NewS3Sink creates a new S3Sink from config.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		func(opts *config.LoadOptions) error {
			if cfg.Endpoint != "" {
				opts.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
					func(service, region string, options ...interface{}) (aws.Endpoint, error) {
						return aws.Endpoint{
							URL:               cfg.Endpoint,
							SigningRegion:     cfg.Region,
							HostnameImmutable: cfg.PathStyle,
						}, nil
					},
				)
			}
			if cfg.AccessKey != "" && cfg.SecretKey != "" {
				opts.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKey, cfg.SecretKey, cfg.SessionToken,
				)
			}
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Sink{
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

// key returns the full S3 object key for a recording key.
func (s *S3Sink) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + key
}

// Put uploads one recording. The uploader switches to multipart for
// large objects on its own.
func (s *S3Sink) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}
