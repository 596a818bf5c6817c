package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/pyhilandjy/Clab-api-old/internal/config"
	"github.com/rs/zerolog"
)

// S3Archiver archives recordings to an S3-compatible object store.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewS3Archiver creates an S3 archiver from config.
func NewS3Archiver(cfg config.S3Config, log zerolog.Logger) (*S3Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Archiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log.With().Str("component", "s3-archiver").Logger(),
	}, nil
}

// HeadBucket checks that the bucket exists and credentials are valid.
func (s *S3Archiver) HeadBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: &s.bucket,
	})
	return classifyS3Error(err)
}

func (s *S3Archiver) Archive(ctx context.Context, name string, body io.Reader, size int64) error {
	objKey := s.ObjectKey(name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &objKey,
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, objKey, classifyS3Error(err))
	}
	s.log.Debug().Str("key", objKey).Int64("bytes", size).Msg("archived")
	return nil
}

func (s *S3Archiver) Exists(ctx context.Context, name string) bool {
	objKey := s.ObjectKey(name)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &objKey,
	})
	return err == nil
}

func (s *S3Archiver) Type() string { return "s3" }

func (s *S3Archiver) ObjectKey(name string) string {
	if s.prefix != "" {
		return s.prefix + "/audio/" + name
	}
	return "audio/" + name
}

var s3CredentialCodes = map[string]bool{
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"AccessDenied":          true,
	"ExpiredToken":          true,
	"InvalidToken":          true,
	"Forbidden":             true,
}

// classifyS3Error wraps API failures with ErrArchiveCredentials or
// ErrArchiveService. Transport failures pass through unchanged.
func classifyS3Error(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if s3CredentialCodes[apiErr.ErrorCode()] {
		return fmt.Errorf("%w: %w", ErrArchiveCredentials, err)
	}
	return fmt.Errorf("%w: %w", ErrArchiveService, err)
}
