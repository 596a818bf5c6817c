package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pyhilandjy/Clab-api-old/internal/config"
	"github.com/rs/zerolog"
)

// MinIOArchiver archives recordings to a MinIO server.
type MinIOArchiver struct {
	client *minio.Client
	bucket string
	log    zerolog.Logger
}

// NewMinIOArchiver creates a MinIO archiver from config.
func NewMinIOArchiver(cfg config.MinIOConfig, log zerolog.Logger) (*MinIOArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, err
	}
	return &MinIOArchiver{
		client: client,
		bucket: cfg.Bucket,
		log:    log.With().Str("component", "minio-archiver").Logger(),
	}, nil
}

// CheckBucket verifies the bucket exists and the credentials can see it.
func (m *MinIOArchiver) CheckBucket(ctx context.Context) error {
	ok, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return classifyMinIOError(err)
	}
	if !ok {
		return fmt.Errorf("%w: bucket %q does not exist", ErrArchiveService, m.bucket)
	}
	return nil
}

func (m *MinIOArchiver) Archive(ctx context.Context, name string, body io.Reader, size int64) error {
	key := m.ObjectKey(name)
	_, err := m.client.PutObject(ctx, m.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("put minio %s/%s: %w", m.bucket, key, classifyMinIOError(err))
	}
	m.log.Debug().Str("key", key).Int64("bytes", size).Msg("archived")
	return nil
}

func (m *MinIOArchiver) Exists(ctx context.Context, name string) bool {
	_, err := m.client.StatObject(ctx, m.bucket, m.ObjectKey(name), minio.StatObjectOptions{})
	return err == nil
}

func (m *MinIOArchiver) Type() string { return "minio" }

func (m *MinIOArchiver) ObjectKey(name string) string { return "audio/" + name }

func classifyMinIOError(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "":
		return err
	case resp.StatusCode == http.StatusForbidden, s3CredentialCodes[resp.Code]:
		return fmt.Errorf("%w: %w", ErrArchiveCredentials, err)
	default:
		return fmt.Errorf("%w: %w", ErrArchiveService, err)
	}
}
