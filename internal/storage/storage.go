package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pyhilandjy/Clab-api-old/internal/config"
	"github.com/rs/zerolog"
)

// Structured archive failures. Backends wrap the underlying error with one of
// these so the pipeline can tell them apart in logs and run records.
var (
	ErrArchiveCredentials = errors.New("archive credentials rejected")
	ErrArchiveService     = errors.New("archive service error")
)

// Archiver uploads raw recordings to durable storage.
type Archiver interface {
	// ObjectKey returns the remote key a file name is archived under.
	ObjectKey(name string) string

	// Archive uploads size bytes read from body under ObjectKey(name).
	Archive(ctx context.Context, name string, body io.Reader, size int64) error

	// Exists reports whether name is already archived.
	Exists(ctx context.Context, name string) bool

	// Type returns "s3", "minio", or "local".
	Type() string
}

// NewArchiver creates the Archiver selected by cfg.Archive.Backend and checks
// that it is reachable.
func NewArchiver(cfg *config.Config, log zerolog.Logger) (Archiver, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Archive.Backend {
	case "s3":
		if !cfg.S3.Enabled() {
			return nil, fmt.Errorf("%w: S3_BUCKET, S3_ACCESS_KEY and S3_SECRET_KEY are required", ErrArchiveCredentials)
		}
		s3store, err := NewS3Archiver(cfg.S3, log)
		if err != nil {
			return nil, fmt.Errorf("S3 init failed: %w", err)
		}
		if err := s3store.HeadBucket(ctx); err != nil {
			return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
				cfg.S3.Bucket, cfg.S3.Endpoint, err)
		}
		log.Info().Str("bucket", cfg.S3.Bucket).Str("endpoint", cfg.S3.Endpoint).Msg("S3 connection verified")
		return s3store, nil

	case "minio":
		m, err := NewMinIOArchiver(cfg.MinIO, log)
		if err != nil {
			return nil, fmt.Errorf("MinIO init failed: %w", err)
		}
		if err := m.CheckBucket(ctx); err != nil {
			return nil, fmt.Errorf("MinIO startup check failed (bucket=%q endpoint=%q): %w",
				cfg.MinIO.Bucket, cfg.MinIO.Endpoint, err)
		}
		log.Info().Str("bucket", cfg.MinIO.Bucket).Str("endpoint", cfg.MinIO.Endpoint).Msg("MinIO connection verified")
		return m, nil

	case "local":
		log.Warn().Str("dir", cfg.Archive.Dir).Msg("archiving to local directory")
		return NewLocalArchiver(cfg.Archive.Dir), nil
	}
	return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
}
