package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ConvertedExt is the container the STT service is sent.
const ConvertedExt = "m4a"

// LocalStore holds the transient working files of pipeline runs:
// {id}.<rawext> and {id}.m4a under one directory.
type LocalStore struct {
	workDir string
	rawExt  string
}

// NewLocalStore creates a local working-file store.
func NewLocalStore(workDir, rawExt string) *LocalStore {
	return &LocalStore{workDir: workDir, rawExt: rawExt}
}

// RawName returns the file name of a recording's raw upload.
func (s *LocalStore) RawName(id string) string { return id + "." + s.rawExt }

// RawPath returns the path of a recording's raw upload.
func (s *LocalStore) RawPath(id string) string {
	return filepath.Join(s.workDir, s.RawName(id))
}

// ConvertedPath returns the path of a recording's converted audio.
func (s *LocalStore) ConvertedPath(id string) string {
	return filepath.Join(s.workDir, id+"."+ConvertedExt)
}

// SaveRaw streams the raw upload to disk atomically and returns its path and
// size. An empty body is written like any other; the caller decides.
func (s *LocalStore) SaveRaw(id string, body io.Reader) (string, int64, error) {
	path := s.RawPath(id)
	n, err := writeAtomic(path, body)
	if err != nil {
		return "", 0, err
	}
	return path, n, nil
}

// OpenRaw opens a recording's raw upload for reading and returns its size.
func (s *LocalStore) OpenRaw(id string) (*os.File, int64, error) {
	f, err := os.Open(s.RawPath(id))
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// RawExists reports whether a raw upload for id is on disk.
func (s *LocalStore) RawExists(id string) bool {
	_, err := os.Stat(s.RawPath(id))
	return err == nil
}

// Remove deletes both working files of a recording. Missing files are not an
// error; the returned error joins every other failure.
func (s *LocalStore) Remove(id string) error {
	return removeAll(s.RawPath(id), s.ConvertedPath(id))
}

// RemoveConverted deletes only the converted file, keeping the raw upload.
func (s *LocalStore) RemoveConverted(id string) error {
	return removeAll(s.ConvertedPath(id))
}

func removeAll(paths ...string) error {
	var errs []error
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dir returns the working directory path.
func (s *LocalStore) Dir() string { return s.workDir }

// LocalArchiver archives recordings into a directory on the local
// filesystem, for development setups without object storage.
type LocalArchiver struct {
	dir string
}

// NewLocalArchiver creates a directory-backed archiver.
func NewLocalArchiver(dir string) *LocalArchiver {
	return &LocalArchiver{dir: dir}
}

func (a *LocalArchiver) ObjectKey(name string) string { return "audio/" + name }

func (a *LocalArchiver) Archive(ctx context.Context, name string, body io.Reader, size int64) error {
	if _, err := writeAtomic(filepath.Join(a.dir, filepath.FromSlash(a.ObjectKey(name))), body); err != nil {
		return fmt.Errorf("%w: %w", ErrArchiveService, err)
	}
	return nil
}

func (a *LocalArchiver) Exists(ctx context.Context, name string) bool {
	_, err := os.Stat(filepath.Join(a.dir, filepath.FromSlash(a.ObjectKey(name))))
	return err == nil
}

func (a *LocalArchiver) Type() string { return "local" }

func writeAtomic(path string, body io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	// Atomic write: temp file + rename
	tmp, err := os.CreateTemp(dir, ".audio-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	n, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename: %w", err)
	}
	return n, nil
}
