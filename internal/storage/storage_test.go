package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir, "webm")

	t.Run("paths", func(t *testing.T) {
		if got := s.RawPath("id1"); got != filepath.Join(dir, "id1.webm") {
			t.Errorf("RawPath = %q", got)
		}
		if got := s.ConvertedPath("id1"); got != filepath.Join(dir, "id1.m4a") {
			t.Errorf("ConvertedPath = %q", got)
		}
	})

	t.Run("save_raw", func(t *testing.T) {
		path, n, err := s.SaveRaw("id2", strings.NewReader("raw bytes"))
		if err != nil {
			t.Fatalf("SaveRaw: %v", err)
		}
		if n != int64(len("raw bytes")) {
			t.Errorf("SaveRaw size = %d", n)
		}
		got, err := os.ReadFile(path)
		if err != nil || string(got) != "raw bytes" {
			t.Errorf("ReadFile = %q, %v", got, err)
		}
		if !s.RawExists("id2") {
			t.Error("RawExists = false after SaveRaw")
		}
		tmps, _ := filepath.Glob(filepath.Join(dir, ".audio-*.tmp"))
		if len(tmps) != 0 {
			t.Errorf("temp files left behind: %v", tmps)
		}
	})

	t.Run("remove_both_files", func(t *testing.T) {
		if _, _, err := s.SaveRaw("id3", strings.NewReader("a")); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(s.ConvertedPath("id3"), []byte("b"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := s.Remove("id3"); err != nil {
			t.Fatalf("Remove: %v", err)
		}
		for _, p := range []string{s.RawPath("id3"), s.ConvertedPath("id3")} {
			if _, err := os.Stat(p); !os.IsNotExist(err) {
				t.Errorf("%s still exists", p)
			}
		}
	})

	t.Run("open_raw", func(t *testing.T) {
		if _, _, err := s.SaveRaw("id4", strings.NewReader("opened")); err != nil {
			t.Fatal(err)
		}
		f, size, err := s.OpenRaw("id4")
		if err != nil {
			t.Fatalf("OpenRaw: %v", err)
		}
		defer f.Close()
		got, _ := io.ReadAll(f)
		if size != 6 || string(got) != "opened" {
			t.Errorf("OpenRaw = %q size %d", got, size)
		}
	})

	t.Run("remove_missing_is_not_error", func(t *testing.T) {
		if err := s.Remove("never-written"); err != nil {
			t.Errorf("Remove = %v, want nil", err)
		}
	})
}

func TestLocalArchiver(t *testing.T) {
	a := NewLocalArchiver(t.TempDir())
	ctx := context.Background()

	if a.Exists(ctx, "id1.webm") {
		t.Fatal("Exists before Archive")
	}
	if err := a.Archive(ctx, "id1.webm", strings.NewReader("raw"), 3); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !a.Exists(ctx, "id1.webm") {
		t.Error("Exists = false after Archive")
	}
	if got := a.ObjectKey("id1.webm"); got != "audio/id1.webm" {
		t.Errorf("ObjectKey = %q", got)
	}
}

type fakeArchiver struct {
	archived map[string]bool
	uploads  map[string]string
	err      error
}

func (f *fakeArchiver) ObjectKey(name string) string { return "audio/" + name }
func (f *fakeArchiver) Archive(_ context.Context, name string, body io.Reader, _ int64) error {
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if f.uploads == nil {
		f.uploads = make(map[string]string)
	}
	f.uploads[name] = string(data)
	f.archived[name] = true
	return nil
}
func (f *fakeArchiver) Exists(_ context.Context, name string) bool { return f.archived[name] }
func (f *fakeArchiver) Type() string                              { return "fake" }

func TestSweeper(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir, "webm")
	now := time.Now()
	old := now.Add(-48 * time.Hour)

	write := func(name string, mtime time.Time) {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
	write("stale.m4a", old)
	write("stale.webm", old)
	write("archived.webm", old)
	write("busy.webm", old)
	write("busy.m4a", old)
	write("fresh.m4a", now)

	arch := &fakeArchiver{archived: map[string]bool{"archived.webm": true, "busy.webm": true}}
	inUse := func(id string) bool { return id == "busy" }
	sw := NewSweeper(store, arch, inUse, nil, 24*time.Hour, zerolog.Nop())

	res := sw.Sweep(now)
	if res.Removed != 2 {
		t.Errorf("Removed = %d, want 2", res.Removed)
	}
	if res.KeptUnarchived != 1 {
		t.Errorf("KeptUnarchived = %d, want 1", res.KeptUnarchived)
	}

	want := map[string]bool{
		"stale.m4a":     false,
		"stale.webm":    true,
		"archived.webm": false,
		"busy.webm":     true,
		"busy.m4a":      true,
		"fresh.m4a":     true,
	}
	for name, exists := range want {
		_, err := os.Stat(filepath.Join(dir, name))
		if got := err == nil; got != exists {
			t.Errorf("%s exists = %v, want %v", name, got, exists)
		}
	}
}

func TestSweeperFailedRuns(t *testing.T) {
	now := time.Now()
	old := now.Add(-48 * time.Hour)
	failed := func(_ context.Context, id string) bool { return strings.HasPrefix(id, "failed") }

	tests := []struct {
		name          string
		archiveErr    error
		wantReclaimed int
		wantKept      int
		wantFailedRaw bool
	}{
		{"archived_then_removed", nil, 1, 1, false},
		{"kept_when_archive_fails", ErrArchiveService, 0, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			store := NewLocalStore(dir, "webm")
			for _, name := range []string{"failed1.webm", "unknown.webm"} {
				path := filepath.Join(dir, name)
				if err := os.WriteFile(path, []byte("audio of "+name), 0o644); err != nil {
					t.Fatal(err)
				}
				if err := os.Chtimes(path, old, old); err != nil {
					t.Fatal(err)
				}
			}
			arch := &fakeArchiver{archived: map[string]bool{}, err: tt.archiveErr}
			sw := NewSweeper(store, arch, nil, failed, 24*time.Hour, zerolog.Nop())

			res := sw.Sweep(now)

			if res.Reclaimed != tt.wantReclaimed || res.KeptUnarchived != tt.wantKept {
				t.Errorf("Reclaimed=%d KeptUnarchived=%d, want %d %d",
					res.Reclaimed, res.KeptUnarchived, tt.wantReclaimed, tt.wantKept)
			}
			if got := store.RawExists("failed1"); got != tt.wantFailedRaw {
				t.Errorf("failed run raw exists = %v, want %v", got, tt.wantFailedRaw)
			}
			if !store.RawExists("unknown") {
				t.Error("raw upload without a failed run was removed")
			}
			if tt.archiveErr == nil && arch.uploads["failed1.webm"] != "audio of failed1.webm" {
				t.Errorf("archived %q", arch.uploads["failed1.webm"])
			}
		})
	}
}

func TestSweeperStopWithoutStart(t *testing.T) {
	sw := NewSweeper(NewLocalStore(t.TempDir(), "webm"), nil, nil, nil, time.Hour, zerolog.Nop())
	sw.Stop()
}

func TestClassifyS3Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"access_denied", &smithy.GenericAPIError{Code: "AccessDenied"}, ErrArchiveCredentials},
		{"bad_key", &smithy.GenericAPIError{Code: "InvalidAccessKeyId"}, ErrArchiveCredentials},
		{"no_bucket", &smithy.GenericAPIError{Code: "NoSuchBucket"}, ErrArchiveService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := classifyS3Error(tt.err); !errors.Is(err, tt.want) {
				t.Errorf("classifyS3Error = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("transport_error_unchanged", func(t *testing.T) {
		base := errors.New("dial tcp: connection refused")
		err := classifyS3Error(base)
		if errors.Is(err, ErrArchiveCredentials) || errors.Is(err, ErrArchiveService) {
			t.Errorf("classifyS3Error(transport) = %v, want unclassified", err)
		}
	})

	t.Run("nil", func(t *testing.T) {
		if err := classifyS3Error(nil); err != nil {
			t.Errorf("classifyS3Error(nil) = %v", err)
		}
	})
}
