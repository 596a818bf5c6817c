package ingest

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type submission struct {
	owner    string
	filename string
	data     string
}

type fakeSubmitter struct {
	mu   sync.Mutex
	subs []submission
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, owner, filename string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.subs = append(f.subs, submission{owner, filename, string(data)})
	return "240101000000_" + owner, nil
}

func (f *fakeSubmitter) snapshot() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submission(nil), f.subs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWatcher(t *testing.T, sub Submitter, dir string) *DropWatcher {
	t.Helper()
	dw := NewDropWatcher(sub, dir, zerolog.Nop())
	dw.settle = 20 * time.Millisecond
	if err := dw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(dw.Stop)
	return dw
}

func TestDropWatcher(t *testing.T) {
	t.Run("submits_pending_files", func(t *testing.T) {
		dir := t.TempDir()
		ownerDir := filepath.Join(dir, "u1")
		if err := os.MkdirAll(ownerDir, 0o755); err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(ownerDir, "a.webm")
		if err := os.WriteFile(path, []byte("raw"), 0o644); err != nil {
			t.Fatal(err)
		}

		sub := &fakeSubmitter{}
		dw := startWatcher(t, sub, dir)

		waitFor(t, func() bool { return len(sub.snapshot()) == 1 })
		got := sub.snapshot()[0]
		if got.owner != "u1" || got.filename != "a.webm" || got.data != "raw" {
			t.Errorf("submission = %+v", got)
		}
		waitFor(t, func() bool {
			_, err := os.Stat(path)
			return os.IsNotExist(err)
		})
		if st := dw.Status(); st.FilesSubmitted != 1 || st.Status != "watching" {
			t.Errorf("Status = %+v", st)
		}
	})

	t.Run("submits_new_files", func(t *testing.T) {
		dir := t.TempDir()
		sub := &fakeSubmitter{}
		startWatcher(t, sub, dir)

		ownerDir := filepath.Join(dir, "u2")
		if err := os.MkdirAll(ownerDir, 0o755); err != nil {
			t.Fatal(err)
		}
		// Give the watcher time to add the new owner directory.
		time.Sleep(100 * time.Millisecond)
		if err := os.WriteFile(filepath.Join(ownerDir, "b.webm"), []byte("bytes"), 0o644); err != nil {
			t.Fatal(err)
		}

		waitFor(t, func() bool { return len(sub.snapshot()) == 1 })
		if got := sub.snapshot()[0]; got.owner != "u2" || got.filename != "b.webm" {
			t.Errorf("submission = %+v", got)
		}
	})

	t.Run("rejected_file_kept", func(t *testing.T) {
		dir := t.TempDir()
		ownerDir := filepath.Join(dir, "u3")
		if err := os.MkdirAll(ownerDir, 0o755); err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(ownerDir, "c.webm")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}

		sub := &fakeSubmitter{err: errors.New("duplicate")}
		dw := startWatcher(t, sub, dir)

		waitFor(t, func() bool { return dw.Status().FilesRejected == 1 })
		if _, err := os.Stat(path); err != nil {
			t.Errorf("rejected file removed: %v", err)
		}
	})
}

func TestDropWatcherOwnerOf(t *testing.T) {
	dw := NewDropWatcher(&fakeSubmitter{}, "/drop", zerolog.Nop())
	tests := []struct {
		path  string
		owner string
		ok    bool
	}{
		{"/drop/u1/a.webm", "u1", true},
		{"/drop/a.webm", "", false},
		{"/drop/u1/sub/a.webm", "", false},
		{"/drop/u1/.hidden", "", false},
		{"/drop/u1/a.webm.part", "", false},
		{"/elsewhere/u1/a.webm", "", false},
	}
	for _, tt := range tests {
		owner, ok := dw.ownerOf(tt.path)
		if owner != tt.owner || ok != tt.ok {
			t.Errorf("ownerOf(%q) = %q, %v; want %q, %v", tt.path, owner, ok, tt.owner, tt.ok)
		}
	}
}
