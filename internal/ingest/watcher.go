package ingest

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Submitter accepts one recording for processing and returns its id.
type Submitter interface {
	Submit(ctx context.Context, owner, filename string, body io.Reader) (string, error)
}

// WatcherStatus is reported by the health endpoint.
type WatcherStatus struct {
	Status         string `json:"status"`
	WatchDir       string `json:"watch_dir"`
	FilesSubmitted int64  `json:"files_submitted"`
	FilesRejected  int64  `json:"files_rejected"`
}

// DropWatcher monitors <dir>/<owner_id>/ directories and submits every file
// dropped there as an upload by that owner. Accepted files are removed from
// the drop directory; rejected ones stay for inspection.
type DropWatcher struct {
	submit   Submitter
	watchDir string
	settle   time.Duration
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesSubmitted atomic.Int64
	filesRejected  atomic.Int64
	status         atomic.Value // string: "starting", "watching", "stopped"
}

func NewDropWatcher(submit Submitter, watchDir string, log zerolog.Logger) *DropWatcher {
	dw := &DropWatcher{
		submit:         submit,
		watchDir:       watchDir,
		settle:         500 * time.Millisecond,
		log:            log.With().Str("component", "drop-watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
	}
	dw.status.Store("starting")
	return dw
}

// Start watches the drop directory and every existing owner directory, then
// submits files already waiting in them.
func (dw *DropWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(dw.watchDir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dw.watchDir); err != nil {
		w.Close()
		return err
	}
	dw.watcher = w
	dw.ctx, dw.cancel = context.WithCancel(ctx)

	entries, err := os.ReadDir(dw.watchDir)
	if err != nil {
		w.Close()
		return err
	}
	var pending []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(dw.watchDir, e.Name())
		if err := w.Add(dir); err != nil {
			dw.log.Warn().Err(err).Str("path", dir).Msg("failed to watch owner directory")
			continue
		}
		pending = append(pending, dw.existingFiles(dir)...)
	}

	dw.log.Info().
		Str("watch_dir", dw.watchDir).
		Int("pending", len(pending)).
		Msg("drop watcher started")

	dw.wg.Add(1)
	go dw.watchLoop()
	for _, path := range pending {
		dw.scheduleProcess(path)
	}
	dw.status.Store("watching")
	return nil
}

// Stop closes the watcher and waits for submissions in progress.
func (dw *DropWatcher) Stop() {
	dw.status.Store("stopped")
	if dw.cancel != nil {
		dw.cancel()
	}

	dw.debounceMu.Lock()
	for path, t := range dw.debounceTimers {
		t.Stop()
		delete(dw.debounceTimers, path)
	}
	dw.debounceMu.Unlock()

	if dw.watcher != nil {
		dw.watcher.Close()
	}
	dw.wg.Wait()

	dw.log.Info().
		Int64("files_submitted", dw.filesSubmitted.Load()).
		Int64("files_rejected", dw.filesRejected.Load()).
		Msg("drop watcher stopped")
}

// Status returns the current watcher status for the health endpoint.
func (dw *DropWatcher) Status() *WatcherStatus {
	s, _ := dw.status.Load().(string)
	return &WatcherStatus{
		Status:         s,
		WatchDir:       dw.watchDir,
		FilesSubmitted: dw.filesSubmitted.Load(),
		FilesRejected:  dw.filesRejected.Load(),
	}
}

func (dw *DropWatcher) watchLoop() {
	defer dw.wg.Done()
	for {
		select {
		case <-dw.ctx.Done():
			return

		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// A new owner directory directly under the drop root.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if filepath.Dir(event.Name) != filepath.Clean(dw.watchDir) {
					continue
				}
				if err := dw.watcher.Add(event.Name); err != nil {
					dw.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new owner directory")
					continue
				}
				dw.log.Debug().Str("path", event.Name).Msg("watching new owner directory")
				for _, path := range dw.existingFiles(event.Name) {
					dw.scheduleProcess(path)
				}
				continue
			}

			if _, ok := dw.ownerOf(event.Name); !ok {
				continue
			}
			dw.scheduleProcess(event.Name)

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			dw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess waits for the file to stop changing before submitting it.
func (dw *DropWatcher) scheduleProcess(path string) {
	dw.debounceMu.Lock()
	defer dw.debounceMu.Unlock()

	if t, ok := dw.debounceTimers[path]; ok {
		t.Reset(dw.settle)
		return
	}

	dw.debounceTimers[path] = time.AfterFunc(dw.settle, func() {
		dw.debounceMu.Lock()
		delete(dw.debounceTimers, path)
		if dw.ctx.Err() != nil {
			dw.debounceMu.Unlock()
			return
		}
		dw.wg.Add(1)
		dw.debounceMu.Unlock()

		defer dw.wg.Done()
		dw.processFile(path)
	})
}

func (dw *DropWatcher) processFile(path string) {
	owner, ok := dw.ownerOf(path)
	if !ok {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			dw.log.Warn().Err(err).Str("path", path).Msg("failed to read dropped file")
		}
		return
	}

	id, err := dw.submit.Submit(dw.ctx, owner, filepath.Base(path), f)
	f.Close()
	if err != nil {
		dw.filesRejected.Add(1)
		dw.log.Warn().Err(err).Str("path", path).Str("owner_id", owner).Msg("dropped file rejected")
		return
	}
	dw.filesSubmitted.Add(1)

	if err := os.Remove(path); err != nil {
		dw.log.Warn().Err(err).Str("path", path).Msg("failed to remove submitted file")
	}
	dw.log.Info().Str("path", path).Str("recording_id", id).Msg("dropped file submitted")
}

// ownerOf returns the owner for a file at <watchDir>/<owner>/<name>. Hidden
// and partial files are ignored.
func (dw *DropWatcher) ownerOf(path string) (string, bool) {
	rel, err := filepath.Rel(dw.watchDir, path)
	if err != nil {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return "", false
	}
	name := parts[1]
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".tmp") {
		return "", false
	}
	if ValidateOwner(parts[0]) != nil {
		return "", false
	}
	return parts[0], true
}

func (dw *DropWatcher) existingFiles(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := dw.ownerOf(path); ok {
			files = append(files, path)
		}
		return nil
	})
	return files
}
