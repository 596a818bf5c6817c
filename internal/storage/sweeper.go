package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// Sweeper removes working files left behind by runs that ended before their
// cleanup step. Raw uploads are only removed once they are archived; the raw
// upload of a failed run is archived by the sweeper first.
type Sweeper struct {
	store     *LocalStore
	archiver  Archiver
	inUse     func(id string) bool
	failed    func(ctx context.Context, id string) bool
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
	started   atomic.Bool
	done      chan struct{}
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Removed        int
	FreedBytes     int64
	Reclaimed      int // raw uploads of failed runs archived, then removed
	KeptUnarchived int
}

// NewSweeper creates a sweeper for files older than retention. inUse reports
// recordings whose run is still in flight and failed reports recordings whose
// run ended in the failed state; either may be nil. archiver may be nil.
func NewSweeper(store *LocalStore, archiver Archiver, inUse func(id string) bool, failed func(ctx context.Context, id string) bool, retention time.Duration, log zerolog.Logger) *Sweeper {
	if inUse == nil {
		inUse = func(string) bool { return false }
	}
	if failed == nil {
		failed = func(context.Context, string) bool { return false }
	}
	return &Sweeper{
		store:     store,
		archiver:  archiver,
		inUse:     inUse,
		failed:    failed,
		retention: retention,
		interval:  1 * time.Hour,
		log:       log.With().Str("component", "sweeper").Logger(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	if s.started.CompareAndSwap(false, true) {
		go s.loop()
	}
}

// Stop ends the sweep loop and waits for a sweep in progress.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
}

func (s *Sweeper) loop() {
	defer close(s.done)

	// Run once on startup to clear any backlog from downtime
	s.Sweep(time.Now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep(time.Now())
		case <-s.stop:
			return
		}
	}
}

// Sweep removes stale working files as of now.
func (s *Sweeper) Sweep(now time.Time) SweepResult {
	var res SweepResult
	if s.retention <= 0 {
		return res
	}
	cutoff := now.Add(-s.retention)

	entries, err := os.ReadDir(s.store.Dir())
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Msg("failed to list working directory")
		}
		return res
	}

	rawSuffix := "." + s.store.rawExt
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		name := e.Name()
		id := strings.TrimSuffix(name, filepath.Ext(name))
		if s.inUse(id) {
			continue
		}

		if strings.HasSuffix(name, rawSuffix) && s.archiver != nil && !s.archived(name) {
			if !s.failed(context.Background(), id) {
				res.KeptUnarchived++
				s.log.Warn().Str("file", name).Msg("skipping sweep: raw upload not archived")
				continue
			}
			if err := s.archiveRaw(id, name); err != nil {
				res.KeptUnarchived++
				s.log.Warn().Err(err).Str("file", name).Msg("skipping sweep: failed run's raw upload could not be archived")
				continue
			}
			res.Reclaimed++
		}

		if err := os.Remove(filepath.Join(s.store.Dir(), name)); err == nil {
			res.Removed++
			res.FreedBytes += info.Size()
		}
	}

	if res.Removed > 0 || res.KeptUnarchived > 0 {
		s.log.Info().
			Int("removed", res.Removed).
			Int("reclaimed", res.Reclaimed).
			Str("freed", humanize.IBytes(uint64(res.FreedBytes))).
			Int("kept_unarchived", res.KeptUnarchived).
			Msg("sweep complete")
	}
	return res
}

func (s *Sweeper) archived(name string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.archiver.Exists(ctx, name)
}

// archiveRaw uploads the raw upload of a failed run so it can be removed.
func (s *Sweeper) archiveRaw(id, name string) error {
	f, size, err := s.store.OpenRaw(id)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	return s.archiver.Archive(ctx, name, f, size)
}
