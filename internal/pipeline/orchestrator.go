package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pyhilandjy/Clab-api-old/internal/ingest"
	"github.com/pyhilandjy/Clab-api-old/internal/metrics"
	"github.com/pyhilandjy/Clab-api-old/internal/storage"
	"github.com/pyhilandjy/Clab-api-old/internal/transcript"
	"github.com/rs/zerolog"
)

// Converter turns a raw upload into the container the STT service accepts.
type Converter interface {
	Convert(ctx context.Context, in, out string) error
}

// Transcriber returns the STT service's response body for an audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]byte, error)
}

// SegmentWriter persists canonical segments and recording metadata.
type SegmentWriter interface {
	InsertSegment(ctx context.Context, seg transcript.CanonicalSegment) error
	InsertRecording(ctx context.Context, md transcript.RecordingMetadata) error
}

// Archiver uploads the raw recording to durable storage.
type Archiver interface {
	ObjectKey(name string) string
	Archive(ctx context.Context, name string, body io.Reader, size int64) error
}

// EventPublisher announces run state changes. Publishing is best-effort.
type EventPublisher interface {
	PublishRunEvent(recordingID string, payload []byte) error
}

// Options configures an Orchestrator. Store, Converter, Transcriber, Writer
// and Archiver are required.
type Options struct {
	Store       *storage.LocalStore
	Converter   Converter
	Transcriber Transcriber
	Normalizer  *transcript.Normalizer
	Writer      SegmentWriter
	Archiver    Archiver
	Runs        RunStore
	Events      EventPublisher
	Order       ArchiveOrder

	ConvertTimeout time.Duration
	STTTimeout     time.Duration
	ArchiveTimeout time.Duration

	Clock func() time.Time
	Log   zerolog.Logger
}

// Orchestrator runs one background pipeline per accepted upload:
// Accepted → Stored → Converted → Transcribed → Normalized → Persisted →
// Archived → Done, or Failed at the first stage whose work fails.
type Orchestrator struct {
	store       *storage.LocalStore
	converter   Converter
	transcriber Transcriber
	normalizer  *transcript.Normalizer
	writer      SegmentWriter
	archiver    Archiver
	runs        RunStore
	events      EventPublisher
	order       ArchiveOrder

	convertTimeout time.Duration
	sttTimeout     time.Duration
	archiveTimeout time.Duration

	now func() time.Time
	log zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	closing  bool
	wg       sync.WaitGroup

	completed atomic.Int64
	failed    atomic.Int64
}

// Stats is reported by the health endpoint.
type Stats struct {
	InFlight  int   `json:"in_flight"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:          opts.Store,
		converter:      opts.Converter,
		transcriber:    opts.Transcriber,
		normalizer:     opts.Normalizer,
		writer:         opts.Writer,
		archiver:       opts.Archiver,
		runs:           opts.Runs,
		events:         opts.Events,
		order:          opts.Order,
		convertTimeout: opts.ConvertTimeout,
		sttTimeout:     opts.STTTimeout,
		archiveTimeout: opts.ArchiveTimeout,
		now:            opts.Clock,
		log:            opts.Log.With().Str("component", "pipeline").Logger(),
		inFlight:       make(map[string]struct{}),
	}
	if o.normalizer == nil {
		o.normalizer = transcript.NewNormalizer(nil, nil, opts.Log)
	}
	if o.runs == nil {
		o.runs = NewMemoryRunStore()
	}
	if o.order == "" {
		o.order = ArchiveFirst
	}
	if o.convertTimeout <= 0 {
		o.convertTimeout = 10 * time.Minute
	}
	if o.archiveTimeout <= 0 {
		o.archiveTimeout = 5 * time.Minute
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Submit accepts an upload: it generates the recording id, streams body to
// local storage and starts the background run. Errors returned here are the
// only ones the caller sees; later failures land in the run record. The run
// reads the stored file, never body, so body may be closed on return.
func (o *Orchestrator) Submit(ctx context.Context, owner, filename string, body io.Reader) (string, error) {
	if body == nil {
		body = bytes.NewReader(nil)
	}
	br := bufio.NewReader(body)
	if _, err := br.Peek(1); err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		if errors.Is(err, io.EOF) {
			return "", ErrEmptyUpload
		}
		return "", fmt.Errorf("read upload: %w", err)
	}
	now := o.now()
	id, err := ingest.GenerateID(owner, now)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return "", err
	}

	if err := o.reserve(id); err != nil {
		if errors.Is(err, ErrDuplicateRecording) {
			metrics.UploadsTotal.WithLabelValues("duplicate").Inc()
		}
		return "", err
	}
	if prev, err := o.runs.GetRun(ctx, id); err == nil && prev.State != StateFailed {
		o.release(id)
		metrics.UploadsTotal.WithLabelValues("duplicate").Inc()
		return "", fmt.Errorf("%w: %s is %s", ErrDuplicateRecording, id, prev.State)
	} else if err != nil && !errors.Is(err, ErrRunNotFound) {
		o.log.Warn().Err(err).Str("recording_id", id).Msg("run lookup failed, accepting upload")
	}

	log := o.log.With().Str("recording_id", id).Logger()
	run := &Run{
		RecordingID: id,
		OwnerID:     owner,
		State:       StateAccepted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	o.save(ctx, run, log)

	rawPath, size, err := o.store.SaveRaw(id, br)
	if err != nil {
		o.fail(ctx, run, StateStored, err, log)
		o.release(id)
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return "", &StageError{Stage: StateStored, Err: err}
	}
	o.advance(ctx, run, StateStored, log)
	metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	metrics.UploadBytes.Observe(float64(size))

	rec := transcript.Recording{
		ID:               id,
		OwnerID:          owner,
		DisplayName:      filename,
		RawPath:          rawPath,
		TranscodablePath: o.store.ConvertedPath(id),
	}
	log.Info().Str("owner_id", owner).Int64("bytes", size).Msg("upload accepted")

	go o.run(run, rec, log)
	return id, nil
}

// reserve marks id in flight and registers the run with the wait group.
func (o *Orchestrator) reserve(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closing {
		return ErrShuttingDown
	}
	if _, ok := o.inFlight[id]; ok {
		return fmt.Errorf("%w: %s is in flight", ErrDuplicateRecording, id)
	}
	if o.store.RawExists(id) {
		return fmt.Errorf("%w: %s already stored", ErrDuplicateRecording, id)
	}
	o.inFlight[id] = struct{}{}
	o.wg.Add(1)
	return nil
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.inFlight, id)
	o.mu.Unlock()
	o.wg.Done()
}

// run drives one recording from Stored to a terminal state. It is not
// cancellable; Shutdown waits for it.
func (o *Orchestrator) run(run *Run, rec transcript.Recording, log zerolog.Logger) {
	defer o.release(rec.ID)
	ctx := context.Background()

	// Stored → Converted
	convCtx, cancel := context.WithTimeout(ctx, o.convertTimeout)
	err := o.converter.Convert(convCtx, rec.RawPath, rec.TranscodablePath)
	cancel()
	if err != nil {
		o.fail(ctx, run, StateConverted, err, log)
		return
	}
	o.advance(ctx, run, StateConverted, log)

	// Converted → Transcribed
	sttCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.sttTimeout > 0 {
		sttCtx, cancel = context.WithTimeout(ctx, o.sttTimeout)
	}
	body, err := o.transcriber.Transcribe(sttCtx, rec.TranscodablePath)
	cancel()
	if err != nil {
		o.fail(ctx, run, StateTranscribed, err, log)
		o.removeConverted(rec.ID, log)
		return
	}
	o.advance(ctx, run, StateTranscribed, log)

	// Transcribed → Normalized
	segments, fields, err := o.normalize(rec.ID, body)
	if err != nil {
		o.fail(ctx, run, StateNormalized, err, log)
		o.removeConverted(rec.ID, log)
		return
	}
	run.SchemaVersion = fields.Version
	run.SegmentCount = len(segments)
	metrics.SchemaResolutionsTotal.WithLabelValues(fields.Version).Inc()
	o.advance(ctx, run, StateNormalized, log)

	// Normalized → Persisted
	if err := o.persist(ctx, rec, segments); err != nil {
		o.fail(ctx, run, StatePersisted, err, log)
		o.removeConverted(rec.ID, log)
		return
	}
	o.advance(ctx, run, StatePersisted, log)

	// Persisted → Archived
	if err := o.archive(ctx, rec.ID, log); err != nil {
		o.fail(ctx, run, StateArchived, err, log)
		return
	}
	o.advance(ctx, run, StateArchived, log)
	o.advance(ctx, run, StateDone, log)
}

func (o *Orchestrator) normalize(id string, body []byte) ([]transcript.CanonicalSegment, *transcript.FieldNameMap, error) {
	raws, err := transcript.ParseResponse(body)
	if err != nil {
		return nil, nil, err
	}
	return o.normalizer.Normalize(id, raws)
}

// persist writes every segment, then the metadata row. Segments already
// written stay when a later insert fails.
func (o *Orchestrator) persist(ctx context.Context, rec transcript.Recording, segments []transcript.CanonicalSegment) error {
	for _, seg := range segments {
		if err := o.writer.InsertSegment(ctx, seg); err != nil {
			return fmt.Errorf("insert segment %d: %w", seg.Index, err)
		}
		metrics.SegmentsWrittenTotal.Inc()
	}
	rec.DurationSeconds = transcript.Duration(segments)
	md := transcript.BuildMetadata(rec, o.archiver.ObjectKey(o.store.RawName(rec.ID)), segments)
	if err := o.writer.InsertRecording(ctx, md); err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

// archive uploads the raw upload and removes the local working files in the
// configured order. Neither order retries a failed upload.
func (o *Orchestrator) archive(ctx context.Context, id string, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, o.archiveTimeout)
	defer cancel()
	name := o.store.RawName(id)

	if o.order == CleanupFirst {
		// The file is deleted before the upload starts, so it is read first.
		data, err := os.ReadFile(o.store.RawPath(id))
		o.cleanup(id, log)
		if err != nil {
			return fmt.Errorf("read raw upload: %w", err)
		}
		return o.archiver.Archive(ctx, name, bytes.NewReader(data), int64(len(data)))
	}

	f, size, err := o.store.OpenRaw(id)
	if err != nil {
		o.removeConverted(id, log)
		return fmt.Errorf("open raw upload: %w", err)
	}
	err = o.archiver.Archive(ctx, name, f, size)
	f.Close()
	if err != nil {
		// Raw file stays on disk until archived.
		o.removeConverted(id, log)
		return err
	}
	o.cleanup(id, log)
	return nil
}

func (o *Orchestrator) cleanup(id string, log zerolog.Logger) {
	if err := o.store.Remove(id); err != nil {
		metrics.CleanupErrorsTotal.Inc()
		log.Warn().Err(err).Msg("failed to remove local files")
	}
}

func (o *Orchestrator) removeConverted(id string, log zerolog.Logger) {
	if err := o.store.RemoveConverted(id); err != nil {
		metrics.CleanupErrorsTotal.Inc()
		log.Warn().Err(err).Msg("failed to remove converted file")
	}
}

func (o *Orchestrator) advance(ctx context.Context, run *Run, to State, log zerolog.Logger) {
	if !CanTransition(run.State, to) {
		log.Error().Str("from", string(run.State)).Str("to", string(to)).Msg("invalid state transition")
		return
	}
	now := o.now()
	metrics.StageDuration.WithLabelValues(string(to)).Observe(now.Sub(run.UpdatedAt).Seconds())
	run.State = to
	run.UpdatedAt = now
	o.save(ctx, run, log)

	if to == StateDone {
		o.completed.Add(1)
		metrics.RunsFinishedTotal.WithLabelValues(string(StateDone), "").Inc()
		log.Info().
			Int("segments", run.SegmentCount).
			Str("schema", run.SchemaVersion).
			Msg("pipeline run complete")
		return
	}
	log.Debug().Str("state", string(to)).Msg("stage complete")
}

func (o *Orchestrator) fail(ctx context.Context, run *Run, stage State, err error, log zerolog.Logger) {
	run.State = StateFailed
	run.FailedStage = stage
	run.Error = err.Error()
	run.UpdatedAt = o.now()
	o.save(ctx, run, log)

	o.failed.Add(1)
	metrics.RunsFinishedTotal.WithLabelValues(string(StateFailed), string(stage)).Inc()
	log.Error().Err(err).Str("stage", string(stage)).Msg("pipeline run failed")
}

// save records run progress and announces it. Both are best-effort.
func (o *Orchestrator) save(ctx context.Context, run *Run, log zerolog.Logger) {
	if err := o.runs.SaveRun(ctx, *run); err != nil {
		log.Warn().Err(err).Str("state", string(run.State)).Msg("failed to save run state")
	}
	if o.events == nil {
		return
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return
	}
	if err := o.events.PublishRunEvent(run.RecordingID, payload); err != nil {
		log.Debug().Err(err).Msg("run event publish failed")
	}
}

// Run returns the recorded progress of a recording's run.
func (o *Orchestrator) Run(ctx context.Context, id string) (*Run, error) {
	return o.runs.GetRun(ctx, id)
}

// InFlight reports whether id's run has not reached a terminal state.
func (o *Orchestrator) InFlight(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inFlight[id]
	return ok
}

func (o *Orchestrator) InFlightCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inFlight)
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		InFlight:  o.InFlightCount(),
		Completed: o.completed.Load(),
		Failed:    o.failed.Load(),
	}
}

// Shutdown stops accepting uploads and waits for in-flight runs to finish.
// Runs are not cancelled; ctx bounds only the wait.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closing = true
	n := len(o.inFlight)
	o.mu.Unlock()
	if n > 0 {
		o.log.Info().Int("in_flight", n).Msg("waiting for pipeline runs")
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
