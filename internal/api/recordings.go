package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pyhilandjy/Clab-api-old/internal/database"
	"github.com/pyhilandjy/Clab-api-old/internal/ingest"
	"github.com/pyhilandjy/Clab-api-old/internal/pipeline"
	"github.com/pyhilandjy/Clab-api-old/internal/transcript"
	"github.com/rs/zerolog"
)

// Pipeline accepts uploads and reports run progress.
type Pipeline interface {
	Submit(ctx context.Context, owner, filename string, body io.Reader) (string, error)
	Run(ctx context.Context, recordingID string) (*pipeline.Run, error)
}

// RecordingStore is the read side of persisted transcripts.
type RecordingStore interface {
	GetRecording(ctx context.Context, id string) (*transcript.RecordingMetadata, error)
	ListSegments(ctx context.Context, recordingID string) ([]transcript.CanonicalSegment, error)
	RecordDurations(ctx context.Context, ownerID string, start, end time.Time) ([]*float64, error)
}

// RecordingsHandler serves the upload boundary and the transcript read side.
type RecordingsHandler struct {
	pipeline  Pipeline
	store     RecordingStore
	maxUpload int64
	log       zerolog.Logger
}

func NewRecordingsHandler(p Pipeline, store RecordingStore, maxUploadBytes int64, log zerolog.Logger) *RecordingsHandler {
	return &RecordingsHandler{
		pipeline:  p,
		store:     store,
		maxUpload: maxUploadBytes,
		log:       log.With().Str("handler", "recordings").Logger(),
	}
}

// Routes registers the recording endpoints.
func (h *RecordingsHandler) Routes(r chi.Router) {
	r.Post("/api/v1/recordings", h.Upload)
	r.Get("/api/v1/recordings/{id}", h.GetRecording)
	r.Get("/api/v1/recordings/{id}/segments", h.ListSegments)
	r.Get("/api/v1/recordings/{id}/run", h.GetRun)
	r.Get("/api/v1/owners/{owner}/record-time", h.RecordTime)
}

// UploadResponse acknowledges an accepted upload. Processing continues in
// the background; poll the run endpoint for the outcome.
type UploadResponse struct {
	RecordingID string         `json:"recording_id"`
	State       pipeline.State `json:"state"`
}

// Upload handles POST /api/v1/recordings.
// Multipart form: "file" (audio) and "user_id" (owner).
func (h *RecordingsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteErrorWithCode(w, http.StatusRequestEntityTooLarge, ErrTooLarge, "upload exceeds size limit")
			return
		}
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	owner := r.FormValue("user_id")
	if owner == "" {
		owner = r.FormValue("owner_id")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "missing file field")
		return
	}
	defer file.Close()

	id, err := h.pipeline.Submit(r.Context(), owner, header.Filename, file)
	switch {
	case err == nil:
		WriteJSON(w, http.StatusAccepted, UploadResponse{RecordingID: id, State: pipeline.StateStored})
	case errors.Is(err, ingest.ErrInvalidOwner), errors.Is(err, pipeline.ErrEmptyUpload):
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrDuplicateRecording):
		WriteErrorWithCode(w, http.StatusConflict, ErrDuplicate, err.Error())
	case errors.Is(err, pipeline.ErrShuttingDown):
		WriteErrorWithCode(w, http.StatusServiceUnavailable, ErrUnavailable, err.Error())
	default:
		h.log.Error().Err(err).Str("owner_id", owner).Msg("upload failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to store upload")
	}
}

// GetRecording handles GET /api/v1/recordings/{id}.
func (h *RecordingsHandler) GetRecording(w http.ResponseWriter, r *http.Request) {
	md, err := h.store.GetRecording(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, database.ErrNotFound) {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "recording not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("get recording failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to load recording")
		return
	}
	WriteJSON(w, http.StatusOK, md)
}

// ListSegments handles GET /api/v1/recordings/{id}/segments.
func (h *RecordingsHandler) ListSegments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	segs, err := h.store.ListSegments(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("recording_id", id).Msg("list segments failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to load segments")
		return
	}
	if len(segs) == 0 {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "no segments for recording")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"recording_id": id,
		"segments":     segs,
		"total":        len(segs),
	})
}

// GetRun handles GET /api/v1/recordings/{id}/run.
func (h *RecordingsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.pipeline.Run(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, pipeline.ErrRunNotFound) {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "run not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("get run failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to load run")
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// RecordTimeResponse is an owner's total recorded time over a range.
type RecordTimeResponse struct {
	OwnerID      string                `json:"owner_id"`
	Start        time.Time             `json:"start"`
	End          time.Time             `json:"end"`
	Recordings   int                   `json:"recordings"`
	TotalSeconds float64               `json:"total_seconds"`
	RecordTime   transcript.RecordTime `json:"record_time"`
}

// RecordTime handles GET /api/v1/owners/{owner}/record-time?start=&end=.
// The range is [start, end); a date-only end includes that whole day.
func (h *RecordingsHandler) RecordTime(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	start, ok, err := QueryTime(r, "start")
	if err != nil || !ok {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "start is required (RFC 3339 or YYYY-MM-DD)")
		return
	}
	end, ok, err := QueryTime(r, "end")
	if err != nil || !ok {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "end is required (RFC 3339 or YYYY-MM-DD)")
		return
	}
	if _, perr := time.Parse(dateLayout, r.URL.Query().Get("end")); perr == nil {
		end = end.AddDate(0, 0, 1)
	}
	if !end.After(start) {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "end must be after start")
		return
	}

	durations, err := h.store.RecordDurations(r.Context(), owner, start, end)
	if err != nil {
		h.log.Error().Err(err).Str("owner_id", owner).Msg("record time query failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to load record time")
		return
	}
	total := transcript.SumRecordTimes(durations)
	WriteJSON(w, http.StatusOK, RecordTimeResponse{
		OwnerID:      owner,
		Start:        start,
		End:          end,
		Recordings:   len(durations),
		TotalSeconds: total,
		RecordTime:   transcript.SplitRecordTime(total),
	})
}
