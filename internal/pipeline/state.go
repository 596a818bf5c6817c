package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// State is a pipeline run's position in the ingestion state machine.
type State string

const (
	StateAccepted    State = "accepted"
	StateStored      State = "stored"
	StateConverted   State = "converted"
	StateTranscribed State = "transcribed"
	StateNormalized  State = "normalized"
	StatePersisted   State = "persisted"
	StateArchived    State = "archived"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// stages lists the non-terminal path in order.
var stages = []State{
	StateAccepted,
	StateStored,
	StateConverted,
	StateTranscribed,
	StateNormalized,
	StatePersisted,
	StateArchived,
	StateDone,
}

// Next returns the state that follows s on the success path.
func (s State) Next() (State, bool) {
	for i, st := range stages[:len(stages)-1] {
		if st == s {
			return stages[i+1], true
		}
	}
	return "", false
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	if s == StateFailed {
		return true
	}
	for _, st := range stages {
		if st == s {
			return true
		}
	}
	return false
}

// CanTransition reports whether from → to is allowed: one step forward, or
// Failed from any non-terminal state.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	next, ok := from.Next()
	return ok && next == to
}

// Run is the persisted progress record of one recording's pipeline run.
type Run struct {
	RecordingID   string    `json:"recording_id"`
	OwnerID       string    `json:"owner_id"`
	State         State     `json:"state"`
	FailedStage   State     `json:"failed_stage,omitempty"`
	Error         string    `json:"error,omitempty"`
	SchemaVersion string    `json:"schema_version,omitempty"`
	SegmentCount  int       `json:"segment_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

var (
	// ErrDuplicateRecording is returned when an id is already in flight, its
	// raw file exists, or a non-failed run is recorded for it.
	ErrDuplicateRecording = errors.New("duplicate recording id")

	// ErrRunNotFound is returned by RunStore lookups that match nothing.
	ErrRunNotFound = errors.New("pipeline run not found")

	// ErrShuttingDown is returned by Submit once Shutdown has begun.
	ErrShuttingDown = errors.New("pipeline shutting down")

	// ErrEmptyUpload is returned for zero-byte uploads.
	ErrEmptyUpload = errors.New("empty upload")
)

// StageError records the stage whose work failed. Stage is the state the run
// was trying to reach.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ArchiveOrder selects whether the raw file is archived before or after the
// local working files are removed.
type ArchiveOrder string

const (
	// ArchiveFirst uploads the raw file, then removes local files. A failed
	// upload leaves the raw file on disk. This is the default; it reverses
	// the legacy delete-then-upload order of the Persisted → Archived step so
	// an archive failure cannot lose the recording.
	ArchiveFirst ArchiveOrder = "archive-first"
	// CleanupFirst is the legacy order: it reads the raw file, removes the
	// local files, then uploads the bytes. A failed upload loses the recording.
	CleanupFirst ArchiveOrder = "cleanup-first"
)

// ParseArchiveOrder validates an ARCHIVE_ORDER value. Empty means ArchiveFirst.
func ParseArchiveOrder(s string) (ArchiveOrder, error) {
	switch ArchiveOrder(s) {
	case "", ArchiveFirst:
		return ArchiveFirst, nil
	case CleanupFirst:
		return CleanupFirst, nil
	}
	return "", fmt.Errorf("unknown archive order %q (want %s or %s)", s, ArchiveFirst, CleanupFirst)
}
