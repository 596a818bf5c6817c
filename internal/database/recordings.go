package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pyhilandjy/Clab-api-old/internal/transcript"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// InsertSegment writes one transcript segment. Re-inserting the same
// (recording_id, index) is a no-op.
func (db *DB) InsertSegment(ctx context.Context, seg transcript.CanonicalSegment) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO stt_segments (recording_id, "index", start_time, end_time, text, edited_text, confidence, speaker_label)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (recording_id, "index") DO NOTHING`,
		seg.RecordingID, seg.Index, seg.StartTime, seg.EndTime,
		seg.Text, seg.EditedText, seg.Confidence, seg.SpeakerLabel,
	)
	return err
}

// InsertRecording writes the recording metadata row. Re-inserting the same
// id is a no-op.
func (db *DB) InsertRecording(ctx context.Context, md transcript.RecordingMetadata) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO recordings (id, owner_id, display_name, storage_path, duration_seconds)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		md.ID, md.OwnerID, md.DisplayName, md.StoragePath, md.DurationSeconds,
	)
	return err
}

// GetRecording returns the metadata row for id.
func (db *DB) GetRecording(ctx context.Context, id string) (*transcript.RecordingMetadata, error) {
	var md transcript.RecordingMetadata
	var duration *float64
	err := db.Pool.QueryRow(ctx, `
		SELECT id, owner_id, display_name, storage_path, duration_seconds
		FROM recordings WHERE id = $1`, id,
	).Scan(&md.ID, &md.OwnerID, &md.DisplayName, &md.StoragePath, &duration)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if duration != nil {
		md.DurationSeconds = *duration
	}
	return &md, nil
}

// ListSegments returns a recording's segments ordered by index.
func (db *DB) ListSegments(ctx context.Context, recordingID string) ([]transcript.CanonicalSegment, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT recording_id, "index", start_time, end_time, text, edited_text, confidence, speaker_label
		FROM stt_segments
		WHERE recording_id = $1
		ORDER BY "index"`, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segs []transcript.CanonicalSegment
	for rows.Next() {
		var s transcript.CanonicalSegment
		if err := rows.Scan(&s.RecordingID, &s.Index, &s.StartTime, &s.EndTime,
			&s.Text, &s.EditedText, &s.Confidence, &s.SpeakerLabel); err != nil {
			return nil, err
		}
		segs = append(segs, s)
	}
	return segs, rows.Err()
}

// RecordDurations returns the duration of every recording an owner made in
// [start, end). Unknown durations come back as nil.
func (db *DB) RecordDurations(ctx context.Context, ownerID string, start, end time.Time) ([]*float64, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT duration_seconds
		FROM recordings
		WHERE owner_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at`, ownerID, start, end)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[*float64])
}
