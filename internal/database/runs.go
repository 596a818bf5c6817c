package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pyhilandjy/Clab-api-old/internal/pipeline"
)

// SaveRun upserts a run's progress record.
func (db *DB) SaveRun(ctx context.Context, run pipeline.Run) error {
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO pipeline_runs (recording_id, owner_id, state, failed_stage, error, schema_version, segment_count, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
		ON CONFLICT (recording_id) DO UPDATE SET
			state          = EXCLUDED.state,
			failed_stage   = EXCLUDED.failed_stage,
			error          = EXCLUDED.error,
			schema_version = COALESCE(EXCLUDED.schema_version, pipeline_runs.schema_version),
			segment_count  = EXCLUDED.segment_count,
			updated_at     = EXCLUDED.updated_at`,
		run.RecordingID, run.OwnerID, string(run.State), string(run.FailedStage),
		run.Error, run.SchemaVersion, run.SegmentCount, createdAt, run.UpdatedAt,
	)
	return err
}

const runColumns = `recording_id, owner_id, state, COALESCE(failed_stage, ''), COALESCE(error, ''),
	COALESCE(schema_version, ''), segment_count, created_at, updated_at`

func scanRun(row pgx.Row) (pipeline.Run, error) {
	var r pipeline.Run
	var state, failed string
	err := row.Scan(&r.RecordingID, &r.OwnerID, &state, &failed, &r.Error,
		&r.SchemaVersion, &r.SegmentCount, &r.CreatedAt, &r.UpdatedAt)
	r.State = pipeline.State(state)
	r.FailedStage = pipeline.State(failed)
	return r, err
}

// GetRun returns the run record for a recording.
func (db *DB) GetRun(ctx context.Context, recordingID string) (*pipeline.Run, error) {
	r, err := scanRun(db.Pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs WHERE recording_id = $1`, recordingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pipeline.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns the most recently updated runs in state, newest first.
// An empty state lists every run.
func (db *DB) ListRuns(ctx context.Context, state pipeline.State, limit int) ([]pipeline.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM pipeline_runs
		WHERE $1 = '' OR state = $1
		ORDER BY updated_at DESC
		LIMIT $2`, string(state), limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (pipeline.Run, error) {
		return scanRun(row)
	})
}

// StaleRuns returns runs that have sat in a non-terminal state since before
// cutoff. These were interrupted by a process exit.
func (db *DB) StaleRuns(ctx context.Context, cutoff time.Time) ([]pipeline.Run, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM pipeline_runs
		WHERE state NOT IN ('done', 'failed') AND updated_at < $1
		ORDER BY updated_at`, cutoff)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (pipeline.Run, error) {
		return scanRun(row)
	})
}
