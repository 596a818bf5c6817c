package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TableCount is a row count reported by the check command.
type TableCount struct {
	Table string
	Rows  int64
}

// TableCounts returns the row count of each ingestion table.
func (db *DB) TableCounts(ctx context.Context) ([]TableCount, error) {
	counts := make([]TableCount, 0, len(ingestionTables))
	for _, table := range ingestionTables {
		var n int64
		if err := db.Pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, table)).Scan(&n); err != nil {
			return counts, fmt.Errorf("count %s: %w", table, err)
		}
		counts = append(counts, TableCount{Table: table, Rows: n})
	}
	return counts, nil
}

// orphanSegmentsSQL selects recordings that have segments but no metadata
// row and whose run can no longer write one: the run failed, its record went
// stale in a non-terminal state, or there is no record and the segments are
// older than the cutoff ($1). A run between its segment and metadata inserts
// is never selected.
const orphanSegmentsSQL = `
	SELECT s.recording_id
	FROM stt_segments s
	LEFT JOIN pipeline_runs p ON p.recording_id = s.recording_id
	WHERE NOT EXISTS (SELECT 1 FROM recordings r WHERE r.id = s.recording_id)
	GROUP BY s.recording_id, p.recording_id, p.state, p.updated_at
	HAVING p.state = 'failed'
		OR (p.recording_id IS NULL AND max(s.created_at) < $1)
		OR (p.state NOT IN ('done', 'failed') AND p.updated_at < $1)`

// OrphanSegments returns the ids of recordings left with segments but no
// metadata row by runs that ended between the two inserts. cutoff bounds how
// recently an unfinished run may have made progress.
func (db *DB) OrphanSegments(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := db.Pool.Query(ctx, orphanSegmentsSQL+` ORDER BY s.recording_id`, cutoff)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// deleteOrphanSegmentsSQL re-checks the orphan condition at delete time, so a
// run that resumed writing since OrphanSegments keeps its rows.
const deleteOrphanSegmentsSQL = `
	DELETE FROM stt_segments
	WHERE recording_id = $2
	  AND recording_id IN (` + orphanSegmentsSQL + `)`

// DeleteOrphanSegments removes the segments of recordingID if it is still an
// orphan as of cutoff, and returns the number of rows removed.
func (db *DB) DeleteOrphanSegments(ctx context.Context, recordingID string, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, deleteOrphanSegmentsSQL, cutoff, recordingID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PurgeFinishedRuns deletes done run records older than the retention period.
// Failed runs are kept for inspection.
func (db *DB) PurgeFinishedRuns(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM pipeline_runs WHERE state = 'done' AND updated_at < now() - $1::interval`,
		retention.String(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
