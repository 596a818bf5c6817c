package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ingestionTables are the tables schema.sql creates.
var ingestionTables = []string{"recordings", "stt_segments", "pipeline_runs"}

// InitSchema applies schemaSQL unless every ingestion table already exists.
// The DDL only uses IF NOT EXISTS, so a partially created schema is
// completed in place rather than rejected.
func (db *DB) InitSchema(ctx context.Context, schemaSQL []byte) error {
	missing, err := db.missingTables(ctx)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}

	switch len(missing) {
	case 0:
		db.log.Debug().Msg("schema already initialized, skipping")
		return nil
	case len(ingestionTables):
		db.log.Info().Msg("fresh database detected, applying schema")
	default:
		db.log.Warn().Strs("missing", missing).Msg("schema incomplete, applying")
	}

	if _, err := db.Pool.Exec(ctx, string(schemaSQL)); err != nil {
		return err
	}
	db.log.Info().Int("tables", len(missing)).Msg("schema applied")
	return nil
}

func (db *DB) missingTables(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT tablename FROM pg_tables WHERE schemaname = current_schema() AND tablename::text = ANY($1::text[])`,
		ingestionTables,
	)
	if err != nil {
		return nil, err
	}
	present, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return missingFrom(ingestionTables, present), nil
}

// missingFrom returns the names in want that are not in present, in want's order.
func missingFrom(want, present []string) []string {
	have := make(map[string]bool, len(present))
	for _, name := range present {
		have[name] = true
	}
	var missing []string
	for _, name := range want {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	return missing
}
