package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pyhilandjy/Clab-api-old/internal/config"
	"github.com/pyhilandjy/Clab-api-old/internal/database"
	"github.com/pyhilandjy/Clab-api-old/internal/pipeline"
)

type checkFlags struct {
	failed     int
	staleAfter time.Duration
	purgeDone  time.Duration
	fixOrphans bool
}

func newCheckCmd(g *globalFlags) *cobra.Command {
	var f checkFlags
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report table counts, failed and stalled runs, and orphaned segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), config.Overrides{
				EnvFile:     g.envFile,
				LogLevel:    g.logLevel,
				DatabaseURL: g.databaseURL,
			}, f)
		},
	}
	cmd.Flags().IntVar(&f.failed, "failed", 20, "Number of recent failed runs to list")
	cmd.Flags().DurationVar(&f.staleAfter, "stale-after", time.Hour, "Report unfinished runs not updated for this long")
	cmd.Flags().DurationVar(&f.purgeDone, "purge-done", 0, "Delete done run records older than this (0 disables)")
	cmd.Flags().BoolVar(&f.fixOrphans, "fix-orphans", false, "Delete segments of failed or stalled runs that have no metadata row")
	return cmd
}

func runCheck(ctx context.Context, ov config.Overrides, f checkFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := loadConfig(ov)
	if err != nil {
		return err
	}
	db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBConnectWait, log.With().Str("component", "database").Logger())
	if err != nil {
		return err
	}
	defer db.Close()

	counts, err := db.TableCounts(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Table                    Count")
	fmt.Println("─────────────────────────────────")
	for _, c := range counts {
		fmt.Printf("%-25s %s\n", c.Table, humanize.Comma(c.Rows))
	}

	fmt.Println("\n── Recent Failed Runs ──")
	failed, err := db.ListRuns(ctx, pipeline.StateFailed, f.failed)
	if err != nil {
		return err
	}
	if len(failed) == 0 {
		fmt.Println("  (none)")
	}
	for _, r := range failed {
		fmt.Printf("  %s  stage=%s  %s  %s\n", r.RecordingID, r.FailedStage, humanize.Time(r.UpdatedAt), r.Error)
	}

	fmt.Println("\n── Stalled Runs ──")
	cutoff := time.Now().Add(-f.staleAfter)
	stale, err := db.StaleRuns(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		fmt.Println("  (none)")
	}
	for _, r := range stale {
		fmt.Printf("  %s  state=%s  last update %s\n", r.RecordingID, r.State, humanize.Time(r.UpdatedAt))
	}

	fmt.Println("\n── Segments Without Metadata ──")
	if err := reportOrphans(ctx, os.Stdout, db, cutoff, f.fixOrphans); err != nil {
		return err
	}

	if f.purgeDone > 0 {
		n, err := db.PurgeFinishedRuns(ctx, f.purgeDone)
		if err != nil {
			return err
		}
		fmt.Printf("\nPurged %s done run records older than %s\n", humanize.Comma(n), f.purgeDone)
	}
	return nil
}

// orphanStore is the part of the database reportOrphans needs.
type orphanStore interface {
	OrphanSegments(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteOrphanSegments(ctx context.Context, recordingID string, cutoff time.Time) (int64, error)
}

// reportOrphans lists recordings whose segments have no metadata row and, with
// fix, deletes them. Runs that made progress after cutoff are left alone.
func reportOrphans(ctx context.Context, w io.Writer, db orphanStore, cutoff time.Time, fix bool) error {
	orphans, err := db.OrphanSegments(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, id := range orphans {
		if !fix {
			fmt.Fprintf(w, "  %s\n", id)
			continue
		}
		n, err := db.DeleteOrphanSegments(ctx, id, cutoff)
		if err != nil {
			return fmt.Errorf("delete segments of %s: %w", id, err)
		}
		fmt.Fprintf(w, "  %s  deleted %d segments\n", id, n)
	}
	if len(orphans) > 0 && !fix {
		fmt.Fprintln(w, "  (re-run with --fix-orphans to delete)")
	}
	return nil
}
