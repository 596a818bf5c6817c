package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	clabstt "github.com/pyhilandjy/Clab-api-old"
	"github.com/pyhilandjy/Clab-api-old/internal/api"
	"github.com/pyhilandjy/Clab-api-old/internal/audio"
	"github.com/pyhilandjy/Clab-api-old/internal/config"
	"github.com/pyhilandjy/Clab-api-old/internal/database"
	"github.com/pyhilandjy/Clab-api-old/internal/ingest"
	"github.com/pyhilandjy/Clab-api-old/internal/metrics"
	"github.com/pyhilandjy/Clab-api-old/internal/mqttclient"
	"github.com/pyhilandjy/Clab-api-old/internal/pipeline"
	"github.com/pyhilandjy/Clab-api-old/internal/storage"
	"github.com/pyhilandjy/Clab-api-old/internal/transcribe"
	"github.com/pyhilandjy/Clab-api-old/internal/transcript"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var ov config.Overrides
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP upload API and the ingestion pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ov.EnvFile = g.envFile
			ov.LogLevel = g.logLevel
			ov.DatabaseURL = g.databaseURL
			return runServe(ov)
		},
	}
	cmd.Flags().StringVar(&ov.HTTPAddr, "listen", "", "HTTP listen address (default :8080)")
	cmd.Flags().StringVar(&ov.WorkDir, "work-dir", "", "Directory for raw and converted audio")
	cmd.Flags().StringVar(&ov.ArchiveOrder, "archive-order", "", "archive-first or cleanup-first")
	cmd.Flags().StringVar(&ov.ArchiveBackend, "archive-backend", "", "s3, minio, or local")
	return cmd
}

func runServe(ov config.Overrides) error {
	startTime := time.Now()

	cfg, log, err := loadConfig(ov)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return err
	}
	log.Info().Str("version", version).Msg("clab-stt starting")

	// Validate settings that would otherwise fail mid-run.
	schema, err := transcript.SchemaByName(cfg.STT.Schema)
	if err != nil {
		return err
	}
	order, err := pipeline.ParseArchiveOrder(cfg.Archive.Order)
	if err != nil {
		return err
	}
	if cfg.STT.InvokeURL == "" || cfg.STT.SecretKey == "" {
		return errors.New("CLOVA_INVOKE_URL and CLOVA_SECRET_KEY are required")
	}
	converter := audio.NewFFmpegConverter(cfg.FFmpegPath, cfg.AudioBitrate)
	if err := converter.Check(); err != nil {
		return fmt.Errorf("ffmpeg unavailable: %w", err)
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBConnectWait, log.With().Str("component", "database").Logger())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	if err := db.InitSchema(ctx, clabstt.SchemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	// Archive
	archiver, err := storage.NewArchiver(cfg, log.With().Str("component", "archive").Logger())
	if err != nil {
		return err
	}

	// MQTT (optional)
	var events pipeline.EventPublisher
	var mqttStatus api.ConnectionStatus
	if cfg.MQTT.BrokerURL != "" {
		mq, err := mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTT.BrokerURL,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			Log:         log,
		})
		if err != nil {
			return fmt.Errorf("connect mqtt broker: %w", err)
		}
		defer mq.Close()
		events = mq
		mqttStatus = mq
	}

	// Pipeline
	store := storage.NewLocalStore(cfg.WorkDir, cfg.RawExt)
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	var stt transcribe.Provider = transcribe.NewClovaClient(cfg.STT.InvokeURL, cfg.STT.SecretKey, cfg.STT.Language, cfg.STT.Timeout)
	orch := pipeline.New(pipeline.Options{
		Store:       store,
		Converter:   converter,
		Transcriber: stt,
		Normalizer:  transcript.NewNormalizer(schema, transcript.DefaultPunctuation, log),
		Writer:      db,
		Archiver:    archiver,
		Runs:        db,
		Events:      events,
		Order:       order,
		STTTimeout:  cfg.STT.Timeout,
		Log:         log,
	})
	log.Info().
		Str("stt", stt.Name()).
		Str("schema", schema.Name()).
		Str("archive", archiver.Type()).
		Str("archive_order", string(order)).
		Str("work_dir", cfg.WorkDir).
		Msg("pipeline ready")

	prometheus.MustRegister(metrics.NewCollector(db.Pool, orch))

	// Background services
	failedRun := func(ctx context.Context, id string) bool {
		run, err := db.GetRun(ctx, id)
		return err == nil && run.State == pipeline.StateFailed
	}
	sweeper := storage.NewSweeper(store, archiver, orch.InFlight, failedRun, cfg.SweepRetention, log)
	sweeper.Start()
	defer sweeper.Stop()

	var watcher *ingest.DropWatcher
	if cfg.WatchDir != "" {
		watcher = ingest.NewDropWatcher(orch, cfg.WatchDir, log)
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start drop watcher: %w", err)
		}
	}

	// HTTP Server
	srv := api.NewServer(api.ServerOptions{
		Config:      cfg,
		Pipeline:    orch,
		Store:       db,
		DB:          db,
		MQTT:        mqttStatus,
		Live:        liveStatus{orch: orch, watcher: watcher},
		ArchiveType: archiver.Type(),
		Version:     version,
		StartTime:   startTime,
		Log:         log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Error().Err(serveErr).Msg("http server error")
		}
	}

	// Stop intake first, then let accepted runs finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	if watcher != nil {
		watcher.Stop()
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.STT.Timeout+5*time.Minute)
	defer cancelDrain()
	if err := orch.Shutdown(drainCtx); err != nil {
		log.Warn().Err(err).Int("in_flight", orch.InFlightCount()).Msg("exiting with pipeline runs in flight")
	}

	log.Info().Msg("clab-stt stopped")
	return serveErr
}

// liveStatus adapts running components for the health endpoint.
type liveStatus struct {
	orch    *pipeline.Orchestrator
	watcher *ingest.DropWatcher
}

func (l liveStatus) PipelineStats() *pipeline.Stats {
	s := l.orch.Stats()
	return &s
}

func (l liveStatus) WatcherStatus() *ingest.WatcherStatus {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Status()
}
