package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pyhilandjy/Clab-api-old/internal/config"
	"github.com/pyhilandjy/Clab-api-old/internal/metrics"
	"github.com/rs/zerolog"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

type ServerOptions struct {
	Config      *config.Config
	Pipeline    Pipeline
	Store       RecordingStore
	DB          HealthChecker
	MQTT        ConnectionStatus // nil when MQTT is not configured
	Live        StatusSource
	ArchiveType string
	Version     string
	StartTime   time.Time
	Log         zerolog.Logger
}

// NewRouter builds the HTTP routes. Separate from NewServer for tests.
func NewRouter(opts ServerOptions) http.Handler {
	log := opts.Log.With().Str("component", "api").Logger()
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)
	r.Use(CORS)

	// Health and metrics, no auth
	health := NewHealthHandler(opts.DB, opts.MQTT, opts.Live, opts.ArchiveType, opts.Version, opts.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	var maxUpload int64
	authToken := ""
	if opts.Config != nil {
		maxUpload = opts.Config.MaxUploadMB << 20
		authToken = opts.Config.AuthToken
	}
	recordings := NewRecordingsHandler(opts.Pipeline, opts.Store, maxUpload, log)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(authToken))
		recordings.Routes(r)
	})

	return r
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      NewRouter(opts),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log.With().Str("component", "api").Logger(),
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
