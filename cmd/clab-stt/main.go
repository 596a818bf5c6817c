package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pyhilandjy/Clab-api-old/internal/config"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	envFile     string
	logLevel    string
	databaseURL string
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:           "clab-stt",
		Short:         "Recording ingestion and transcription pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&g.envFile, "env-file", "", "Path to .env file (default: .env)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&g.databaseURL, "database-url", "", "PostgreSQL connection URL")

	root.AddCommand(newServeCmd(&g))
	root.AddCommand(newCheckCmd(&g))
	return root
}

// loadConfig resolves configuration and builds the root logger. On a config
// error the returned logger is still usable.
func loadConfig(ov config.Overrides) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(ov)
	if err != nil {
		return nil, zerolog.New(os.Stderr).With().Timestamp().Logger(), err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	return cfg, log, nil
}
