package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL   string        `env:"DATABASE_URL,required"`
	DBConnectWait time.Duration `env:"DB_CONNECT_WAIT" envDefault:"30s"`

	// Local transient storage for raw and converted audio.
	WorkDir        string        `env:"WORK_DIR" envDefault:"./audio"`
	RawExt         string        `env:"RAW_EXT" envDefault:"webm"`
	SweepRetention time.Duration `env:"SWEEP_RETENTION" envDefault:"24h"`
	WatchDir       string        `env:"WATCH_DIR"`

	FFmpegPath   string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	AudioBitrate string `env:"AUDIO_BITRATE" envDefault:"192k"`

	STT     STTConfig
	Archive ArchiveConfig
	S3      S3Config
	MinIO   MinIOConfig
	MQTT    MQTTConfig

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	MaxUploadMB  int64         `env:"MAX_UPLOAD_MB" envDefault:"256"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// STTConfig configures the Clova Speech long-sentence recognizer.
type STTConfig struct {
	InvokeURL string        `env:"CLOVA_INVOKE_URL"`
	SecretKey string        `env:"CLOVA_SECRET_KEY"`
	Language  string        `env:"STT_LANGUAGE" envDefault:"ko-KR"`
	Timeout   time.Duration `env:"STT_TIMEOUT" envDefault:"10m"`
	Schema    string        `env:"STT_SCHEMA" envDefault:"auto"` // auto, strict, infer
}

// ArchiveConfig selects the remote archive backend and the order in which
// archival and local cleanup run.
type ArchiveConfig struct {
	Backend string `env:"ARCHIVE_BACKEND" envDefault:"s3"` // s3, minio, local
	Order   string `env:"ARCHIVE_ORDER" envDefault:"archive-first"`
	Dir     string `env:"ARCHIVE_DIR" envDefault:"./archive"` // local backend only
}

type S3Config struct {
	Bucket    string `env:"S3_BUCKET"`
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION" envDefault:"ap-northeast-2"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	Prefix    string `env:"S3_PREFIX"`
}

// Enabled reports whether enough S3 settings are present to build a client.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type MinIOConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	Bucket    string `env:"MINIO_BUCKET"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Secure    bool   `env:"MINIO_SECURE" envDefault:"false"`
}

type MQTTConfig struct {
	BrokerURL   string `env:"MQTT_BROKER_URL"`
	ClientID    string `env:"MQTT_CLIENT_ID" envDefault:"clab-stt"`
	TopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"clab"`
	Username    string `env:"MQTT_USERNAME"`
	Password    string `env:"MQTT_PASSWORD"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile        string
	HTTPAddr       string
	LogLevel       string
	DatabaseURL    string
	WorkDir        string
	ArchiveOrder   string
	ArchiveBackend string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.WorkDir != "" {
		cfg.WorkDir = overrides.WorkDir
	}
	if overrides.ArchiveOrder != "" {
		cfg.Archive.Order = overrides.ArchiveOrder
	}
	if overrides.ArchiveBackend != "" {
		cfg.Archive.Backend = overrides.ArchiveBackend
	}

	return cfg, nil
}
