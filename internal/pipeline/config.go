package pipeline

import (
	"log/slog"
	"os"

	"github.com/caarlos0/env/v10"

	"github.com/csvsift/csvsift/internal/dedup"
	"github.com/csvsift/csvsift/internal/report"
	"github.com/csvsift/csvsift/internal/sink"
	"github.com/csvsift/csvsift/internal/tracker"
)

// Config aggregates all pipeline configuration, loaded from the environment.
type Config struct {
	// LogLevel is the log level (debug, info, warn, error)
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogFormat is the log format (json, text)
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// JournalPath is the SQLite journal database path
	JournalPath string `env:"JOURNAL_PATH" envDefault:"./data/journal.db"`

	// Dedup is the duplicate row detector configuration
	Dedup dedup.Config `envPrefix:""`

	// Tracker is the processed-message tracker configuration
	Tracker tracker.Config `envPrefix:""`

	// Sink is the S3 upload configuration
	Sink sink.Config `envPrefix:""`

	// Report is the NATS report publishing configuration
	Report report.Config `envPrefix:""`
}

// Load parses the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewLogger builds the process logger from the configured level and format.
func NewLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
