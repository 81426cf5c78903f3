// Package app wires configuration, storage, the domain engine, the HTTP
// surface, and the projection outbox worker into a runnable service.
package app

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/openclock/worklog/internal/platform/config"
)

// Config is the service configuration, loaded from WORKLOG_* environment
// variables.
type Config struct {
	HTTPAddr          string `env:"WORKLOG_HTTP_ADDR" envDefault:":8080"`
	EventsDBPath      string `env:"WORKLOG_EVENTS_DB_PATH" envDefault:"data/events.db"`
	ProjectionsDBPath string `env:"WORKLOG_PROJECTIONS_DB_PATH" envDefault:"data/projections.db"`
	LogLevel          string `env:"WORKLOG_LOG_LEVEL" envDefault:"info"`

	// ProjectionApplyMode selects how appended events reach the read models:
	// "outbox" drains the transactional queue with a background worker;
	// "inline" applies projections on the request path right after append.
	ProjectionApplyMode  string        `env:"WORKLOG_PROJECTION_APPLY_MODE" envDefault:"outbox"`
	OutboxWorkerInterval time.Duration `env:"WORKLOG_OUTBOX_WORKER_INTERVAL" envDefault:"2s"`
	OutboxWorkerBatch    int           `env:"WORKLOG_OUTBOX_WORKER_BATCH" envDefault:"64"`

	ShutdownTimeout time.Duration `env:"WORKLOG_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Projection apply modes.
const (
	ApplyModeOutbox = "outbox"
	ApplyModeInline = "inline"
)

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewLogger builds the service logger. Unknown levels fall back to info.
func NewLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(parsed).With().Timestamp().Logger()
}
