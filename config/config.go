/*
Package config reads server settings from the environment.

PURPOSE:
  One place for every knob of cmd/server. Values come from, in order of
  precedence: command-line flags (applied by main), environment variables,
  a .env file in the working directory, and the defaults below.

VARIABLES:
  PORT                   HTTP port (default 8080)
  NOTARY_DB_PATH         SQLite path for uploaded documents (default notary.db)
  NOTARY_DISABLE_STORE   Serve the embedded tables only, no database
  LOG_LEVEL              debug | info | warn | error (default info)
  LOG_FORMAT             json | text (default json)
  CORS_ALLOWED_ORIGINS   Comma-separated origins
  RELOAD_INTERVAL        Document change check, e.g. 30s (0 disables)
  SHUTDOWN_TIMEOUT       Graceful shutdown budget (default 30s)

USAGE:
  cfg, err := config.Load()
  if err != nil {
      log.Fatal(err)
  }
  logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
*/
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the server settings.
type Config struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	DBPath          string        `env:"NOTARY_DB_PATH" envDefault:"notary.db"`
	DisableStore    bool          `env:"NOTARY_DISABLE_STORE"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:8080"`
	ReloadInterval  time.Duration `env:"RELOAD_INTERVAL" envDefault:"1m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load reads a .env file if one exists, then the environment.
func Load() (Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges. main calls it again after applying flags.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if !c.DisableStore && strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("database path is required unless the store is disabled"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("log format %q: want json or text", c.LogFormat))
	}
	if c.ReloadInterval < 0 {
		errs = append(errs, errors.New("reload interval must not be negative"))
	}
	return errors.Join(errs...)
}

// =============================================================================
// LOGGING
// =============================================================================

// ParseLevel maps a LOG_LEVEL value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// NewLogger builds the process logger. Timestamps are RFC3339.
func NewLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler), nil
}
