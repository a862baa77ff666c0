package config

import (
	"time"

	"github.com/vitalsync/vitalsync/internal/core/route"
	"github.com/vitalsync/vitalsync/internal/core/scheduler"
	"github.com/vitalsync/vitalsync/internal/core/store"
	"github.com/vitalsync/vitalsync/internal/core/userdir"
	"github.com/vitalsync/vitalsync/internal/sink"
)

// Config is the complete application configuration, populated from the
// config file, environment variables, and flag overrides.
type Config struct {
	UserRepository UserRepositoryConfig   `mapstructure:"user_repository"`
	Store          store.Config           `mapstructure:"store"`
	Routes         RoutesConfig           `mapstructure:"routes"`
	Scheduler      scheduler.Config       `mapstructure:"scheduler"`
	Runner         scheduler.RunnerConfig `mapstructure:"runner"`
	Sink           sink.Config            `mapstructure:"sink"`
	Server         ServerConfig           `mapstructure:"server"`
	Logging        LoggingConfig          `mapstructure:"logging"`
}

// UserRepositoryConfig selects and configures the user directory backend.
type UserRepositoryConfig struct {
	// Type is "service" for the REST directory or "yaml" for a local file.
	Type string `mapstructure:"type"`
	// Path is the user file for the yaml backend.
	Path string `mapstructure:"path"`

	Service userdir.ServiceConfig `mapstructure:"service"`
}

// RoutesConfig controls which routes poll and at what chunk size.
type RoutesConfig struct {
	Enabled route.Flags `mapstructure:"enabled"`
	// Intervals overrides the per-route chunk size by route name.
	Intervals map[string]time.Duration `mapstructure:"intervals"`
}

// ServerConfig contains the health/status HTTP server configuration.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, or error.
	Level string `mapstructure:"level"`
	// Format is "console" or "json".
	Format string `mapstructure:"format"`
}
