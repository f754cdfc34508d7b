package config

import (
	"time"

	"github.com/brahim-guaali/error-boundary/internal/infra/grpccollect"
	redisclient "github.com/brahim-guaali/error-boundary/internal/infra/redis"
	"github.com/brahim-guaali/error-boundary/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Boundaries []BoundaryConfig `yaml:"boundaries"`
	Reporters  ReportersConfig  `yaml:"reporters"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// BoundaryConfig holds settings for one boundary instance.
type BoundaryConfig struct {
	Name   string       `yaml:"name"`
	Policy PolicyConfig `yaml:"policy"`
}

// PolicyConfig selects and parameterizes the recovery policy.
type PolicyConfig struct {
	// Type is one of "none", "retry", "reset".
	Type        string        `yaml:"type"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	UseBackoff  *bool         `yaml:"use_backoff"`
}

// ReportersConfig enables and configures the reporter sinks. A sink is
// active when its connection settings are present.
type ReportersConfig struct {
	// MinSeverity filters the persistent sinks (redis, postgres, grpc);
	// the log sink always sees everything.
	MinSeverity string `yaml:"min_severity"`

	Redis     redisclient.Config `yaml:"redis"`
	Database  postgres.Config    `yaml:"database"`
	Collector grpccollect.Config `yaml:"collector"`
}
