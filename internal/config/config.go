// Package config loads process configuration from BULKFLOW_* environment
// variables. CLI flags override the parsed values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the settings of one orchestration core process.
type Config struct {
	// DBPath selects the SQLite backend. Empty keeps state in memory.
	DBPath    string `env:"DB_PATH"`
	KeyPrefix string `env:"KEY_PREFIX"`

	MaxBatchSize      int           `env:"MAX_BATCH_SIZE" envDefault:"1000"`
	MaxWorkers        int           `env:"MAX_WORKERS" envDefault:"16"`
	MaxAttempts       int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	RetryBackoff      time.Duration `env:"RETRY_BACKOFF" envDefault:"200ms"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	DefaultBulkExpiry time.Duration `env:"DEFAULT_BULK_EXPIRY" envDefault:"1h"`

	CommandTopic string `env:"COMMAND_TOPIC" envDefault:"bulk.commands"`
	DomainTopic  string `env:"DOMAIN_TOPIC" envDefault:"bulk.domain-events"`

	MetricsAddr  string `env:"METRICS_ADDR"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

// Prefix is prepended to every variable name.
const Prefix = "BULKFLOW_"

// Parse reads the configuration from the process environment.
func Parse() (Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// ParseFrom reads the configuration from vars instead of the process
// environment.
func ParseFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.MaxBatchSize < 1 {
		errs = append(errs, fmt.Errorf("max batch size must be at least 1, got %d", c.MaxBatchSize))
	}
	if c.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("max workers must be at least 1, got %d", c.MaxWorkers))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts))
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("retry backoff must not be negative, got %s", c.RetryBackoff))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("sweep interval must not be negative, got %s", c.SweepInterval))
	}
	if c.DefaultBulkExpiry < 0 {
		errs = append(errs, fmt.Errorf("default bulk expiry must not be negative, got %s", c.DefaultBulkExpiry))
	}
	if strings.TrimSpace(c.CommandTopic) == "" || strings.TrimSpace(c.DomainTopic) == "" {
		errs = append(errs, errors.New("command and domain topics are required"))
	} else if c.CommandTopic == c.DomainTopic {
		errs = append(errs, fmt.Errorf("command and domain topics must differ, both are %q", c.CommandTopic))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}
