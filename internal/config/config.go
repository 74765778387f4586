// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Validation errors wrap ErrInvalidConfig; loading errors wrap ErrLoadConfig.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone database for hosts without one

	"github.com/okian/dutyqueue/internal/domain/fairness"
	"github.com/okian/dutyqueue/internal/domain/model"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Timezone is the IANA zone used to turn instants into calendar dates.
	Timezone string `koanf:"timezone"`

	// StoreDriver picks the storage backend: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`

	// StoreDSN is the driver-specific data source name.
	StoreDSN string `koanf:"store_dsn"`

	// NATSURL enables the NATS change feed when set; otherwise changes are
	// fanned out in process.
	NATSURL string `koanf:"nats_url"`

	// NATSSubject is the subject change notifications are published on.
	NATSSubject string `koanf:"nats_subject"`

	// BalancePolicy selects which accepted events count: all_time or cycle.
	BalancePolicy string `koanf:"balance_policy"`

	// RotationAnchor is the YYYY-MM-DD date on which team Delta is on duty.
	RotationAnchor string `koanf:"rotation_anchor"`

	// AdminToken gates roster edits and assignment deletion when non-empty.
	AdminToken string `koanf:"admin_token"`

	// IdempotencySize bounds the Idempotency-Key cache; 0 disables the bound.
	IdempotencySize int `koanf:"idempotency_size"`

	// RefreshIntervalMS triggers a periodic full refresh; 0 disables it.
	RefreshIntervalMS int `koanf:"refresh_interval_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		Timezone:          "America/Sao_Paulo",
		StoreDriver:       DriverMemory,
		StoreDSN:          "",
		NATSURL:           "",
		NATSSubject:       "dutyqueue.changes",
		BalancePolicy:     string(fairness.PolicyAllTime),
		RotationAnchor:    "2025-12-17",
		AdminToken:        "",
		IdempotencySize:   10_000,
		RefreshIntervalMS: 60_000,
	}
}

// Validate checks field values and cross-field rules.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.StoreDSN) == "" {
			return fmt.Errorf("%w: store_dsn is required for driver %q", ErrInvalidConfig, c.StoreDriver)
		}
	default:
		return fmt.Errorf("%w: %w %q", ErrInvalidConfig, ErrUnknownDriver, c.StoreDriver)
	}
	if c.NATSURL != "" && strings.TrimSpace(c.NATSSubject) == "" {
		return fmt.Errorf("%w: nats_subject must not be empty", ErrInvalidConfig)
	}
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.Anchor(); err != nil {
		return fmt.Errorf("%w: rotation_anchor: %v", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	if c.IdempotencySize < 0 {
		return fmt.Errorf("%w: idempotency_size must not be negative", ErrInvalidConfig)
	}
	if c.RefreshIntervalMS < 0 {
		return fmt.Errorf("%w: refresh_interval_ms must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Location resolves Timezone; the empty string means UTC.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Policy parses BalancePolicy.
func (c *Config) Policy() (fairness.Policy, error) {
	return fairness.ParsePolicy(c.BalancePolicy)
}

// Anchor parses RotationAnchor; the empty string yields the zero Date.
func (c *Config) Anchor() (model.Date, error) {
	if strings.TrimSpace(c.RotationAnchor) == "" {
		return model.Date{}, nil
	}
	return model.ParseDate(c.RotationAnchor)
}

// RefreshInterval returns RefreshIntervalMS as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMS) * time.Millisecond
}
