// Package common holds the configuration and wiring shared by the prover
// binaries.
package common

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flashbots/dekzg/network"
	"github.com/flashbots/dekzg/services"
)

// Config is the YAML configuration of one proving party.
type Config struct {
	PartyID        int           `yaml:"party_id"`
	HostsFile      string        `yaml:"hosts_file"`
	Session        string        `yaml:"session"`
	HTTPAddr       string        `yaml:"http_addr"`
	Polynomials    int           `yaml:"polynomials"`
	Points         int           `yaml:"points_per_polynomial"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CrossCheck     bool          `yaml:"cross_check"`

	SRS struct {
		Seed     string `yaml:"seed"`
		CacheDir string `yaml:"cache_dir"`
		XLogSize int    `yaml:"x_log_size"`
	} `yaml:"srs"`

	Store struct {
		Postgres *services.PostgresConfig `yaml:"postgres"`
	} `yaml:"store"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{
		HostsFile:      "hosts",
		Session:        "dekzg",
		Polynomials:    2,
		Points:         2,
		ConnectTimeout: network.DefaultConnectTimeout,
	}
	cfg.SRS.Seed = "dekzg"
	cfg.SRS.XLogSize = 4
	cfg.Log.Level = "info"
	return cfg
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields every binary relies on.
func (c *Config) Validate() error {
	if c.HostsFile == "" {
		return fmt.Errorf("hosts_file is required")
	}
	if c.PartyID < 0 {
		return fmt.Errorf("party_id must not be negative")
	}
	if c.SRS.XLogSize < 1 || c.SRS.XLogSize > 24 {
		return fmt.Errorf("srs.x_log_size must be in [1, 24], got %d", c.SRS.XLogSize)
	}
	if c.Polynomials < 1 || c.Points < 1 {
		return fmt.Errorf("polynomials and points_per_polynomial must be positive")
	}
	if c.SRS.Seed == "" {
		return fmt.Errorf("srs.seed is required")
	}
	return nil
}

// NewLogger builds the process logger from the log section.
func NewLogger(c *Config) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.JSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

// NewProofStore opens the configured proof archive, PostgreSQL when the
// store.postgres section is present and memory otherwise.
func NewProofStore(c *Config) (services.ProofStore, error) {
	if c.Store.Postgres != nil {
		return services.NewPostgresStore(c.Store.Postgres)
	}
	return services.NewMemoryStore(), nil
}

// SessionConfig derives the session settings of the party.
func (c *Config) SessionConfig(store services.ProofStore, log *slog.Logger) services.SessionConfig {
	sc := services.SessionConfig{
		Session:             c.Session,
		XLogSize:            c.SRS.XLogSize,
		Polynomials:         c.Polynomials,
		PointsPerPolynomial: c.Points,
		SRSSeed:             []byte(c.SRS.Seed),
		Store:               store,
		CrossCheck:          c.CrossCheck,
		Log:                 log,
	}
	if c.SRS.CacheDir != "" {
		sc.SRSCache = &services.SRSCache{Dir: c.SRS.CacheDir}
	}
	return sc
}
