// Package config loads the daemon's YAML configuration, layering file
// values over defaults and validating the result before anything is
// wired.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/loomkit/loom/pkg/errors"
	"github.com/loomkit/loom/pkg/logging"
	"github.com/loomkit/loom/pkg/miner"
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		var n int64
		if err := value.Decode(&n); err != nil {
			return err
		}
		*d = Duration(n)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config is the daemon configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Store   StoreConfig   `yaml:"store"`
	Mining  MiningConfig  `yaml:"mining"`
	Router  RouterConfig  `yaml:"router"`
	Trigger TriggerConfig `yaml:"trigger"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory sqlite"`
	Path    string `yaml:"path"`

	// RedisAddr, when set, moves arm stats to Redis so several
	// resolver replicas can share posteriors.
	RedisAddr string `yaml:"redis_addr"`
}

// MiningConfig holds the pipeline thresholds.
type MiningConfig struct {
	MinTraces           int      `yaml:"min_traces" validate:"gte=2"`
	MaxTraces           int      `yaml:"max_traces" validate:"gte=0"`
	AlignmentThreshold  float64  `yaml:"alignment_threshold" validate:"gte=0,lte=1"`
	ConsensusThreshold  float64  `yaml:"consensus_threshold" validate:"gte=0,lte=1"`
	RequiredThreshold   float64  `yaml:"required_threshold" validate:"gte=0,lte=1"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold" validate:"gte=0,lte=1"`
	FetchRetries        int      `yaml:"fetch_retries" validate:"gte=0"`
	RetryBackoff        Duration `yaml:"retry_backoff"`
	MaxConcurrent       int      `yaml:"max_concurrent" validate:"gte=1"`
}

// RouterConfig holds the Beta prior for new arms.
type RouterConfig struct {
	PriorAlpha float64 `yaml:"prior_alpha" validate:"gt=0"`
	PriorBeta  float64 `yaml:"prior_beta" validate:"gt=0"`
}

// TriggerConfig selects how mining cycles start.
type TriggerConfig struct {
	Mode     string   `yaml:"mode" validate:"oneof=event interval"`
	Interval Duration `yaml:"interval"`
}

// Default returns the standard configuration.
func Default() *Config {
	mining := miner.DefaultConfig()
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Store:   StoreConfig{Backend: "sqlite", Path: "loom.db"},
		Mining: MiningConfig{
			MinTraces:           mining.MinTraces,
			MaxTraces:           mining.MaxTraces,
			AlignmentThreshold:  mining.AlignmentThreshold,
			ConsensusThreshold:  mining.ConsensusThreshold,
			RequiredThreshold:   mining.RequiredThreshold,
			ConfidenceThreshold: mining.ConfidenceThreshold,
			FetchRetries:        mining.FetchRetries,
			RetryBackoff:        Duration(mining.RetryBackoff),
			MaxConcurrent:       mining.MaxConcurrent,
		},
		Router:  RouterConfig{PriorAlpha: 1, PriorBeta: 1},
		Trigger: TriggerConfig{Mode: "event", Interval: Duration(5 * time.Minute)},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read config file")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to parse config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, errors.InvalidInput, "invalid configuration")
	}
	if c.Trigger.Mode == "interval" && c.Trigger.Interval <= 0 {
		return errors.New(errors.InvalidInput, "interval trigger requires a positive interval")
	}
	return nil
}

// MinerConfig converts the mining section to the miner's config type.
func (c *Config) MinerConfig() miner.Config {
	return miner.Config{
		MinTraces:           c.Mining.MinTraces,
		MaxTraces:           c.Mining.MaxTraces,
		AlignmentThreshold:  c.Mining.AlignmentThreshold,
		ConsensusThreshold:  c.Mining.ConsensusThreshold,
		RequiredThreshold:   c.Mining.RequiredThreshold,
		ConfidenceThreshold: c.Mining.ConfidenceThreshold,
		FetchRetries:        c.Mining.FetchRetries,
		RetryBackoff:        time.Duration(c.Mining.RetryBackoff),
		MaxConcurrent:       c.Mining.MaxConcurrent,
	}
}

// Severity maps the configured level to the logger's scale.
func (c *Config) Severity() logging.Severity {
	switch c.Logging.Level {
	case "debug":
		return logging.DEBUG
	case "warn":
		return logging.WARN
	case "error":
		return logging.ERROR
	default:
		return logging.INFO
	}
}
