// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the chatflux configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the chat distribution core.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Broker    BrokerConfig    `yaml:"broker"`
	Consumer  ConsumerConfig  `yaml:"consumer"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Registry  RegistryConfig  `yaml:"registry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	Otel      OtelConfig      `yaml:"otel"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	HealthAddr      string        `yaml:"health_addr"`
	HealthEnabled   bool          `yaml:"health_enabled"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BrokerConfig holds Kafka connection settings.
type BrokerConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// ConsumerConfig holds pipeline settings.
type ConsumerConfig struct {
	// Maximum records processed concurrently within one session.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Delay before reconnecting after a clean stream end.
	RestartDelay time.Duration `yaml:"restart_delay"`

	// Delay before reconnecting after a stream error.
	ErrorRestartDelay time.Duration `yaml:"error_restart_delay"`

	// Interval between consumer lag measurements.
	LagInterval time.Duration `yaml:"lag_interval"`
}

// StorageConfig holds storage backend configuration.
type StorageConfig struct {
	Type string `yaml:"type"` // memory, postgres

	PostgresURL string `yaml:"postgres_url"`
}

// CacheConfig holds membership cache settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// RegistryConfig holds connection registry settings.
type RegistryConfig struct {
	MailboxSize int `yaml:"mailbox_size"`
}

// RateLimitConfig holds per-sender publish rate limiting settings.
type RateLimitConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Rate            float64       `yaml:"rate"`  // messages per second per sender
	Burst           int           `yaml:"burst"` // burst allowance per sender
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// OtelConfig holds OpenTelemetry configuration.
type OtelConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Endpoint        string  `yaml:"endpoint"`
	ServiceName     string  `yaml:"service_name"`
	ServiceVersion  string  `yaml:"service_version"`
	TracesEnabled   bool    `yaml:"traces_enabled"`
	MetricsEnabled  bool    `yaml:"metrics_enabled"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"` // 0.0 to 1.0
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":3000",
			HealthAddr:      ":8090",
			HealthEnabled:   true,
			ShutdownTimeout: 30 * time.Second,
		},
		Broker: BrokerConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "chat-messages",
			GroupID: "chat-consumers",
		},
		Consumer: ConsumerConfig{
			MaxConcurrency:    100,
			RestartDelay:      time.Second,
			ErrorRestartDelay: 5 * time.Second,
			LagInterval:       5 * time.Second,
		},
		Storage: StorageConfig{
			Type: "memory",
		},
		Cache: CacheConfig{
			TTL: time.Second,
		},
		Registry: RegistryConfig{
			MailboxSize: 128,
		},
		RateLimit: RateLimitConfig{
			Enabled:         false,
			Rate:            10,
			Burst:           20,
			CleanupInterval: time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Otel: OtelConfig{
			Enabled:         false,
			Endpoint:        "localhost:4317",
			ServiceName:     "chatflux",
			ServiceVersion:  "0.1.0",
			TracesEnabled:   true,
			MetricsEnabled:  true,
			TraceSampleRate: 1.0,
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults when
// the path is empty or the file does not exist.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	if len(c.Broker.Brokers) == 0 {
		return fmt.Errorf("at least one broker address is required")
	}
	if c.Broker.Topic == "" {
		return fmt.Errorf("broker topic is required")
	}
	if c.Broker.GroupID == "" {
		return fmt.Errorf("consumer group id is required")
	}
	if c.Consumer.MaxConcurrency <= 0 {
		return fmt.Errorf("consumer max_concurrency must be positive, got %d", c.Consumer.MaxConcurrency)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %v", c.Cache.TTL)
	}
	if c.Registry.MailboxSize <= 0 {
		return fmt.Errorf("registry mailbox_size must be positive, got %d", c.Registry.MailboxSize)
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres storage requires postgres_url")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate_limit rate must be positive, got %v", c.RateLimit.Rate)
		}
		if c.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate_limit burst must be positive, got %d", c.RateLimit.Burst)
		}
	}

	if c.Otel.Enabled {
		if c.Otel.Endpoint == "" {
			return fmt.Errorf("otel requires an endpoint")
		}
		if c.Otel.TraceSampleRate < 0 || c.Otel.TraceSampleRate > 1 {
			return fmt.Errorf("otel trace_sample_rate must be within [0,1], got %v", c.Otel.TraceSampleRate)
		}
	}

	return nil
}
