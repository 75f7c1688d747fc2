// Package config provides configuration loading for the trigger service.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete trigger service configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Identity IdentityConfig `yaml:"identity"`
	Store    StoreConfig    `yaml:"store"`
	Poller   PollerConfig   `yaml:"poller"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// ServiceConfig names the deployment.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

// IdentityConfig configures the Globus-Auth-shaped identity client.
type IdentityConfig struct {
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// StoreConfig configures the NATS JetStream Key/Value bucket backing the
// trigger store.
type StoreConfig struct {
	NATSURL string `yaml:"nats_url"`
	Bucket  string `yaml:"bucket"`
}

// PollerConfig holds poller settings. QueueBaseURL configures the queue
// client. MinPollTime, MaxPollTime and ReaperChannelCapacity are loaded,
// merged and validated, but the poller and reaper use their own compiled-in
// values (1s, 30s and 100) and do not read these fields.
type PollerConfig struct {
	MinPollTime           time.Duration `yaml:"min_poll_time"`
	MaxPollTime           time.Duration `yaml:"max_poll_time"`
	ReaperChannelCapacity int           `yaml:"reaper_channel_capacity"`
	QueueBaseURL          string        `yaml:"queue_base_url"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// HTTPConfig configures the HTTP listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "triggers",
			Environment: "development",
		},
		Identity: IdentityConfig{
			BaseURL: "https://auth.globus.org",
		},
		Store: StoreConfig{
			NATSURL: "nats://127.0.0.1:4222",
			Bucket:  "TRIGGERS",
		},
		Poller: PollerConfig{
			MinPollTime:           1 * time.Second,
			MaxPollTime:           30 * time.Second,
			ReaperChannelCapacity: 100,
			QueueBaseURL:          "https://queues.api.globus.org/v1",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service.name is required")
	}
	if c.Identity.ClientID == "" || c.Identity.ClientSecret == "" {
		return fmt.Errorf("identity.client_id and identity.client_secret are required")
	}
	if c.Store.Bucket == "" {
		return fmt.Errorf("store.bucket is required")
	}
	if c.Poller.MinPollTime <= 0 || c.Poller.MaxPollTime < c.Poller.MinPollTime {
		return fmt.Errorf("poller.min_poll_time must be positive and not exceed poller.max_poll_time")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, starting from
// defaults so unspecified fields keep sensible values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Merge applies non-zero fields from other onto c, other taking precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Service.Name != "" {
		c.Service.Name = other.Service.Name
	}
	if other.Service.Environment != "" {
		c.Service.Environment = other.Service.Environment
	}

	if other.Identity.BaseURL != "" {
		c.Identity.BaseURL = other.Identity.BaseURL
	}
	if other.Identity.ClientID != "" {
		c.Identity.ClientID = other.Identity.ClientID
	}
	if other.Identity.ClientSecret != "" {
		c.Identity.ClientSecret = other.Identity.ClientSecret
	}

	if other.Store.NATSURL != "" {
		c.Store.NATSURL = other.Store.NATSURL
	}
	if other.Store.Bucket != "" {
		c.Store.Bucket = other.Store.Bucket
	}

	if other.Poller.MinPollTime != 0 {
		c.Poller.MinPollTime = other.Poller.MinPollTime
	}
	if other.Poller.MaxPollTime != 0 {
		c.Poller.MaxPollTime = other.Poller.MaxPollTime
	}
	if other.Poller.ReaperChannelCapacity != 0 {
		c.Poller.ReaperChannelCapacity = other.Poller.ReaperChannelCapacity
	}
	if other.Poller.QueueBaseURL != "" {
		c.Poller.QueueBaseURL = other.Poller.QueueBaseURL
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}

	if other.HTTP.Addr != "" {
		c.HTTP.Addr = other.HTTP.Addr
	}
}
