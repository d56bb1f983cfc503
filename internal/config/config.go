// Package config loads the gateway configuration from a YAML file with
// compiled-in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chat-gateway/backend/internal/model"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Events   EventsConfig   `yaml:"events"`
	Sessions SessionsConfig `yaml:"sessions"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type RecoveryConfig struct {
	Enabled       bool `yaml:"enabled"`
	MaxConcurrent int  `yaml:"max_concurrent"`
}

type WebhookConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type EventsConfig struct {
	// Suppressed lists event types excluded from fan-out.
	Suppressed []model.EventType `yaml:"suppressed"`

	// HistorySize is the per-session replay buffer for new WebSocket
	// subscribers.
	HistorySize int `yaml:"history_size"`
}

type SessionsConfig struct {
	ReadyTimeout        time.Duration `yaml:"ready_timeout"`
	ShutdownParallelism int           `yaml:"shutdown_parallelism"`
	ConnectDelay        time.Duration `yaml:"connect_delay"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Store: StoreConfig{
			Path: "data/sessions.db",
		},
		Recovery: RecoveryConfig{
			Enabled:       true,
			MaxConcurrent: 2,
		},
		Webhook: WebhookConfig{
			Timeout: 10 * time.Second,
		},
		Events: EventsConfig{
			HistorySize: 64,
		},
		Sessions: SessionsConfig{
			ReadyTimeout:        time.Minute,
			ShutdownParallelism: 4,
		},
	}
}

// Load reads the configuration file at path over the defaults. A
// missing file is not an error: the defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Recovery.MaxConcurrent < 0 {
		return fmt.Errorf("recovery max_concurrent must not be negative")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}
	return nil
}
