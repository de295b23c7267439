package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.perks/config.toml.
type Config struct {
	DefaultAccount string `toml:"default_account"`
	// Platform overrides runtime platform detection: "desktop" or "lite".
	Platform string `toml:"platform"`

	Backend BackendConfig `toml:"backend"`
	Queue   QueueConfig   `toml:"queue"`
	Cache   CacheConfig   `toml:"cache"`
}

// BackendConfig points at the hosted backend API.
type BackendConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

// QueueConfig tunes the offline send queue.
type QueueConfig struct {
	MaxAttempts   int `toml:"max_attempts"`
	BackoffBaseMS int `toml:"backoff_base_ms"`
	BackoffCapMS  int `toml:"backoff_cap_ms"`
}

// CacheConfig tunes the local cache bounds.
type CacheConfig struct {
	MaxConversations           int `toml:"max_conversations"`
	MaxMessagesPerConversation int `toml:"max_messages_per_conversation"`
	MaxBusinesses              int `toml:"max_businesses"`
}

// Default returns a config populated with shipping defaults.
func Default() *Config {
	return &Config{
		Platform: "",
		Queue: QueueConfig{
			MaxAttempts:   5,
			BackoffBaseMS: 1000,
			BackoffCapMS:  30000,
		},
		Cache: CacheConfig{
			MaxConversations:           50,
			MaxMessagesPerConversation: 200,
			MaxBusinesses:              100,
		},
	}
}

// Load reads config from the given path and fills unset numeric fields with
// defaults. Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// BackoffBase returns the queue backoff base as a duration.
func (q QueueConfig) BackoffBase() time.Duration {
	return time.Duration(q.BackoffBaseMS) * time.Millisecond
}

// BackoffCap returns the queue backoff cap as a duration.
func (q QueueConfig) BackoffCap() time.Duration {
	return time.Duration(q.BackoffCapMS) * time.Millisecond
}

func (c *Config) normalize() {
	def := Default()
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = def.Queue.MaxAttempts
	}
	if c.Queue.BackoffBaseMS <= 0 {
		c.Queue.BackoffBaseMS = def.Queue.BackoffBaseMS
	}
	if c.Queue.BackoffCapMS <= 0 {
		c.Queue.BackoffCapMS = def.Queue.BackoffCapMS
	}
	if c.Cache.MaxConversations <= 0 {
		c.Cache.MaxConversations = def.Cache.MaxConversations
	}
	if c.Cache.MaxMessagesPerConversation <= 0 {
		c.Cache.MaxMessagesPerConversation = def.Cache.MaxMessagesPerConversation
	}
	if c.Cache.MaxBusinesses <= 0 {
		c.Cache.MaxBusinesses = def.Cache.MaxBusinesses
	}
}
