// Package config loads a broker node's YAML configuration: its cluster
// identity, listen address, and the shared KVS endpoint every node in the
// cluster points at.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is a single broker node's configuration.
type Config struct {
	Name    string        `yaml:"name"`
	Version string        `yaml:"version"`
	Node    NodeConfig    `yaml:"node"`
	Server  ServerConfig  `yaml:"server"`
	Redis   RedisConfig   `yaml:"redis"`
	Logging LoggingConfig `yaml:"logging"`
}

// NodeConfig identifies this broker within the cluster's presence set.
type NodeConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig is the client-facing TCP listener.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// RedisConfig is the shared KVS endpoint.
type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	DialTimeout    time.Duration `yaml:"dialTimeout"`
	MatchFanout    int           `yaml:"matchFanout"`
	PacketIDWindow int64         `yaml:"packetIdWindow"`
}

// LoggingConfig selects the slog output shape.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses a YAML config file, filling in defaults for any
// field the file leaves zero.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Node.ID == "" {
		cfg.Node.ID = uuid.NewString()
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "1883"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.MatchFanout == 0 {
		cfg.Redis.MatchFanout = 16
	}
	if cfg.Redis.PacketIDWindow == 0 {
		cfg.Redis.PacketIDWindow = 65535
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
