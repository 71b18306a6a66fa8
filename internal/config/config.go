// Package config loads the loom.yaml application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// FileName is the default configuration file name.
	FileName = "loom.yaml"

	// DefaultHost is the default server host.
	DefaultHost = "localhost"

	// DefaultPort is the default server port.
	DefaultPort = 3000
)

// Config is the complete application configuration.
type Config struct {
	// Server configures the HTTP shell.
	Server ServerConfig `yaml:"server"`

	// Store configures the reactive store policies.
	Store StoreConfig `yaml:"store"`

	// Persistence selects and configures the snapshot sink.
	Persistence PersistenceConfig `yaml:"persistence"`
}

// ServerConfig configures the HTTP shell.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig configures store policies.
type StoreConfig struct {
	// Match is the subscriber matching policy: "ancestor" (default)
	// notifies ancestor-path subscribers too, "exact" does not.
	Match string `yaml:"match"`

	// SweepInterval enables the periodic expiry sweep when positive.
	SweepInterval Duration `yaml:"sweep_interval"`
}

// Duration is a time.Duration that decodes from yaml duration strings
// such as "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// PersistenceConfig selects the snapshot sink.
type PersistenceConfig struct {
	// Driver is one of "", "file", "bolt", "redis", "s3".
	// Empty disables persistence.
	Driver string `yaml:"driver"`

	// Path is the file path for the file and bolt drivers.
	Path string `yaml:"path"`

	// Addr is the redis address for the redis driver.
	Addr string `yaml:"addr"`

	// Key is the hash key (redis) or object key (s3).
	Key string `yaml:"key"`

	// Bucket is the S3 bucket for the s3 driver.
	Bucket string `yaml:"bucket"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Store: StoreConfig{
			Match: "ancestor",
		},
	}
}

// Load reads the configuration file at path, layering it over defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Match {
	case "", "ancestor", "exact":
	default:
		return fmt.Errorf("store.match: unknown policy %q", c.Store.Match)
	}
	switch c.Persistence.Driver {
	case "", "file", "bolt", "redis", "s3":
	default:
		return fmt.Errorf("persistence.driver: unknown driver %q", c.Persistence.Driver)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	return nil
}
