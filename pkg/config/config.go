// Package config loads the hl7-validator configuration.
//
// A configuration file is YAML (.yaml, .yml) or TOML (.toml). Loading
// applies defaults, then environment overrides named HL7V_SECTION_FIELD
// (for example HL7V_SERVER_LISTEN_ADDRESS), then validates the result and
// reports every invalid field at once.
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	Validator ValidatorConfig `yaml:"validator" toml:"validator"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Watch     WatchConfig     `yaml:"watch" toml:"watch"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ValidatorConfig configures the validation pipeline.
type ValidatorConfig struct {
	// Profile is a YAML profile file; the built-in ELR profile when empty.
	Profile string `yaml:"profile" toml:"profile"`

	// Strict reports warnings as errors.
	Strict bool `yaml:"strict" toml:"strict"`

	// SegmentSeparator is "lf", "cr" or "crlf".
	SegmentSeparator string `yaml:"segment_separator" toml:"segment_separator"`

	CacheSize int `yaml:"cache_size" toml:"cache_size"`

	// Workers bounds batch concurrency; 0 uses GOMAXPROCS.
	Workers int `yaml:"workers" toml:"workers"`

	// Locations attaches line and column to findings.
	Locations *bool `yaml:"locations" toml:"locations"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	ListenAddress   string        `yaml:"listen_address" toml:"listen_address"`
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" toml:"max_body_bytes"`
}

// WatchConfig configures the inbox directory watcher.
type WatchConfig struct {
	Dir        string   `yaml:"dir" toml:"dir"`
	Extensions []string `yaml:"extensions" toml:"extensions"`
	Workers    int      `yaml:"workers" toml:"workers"`
}

// StoreConfig configures the validation history database.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Path      string `yaml:"path" toml:"path"`
	Namespace string `yaml:"namespace" toml:"namespace"`
}
