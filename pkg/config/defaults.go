package config

import "time"

// Default values for configuration fields.
const (
	// Validator defaults
	DefaultSegmentSeparator = "lf"
	DefaultCacheSize        = 16
	DefaultLocations        = true

	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxBodyBytes    = 4 << 20 // 4MB

	// Watch defaults
	DefaultWatchDir     = "inbox"
	DefaultWatchWorkers = 4

	// Store defaults
	DefaultStorePath = "data/history.db"

	// Log defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	// Metrics defaults
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "hl7validator"
)

// DefaultExtensions are the file extensions picked up by the watcher.
var DefaultExtensions = []string{".hl7", ".txt"}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Validator.SegmentSeparator == "" {
		cfg.Validator.SegmentSeparator = DefaultSegmentSeparator
	}
	if cfg.Validator.CacheSize == 0 {
		cfg.Validator.CacheSize = DefaultCacheSize
	}
	if cfg.Validator.Locations == nil {
		locations := DefaultLocations
		cfg.Validator.Locations = &locations
	}

	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if cfg.Watch.Dir == "" {
		cfg.Watch.Dir = DefaultWatchDir
	}
	if len(cfg.Watch.Extensions) == 0 {
		cfg.Watch.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Watch.Workers == 0 {
		cfg.Watch.Workers = DefaultWatchWorkers
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}
