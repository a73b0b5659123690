package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/gofhir/hl7validator/pkg/logger"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every invalid field of a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate returns a ValidationError listing every invalid field, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError
	errs = append(errs, validateValidator(&cfg.Validator)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateWatch(&cfg.Watch)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateLog(&cfg.Log)...)
	errs = append(errs, validateMetrics(&cfg.Metrics)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateValidator(cfg *ValidatorConfig) []FieldError {
	var errs []FieldError
	if _, ok := separators[strings.ToLower(cfg.SegmentSeparator)]; !ok {
		errs = append(errs, FieldError{"validator.segment_separator", fmt.Sprintf("must be lf, cr or crlf, got %q", cfg.SegmentSeparator)})
	}
	if cfg.CacheSize < 1 {
		errs = append(errs, FieldError{"validator.cache_size", "must be at least 1"})
	}
	if cfg.Workers < 0 {
		errs = append(errs, FieldError{"validator.workers", "must not be negative"})
	}
	if cfg.Profile != "" {
		if _, err := os.Stat(cfg.Profile); err != nil {
			errs = append(errs, FieldError{"validator.profile", fmt.Sprintf("profile file not accessible: %v", err)})
		}
	}
	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError
	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{"server.listen_address", "must not be empty"})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{"server.read_timeout", "must not be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{"server.write_timeout", "must not be negative"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{"server.shutdown_timeout", "must not be negative"})
	}
	if cfg.MaxBodyBytes < 1 {
		errs = append(errs, FieldError{"server.max_body_bytes", "must be at least 1"})
	}
	return errs
}

func validateWatch(cfg *WatchConfig) []FieldError {
	var errs []FieldError
	if cfg.Dir == "" {
		errs = append(errs, FieldError{"watch.dir", "must not be empty"})
	}
	if cfg.Workers < 1 {
		errs = append(errs, FieldError{"watch.workers", "must be at least 1"})
	}
	for i, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			errs = append(errs, FieldError{fmt.Sprintf("watch.extensions[%d]", i), fmt.Sprintf("must look like \".hl7\", got %q", ext)})
		}
	}
	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	if cfg.Enabled && cfg.Path == "" {
		return []FieldError{{"store.path", "must not be empty when the store is enabled"}}
	}
	return nil
}

func validateLog(cfg *LogConfig) []FieldError {
	var errs []FieldError
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		errs = append(errs, FieldError{"log.level", err.Error()})
	}
	switch logger.Format(cfg.Format) {
	case logger.FormatConsole, logger.FormatJSON:
	default:
		errs = append(errs, FieldError{"log.format", fmt.Sprintf("must be console or json, got %q", cfg.Format)})
	}
	return errs
}

func validateMetrics(cfg *MetricsConfig) []FieldError {
	if cfg.Enabled && !strings.HasPrefix(cfg.Path, "/") {
		return []FieldError{{"metrics.path", fmt.Sprintf("must start with \"/\", got %q", cfg.Path)}}
	}
	return nil
}
