package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/gofhir/hl7validator/pkg/logger"
	"github.com/gofhir/hl7validator/pkg/metrics"
	"github.com/gofhir/hl7validator/pkg/profile"
	"github.com/gofhir/hl7validator/pkg/validator"
)

var separators = map[string]string{
	"lf":   "\n",
	"cr":   "\r",
	"crlf": "\r\n",
}

// Separator returns the segment separator text for the configured name.
func (c *ValidatorConfig) Separator() string {
	if sep, ok := separators[strings.ToLower(c.SegmentSeparator)]; ok {
		return sep
	}
	return "\n"
}

// ValidatorOptions maps the validator section to validator options,
// loading the profile file when one is configured. m may be nil.
func (c *Config) ValidatorOptions(m *metrics.Metrics) ([]validator.Option, error) {
	v := c.Validator
	opts := []validator.Option{
		validator.WithStrictMode(v.Strict),
		validator.WithSegmentSeparator(v.Separator()),
		validator.WithCacheSize(v.CacheSize),
		validator.WithWorkers(v.Workers),
	}
	if v.Locations != nil {
		opts = append(opts, validator.WithLocations(*v.Locations))
	}
	if v.Profile != "" {
		p, err := profile.Load(v.Profile)
		if err != nil {
			return nil, fmt.Errorf("validator.profile: %w", err)
		}
		opts = append(opts, validator.WithProfile(p))
	}
	if m != nil {
		opts = append(opts, validator.WithMetrics(m))
	}
	return opts, nil
}

// NewLogger builds a logger from the log section. The section is assumed
// to have passed Validate.
func (c *Config) NewLogger(w io.Writer) *logger.Logger {
	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		level = logger.LevelInfo
	}
	return logger.NewWithFormat(w, level, logger.Format(c.Log.Format))
}
