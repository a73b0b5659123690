// Package validator runs the two-stage HL7 v2 validation pipeline: the
// segment sequence gate followed by the field rule tables.
package validator

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gofhir/hl7validator/pkg/cache"
	"github.com/gofhir/hl7validator/pkg/grammar"
	"github.com/gofhir/hl7validator/pkg/issue"
	"github.com/gofhir/hl7validator/pkg/location"
	"github.com/gofhir/hl7validator/pkg/logger"
	"github.com/gofhir/hl7validator/pkg/message"
	"github.com/gofhir/hl7validator/pkg/metrics"
	"github.com/gofhir/hl7validator/pkg/profile"
	"github.com/gofhir/hl7validator/pkg/rules"
)

// DefaultCacheSize is the number of compiled grammars kept by a Validator.
const DefaultCacheSize = 16

// Validator validates HL7 v2 messages against one profile.
// It is safe for concurrent use.
type Validator struct {
	config   *Config
	grammar  grammar.Spec
	rules    *rules.Registry
	compiler *grammar.Compiler
	pattern  *grammar.Pattern
}

// Config holds the validator configuration.
type Config struct {
	Profile          *profile.Profile // Grammar and rules; the ELR profile when nil
	Grammar          *grammar.Spec    // Overrides the profile grammar
	Rules            *rules.Registry  // Overrides the profile rules
	StrictMode       bool             // Treat warnings as errors
	SegmentSeparator string           // Segment separator; "\n" when empty
	CacheSize        int              // Compiled grammar cache size
	Locations        bool             // Attach line and column to issues
	Workers          int              // ValidateBatch concurrency; GOMAXPROCS when <= 0
	Metrics          *metrics.Metrics // Optional metrics sink
}

// Option is a functional option for configuring the validator.
type Option func(*Config)

// WithProfile sets the profile to validate against.
func WithProfile(p *profile.Profile) Option {
	return func(c *Config) {
		c.Profile = p
	}
}

// WithGrammar replaces the profile's segment grammar.
func WithGrammar(spec grammar.Spec) Option {
	return func(c *Config) {
		c.Grammar = &spec
	}
}

// WithRegistry replaces the profile's field rules.
func WithRegistry(reg *rules.Registry) Option {
	return func(c *Config) {
		c.Rules = reg
	}
}

// WithStrictMode enables strict mode (warnings become errors).
func WithStrictMode(strict bool) Option {
	return func(c *Config) {
		c.StrictMode = strict
	}
}

// WithSegmentSeparator sets the segment separator, e.g. "\r" for wire-format messages.
func WithSegmentSeparator(sep string) Option {
	return func(c *Config) {
		c.SegmentSeparator = sep
	}
}

// WithCacheSize sets how many compiled grammars are kept.
func WithCacheSize(n int) Option {
	return func(c *Config) {
		c.CacheSize = n
	}
}

// WithLocations toggles line and column information on issues.
func WithLocations(enabled bool) Option {
	return func(c *Config) {
		c.Locations = enabled
	}
}

// WithWorkers sets the concurrency of ValidateBatch.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithMetrics records every validation into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// validateConfig holds per-call validation options.
type validateConfig struct {
	profile *profile.Profile
	strict  *bool
}

// ValidateOption configures a single Validate call.
type ValidateOption func(*validateConfig)

// ValidateWithProfile validates one message against p instead of the
// Validator's profile. The compiled grammar is cached across calls.
func ValidateWithProfile(p *profile.Profile) ValidateOption {
	return func(c *validateConfig) {
		c.profile = p
	}
}

// ValidateWithStrictMode overrides the Validator's strict mode for one call.
func ValidateWithStrictMode(strict bool) ValidateOption {
	return func(c *validateConfig) {
		c.strict = &strict
	}
}

// New creates a new Validator with the given options.
// Grammar or rule configuration errors are returned here, never per message.
func New(opts ...Option) (*Validator, error) {
	config := &Config{
		CacheSize: DefaultCacheSize,
		Locations: true,
	}
	for _, opt := range opts {
		opt(config)
	}

	p := config.Profile
	if p == nil {
		p = profile.Default()
	}

	v := &Validator{
		config:   config,
		grammar:  p.Grammar,
		rules:    p.Rules,
		compiler: grammar.NewCompiler(config.CacheSize),
	}
	if config.Grammar != nil {
		v.grammar = *config.Grammar
	}
	if config.Rules != nil {
		v.rules = config.Rules
	}

	pattern, err := v.compile(v.grammar)
	if err != nil {
		return nil, err
	}
	v.pattern = pattern

	logger.Info("Initializing HL7 v2 validator (profile %s)", p.Name)
	logger.Debug("  Grammar: %s", pattern)
	logger.Debug("  Rule sets: %v", v.rules.Types())
	if config.StrictMode {
		logger.Info("  Strict mode: warnings are reported as errors")
	}
	return v, nil
}

// compile returns the cached pattern for spec and records the cache outcome.
func (v *Validator) compile(spec grammar.Spec) (*grammar.Pattern, error) {
	pattern, cached, err := v.compiler.Lookup(spec)
	if err != nil {
		return nil, fmt.Errorf("grammar %s: %w", spec.Name, err)
	}
	if m := v.config.Metrics; m != nil {
		if cached {
			m.RecordCacheHit()
		} else {
			m.RecordCacheMiss()
		}
	}
	return pattern, nil
}

// Validate validates one message. The returned error is non-nil only when
// ctx is done or a per-call profile fails to compile; findings about the
// message itself are reported in the Result. The caller owns the Result and
// may hand it back with issue.ReleaseResult once done with it.
func (v *Validator) Validate(ctx context.Context, data []byte, opts ...ValidateOption) (*issue.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc := &validateConfig{}
	for _, opt := range opts {
		opt(vc)
	}

	spec, pattern, reg := v.grammar, v.pattern, v.rules
	if vc.profile != nil {
		spec, reg = vc.profile.Grammar, vc.profile.Rules
		var err error
		if pattern, err = v.compile(spec); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	result := issue.GetPooledResult()

	var parseOpts []message.Option
	if v.config.SegmentSeparator != "" {
		parseOpts = append(parseOpts, message.WithSegmentSeparator(v.config.SegmentSeparator))
	}
	msg := message.Parse(string(data), parseOpts...)
	v.recordStage(metrics.StageTokenize, start, 0)

	stats := &issue.Stats{
		MessageType: messageType(msg),
		ControlID:   msg.ControlID(),
		Grammar:     spec.Name,
		Size:        len(data),
		Segments:    msg.Len(),
	}

	stageStart := time.Now()
	stats.StructureValid = checkSequence(msg, spec, pattern, result)
	v.recordStage(metrics.StageSequence, stageStart, len(result.Issues))

	if stats.StructureValid {
		stageStart = time.Now()
		before := len(result.Issues)
		for i, seg := range msg.Segments {
			n := reg.Evaluate(seg, i, result)
			if n > 0 {
				stats.SegmentsChecked++
				stats.RulesEvaluated += n
			}
		}
		v.recordStage(metrics.StageFields, stageStart, len(result.Issues)-before)
	} else {
		logger.Debug("Message %s rejected by grammar %s", stats.ControlID, spec.Name)
	}

	strict := v.config.StrictMode
	if vc.strict != nil {
		strict = *vc.strict
	}
	if strict {
		result.PromoteWarnings()
	}
	if v.config.Locations {
		result.EnrichLocations(func(seg int, expr string) *issue.Location {
			loc := location.Find(msg, seg, expr)
			if loc == nil {
				return nil
			}
			return &issue.Location{Line: loc.Line, Column: loc.Column}
		})
	}

	elapsed := time.Since(start)
	stats.Duration = elapsed.Nanoseconds()
	result.Stats = stats

	if m := v.config.Metrics; m != nil {
		m.RecordValidation(elapsed, !result.HasErrors(), stats.Segments)
		if !stats.StructureValid {
			m.RecordStructureRejected()
		}
		m.RecordResult(result)
	}
	return result, nil
}

// checkSequence matches the segment types of msg against pattern. On a
// mismatch it adds the single structural error, plus an informational hint
// naming where the sequence stopped conforming.
func checkSequence(msg *message.Message, spec grammar.Spec, pattern *grammar.Pattern, result *issue.Result) bool {
	types := msg.Types()
	ok, at := pattern.Check(types)
	if ok {
		return true
	}

	iss := result.AddErrorWithID(issue.DiagStructureInvalidSequence, map[string]any{
		"segments": issue.JoinAll(spec.RequiredTypes()),
	})
	iss.Segment = -1

	if at < len(types) {
		hint := result.AddInfoWithID(issue.DiagStructureUnexpected, map[string]any{
			"index":   at + 1,
			"type":    types[at],
			"grammar": spec.Name,
		})
		hint.Segment = at
	} else {
		hint := result.AddInfoWithID(issue.DiagStructureTruncated, map[string]any{
			"grammar": spec.Name,
		})
		hint.Segment = -1
	}
	return false
}

func messageType(msg *message.Message) string {
	if msh := msg.First("MSH"); msh != nil {
		return msh.Field(9)
	}
	return ""
}

func (v *Validator) recordStage(name string, start time.Time, issues int) {
	if m := v.config.Metrics; m != nil {
		m.RecordStage(name, time.Since(start), issues)
	}
}

// ValidateString validates a message given as text.
func (v *Validator) ValidateString(ctx context.Context, text string, opts ...ValidateOption) (*issue.Result, error) {
	return v.Validate(ctx, []byte(text), opts...)
}

// ValidateBatch validates independent messages concurrently. Results are
// returned in input order. The first context error stops the batch.
func (v *Validator) ValidateBatch(ctx context.Context, msgs [][]byte, opts ...ValidateOption) ([]*issue.Result, error) {
	results := make([]*issue.Result, len(msgs))

	workers := v.config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, data := range msgs {
		g.Go(func() error {
			r, err := v.Validate(ctx, data, opts...)
			if err != nil {
				return fmt.Errorf("message %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Grammar returns the grammar messages are checked against.
func (v *Validator) Grammar() grammar.Spec {
	return v.grammar
}

// Pattern returns the compiled grammar.
func (v *Validator) Pattern() *grammar.Pattern {
	return v.pattern
}

// Rules returns the field rule registry.
func (v *Validator) Rules() *rules.Registry {
	return v.rules
}

// Metrics returns the configured metrics sink, or nil.
func (v *Validator) Metrics() *metrics.Metrics {
	return v.config.Metrics
}

// CacheStats returns the compiled grammar cache statistics.
func (v *Validator) CacheStats() cache.Stats {
	return v.compiler.Stats()
}
