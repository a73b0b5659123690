// Package hl7validator validates pipe-delimited HL7 v2 messages.
//
// Validation runs in two stages. The segment types of a message are first
// matched against a grammar of quantified segments and nested groups; a
// message that does not conform gets a single structural error and no
// further checks. Conforming messages then run through table-driven field
// rules that report errors (the message is rejected) and warnings (the
// message is accepted with remarks).
//
// # Quick Start
//
//	import "github.com/gofhir/hl7validator/pkg/validator"
//
//	v, err := validator.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := v.Validate(ctx, data)
//	for _, msg := range result.Errors() {
//	    fmt.Println(msg)
//	}
//
// The default profile validates electronic lab reports (ORU^R01, HL7
// 2.5.1). Other message structures are declared with pkg/grammar and
// pkg/rules in Go, or loaded from a YAML file with profile.Load.
//
// # Functional Options
//
//	v, err := validator.New(
//	    validator.WithProfile(p),
//	    validator.WithStrictMode(true),
//	    validator.WithSegmentSeparator("\r"),
//	    validator.WithMetrics(metrics.New()),
//	)
//
// # Packages
//
//   - message: tokenizer and segment-relative paths such as PID-5-1
//   - grammar: segment grammar, compiled matcher and pattern cache
//   - rules: field checks and per-segment rule registry
//   - terminology: HL7 tables as FHIR R4 code systems and value sets
//   - profile: the ELR profile and YAML profile loading
//   - validator: the two-stage pipeline and batch validation
//   - batch, store, watch, server: streaming, history, inbox and HTTP front ends
//   - metrics: counters and a Prometheus collector
//   - config: YAML or TOML configuration for cmd/hl7-validator
package hl7validator
