package rules

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Masterminds/semver/v3"

	"github.com/gofhir/hl7validator/pkg/issue"
	"github.com/gofhir/hl7validator/pkg/message"
	"github.com/gofhir/hl7validator/pkg/terminology"
)

// Kind identifies a check category.
type Kind int

// Check kinds.
const (
	KindRequired Kind = iota
	KindRequiredWhen
	KindDateTime
	KindOneOf
	KindAlphabetic
	KindMaxLength
	KindHL7Version
)

var kindNames = map[Kind]string{
	KindRequired:     "required",
	KindRequiredWhen: "required-when",
	KindDateTime:     "datetime",
	KindOneOf:        "one-of",
	KindAlphabetic:   "alphabetic",
	KindMaxLength:    "max-length",
	KindHL7Version:   "hl7-version",
}

// String returns the name used in profile files.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// env is what a check sees while evaluating one rule.
type env struct {
	seg   *message.Segment
	rule  *Rule
	terms *terminology.Registry
	value string
}

func (e *env) params() map[string]any {
	return map[string]any{
		"name":  e.rule.Name,
		"path":  e.rule.Path.String(),
		"value": e.value,
	}
}

// finding is a diagnostic produced by a check; nil means the check passed.
type finding struct {
	id     issue.DiagnosticID
	params map[string]any
}

// Check is a single test applied to the value at a rule's path.
// The set of checks is closed; use the constructors in this package.
type Check interface {
	Kind() Kind
	String() string

	// absent reports whether the check runs when the value is empty.
	// Checks that only inspect present values are skipped otherwise.
	absent() bool
	validate(terms *terminology.Registry, segment string) error
	apply(e *env) *finding
}

type requiredCheck struct{}

// Required reports a missing value.
func Required() Check { return requiredCheck{} }

func (requiredCheck) Kind() Kind     { return KindRequired }
func (requiredCheck) String() string { return "required" }
func (requiredCheck) absent() bool   { return true }

func (requiredCheck) validate(*terminology.Registry, string) error { return nil }

func (requiredCheck) apply(e *env) *finding {
	if e.value != "" {
		return nil
	}
	return &finding{id: issue.DiagFieldMissing, params: e.params()}
}

type requiredWhenCheck struct {
	other  message.Path
	values []string
}

// RequiredWhen reports a missing value only when the value at other, in the
// same segment, equals one of values.
func RequiredWhen(other message.Path, values ...string) Check {
	return requiredWhenCheck{other: other, values: values}
}

func (requiredWhenCheck) Kind() Kind { return KindRequiredWhen }
func (c requiredWhenCheck) String() string {
	return fmt.Sprintf("required when %s in [%s]", c.other, strings.Join(c.values, " "))
}
func (requiredWhenCheck) absent() bool { return true }

func (c requiredWhenCheck) validate(_ *terminology.Registry, segment string) error {
	if c.other.Segment != segment {
		return fmt.Errorf("condition %s is outside segment %s", c.other, segment)
	}
	if len(c.values) == 0 {
		return fmt.Errorf("condition on %s has no values", c.other)
	}
	return nil
}

func (c requiredWhenCheck) apply(e *env) *finding {
	if e.value != "" {
		return nil
	}
	if !slices.Contains(c.values, e.seg.Value(c.other)) {
		return nil
	}
	return &finding{id: issue.DiagFieldMissing, params: e.params()}
}

type dateTimeCheck struct {
	format  string
	layouts []string
}

// DateTime requires the value to parse under one of the Go time layouts.
// format is the human-readable form used in diagnostics ("YYYYMMDD").
// Layouts made of digits and a zone sign ("20060102150405-0700") are fixed
// width: the value must have exactly as many characters, digits where the
// layout has digits, so trailing fractional seconds are rejected.
func DateTime(format string, layouts ...string) Check {
	return dateTimeCheck{format: format, layouts: layouts}
}

func (dateTimeCheck) Kind() Kind       { return KindDateTime }
func (c dateTimeCheck) String() string { return "datetime " + c.format }
func (dateTimeCheck) absent() bool     { return false }

func (c dateTimeCheck) validate(*terminology.Registry, string) error {
	if len(c.layouts) == 0 {
		return fmt.Errorf("datetime check %q has no layouts", c.format)
	}
	return nil
}

func (c dateTimeCheck) apply(e *env) *finding {
	for _, layout := range c.layouts {
		if !fitsLayout(layout, e.value) {
			continue
		}
		if _, err := time.Parse(layout, e.value); err == nil {
			return nil
		}
	}
	p := e.params()
	p["format"] = c.format
	return &finding{id: issue.DiagFieldInvalidFormat, params: p}
}

// fitsLayout reports whether value has the shape of a fixed-width numeric
// layout. Other layouts are left to time.Parse.
func fitsLayout(layout, value string) bool {
	if strings.Trim(layout, "0123456789+-") != "" {
		return true
	}
	if len(value) != len(layout) {
		return false
	}
	for i := 0; i < len(layout); i++ {
		switch l, v := layout[i], value[i]; {
		case l == '+' || l == '-':
			if v != '+' && v != '-' {
				return false
			}
		case v < '0' || v > '9':
			return false
		}
	}
	return true
}

type oneOfCheck struct {
	url string
}

// OneOf requires the value to be a code of the ValueSet or CodeSystem at url.
func OneOf(url string) Check { return oneOfCheck{url: url} }

func (oneOfCheck) Kind() Kind       { return KindOneOf }
func (c oneOfCheck) String() string { return "one of " + c.url }
func (oneOfCheck) absent() bool     { return false }

func (c oneOfCheck) validate(terms *terminology.Registry, _ string) error {
	if terms == nil || !terms.Has(c.url) {
		return fmt.Errorf("code system %q is not loaded", c.url)
	}
	return nil
}

func (c oneOfCheck) apply(e *env) *finding {
	valid, found := e.terms.ValidateCode(c.url, e.value)
	if valid {
		return nil
	}
	p := e.params()
	if !found {
		p["system"] = c.url
		return &finding{id: issue.DiagFieldUnknownCodeSys, params: p}
	}
	p["allowed"] = issue.JoinAlternatives(e.terms.Codes(c.url))
	return &finding{id: issue.DiagFieldInvalidCode, params: p}
}

type alphabeticCheck struct{}

// Alphabetic flags values containing anything other than letters.
func Alphabetic() Check { return alphabeticCheck{} }

func (alphabeticCheck) Kind() Kind     { return KindAlphabetic }
func (alphabeticCheck) String() string { return "alphabetic" }
func (alphabeticCheck) absent() bool   { return false }

func (alphabeticCheck) validate(*terminology.Registry, string) error { return nil }

func (alphabeticCheck) apply(e *env) *finding {
	for _, r := range e.value {
		if !unicode.IsLetter(r) {
			return &finding{id: issue.DiagFieldNonAlphabetic, params: e.params()}
		}
	}
	return nil
}

type maxLengthCheck struct {
	max int
}

// MaxLength flags values longer than n characters.
func MaxLength(n int) Check { return maxLengthCheck{max: n} }

func (maxLengthCheck) Kind() Kind       { return KindMaxLength }
func (c maxLengthCheck) String() string { return fmt.Sprintf("max-length %d", c.max) }
func (maxLengthCheck) absent() bool     { return false }

func (c maxLengthCheck) validate(*terminology.Registry, string) error {
	if c.max < 1 {
		return fmt.Errorf("max-length must be positive, got %d", c.max)
	}
	return nil
}

func (c maxLengthCheck) apply(e *env) *finding {
	if utf8.RuneCountInString(e.value) <= c.max {
		return nil
	}
	p := e.params()
	p["max"] = c.max
	return &finding{id: issue.DiagFieldTooLong, params: p}
}

type hl7VersionCheck struct {
	min        string
	constraint *semver.Constraints
}

// HL7Version requires a version number of at least min within the same
// major version ("2.5.1" accepts 2.5.1, 2.6 and 2.8.2 but not 2.5 or 3.0).
// An unparsable min is reported when the rule set is registered.
func HL7Version(min string) Check {
	c := hl7VersionCheck{min: min}
	if v, err := semver.NewVersion(min); err == nil {
		c.constraint, _ = semver.NewConstraint(fmt.Sprintf(">= %s, < %d.0.0", v, v.Major()+1))
	}
	return c
}

func (hl7VersionCheck) Kind() Kind       { return KindHL7Version }
func (c hl7VersionCheck) String() string { return "hl7-version >= " + c.min }
func (hl7VersionCheck) absent() bool     { return false }

func (c hl7VersionCheck) validate(*terminology.Registry, string) error {
	if c.constraint == nil {
		return fmt.Errorf("invalid minimum version %q", c.min)
	}
	return nil
}

func (c hl7VersionCheck) apply(e *env) *finding {
	v, err := semver.NewVersion(e.value)
	if err == nil && c.constraint.Check(v) {
		return nil
	}
	p := e.params()
	p["min"] = c.min
	return &finding{id: issue.DiagFieldVersionTooLow, params: p}
}
