// Package rules implements the table-driven field validation engine.
//
// A Rule addresses one position of a segment (field, component or
// subcomponent) and applies an ordered list of Checks to its value. Rules
// may carry children that are only evaluated when the parent position is
// present, so a missing field is reported once instead of once per
// component. Rules are grouped per SegmentType into a Set, and a Registry
// maps each validated segment type to its Set.
//
// Findings are appended to an issue.Result in rule declaration order.
// Evaluation never fails: absent positions read as empty values.
package rules

import (
	"errors"
	"fmt"

	"github.com/gofhir/hl7validator/pkg/issue"
	"github.com/gofhir/hl7validator/pkg/message"
	"github.com/gofhir/hl7validator/pkg/terminology"
)

// ErrInvalidRule is returned when a rule table is malformed.
var ErrInvalidRule = errors.New("invalid rule")

// Rule validates the value at Path.
type Rule struct {
	Path message.Path

	// Name is the domain name used in diagnostics ("Patient Sex").
	Name string

	Checks []Check

	// Severity overrides the default severity of every finding when set.
	Severity issue.Severity

	// Children are evaluated only when the value at Path is present.
	Children []Rule
}

// Field builds a rule for path with the given checks.
func Field(path, name string, checks ...Check) Rule {
	return Rule{Path: message.MustParsePath(path), Name: name, Checks: checks}
}

// With returns a copy of r with children appended.
func (r Rule) With(children ...Rule) Rule {
	r.Children = append(append([]Rule(nil), r.Children...), children...)
	return r
}

// Count returns the number of rules in r, including nested children.
func (r Rule) Count() int {
	n := 1
	for _, c := range r.Children {
		n += c.Count()
	}
	return n
}

// Set is the ordered rule list of one segment type.
type Set struct {
	Segment SegmentType
	Rules   []Rule
}

// Count returns the number of rules in s, including nested children.
func (s Set) Count() int {
	n := 0
	for _, r := range s.Rules {
		n += r.Count()
	}
	return n
}

// Registry maps validated segment types to their rule sets.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	sets  map[SegmentType]Set
	order []SegmentType
	terms *terminology.Registry
}

// NewRegistry validates the sets and builds a registry. Enumeration checks
// are resolved against terms.
func NewRegistry(terms *terminology.Registry, sets ...Set) (*Registry, error) {
	r := &Registry{
		sets:  make(map[SegmentType]Set, len(sets)),
		terms: terms,
	}
	for _, s := range sets {
		if _, ok := ParseSegmentType(string(s.Segment)); !ok {
			return nil, fmt.Errorf("%w: segment type %q has no rule support", ErrInvalidRule, s.Segment)
		}
		if _, dup := r.sets[s.Segment]; dup {
			return nil, fmt.Errorf("%w: duplicate rule set for %s", ErrInvalidRule, s.Segment)
		}
		for _, rule := range s.Rules {
			if err := validateRule(rule, message.Path{Segment: string(s.Segment)}, terms); err != nil {
				return nil, err
			}
		}
		r.sets[s.Segment] = s
		r.order = append(r.order, s.Segment)
	}
	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on error.
func MustNewRegistry(terms *terminology.Registry, sets ...Set) *Registry {
	r, err := NewRegistry(terms, sets...)
	if err != nil {
		panic(err)
	}
	return r
}

func validateRule(rule Rule, parent message.Path, terms *terminology.Registry) error {
	where := rule.Path.String()
	if rule.Path.Segment != parent.Segment {
		return fmt.Errorf("%w: %s: path outside segment %s", ErrInvalidRule, where, parent.Segment)
	}
	if parent.Field != 0 && !descends(rule.Path, parent) {
		return fmt.Errorf("%w: %s: child is not nested under %s", ErrInvalidRule, where, parent)
	}
	if rule.Path.Field == 0 {
		return fmt.Errorf("%w: %s: no field addressed", ErrInvalidRule, where)
	}
	if rule.Name == "" {
		return fmt.Errorf("%w: %s: missing name", ErrInvalidRule, where)
	}
	switch rule.Severity {
	case "", issue.SeverityError, issue.SeverityWarning, issue.SeverityInformation:
	default:
		return fmt.Errorf("%w: %s: unknown severity %q", ErrInvalidRule, where, rule.Severity)
	}
	for _, c := range rule.Checks {
		if c == nil {
			return fmt.Errorf("%w: %s: nil check", ErrInvalidRule, where)
		}
		if err := c.validate(terms, rule.Path.Segment); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRule, where, err)
		}
	}
	for _, child := range rule.Children {
		if err := validateRule(child, rule.Path, terms); err != nil {
			return err
		}
	}
	return nil
}

// descends reports whether p addresses a position strictly inside parent.
func descends(p, parent message.Path) bool {
	if p.Depth() <= parent.Depth() {
		return false
	}
	for p.Depth() > parent.Depth() {
		p = p.Parent()
	}
	return p == parent
}

// Set returns the rule set for t.
func (r *Registry) Set(t SegmentType) (Set, bool) {
	s, ok := r.sets[t]
	return s, ok
}

// Types returns the segment types with rule sets, in registration order.
func (r *Registry) Types() []SegmentType {
	return append([]SegmentType(nil), r.order...)
}

// Terminology returns the registry used by enumeration checks.
func (r *Registry) Terminology() *terminology.Registry {
	return r.terms
}

// Evaluate applies the rule set of seg's type and appends findings to result.
// index is the position of seg in its message and is recorded on each issue.
// Segments without a rule set are skipped. Returns the number of rules evaluated.
func (r *Registry) Evaluate(seg *message.Segment, index int, result *issue.Result) int {
	if r == nil || seg == nil {
		return 0
	}
	t, ok := ParseSegmentType(seg.Type)
	if !ok {
		return 0
	}
	set, ok := r.sets[t]
	if !ok {
		return 0
	}

	n := 0
	for i := range set.Rules {
		n += r.evaluate(&set.Rules[i], seg, index, result)
	}
	return n
}

func (r *Registry) evaluate(rule *Rule, seg *message.Segment, index int, result *issue.Result) int {
	e := &env{
		seg:   seg,
		rule:  rule,
		terms: r.terms,
		value: seg.Value(rule.Path),
	}
	present := e.value != ""

	for _, c := range rule.Checks {
		if !present && !c.absent() {
			continue
		}
		f := c.apply(e)
		if f == nil {
			continue
		}
		iss := result.AddWithID(f.id, f.params, rule.Path.String())
		iss.Segment = index
		if rule.Severity != "" {
			iss.Severity = rule.Severity
		}
		if !present {
			// one missing report per position
			break
		}
	}

	n := 1
	if present {
		for i := range rule.Children {
			n += r.evaluate(&rule.Children[i], seg, index, result)
		}
	}
	return n
}
