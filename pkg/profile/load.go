package profile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gofhir/hl7validator/pkg/grammar"
	"github.com/gofhir/hl7validator/pkg/issue"
	"github.com/gofhir/hl7validator/pkg/message"
	"github.com/gofhir/hl7validator/pkg/rules"
	"github.com/gofhir/hl7validator/pkg/terminology"
)

// ErrInvalidProfile is returned when a profile document is malformed.
var ErrInvalidProfile = errors.New("invalid profile")

// BaseELR is the base name that extends the built-in ELR profile.
const BaseELR = "elr"

// document is the YAML shape of a profile file:
//
//	name: MY_ORU
//	base: elr              # optional, inherit the ELR grammar and rules
//	grammar:
//	  - segment: MSH
//	  - segment: NTE
//	    min: 0
//	    max: unbounded
//	  - min: 1
//	    max: unbounded
//	    children:
//	      - segment: OBR
//	      - segment: OBX
//	valuesets:
//	  - url: urn:local:status
//	    system: http://terminology.hl7.org/CodeSystem/v2-0085
//	    codes: [F, C]
//	rules:
//	  OBX:
//	    - path: OBX-11
//	      name: Observation Result Status
//	      checks: [required, {kind: one-of, url: "urn:local:status"}]
//
// A rules entry replaces the base rule set of that segment type.
type document struct {
	Name      string               `yaml:"name"`
	Base      string               `yaml:"base"`
	Grammar   []nodeDoc            `yaml:"grammar"`
	ValueSets []valueSetDoc        `yaml:"valuesets"`
	Rules     map[string][]ruleDoc `yaml:"rules"`
}

type nodeDoc struct {
	Segment  string    `yaml:"segment"`
	Min      *int      `yaml:"min"`
	Max      *bound    `yaml:"max"`
	Children []nodeDoc `yaml:"children"`
}

// bound is an occurrence limit: an integer, or "unbounded" / "*".
type bound int

func (b *bound) UnmarshalYAML(n *yaml.Node) error {
	switch strings.ToLower(n.Value) {
	case "unbounded", "*", "-1":
		*b = grammar.Unbounded
		return nil
	}
	v, err := strconv.Atoi(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: max %q is not a number or \"unbounded\"", n.Line, n.Value)
	}
	*b = bound(v)
	return nil
}

type valueSetDoc struct {
	URL    string   `yaml:"url"`
	System string   `yaml:"system"`
	Codes  []string `yaml:"codes"`
}

type ruleDoc struct {
	Path     string     `yaml:"path"`
	Name     string     `yaml:"name"`
	Severity string     `yaml:"severity"`
	Checks   []checkDoc `yaml:"checks"`
	Children []ruleDoc  `yaml:"children"`
}

type checkDoc struct {
	Kind    string   `yaml:"kind"`
	Format  string   `yaml:"format"`
	Layouts []string `yaml:"layouts"`
	URL     string   `yaml:"url"`
	When    string   `yaml:"when"`
	Values  []string `yaml:"values"`
	Max     int      `yaml:"max"`
	Min     string   `yaml:"min"`
}

// UnmarshalYAML accepts a bare kind ("required") as shorthand.
func (c *checkDoc) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		c.Kind = n.Value
		return nil
	}
	type plain checkDoc
	return n.Decode((*plain)(c))
}

// Load reads and builds a profile from a YAML file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile: %s: %w", path, err)
	}
	return p, nil
}

// Parse builds a profile from a YAML document.
func Parse(data []byte) (*Profile, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	var (
		spec grammar.Spec
		sets []rules.Set
	)
	switch doc.Base {
	case "":
		if len(doc.Grammar) == 0 {
			return nil, fmt.Errorf("%w: grammar is required without a base profile", ErrInvalidProfile)
		}
	case BaseELR:
		spec = ELRGrammar()
		sets = ELRRules()
	default:
		return nil, fmt.Errorf("%w: unknown base %q", ErrInvalidProfile, doc.Base)
	}

	if doc.Name == "" {
		doc.Name = ELRName
		if doc.Base == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidProfile)
		}
	}
	spec.Name = doc.Name

	if len(doc.Grammar) > 0 {
		nodes, err := buildNodes(doc.Grammar)
		if err != nil {
			return nil, err
		}
		spec.Nodes = nodes
	}

	terms := terminology.NewDefaultRegistry()
	for i, vs := range doc.ValueSets {
		if vs.URL == "" || len(vs.Codes) == 0 {
			return nil, fmt.Errorf("%w: valuesets[%d]: url and codes are required", ErrInvalidProfile, i)
		}
		if err := terms.LoadR4ValueSet(terminology.NewValueSet(vs.URL, vs.System, vs.Codes)); err != nil {
			return nil, fmt.Errorf("%w: valuesets[%d]: %v", ErrInvalidProfile, i, err)
		}
	}

	sets, err := mergeRules(sets, doc.Rules)
	if err != nil {
		return nil, err
	}
	return New(doc.Name, spec, terms, sets...)
}

func buildNodes(docs []nodeDoc) ([]grammar.Node, error) {
	nodes := make([]grammar.Node, 0, len(docs))
	for _, d := range docs {
		min := 1
		if d.Min != nil {
			min = *d.Min
		}
		max := min
		if max < 1 {
			max = 1
		}
		if d.Max != nil {
			max = int(*d.Max)
		}

		if d.Segment != "" {
			if len(d.Children) > 0 {
				return nil, fmt.Errorf("%w: segment %s cannot have children", ErrInvalidProfile, d.Segment)
			}
			nodes = append(nodes, grammar.Leaf(d.Segment, min, max))
			continue
		}
		if len(d.Children) == 0 {
			return nil, fmt.Errorf("%w: grammar entry needs a segment or children", ErrInvalidProfile)
		}
		children, err := buildNodes(d.Children)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, grammar.Group(min, max, children...))
	}
	return nodes, nil
}

// mergeRules replaces base sets with the document's, keeping segment order.
func mergeRules(base []rules.Set, docs map[string][]ruleDoc) ([]rules.Set, error) {
	bySegment := make(map[rules.SegmentType]rules.Set, len(base))
	for _, s := range base {
		bySegment[s.Segment] = s
	}
	for typ, ruleDocs := range docs {
		seg, ok := rules.ParseSegmentType(typ)
		if !ok {
			return nil, fmt.Errorf("%w: rules for unsupported segment %q", ErrInvalidProfile, typ)
		}
		set := rules.Set{Segment: seg}
		for _, rd := range ruleDocs {
			r, err := buildRule(rd)
			if err != nil {
				return nil, err
			}
			set.Rules = append(set.Rules, r)
		}
		bySegment[seg] = set
	}

	var out []rules.Set
	for _, t := range rules.SegmentTypes() {
		if s, ok := bySegment[t]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func buildRule(d ruleDoc) (rules.Rule, error) {
	path, err := message.ParsePath(d.Path)
	if err != nil {
		return rules.Rule{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	r := rules.Rule{
		Path:     path,
		Name:     d.Name,
		Severity: issue.Severity(d.Severity),
	}
	for _, cd := range d.Checks {
		c, err := buildCheck(cd)
		if err != nil {
			return rules.Rule{}, fmt.Errorf("%w: %s: %v", ErrInvalidProfile, d.Path, err)
		}
		r.Checks = append(r.Checks, c)
	}
	for _, cd := range d.Children {
		child, err := buildRule(cd)
		if err != nil {
			return rules.Rule{}, err
		}
		r.Children = append(r.Children, child)
	}
	return r, nil
}

func buildCheck(d checkDoc) (rules.Check, error) {
	kind, ok := rules.ParseKind(d.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown check kind %q", d.Kind)
	}
	switch kind {
	case rules.KindRequired:
		return rules.Required(), nil
	case rules.KindRequiredWhen:
		when, err := message.ParsePath(d.When)
		if err != nil {
			return nil, err
		}
		return rules.RequiredWhen(when, d.Values...), nil
	case rules.KindDateTime:
		format := d.Format
		if format == "" {
			format = strings.Join(d.Layouts, " or ")
		}
		return rules.DateTime(format, d.Layouts...), nil
	case rules.KindOneOf:
		return rules.OneOf(d.URL), nil
	case rules.KindAlphabetic:
		return rules.Alphabetic(), nil
	case rules.KindMaxLength:
		return rules.MaxLength(d.Max), nil
	case rules.KindHL7Version:
		return rules.HL7Version(d.Min), nil
	default:
		return nil, fmt.Errorf("unsupported check kind %q", d.Kind)
	}
}
