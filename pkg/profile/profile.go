// Package profile bundles a segment grammar with its field rule tables.
//
// The built-in profile validates electronic lab reports (ELR ORU^R01).
// Deployments can declare their own profile in a YAML file and load it at
// startup with Load; profiles are never changed per message.
package profile

import (
	"fmt"

	"github.com/gofhir/hl7validator/pkg/grammar"
	"github.com/gofhir/hl7validator/pkg/rules"
	"github.com/gofhir/hl7validator/pkg/terminology"
)

// Profile is a validated grammar plus the rules applied once the grammar matches.
type Profile struct {
	Name    string
	Grammar grammar.Spec
	Rules   *rules.Registry
}

// New validates spec and sets, resolving enumerations against terms.
func New(name string, spec grammar.Spec, terms *terminology.Registry, sets ...rules.Set) (*Profile, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", name, err)
	}
	reg, err := rules.NewRegistry(terms, sets...)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", name, err)
	}
	return &Profile{Name: name, Grammar: spec, Rules: reg}, nil
}

// Default returns the built-in ELR profile.
func Default() *Profile {
	p, err := New(ELRName, ELRGrammar(), terminology.NewDefaultRegistry(), ELRRules()...)
	if err != nil {
		panic(err)
	}
	return p
}
