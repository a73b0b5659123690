// Package terminology holds the coded tables used by enumeration rules.
//
// Tables are modelled as FHIR R4 CodeSystem and ValueSet resources so that
// HL7 v2 tables (0001, 0125, 0085, ...) and profile-specific subsets share
// one representation. A ValueSet narrows a CodeSystem to the codes a
// profile accepts; the declaration order of its codes is preserved and is
// used when rendering the list of allowed values.
package terminology

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gofhir/fhir/r4"
)

// Registry holds loaded ValueSets and CodeSystems indexed by URL.
// It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	valueSets   map[string]*r4.ValueSet
	codeSystems map[string]*r4.CodeSystem

	// URL -> ordered, de-duplicated concepts
	expansionCache map[string][]concept
}

type concept struct {
	system  string
	code    string
	display string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		valueSets:      make(map[string]*r4.ValueSet),
		codeSystems:    make(map[string]*r4.CodeSystem),
		expansionCache: make(map[string][]concept),
	}
}

// LoadR4CodeSystem registers a CodeSystem under its URL.
func (r *Registry) LoadR4CodeSystem(cs *r4.CodeSystem) error {
	if cs == nil {
		return fmt.Errorf("terminology: nil CodeSystem")
	}
	if cs.Url == nil || *cs.Url == "" {
		return fmt.Errorf("terminology: CodeSystem without url")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.codeSystems[stripVersion(*cs.Url)] = cs
	clear(r.expansionCache)
	return nil
}

// LoadR4ValueSet registers a ValueSet under its URL.
func (r *Registry) LoadR4ValueSet(vs *r4.ValueSet) error {
	if vs == nil {
		return fmt.Errorf("terminology: nil ValueSet")
	}
	if vs.Url == nil || *vs.Url == "" {
		return fmt.Errorf("terminology: ValueSet without url")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.valueSets[stripVersion(*vs.Url)] = vs
	clear(r.expansionCache)
	return nil
}

// Has reports whether a ValueSet or CodeSystem is registered under url.
func (r *Registry) Has(url string) bool {
	url = stripVersion(url)
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, vs := r.valueSets[url]
	_, cs := r.codeSystems[url]
	return vs || cs
}

// ValidateCode checks if code is a member of the ValueSet or CodeSystem at url.
// Returns (isValid, found) where found indicates if the url was loaded.
// Matching is exact and case-sensitive.
func (r *Registry) ValidateCode(url, code string) (isValid, found bool) {
	concepts, found := r.expand(url)
	if !found {
		return false, false
	}
	for _, c := range concepts {
		if c.code == code {
			return true, true
		}
	}
	return false, true
}

// Codes returns the codes of url in declaration order, or nil if url is not loaded.
func (r *Registry) Codes(url string) []string {
	concepts, found := r.expand(url)
	if !found {
		return nil
	}
	codes := make([]string, len(concepts))
	for i, c := range concepts {
		codes[i] = c.code
	}
	return codes
}

// GetDisplayForCode returns the display text for a code of url.
func (r *Registry) GetDisplayForCode(url, code string) (string, bool) {
	concepts, _ := r.expand(url)
	for _, c := range concepts {
		if c.code == code {
			return c.display, true
		}
	}
	return "", false
}

// ValueSetCount returns the number of loaded ValueSets.
func (r *Registry) ValueSetCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.valueSets)
}

// CodeSystemCount returns the number of loaded CodeSystems.
func (r *Registry) CodeSystemCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.codeSystems)
}

func (r *Registry) expand(url string) ([]concept, bool) {
	url = stripVersion(url)

	r.mu.RLock()
	if concepts, ok := r.expansionCache[url]; ok {
		r.mu.RUnlock()
		return concepts, true
	}
	vs := r.valueSets[url]
	cs := r.codeSystems[url]
	var concepts []concept
	switch {
	case vs != nil:
		concepts = r.expandValueSet(vs)
	case cs != nil:
		concepts = flatten(nil, cs.Concept, url)
	default:
		r.mu.RUnlock()
		return nil, false
	}
	r.mu.RUnlock()

	r.mu.Lock()
	r.expansionCache[url] = concepts
	r.mu.Unlock()
	return concepts, true
}

// expandValueSet must be called with r.mu held for reading.
func (r *Registry) expandValueSet(vs *r4.ValueSet) []concept {
	var out []concept
	seen := make(map[string]bool)
	add := func(c concept) {
		key := c.system + "|" + c.code
		if c.code == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, c)
	}

	if vs.Compose != nil {
		for _, inc := range vs.Compose.Include {
			system := deref(inc.System)
			if len(inc.Concept) > 0 {
				for _, c := range inc.Concept {
					display := deref(c.Display)
					if display == "" {
						display = r.displayFromSystem(system, deref(c.Code))
					}
					add(concept{system: system, code: deref(c.Code), display: display})
				}
				continue
			}
			// An include without concepts pulls in the whole CodeSystem.
			if cs := r.codeSystems[stripVersion(system)]; cs != nil {
				for _, c := range flatten(nil, cs.Concept, system) {
					add(c)
				}
			}
		}
	}

	if vs.Expansion != nil {
		for _, c := range vs.Expansion.Contains {
			add(concept{system: deref(c.System), code: deref(c.Code), display: deref(c.Display)})
		}
	}
	return out
}

func (r *Registry) displayFromSystem(system, code string) string {
	cs := r.codeSystems[stripVersion(system)]
	if cs == nil {
		return ""
	}
	for _, c := range flatten(nil, cs.Concept, system) {
		if c.code == code {
			return c.display
		}
	}
	return ""
}

func flatten(out []concept, concepts []r4.CodeSystemConcept, system string) []concept {
	for _, c := range concepts {
		out = append(out, concept{system: system, code: deref(c.Code), display: deref(c.Display)})
		if len(c.Concept) > 0 {
			out = flatten(out, c.Concept, system)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// stripVersion removes a version suffix from a canonical URL ("url|2.5.1" -> "url").
func stripVersion(url string) string {
	if idx := strings.LastIndex(url, "|"); idx != -1 {
		return url[:idx]
	}
	return url
}
