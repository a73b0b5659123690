package grammar

import (
	"github.com/gofhir/hl7validator/pkg/cache"
)

// Compiler memoizes compiled patterns by specification identity.
// Compilation is pure, so a cached pattern is interchangeable with a fresh one.
type Compiler struct {
	patterns *cache.LRU[uint64, *Pattern]
}

// NewCompiler creates a Compiler keeping at most size patterns.
func NewCompiler(size int) *Compiler {
	return &Compiler{patterns: cache.New[uint64, *Pattern](size)}
}

// Compile returns the cached pattern for spec, compiling it on first use.
func (c *Compiler) Compile(spec Spec) (*Pattern, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return c.patterns.GetOrLoad(spec.Key(), func() (*Pattern, error) {
		return Compile(spec)
	})
}

// Stats returns the pattern cache statistics.
func (c *Compiler) Stats() cache.Stats {
	return c.patterns.Stats()
}

// Lookup is Compile that also reports whether the pattern came from the cache.
func (c *Compiler) Lookup(spec Spec) (p *Pattern, cached bool, err error) {
	if err := spec.Validate(); err != nil {
		return nil, false, err
	}
	loaded := false
	p, err = c.patterns.GetOrLoad(spec.Key(), func() (*Pattern, error) {
		loaded = true
		return Compile(spec)
	})
	return p, !loaded, err
}
