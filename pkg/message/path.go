package message

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPath is returned when a segment-relative address cannot be parsed.
var ErrInvalidPath = errors.New("invalid path")

// Path addresses a position inside a segment using terser notation:
// SEG-F, SEG-F-C or SEG-F-C-S. Zero means "not addressed".
type Path struct {
	Segment      string
	Field        int
	Component    int
	Subcomponent int
}

// ParsePath parses "PID-5-1" style addresses.
func ParsePath(s string) (Path, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) < 2 || len(parts) > 4 {
		return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
	}
	if len(parts[0]) != 3 {
		return Path{}, fmt.Errorf("%w: %q: segment type must have three characters", ErrInvalidPath, s)
	}

	p := Path{Segment: parts[0]}
	targets := []*int{&p.Field, &p.Component, &p.Subcomponent}
	for i, part := range parts[1:] {
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return Path{}, fmt.Errorf("%w: %q: position %q", ErrInvalidPath, s, part)
		}
		*targets[i] = n
	}
	return p, nil
}

// MustParsePath is like ParsePath but panics on error.
// Intended for static rule tables.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the path in terser notation.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString(p.Segment)
	for _, n := range []int{p.Field, p.Component, p.Subcomponent} {
		if n == 0 {
			break
		}
		b.WriteByte('-')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// Parent returns the enclosing position (PID-5-1 -> PID-5).
// A field path returns itself.
func (p Path) Parent() Path {
	switch {
	case p.Subcomponent != 0:
		p.Subcomponent = 0
	case p.Component != 0:
		p.Component = 0
	}
	return p
}

// Depth returns 1 for fields, 2 for components and 3 for subcomponents.
func (p Path) Depth() int {
	switch {
	case p.Subcomponent != 0:
		return 3
	case p.Component != 0:
		return 2
	default:
		return 1
	}
}
