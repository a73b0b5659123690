package grammar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrInvalidSpec is returned when a grammar is malformed: negative bounds,
// min above max, empty groups, or segment types that are blank or contain
// whitespace or one of the characters "(){},^$". A max of 0 is allowed and
// forbids the node. It is a configuration error, never a per-message outcome.
var ErrInvalidSpec = errors.New("invalid grammar specification")

// Spec is an ordered sequence of top-level nodes, matched in declaration order.
type Spec struct {
	Name  string
	Nodes []Node
}

// Validate checks occurrence bounds and node shapes.
func (s Spec) Validate() error {
	if len(s.Nodes) == 0 {
		return fmt.Errorf("%w: %s: no nodes", ErrInvalidSpec, s.label())
	}
	for i, n := range s.Nodes {
		if err := validateNode(n, fmt.Sprintf("nodes[%d]", i)); err != nil {
			return fmt.Errorf("%s: %w", s.label(), err)
		}
	}
	return nil
}

const reservedTypeChars = "(){},^$ \t\r\n"

func validateNode(n Node, where string) error {
	if n.Kind == KindLeaf && n.Type != "" {
		where += " (" + n.Type + ")"
	}
	switch {
	case n.Min < 0:
		return fmt.Errorf("%w: %s: negative min %d", ErrInvalidSpec, where, n.Min)
	case n.Max != Unbounded && n.Max < 0:
		return fmt.Errorf("%w: %s: negative max %d", ErrInvalidSpec, where, n.Max)
	case n.Max != Unbounded && n.Min > n.Max:
		return fmt.Errorf("%w: %s: min %d exceeds max %d", ErrInvalidSpec, where, n.Min, n.Max)
	}

	switch n.Kind {
	case KindLeaf:
		if strings.TrimSpace(n.Type) == "" {
			return fmt.Errorf("%w: %s: leaf without segment type", ErrInvalidSpec, where)
		}
		// the canonical form is also the cache key, so it must stay unambiguous
		if strings.ContainsAny(n.Type, reservedTypeChars) {
			return fmt.Errorf("%w: %s: segment type contains one of %q or whitespace", ErrInvalidSpec, where, "(){},^$")
		}
		if len(n.Children) > 0 {
			return fmt.Errorf("%w: %s: leaf with children", ErrInvalidSpec, where)
		}
	case KindGroup:
		if len(n.Children) == 0 {
			return fmt.Errorf("%w: %s: empty group", ErrInvalidSpec, where)
		}
		for i, child := range n.Children {
			if err := validateNode(child, fmt.Sprintf("%s.children[%d]", where, i)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %s: unknown node kind %d", ErrInvalidSpec, where, n.Kind)
	}
	return nil
}

func (s Spec) label() string {
	if s.Name == "" {
		return "grammar"
	}
	return s.Name
}

// String renders the anchored canonical form of the grammar, e.g.
// "^(MSH){1}(SFT){1}((OBR){1}(OBX){1,}){1,}$".
func (s Spec) String() string {
	var b strings.Builder
	b.WriteByte('^')
	for _, n := range s.Nodes {
		n.write(&b)
	}
	b.WriteByte('$')
	return b.String()
}

// Key identifies the specification by content. Two specs with the same
// canonical form share a key, and therefore a compiled pattern.
func (s Spec) Key() uint64 {
	return xxhash.Sum64String(s.String())
}

// RequiredTypes lists, in first-appearance order, the segment types that
// every conforming message must contain: leaves with min >= 1 reachable
// only through groups with min >= 1.
func (s Spec) RequiredTypes() []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for _, n := range nodes {
			if n.Min < 1 {
				continue
			}
			if n.Kind == KindGroup {
				walk(n.Children)
				continue
			}
			if !seen[n.Type] {
				seen[n.Type] = true
				out = append(out, n.Type)
			}
		}
	}
	walk(s.Nodes)
	return out
}

// Types lists every segment type the grammar mentions, in first-appearance order.
func (s Spec) Types() []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for _, n := range nodes {
			if n.Kind == KindGroup {
				walk(n.Children)
				continue
			}
			if !seen[n.Type] {
				seen[n.Type] = true
				out = append(out, n.Type)
			}
		}
	}
	walk(s.Nodes)
	return out
}
