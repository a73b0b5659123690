// Package grammar describes the segment-sequence grammar of an HL7 v2
// message and compiles it into an anchored matcher over segment types.
//
// A grammar is a tree of quantified nodes:
//
//	grammar.Spec{
//	    Name: "ORU_R01",
//	    Nodes: []grammar.Node{
//	        grammar.Leaf("MSH", 1, 1),
//	        grammar.Leaf("NTE", 0, grammar.Unbounded),
//	        grammar.Group(1, grammar.Unbounded,
//	            grammar.Leaf("OBR", 1, 1),
//	            grammar.Leaf("OBX", 1, grammar.Unbounded),
//	        ),
//	    },
//	}
//
// A group's quantifier applies to one full traversal of its children.
package grammar

import (
	"strconv"
	"strings"
)

// Unbounded marks a node without an upper occurrence limit.
const Unbounded = -1

// Kind distinguishes leaves from groups.
type Kind int

// Node kinds.
const (
	KindLeaf Kind = iota
	KindGroup
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Node is one element of a grammar: a segment type (leaf) or an ordered
// sequence of nodes (group), with its occurrence bounds.
type Node struct {
	Kind     Kind
	Type     string
	Children []Node
	Min      int
	Max      int
}

// Leaf returns a node matching segmentType between min and max times.
func Leaf(segmentType string, min, max int) Node {
	return Node{Kind: KindLeaf, Type: segmentType, Min: min, Max: max}
}

// Group returns a node matching its children in order, the whole sequence
// repeated between min and max times.
func Group(min, max int, children ...Node) Node {
	return Node{Kind: KindGroup, Children: children, Min: min, Max: max}
}

// IsUnbounded reports whether the node has no upper limit.
func (n Node) IsUnbounded() bool {
	return n.Max == Unbounded
}

// quantifier renders the occurrence bounds in regular-expression notation.
func (n Node) quantifier() string {
	switch {
	case n.IsUnbounded():
		return "{" + strconv.Itoa(n.Min) + ",}"
	case n.Min == n.Max:
		return "{" + strconv.Itoa(n.Min) + "}"
	default:
		return "{" + strconv.Itoa(n.Min) + "," + strconv.Itoa(n.Max) + "}"
	}
}

// String renders the node in canonical regular-expression form,
// e.g. "((OBX){1}(NTE){0,}){1,}".
func (n Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n Node) write(b *strings.Builder) {
	b.WriteByte('(')
	if n.Kind == KindLeaf {
		b.WriteString(n.Type)
	} else {
		for _, child := range n.Children {
			child.write(b)
		}
	}
	b.WriteByte(')')
	b.WriteString(n.quantifier())
}
