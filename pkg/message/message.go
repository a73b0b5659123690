// Package message tokenizes HL7 v2 pipe-delimited messages.
//
// A message is split into segments, and each segment is decomposed on demand
// into fields, components and subcomponents. Decomposition is purely
// positional: no escape sequences are interpreted and missing positions are
// reported as empty values rather than errors.
package message

import (
	"strings"
)

// Delimiters holds the separator hierarchy used to tokenize a message.
type Delimiters struct {
	Segment      string
	Field        string
	Component    string
	Subcomponent string
}

// DefaultDelimiters returns the newline / pipe / caret / ampersand hierarchy.
func DefaultDelimiters() Delimiters {
	return Delimiters{
		Segment:      "\n",
		Field:        "|",
		Component:    "^",
		Subcomponent: "&",
	}
}

// Option configures tokenization.
type Option func(*Delimiters)

// WithDelimiters replaces the full separator hierarchy.
// Empty entries keep their default.
func WithDelimiters(d Delimiters) Option {
	return func(cur *Delimiters) {
		if d.Segment != "" {
			cur.Segment = d.Segment
		}
		if d.Field != "" {
			cur.Field = d.Field
		}
		if d.Component != "" {
			cur.Component = d.Component
		}
		if d.Subcomponent != "" {
			cur.Subcomponent = d.Subcomponent
		}
	}
}

// WithSegmentSeparator sets the segment separator (default "\n").
func WithSegmentSeparator(sep string) Option {
	return func(d *Delimiters) {
		if sep != "" {
			d.Segment = sep
		}
	}
}

// Message is an ordered list of segments.
type Message struct {
	Segments   []*Segment
	Delimiters Delimiters
}

// Parse splits raw message text into segments.
// It never fails: empty input yields a message with a single empty segment,
// which downstream validation reports as structurally invalid.
func Parse(text string, opts ...Option) *Message {
	d := DefaultDelimiters()
	for _, opt := range opts {
		opt(&d)
	}

	trimmed := strings.TrimLeft(text, "\r\n")
	lineOffset := strings.Count(text[:len(text)-len(trimmed)], "\n")
	trimmed = strings.TrimRight(trimmed, "\r\n")

	parts := strings.Split(trimmed, d.Segment)
	m := &Message{
		Segments:   make([]*Segment, 0, len(parts)),
		Delimiters: d,
	}
	for i, part := range parts {
		raw := strings.Trim(part, "\r")
		m.Segments = append(m.Segments, newSegment(raw, lineOffset+i+1, d))
	}
	return m
}

// Types returns the segment type of every segment, in order.
func (m *Message) Types() []string {
	types := make([]string, len(m.Segments))
	for i, seg := range m.Segments {
		types[i] = seg.Type
	}
	return types
}

// Len returns the number of segments.
func (m *Message) Len() int {
	return len(m.Segments)
}

// First returns the first segment of the given type, or nil.
func (m *Message) First(segmentType string) *Segment {
	for _, seg := range m.Segments {
		if seg.Type == segmentType {
			return seg
		}
	}
	return nil
}

// ControlID returns MSH-10 of the first MSH segment, if any.
func (m *Message) ControlID() string {
	if msh := m.First("MSH"); msh != nil {
		return msh.Field(10)
	}
	return ""
}
