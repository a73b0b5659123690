// Package location maps segment-relative paths to line and column
// positions in HL7 v2 source text.
package location

import (
	"unicode/utf8"

	"github.com/gofhir/hl7validator/pkg/message"
)

// Location represents a position in the source text.
type Location struct {
	Line   int
	Column int
}

// Find locates expr (e.g. "PID-5-1") inside segment index seg of msg.
// When the addressed position does not exist the column points just past
// the end of the segment, where the value would have to be added.
// An empty expression locates the start of the segment.
// Returns nil if seg is out of range or expr cannot be parsed.
func Find(msg *message.Message, seg int, expr string) *Location {
	if msg == nil || seg < 0 || seg >= len(msg.Segments) {
		return nil
	}
	s := msg.Segments[seg]
	if expr == "" {
		return &Location{Line: s.Line, Column: 1}
	}

	path, err := message.ParsePath(expr)
	if err != nil {
		return nil
	}
	offset, ok := s.Offset(path)
	if !ok {
		offset = len(s.Raw)
	}
	return &Location{
		Line:   s.Line,
		Column: utf8.RuneCountInString(s.Raw[:offset]) + 1,
	}
}
