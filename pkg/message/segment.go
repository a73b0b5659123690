package message

import "strings"

// headerTypes are segments whose first field is the field separator itself,
// which shifts their field numbering by one.
var headerTypes = map[string]bool{
	"MSH": true,
	"BHS": true,
	"FHS": true,
}

// Segment is one record of a message.
// Field decomposition happens on first access and is cached; a Segment is
// not safe for concurrent use.
type Segment struct {
	// Type is the text before the first field separator, trimmed.
	Type string

	// Raw is the segment text without line terminators.
	Raw string

	// Line is the 1-based line of the segment in the source text.
	Line int

	delims Delimiters
	fields []string
}

func newSegment(raw string, line int, d Delimiters) *Segment {
	typ := raw
	if idx := strings.Index(raw, d.Field); idx >= 0 {
		typ = raw[:idx]
	}
	return &Segment{
		Type:   strings.TrimSpace(typ),
		Raw:    raw,
		Line:   line,
		delims: d,
	}
}

// NewSegment tokenizes a single segment line with the given delimiters.
func NewSegment(raw string, d Delimiters) *Segment {
	return newSegment(strings.Trim(raw, "\r\n"), 1, d)
}

// Fields returns the decomposed fields. Index 0 holds the segment type so
// that field N is at index N.
func (s *Segment) Fields() []string {
	if s.fields == nil {
		split := strings.Split(s.Raw, s.delims.Field)
		if headerTypes[s.Type] {
			fields := make([]string, 0, len(split)+1)
			fields = append(fields, split[0], s.delims.Field)
			fields = append(fields, split[1:]...)
			split = fields
		}
		s.fields = split
	}
	return s.fields
}

// FieldCount returns the highest populated field position.
func (s *Segment) FieldCount() int {
	return len(s.Fields()) - 1
}

// Field returns field n (1-based). Positions beyond the segment are empty.
func (s *Segment) Field(n int) string {
	fields := s.Fields()
	if n < 1 || n >= len(fields) {
		return ""
	}
	return fields[n]
}

// Components returns the components of field n.
func (s *Segment) Components(n int) []string {
	f := s.Field(n)
	if f == "" {
		return nil
	}
	return strings.Split(f, s.delims.Component)
}

// Component returns component m (1-based) of field n.
func (s *Segment) Component(n, m int) string {
	return nth(s.Components(n), m)
}

// Subcomponent returns subcomponent k (1-based) of component m of field n.
func (s *Segment) Subcomponent(n, m, k int) string {
	c := s.Component(n, m)
	if c == "" {
		return ""
	}
	return nth(strings.Split(c, s.delims.Subcomponent), k)
}

// Value resolves a path against the segment. The segment part of the path
// is not checked.
func (s *Segment) Value(p Path) string {
	switch {
	case p.Component == 0:
		return s.Field(p.Field)
	case p.Subcomponent == 0:
		return s.Component(p.Field, p.Component)
	default:
		return s.Subcomponent(p.Field, p.Component, p.Subcomponent)
	}
}

// Offset returns the 0-based byte offset in Raw where the addressed
// position starts, and false when the position does not exist.
func (s *Segment) Offset(p Path) (int, bool) {
	if p.Field < 1 {
		return 0, false
	}
	offset, ok := s.fieldOffset(p.Field)
	if !ok || p.Component == 0 {
		return offset, ok
	}
	f := s.Field(p.Field)
	rel, ok := partOffset(f, s.delims.Component, p.Component)
	if !ok {
		return 0, false
	}
	offset += rel
	if p.Subcomponent == 0 {
		return offset, true
	}
	rel, ok = partOffset(s.Component(p.Field, p.Component), s.delims.Subcomponent, p.Subcomponent)
	if !ok {
		return 0, false
	}
	return offset + rel, true
}

func (s *Segment) fieldOffset(n int) (int, bool) {
	if headerTypes[s.Type] {
		if n == 1 {
			idx := strings.Index(s.Raw, s.delims.Field)
			return idx, idx >= 0
		}
		n--
	}
	return partOffset(s.Raw, s.delims.Field, n+1)
}

// partOffset returns the byte offset of the n-th (1-based) sep-delimited
// part of text.
func partOffset(text, sep string, n int) (int, bool) {
	offset := 0
	for i := 1; i < n; i++ {
		idx := strings.Index(text[offset:], sep)
		if idx < 0 {
			return 0, false
		}
		offset += idx + len(sep)
	}
	return offset, true
}

func nth(parts []string, n int) string {
	if n < 1 || n > len(parts) {
		return ""
	}
	return parts[n-1]
}
