package message

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// envelopeTypes are batch and file envelope segments that wrap messages.
var envelopeTypes = map[string]bool{
	"FHS": true,
	"FTS": true,
	"BHS": true,
	"BTS": true,
}

// MaxSegmentSize bounds a single segment read by a Scanner.
const MaxSegmentSize = 16 << 20

// Scanner reads the messages of a batch stream one at a time.
// A new message starts at every MSH segment; batch envelope segments are
// dropped. Segments before the first MSH stay with the first message so
// that a missing header is still reported by validation.
type Scanner struct {
	lines   *bufio.Scanner
	d       Delimiters
	current []string
	header  bool
	text    string
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader, opts ...Option) *Scanner {
	d := DefaultDelimiters()
	for _, opt := range opts {
		opt(&d)
	}
	lines := bufio.NewScanner(r)
	lines.Buffer(make([]byte, 0, 64*1024), MaxSegmentSize)
	lines.Split(splitOn([]byte(d.Segment)))
	return &Scanner{lines: lines, d: d}
}

// Scan advances to the next message, which is then available through Text.
// It returns false at the end of the input or on a read error.
func (s *Scanner) Scan() bool {
	for s.lines.Scan() {
		line := strings.Trim(s.lines.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		typ := newSegment(line, 0, s.d).Type
		if envelopeTypes[typ] {
			continue
		}
		if typ == "MSH" {
			if s.header {
				s.text = strings.Join(s.current, s.d.Segment)
				s.current = []string{line}
				return true
			}
			s.header = true
		}
		s.current = append(s.current, line)
	}
	if len(s.current) == 0 {
		return false
	}
	s.text = strings.Join(s.current, s.d.Segment)
	s.current, s.header = nil, false
	return true
}

// Text returns the message found by the last call to Scan.
func (s *Scanner) Text() string {
	return s.text
}

// Err returns the first read error.
func (s *Scanner) Err() error {
	return s.lines.Err()
}

func splitOn(sep []byte) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.Index(data, sep); i >= 0 {
			return i + len(sep), data[:i], nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}

// SplitBatch splits text holding several messages into one string per
// message, following the rules of Scanner.
func SplitBatch(text string, opts ...Option) []string {
	var out []string
	s := NewScanner(strings.NewReader(text), opts...)
	for s.Scan() {
		out = append(out, s.Text())
	}
	return out
}
