package message

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/gofhir/hl7validator/internal/fixture"
)

func TestParseTypes(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "newline separated",
			text: "MSH|^~\\&|A\nPID|1\nOBX|1",
			want: []string{"MSH", "PID", "OBX"},
		},
		{
			name: "carriage returns and blank edges",
			text: "\r\n\nMSH|^~\\&|A\r\nPID|1\r\nOBX|1\r\n\r\n",
			want: []string{"MSH", "PID", "OBX"},
		},
		{
			name: "type is trimmed",
			text: " MSH |^~\\&\nPID |1",
			want: []string{"MSH", "PID"},
		},
		{
			name: "segment without field separator",
			text: "MSH|^~\\&\nNTE",
			want: []string{"MSH", "NTE"},
		},
		{
			name: "empty input",
			text: "",
			want: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.text).Types()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Types() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseLineNumbers(t *testing.T) {
	m := Parse("\n\nMSH|^~\\&\nPID|1\n")
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	if m.Segments[0].Line != 3 {
		t.Errorf("MSH line = %d, want 3", m.Segments[0].Line)
	}
	if m.Segments[1].Line != 4 {
		t.Errorf("PID line = %d, want 4", m.Segments[1].Line)
	}
}

func TestParseCustomSegmentSeparator(t *testing.T) {
	m := Parse("MSH|^~\\&\rPID|1\rOBX|1", WithSegmentSeparator("\r"))
	want := []string{"MSH", "PID", "OBX"}
	if got := m.Types(); !reflect.DeepEqual(got, want) {
		t.Errorf("Types() = %q, want %q", got, want)
	}
}

func TestSegmentFieldAccess(t *testing.T) {
	seg := Parse(fixture.PID).Segments[0]

	tests := []struct {
		path string
		want string
	}{
		{"PID-3", "8675309"},
		{"PID-5", "Test^Rick^A"},
		{"PID-5-1", "Test"},
		{"PID-5-2", "Rick"},
		{"PID-5-3", "A"},
		{"PID-5-4", ""},
		{"PID-7", "20200202"},
		{"PID-8", "M"},
		{"PID-11-3", "Sacramento"},
		{"PID-22", "H"},
		{"PID-40", ""},
		{"PID-40-2-1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := seg.Value(MustParsePath(tt.path)); got != tt.want {
				t.Errorf("Value(%s) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestHeaderFieldNumbering(t *testing.T) {
	seg := Parse(fixture.MSH).Segments[0]

	tests := []struct {
		n    int
		want string
	}{
		{1, "|"},
		{2, `^~\&`},
		{3, "XL2HL7^1.10.100.1.111111.1.101^ISO"},
		{4, "Test Lab^99999^CLIA"},
		{7, "20241030100306"},
		{10, "103"},
		{12, "2.5.1"},
	}
	for _, tt := range tests {
		if got := seg.Field(tt.n); got != tt.want {
			t.Errorf("MSH-%d = %q, want %q", tt.n, got, tt.want)
		}
	}
	if got := seg.Component(4, 2); got != "99999" {
		t.Errorf("MSH-4-2 = %q, want 99999", got)
	}
}

func TestSubcomponent(t *testing.T) {
	seg := NewSegment("SPM|1|^ACC123&LAB&ISO||", DefaultDelimiters())
	if got := seg.Subcomponent(2, 2, 1); got != "ACC123" {
		t.Errorf("SPM-2-2-1 = %q, want ACC123", got)
	}
	if got := seg.Subcomponent(2, 2, 3); got != "ISO" {
		t.Errorf("SPM-2-2-3 = %q, want ISO", got)
	}
	if got := seg.Subcomponent(2, 1, 1); got != "" {
		t.Errorf("SPM-2-1-1 = %q, want empty", got)
	}
}

func TestSegmentOffset(t *testing.T) {
	seg := NewSegment("PID|1||8675309||Test^Rick", DefaultDelimiters())

	tests := []struct {
		path   string
		want   int
		wantOK bool
	}{
		{"PID-1", 4, true},
		{"PID-3", 7, true},
		{"PID-5", 16, true},
		{"PID-5-2", 21, true},
		{"PID-5-3", 0, false},
		{"PID-9", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := seg.Offset(MustParsePath(tt.path))
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Offset(%s) = (%d, %v), want (%d, %v)", tt.path, got, ok, tt.want, tt.wantOK)
			}
		})
	}

	msh := NewSegment("MSH|^~\\&|APP|FAC", DefaultDelimiters())
	if got, ok := msh.Offset(MustParsePath("MSH-4")); !ok || got != 13 {
		t.Errorf("Offset(MSH-4) = (%d, %v), want (13, true)", got, ok)
	}
	if got, ok := msh.Offset(MustParsePath("MSH-1")); !ok || got != 3 {
		t.Errorf("Offset(MSH-1) = (%d, %v), want (3, true)", got, ok)
	}

	indented := NewSegment("  MSH|^~\\&|APP|FAC", DefaultDelimiters())
	if got, ok := indented.Offset(MustParsePath("MSH-1")); !ok || got != 5 {
		t.Errorf("indented Offset(MSH-1) = (%d, %v), want (5, true)", got, ok)
	}
	if got, ok := indented.Offset(MustParsePath("MSH-4")); !ok || got != 15 {
		t.Errorf("indented Offset(MSH-4) = (%d, %v), want (15, true)", got, ok)
	}
	if _, ok := NewSegment("MSH", DefaultDelimiters()).Offset(MustParsePath("MSH-1")); ok {
		t.Error("Offset(MSH-1) of a bare MSH should not be found")
	}
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		in      string
		want    Path
		wantErr bool
	}{
		{in: "PID-5", want: Path{Segment: "PID", Field: 5}},
		{in: "PID-5-1", want: Path{Segment: "PID", Field: 5, Component: 1}},
		{in: "SPM-2-2-1", want: Path{Segment: "SPM", Field: 2, Component: 2, Subcomponent: 1}},
		{in: "PID", wantErr: true},
		{in: "PID-0", wantErr: true},
		{in: "PID-x", wantErr: true},
		{in: "PIDX-1", wantErr: true},
		{in: "PID-1-2-3-4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePath(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPath) {
					t.Fatalf("ParsePath(%q) error = %v, want ErrInvalidPath", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePath(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParsePath(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestPathParent(t *testing.T) {
	p := MustParsePath("SPM-2-2-1")
	if got := p.Parent().String(); got != "SPM-2-2" {
		t.Errorf("Parent() = %s, want SPM-2-2", got)
	}
	if got := p.Parent().Parent().String(); got != "SPM-2" {
		t.Errorf("Parent().Parent() = %s, want SPM-2", got)
	}
	if got := MustParsePath("SPM-2").Parent().String(); got != "SPM-2" {
		t.Errorf("field Parent() = %s, want SPM-2", got)
	}
	if p.Depth() != 3 {
		t.Errorf("Depth() = %d, want 3", p.Depth())
	}
}

func TestControlID(t *testing.T) {
	m := Parse(fixture.ValidORU)
	if got := m.ControlID(); got != "103" {
		t.Errorf("ControlID() = %q, want 103", got)
	}
	if got := Parse("PID|1").ControlID(); got != "" {
		t.Errorf("ControlID() without MSH = %q, want empty", got)
	}
}

func TestSplitBatch(t *testing.T) {
	text := "FHS|^~\\&\nBHS|^~\\&\n" + fixture.ValidORU + fixture.ValidORU + "BTS|2\nFTS|1\n"
	msgs := SplitBatch(text)
	if len(msgs) != 2 {
		t.Fatalf("SplitBatch() returned %d messages, want 2", len(msgs))
	}
	for i, msg := range msgs {
		types := Parse(msg).Types()
		if types[0] != "MSH" || len(types) != 7 {
			t.Errorf("message %d types = %q", i, types)
		}
	}

	leading := SplitBatch("PID|1\nMSH|^~\\&\nPID|2\n")
	if len(leading) != 1 {
		t.Errorf("leading segments before MSH should stay in the first message, got %d messages", len(leading))
	}
}

func TestScanner(t *testing.T) {
	text := strings.ReplaceAll(fixture.ValidORU+"\r"+fixture.ValidORU+"\rMSH|^~\\&|LAST", "\n", "\r")
	s := NewScanner(strings.NewReader(text), WithSegmentSeparator("\r"))

	var got []string
	for s.Scan() {
		got = append(got, s.Text())
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Scan() found %d messages, want 3", len(got))
	}
	if n := len(Parse(got[1], WithSegmentSeparator("\r")).Segments); n != 7 {
		t.Errorf("second message has %d segments, want 7", n)
	}
	if got[2] != "MSH|^~\\&|LAST" {
		t.Errorf("last message = %q", got[2])
	}

	if NewScanner(strings.NewReader("\n\n")).Scan() {
		t.Error("Scan() on blank input should return false")
	}
}
