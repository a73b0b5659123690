package hl7validator

import (
	"testing"
)

func TestHL7Version_String(t *testing.T) {
	tests := []struct {
		version HL7Version
		want    string
	}{
		{V231, "2.3.1"},
		{V251, "2.5.1"},
		{V28, "2.8"},
	}

	for _, tt := range tests {
		if got := tt.version.String(); got != tt.want {
			t.Errorf("%v.String() = %q; want %q", tt.version, got, tt.want)
		}
	}
}

func TestHL7Version_IsValid(t *testing.T) {
	tests := []struct {
		version HL7Version
		want    bool
	}{
		{V25, true},
		{V251, true},
		{V271, true},
		{"2.9", false},
		{"3.0", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.version.IsValid(); got != tt.want {
			t.Errorf("%v.IsValid() = %v; want %v", tt.version, got, tt.want)
		}
	}
}

func TestMinELRVersion(t *testing.T) {
	if !MinELRVersion.IsValid() || MinELRVersion != V251 {
		t.Errorf("MinELRVersion = %q; want %q", MinELRVersion, V251)
	}
}
