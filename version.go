package hl7validator

// Version is the release of this module, set at build time with
// -ldflags "-X github.com/gofhir/hl7validator.Version=...".
var Version = "dev"

// HL7Version represents an HL7 v2 message version as carried in MSH-12-1.
type HL7Version string

// Known HL7 v2 versions.
const (
	V231 HL7Version = "2.3.1"
	V24  HL7Version = "2.4"
	V25  HL7Version = "2.5"
	V251 HL7Version = "2.5.1"
	V26  HL7Version = "2.6"
	V27  HL7Version = "2.7"
	V271 HL7Version = "2.7.1"
	V28  HL7Version = "2.8"
)

// MinELRVersion is the lowest version accepted for electronic lab reports.
const MinELRVersion = V251

// String returns the version string.
func (v HL7Version) String() string {
	return string(v)
}

// IsValid returns true if this is a known HL7 v2 version.
func (v HL7Version) IsValid() bool {
	switch v {
	case V231, V24, V25, V251, V26, V27, V271, V28:
		return true
	default:
		return false
	}
}
