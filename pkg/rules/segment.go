package rules

// SegmentType is the closed set of segment types that carry field rules.
type SegmentType string

// Validated segment types.
const (
	SegmentMSH SegmentType = "MSH"
	SegmentSFT SegmentType = "SFT"
	SegmentPID SegmentType = "PID"
	SegmentORC SegmentType = "ORC"
	SegmentOBR SegmentType = "OBR"
	SegmentOBX SegmentType = "OBX"
	SegmentSPM SegmentType = "SPM"
)

var segmentTypes = []SegmentType{
	SegmentMSH,
	SegmentSFT,
	SegmentPID,
	SegmentORC,
	SegmentOBR,
	SegmentOBX,
	SegmentSPM,
}

// SegmentTypes returns every validated segment type in message order.
func SegmentTypes() []SegmentType {
	out := make([]SegmentType, len(segmentTypes))
	copy(out, segmentTypes)
	return out
}

// ParseSegmentType maps a segment type token to a SegmentType.
// Returns false for segments that have no rule set (NTE, PV1, ...).
func ParseSegmentType(s string) (SegmentType, bool) {
	for _, t := range segmentTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}
