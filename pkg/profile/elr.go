package profile

import (
	hl7validator "github.com/gofhir/hl7validator"
	"github.com/gofhir/hl7validator/pkg/grammar"
	"github.com/gofhir/hl7validator/pkg/message"
	"github.com/gofhir/hl7validator/pkg/rules"
	"github.com/gofhir/hl7validator/pkg/terminology"
)

// ELRName names the default electronic lab reporting profile.
const ELRName = "ELR_ORU_R01"

// Date and time layouts accepted by the ELR rules.
const (
	layoutDate           = "20060102"
	layoutDateTime       = "20060102150405"
	layoutDateTimeZone   = "20060102150405-0700"
	formatDate           = "YYYYMMDD"
	formatDateTime       = "YYYYMMDDHHMMSS"
	formatDateTimeOffset = "YYYYMMDDHHMMSS (GMT-offset is optional)"
)

const u = grammar.Unbounded

// orderGroup is one ORDER_OBSERVATION repetition. orcMin is 1 for the first
// order and 0 for subsequent ones.
func orderGroup(orcMin, min, max int) grammar.Node {
	return grammar.Group(min, max,
		grammar.Leaf("ORC", orcMin, 1),
		grammar.Leaf("OBR", 1, 1),
		grammar.Leaf("NTE", 0, u),
		grammar.Group(0, u,
			grammar.Leaf("TQ1", 1, 1),
			grammar.Leaf("TQ2", 0, u),
		),
		grammar.Leaf("CTD", 0, 1),
		grammar.Group(1, u,
			grammar.Leaf("OBX", 1, 1),
			grammar.Leaf("NTE", 0, u),
		),
		grammar.Leaf("FT1", 0, u),
		grammar.Leaf("CTI", 0, u),
		grammar.Group(1, u,
			grammar.Leaf("SPM", 1, 1),
			grammar.Leaf("OBX", 0, u),
		),
	)
}

// ELRGrammar returns the segment grammar of an ELR ORU^R01 message.
func ELRGrammar() grammar.Spec {
	return grammar.Spec{
		Name: ELRName,
		Nodes: []grammar.Node{
			grammar.Leaf("MSH", 1, 1),
			grammar.Leaf("SFT", 1, 1),
			grammar.Leaf("PID", 1, 1),
			grammar.Leaf("PD1", 0, 1),
			grammar.Leaf("NTE", 0, u),
			grammar.Leaf("NK1", 0, u),
			grammar.Group(0, 1,
				grammar.Leaf("PV1", 1, 1),
				grammar.Leaf("PV2", 0, 1),
			),
			orderGroup(1, 1, 1),
			orderGroup(0, 0, u),
		},
	}
}

var (
	f   = rules.Field
	req = rules.Required
)

// ELRRules returns the field rule sets of the ELR profile.
func ELRRules() []rules.Set {
	return []rules.Set{
		{Segment: rules.SegmentMSH, Rules: []rules.Rule{
			f("MSH-4", "Sending Facility", req()).With(
				f("MSH-4-1", "Reporting Facility Name", req(), rules.MaxLength(20)),
				f("MSH-4-2", "Facility CLIA", req()),
			),
			f("MSH-7", "Date and Time of Message", req(),
				rules.DateTime(formatDateTimeOffset, layoutDateTime, layoutDateTimeZone)),
			f("MSH-10", "Message Control ID", req()),
			f("MSH-12", "Message Version ID", req()).With(
				f("MSH-12-1", "HL7 version number", req(), rules.HL7Version(hl7validator.MinELRVersion.String())),
			),
		}},
		{Segment: rules.SegmentSFT, Rules: []rules.Rule{
			f("SFT-1", "Software Vendor Organization", req()),
			f("SFT-3", "Software Product Name", req()),
		}},
		{Segment: rules.SegmentPID, Rules: []rules.Rule{
			f("PID-5", "Patient Name", req()).With(
				f("PID-5-1", "Patient Last Name", req(), rules.Alphabetic()),
				f("PID-5-2", "Patient First Name", req(), rules.Alphabetic()),
			),
			f("PID-7", "Patient Date of Birth", req(), rules.DateTime(formatDate, layoutDate)),
			f("PID-8", "Patient Sex", req(), rules.OneOf(terminology.ValueSetSex)),
			f("PID-10", "Patient Race", req()),
			f("PID-11", "Patient Address", req()),
			f("PID-13", "Patient Phone Number", req()),
			f("PID-22", "Patient Ethnic Group", req()),
		}},
		{Segment: rules.SegmentORC, Rules: []rules.Rule{
			f("ORC-21", "Ordering Facility Name", req()),
			f("ORC-22", "Ordering Facility Address", req()),
			f("ORC-23", "Ordering Facility Phone Number", req()),
			f("ORC-24", "Ordering/Referring Provider Address", req()),
		}},
		{Segment: rules.SegmentOBR, Rules: []rules.Rule{
			f("OBR-4", "Lab Test Order LOINC", req()),
			f("OBR-13", "Relevant Clinical Information", req(), rules.OneOf(terminology.ValueSetRelevantClinicalInfo)),
			f("OBR-16", "Ordering Provider National Provider Identifier (NPI) and Name", req()),
			f("OBR-17", "Ordering Provider Phone Number", req()),
			f("OBR-25", "Result Status", req(), rules.OneOf(terminology.ValueSetOrderResultStatus)),
		}},
		{Segment: rules.SegmentOBX, Rules: []rules.Rule{
			f("OBX-2", "Data Type", req(), rules.OneOf(terminology.ValueSetValueType)),
			f("OBX-3", "Observation Identifier", req()).With(
				f("OBX-3-1", "Lab Test LOINC code", req()),
				f("OBX-3-2", "Lab Test Name", req()),
			),
			f("OBX-5", "Observation Value", req()).With(
				f("OBX-5-1", "Lab Result Observation Value Code", req()),
				f("OBX-5-2", "Lab Result Observation Value Text Description", req()),
			),
			f("OBX-6", "Result Units", rules.RequiredWhen(message.MustParsePath("OBX-2"), "NM", "SN")),
			f("OBX-7", "Result References Range", req()),
			f("OBX-8", "Abnormal Flag", req()),
			f("OBX-11", "Observation Result Status", req(), rules.OneOf(terminology.ValueSetObservationResultStatus)),
			f("OBX-17", "Observation Method or Test Device", req()),
			f("OBX-19", "Test Resulted Date and Time", req(), rules.DateTime(formatDateTime, layoutDateTime)),
			f("OBX-23", "Performing Organization Name", req()).With(
				f("OBX-23-1", "Performing Organization Name", req()),
				f("OBX-23-10", "Performing Organization CLIA", req()),
			),
			f("OBX-24", "Performing Organization Address", req()),
		}},
		{Segment: rules.SegmentSPM, Rules: []rules.Rule{
			f("SPM-2", "Specimen ID", req()).With(
				f("SPM-2-2", "Filler Assigned Identifier", req()).With(
					f("SPM-2-2-1", "Accession Number", req()),
				),
			),
			f("SPM-4", "Specimen Type", req()).With(
				f("SPM-4-1", "Specimen Type or Material SNOMED code", req()),
				f("SPM-4-2", "Specimen Type or Material Text Description", req()),
			),
			f("SPM-17", "Specimen Collected Date and Time", req(), rules.DateTime(formatDateTime, layoutDateTime)),
			f("SPM-18", "Specimen Received Date and Time", req(), rules.DateTime(formatDateTime, layoutDateTime)),
		}},
	}
}
