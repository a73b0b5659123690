package terminology

import "github.com/gofhir/fhir/r4"

// HL7 v2 tables.
const (
	CodeSystemAdministrativeSex       = "http://terminology.hl7.org/CodeSystem/v2-0001"
	CodeSystemValueType               = "http://terminology.hl7.org/CodeSystem/v2-0125"
	CodeSystemResultStatus            = "http://terminology.hl7.org/CodeSystem/v2-0123"
	CodeSystemObservationResultStatus = "http://terminology.hl7.org/CodeSystem/v2-0085"
	CodeSystemRelevantClinicalInfo    = "urn:gofhir:hl7validator:CodeSystem/relevant-clinical-info"
	valueSetPrefix                    = "urn:gofhir:hl7validator:ValueSet/"
	ValueSetSex                       = valueSetPrefix + "elr-sex"
	ValueSetValueType                 = valueSetPrefix + "elr-value-type"
	ValueSetOrderResultStatus         = valueSetPrefix + "elr-order-result-status"
	ValueSetObservationResultStatus   = valueSetPrefix + "elr-observation-result-status"
	ValueSetRelevantClinicalInfo      = valueSetPrefix + "elr-relevant-clinical-info"
)

type code struct{ code, display string }

var (
	administrativeSex = []code{
		{"A", "Ambiguous"},
		{"F", "Female"},
		{"M", "Male"},
		{"N", "Not applicable"},
		{"O", "Other"},
		{"U", "Unknown"},
	}

	valueType = []code{
		{"AD", "Address"},
		{"CE", "Coded Entry"},
		{"CF", "Coded Element With Formatted Values"},
		{"CNE", "Coded with No Exceptions"},
		{"CP", "Composite Price"},
		{"CWE", "Coded Entry with Exceptions"},
		{"CX", "Extended Composite ID With Check Digit"},
		{"DT", "Date"},
		{"ED", "Encapsulated Data"},
		{"FT", "Formatted Text (Display)"},
		{"MO", "Money"},
		{"NM", "Numeric"},
		{"PN", "Person Name"},
		{"RP", "Reference Pointer"},
		{"SN", "Structured Numeric"},
		{"ST", "String Data"},
		{"TM", "Time"},
		{"TN", "Telephone Number"},
		{"TS", "Time Stamp (Date & Time)"},
		{"TX", "Text Data (Display)"},
		{"XAD", "Extended Address"},
		{"XCN", "Extended Composite Name And Number For Persons"},
		{"XON", "Extended Composite Name And Number For Organizations"},
		{"XPN", "Extended Person Name"},
		{"XTN", "Extended Telecommunications Number"},
	}

	resultStatus = []code{
		{"O", "Order received; specimen not yet received"},
		{"I", "No results available; specimen received, procedure incomplete"},
		{"S", "No results available; procedure scheduled, but not done"},
		{"A", "Some, but not all, results available"},
		{"P", "Preliminary: A verified early result is available, final results not yet obtained"},
		{"C", "Correction to results"},
		{"R", "Results stored; not yet verified"},
		{"F", "Final results; results stored and verified. Can only be changed with a corrected result."},
		{"X", "No results available; Order canceled."},
		{"Y", "No order on record for this test."},
		{"Z", "No record of this patient."},
	}

	observationResultStatus = []code{
		{"C", "Record coming over is a correction and thus replaces a final result"},
		{"D", "Deletes the OBX record"},
		{"F", "Final results; Can only be changed with a corrected result."},
		{"I", "Specimen in lab; results pending"},
		{"N", "Not asked; used to affirmatively document that the observation identified in the OBX was not sought"},
		{"O", "Order detail description only (no result)"},
		{"P", "Preliminary results"},
		{"R", "Results entered -- not verified"},
		{"S", "Partial results"},
		{"U", "Results status change to final without retransmitting results already sent as preliminary"},
		{"W", "Post original as wrong, e.g., transmitted for wrong patient"},
		{"X", "Results cannot be obtained for this observation"},
	}

	relevantClinicalInfo = []code{
		{"Prenatal", "Prenatal"},
		{"Not Pregnant", "Not Pregnant"},
		{"Unknown Pregnancy", "Unknown Pregnancy"},
	}
)

// subset declares an ELR ValueSet as an ordered pick from one CodeSystem.
type subset struct {
	url    string
	system string
	codes  []string
}

var elrSubsets = []subset{
	{ValueSetSex, CodeSystemAdministrativeSex, []string{"F", "M", "O", "U"}},
	{ValueSetValueType, CodeSystemValueType, []string{"SN", "NM", "CWE", "CNE", "FT", "ST", "TX", "TS", "TM", "DT", "CE"}},
	{ValueSetOrderResultStatus, CodeSystemResultStatus, []string{"F", "P", "C"}},
	{ValueSetObservationResultStatus, CodeSystemObservationResultStatus, []string{"F", "P", "C"}},
	{ValueSetRelevantClinicalInfo, CodeSystemRelevantClinicalInfo, []string{"Prenatal", "Not Pregnant", "Unknown Pregnancy"}},
}

// NewDefaultRegistry returns a registry with the HL7 v2 tables and the ELR
// subsets used by the default rule tables.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for url, codes := range map[string][]code{
		CodeSystemAdministrativeSex:       administrativeSex,
		CodeSystemValueType:               valueType,
		CodeSystemResultStatus:            resultStatus,
		CodeSystemObservationResultStatus: observationResultStatus,
		CodeSystemRelevantClinicalInfo:    relevantClinicalInfo,
	} {
		if err := r.LoadR4CodeSystem(codeSystem(url, codes)); err != nil {
			panic(err)
		}
	}
	for _, s := range elrSubsets {
		if err := r.LoadR4ValueSet(valueSet(s.url, s.system, s.codes)); err != nil {
			panic(err)
		}
	}
	return r
}

// NewValueSet builds a ValueSet that enumerates codes of system in order.
// It is used by profile files that declare their own enumerations.
func NewValueSet(url, system string, codes []string) *r4.ValueSet {
	return valueSet(url, system, codes)
}

func codeSystem(url string, codes []code) *r4.CodeSystem {
	cs := &r4.CodeSystem{Url: ptr(url)}
	for _, c := range codes {
		cs.Concept = append(cs.Concept, r4.CodeSystemConcept{
			Code:    ptr(c.code),
			Display: ptr(c.display),
		})
	}
	return cs
}

func valueSet(url, system string, codes []string) *r4.ValueSet {
	inc := r4.ValueSetComposeInclude{System: ptr(system)}
	for _, c := range codes {
		inc.Concept = append(inc.Concept, r4.ValueSetComposeIncludeConcept{Code: ptr(c)})
	}
	return &r4.ValueSet{
		Url:     ptr(url),
		Compose: &r4.ValueSetCompose{Include: []r4.ValueSetComposeInclude{inc}},
	}
}

func ptr(s string) *string {
	return &s
}
