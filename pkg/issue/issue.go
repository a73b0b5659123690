// Package issue defines validation findings for HL7 v2 messages.
package issue

import "sync"

// Severity represents the severity of a validation issue.
type Severity string

// Severity constants. Only errors make a message invalid.
const (
	SeverityError       Severity = "error"
	SeverityWarning     Severity = "warning"
	SeverityInformation Severity = "information"
)

// Code classifies the problem.
type Code string

// Code constants.
const (
	CodeStructure     Code = "structure"
	CodeRequired      Code = "required"
	CodeValue         Code = "value"
	CodeCodeInvalid   Code = "code-invalid"
	CodeTooLong       Code = "too-long"
	CodeProcessing    Code = "processing"
	CodeInformational Code = "informational"
)

// Issue is a single finding.
type Issue struct {
	// Severity indicates the severity level
	Severity Severity

	// Code indicates the type of issue
	Code Code

	// Diagnostics is the human-readable description of the issue
	Diagnostics string

	// Expression holds segment-relative paths such as "PID-5-1"
	Expression []string

	// Location contains line and column information
	Location *Location

	// Segment is the index of the segment that produced the issue, -1 for
	// message-level issues
	Segment int

	// MessageID is the identifier from the diagnostic catalog
	MessageID string
}

// Location is a position in the source message text.
type Location struct {
	Line   int
	Column int
}

// Stats contains validation statistics.
type Stats struct {
	// MessageType is MSH-9 of the validated message
	MessageType string
	// ControlID is MSH-10 of the validated message
	ControlID string
	// Grammar is the name of the grammar the sequence was checked against
	Grammar string
	// Size is the input size in bytes
	Size int
	// Segments is the number of segments in the message
	Segments int
	// SegmentsChecked is the number of segments that had a rule set
	SegmentsChecked int
	// RulesEvaluated is the number of rules run, nested rules included
	RulesEvaluated int
	// StructureValid reports whether the sequence gate passed
	StructureValid bool
	// Duration is the total validation time
	Duration int64 // nanoseconds
}

// Result holds the ordered findings of one validation run.
type Result struct {
	Issues []Issue
	Stats  *Stats
}

// Most messages produce fewer than 16 findings.
const defaultIssueCapacity = 16

var resultPool = sync.Pool{
	New: func() any {
		return &Result{
			Issues: make([]Issue, 0, defaultIssueCapacity),
		}
	},
}

// NewResult creates a new empty Result.
func NewResult() *Result {
	return &Result{
		Issues: make([]Issue, 0, defaultIssueCapacity),
	}
}

// GetPooledResult returns an empty Result from the pool. Callers that own
// the result may hand it back with ReleaseResult.
func GetPooledResult() *Result {
	r, ok := resultPool.Get().(*Result)
	if !ok {
		r = &Result{Issues: make([]Issue, 0, defaultIssueCapacity)}
	}
	r.Issues = r.Issues[:0]
	r.Stats = nil
	return r
}

// ReleaseResult returns a Result to the pool for reuse.
// Do not use the Result after calling this function.
func ReleaseResult(r *Result) {
	if r == nil {
		return
	}
	for i := range r.Issues {
		r.Issues[i] = Issue{}
	}
	r.Issues = r.Issues[:0]
	r.Stats = nil
	resultPool.Put(r)
}

// AddError adds an error-level issue.
func (r *Result) AddError(code Code, diagnostics string, expression ...string) {
	r.add(SeverityError, code, diagnostics, "", expression)
}

// AddWarning adds a warning-level issue.
func (r *Result) AddWarning(code Code, diagnostics string, expression ...string) {
	r.add(SeverityWarning, code, diagnostics, "", expression)
}

// AddInfo adds an information-level issue.
func (r *Result) AddInfo(code Code, diagnostics string, expression ...string) {
	r.add(SeverityInformation, code, diagnostics, "", expression)
}

func (r *Result) add(sev Severity, code Code, diagnostics, id string, expression []string) {
	r.Issues = append(r.Issues, Issue{
		Severity:    sev,
		Code:        code,
		Diagnostics: diagnostics,
		Expression:  expression,
		Segment:     -1,
		MessageID:   id,
	})
}

// HasErrors returns true if there are any error-level issues.
func (r *Result) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Valid is the inverse of HasErrors.
func (r *Result) Valid() bool {
	return !r.HasErrors()
}

// ErrorCount returns the number of error-level issues.
func (r *Result) ErrorCount() int {
	return r.count(SeverityError)
}

// WarningCount returns the number of warning-level issues.
func (r *Result) WarningCount() int {
	return r.count(SeverityWarning)
}

// InfoCount returns the number of information-level issues.
func (r *Result) InfoCount() int {
	return r.count(SeverityInformation)
}

func (r *Result) count(sev Severity) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == sev {
			n++
		}
	}
	return n
}

// Errors returns the error messages in the order they were found.
func (r *Result) Errors() []string {
	return r.messages(SeverityError)
}

// Warnings returns the warning messages in the order they were found.
func (r *Result) Warnings() []string {
	return r.messages(SeverityWarning)
}

func (r *Result) messages(sev Severity) []string {
	out := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		if issue.Severity == sev {
			out = append(out, issue.Diagnostics)
		}
	}
	return out
}

// PromoteWarnings turns every warning into an error, for strict mode.
func (r *Result) PromoteWarnings() {
	for i := range r.Issues {
		if r.Issues[i].Severity == SeverityWarning {
			r.Issues[i].Severity = SeverityError
		}
	}
}

// EnrichLocations adds line and column information to issues that carry a
// segment index and an expression. The locator maps both to a Location.
func (r *Result) EnrichLocations(locator func(segment int, expression string) *Location) {
	if locator == nil {
		return
	}
	for i := range r.Issues {
		iss := &r.Issues[i]
		if iss.Location != nil || iss.Segment < 0 {
			continue
		}
		expr := ""
		if len(iss.Expression) > 0 {
			expr = iss.Expression[0]
		}
		if loc := locator(iss.Segment, expr); loc != nil {
			iss.Location = loc
		}
	}
}
