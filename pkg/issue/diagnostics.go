package issue

import (
	"fmt"
	"strings"
)

// DiagnosticID identifies a specific diagnostic message.
type DiagnosticID string

// Diagnostic IDs for sequence validation.
const (
	DiagStructureInvalidSequence DiagnosticID = "STRUCTURE_INVALID_SEQUENCE"
	DiagStructureUnexpected      DiagnosticID = "STRUCTURE_UNEXPECTED_SEGMENT"
	DiagStructureTruncated       DiagnosticID = "STRUCTURE_TRUNCATED"
)

// Diagnostic IDs for field rules.
const (
	DiagFieldMissing        DiagnosticID = "FIELD_MISSING"
	DiagFieldInvalidFormat  DiagnosticID = "FIELD_INVALID_FORMAT"
	DiagFieldInvalidCode    DiagnosticID = "FIELD_INVALID_CODE"
	DiagFieldNonAlphabetic  DiagnosticID = "FIELD_NON_ALPHABETIC"
	DiagFieldTooLong        DiagnosticID = "FIELD_TOO_LONG"
	DiagFieldVersionTooLow  DiagnosticID = "FIELD_VERSION_TOO_LOW"
	DiagFieldUnknownCodeSys DiagnosticID = "FIELD_UNKNOWN_CODESYSTEM"
)

// DiagnosticTemplate defines a message template with default severity and code.
type DiagnosticTemplate struct {
	ID       DiagnosticID
	Severity Severity
	Code     Code
	Template string
}

var diagnosticTemplates = map[DiagnosticID]DiagnosticTemplate{
	DiagStructureInvalidSequence: {
		Severity: SeverityError,
		Code:     CodeStructure,
		Template: "Invalid Message: Missing essential segments, should have all the following segments: {segments}.",
	},
	DiagStructureUnexpected: {
		Severity: SeverityInformation,
		Code:     CodeStructure,
		Template: "Segment {index} ({type}) does not fit grammar {grammar}",
	},
	DiagStructureTruncated: {
		Severity: SeverityInformation,
		Code:     CodeStructure,
		Template: "Message ends before grammar {grammar} is complete",
	},

	DiagFieldMissing: {
		Severity: SeverityError,
		Code:     CodeRequired,
		Template: "Missing {name} ({path}).",
	},
	DiagFieldInvalidFormat: {
		Severity: SeverityError,
		Code:     CodeValue,
		Template: "Invalid {name} ({path}): {value}, should be in the format of {format}.",
	},
	DiagFieldInvalidCode: {
		Severity: SeverityError,
		Code:     CodeCodeInvalid,
		Template: "Invalid {name} ({path}): {value}, should be either {allowed}.",
	},
	DiagFieldNonAlphabetic: {
		Severity: SeverityWarning,
		Code:     CodeValue,
		Template: "{name} ({path}) contains non-alphabetic characters: {value}.",
	},
	DiagFieldTooLong: {
		Severity: SeverityWarning,
		Code:     CodeTooLong,
		Template: "Invalid {name} ({path}): {value}, must not exceed {max} characters.",
	},
	DiagFieldVersionTooLow: {
		Severity: SeverityError,
		Code:     CodeValue,
		Template: "Invalid {name} ({path}): {value}, should be {min} or higher.",
	},
	DiagFieldUnknownCodeSys: {
		Severity: SeverityWarning,
		Code:     CodeProcessing,
		Template: "Code system '{system}' for {name} ({path}) is not loaded, value {value} cannot be checked.",
	},
}

// FormatDiagnostic formats a diagnostic message with the given parameters.
func FormatDiagnostic(id DiagnosticID, params map[string]any) string {
	tmpl, ok := diagnosticTemplates[id]
	if !ok {
		return string(id)
	}
	return formatTemplate(tmpl.Template, params)
}

// GetDiagnosticTemplate returns the template for a diagnostic ID.
func GetDiagnosticTemplate(id DiagnosticID) (DiagnosticTemplate, bool) {
	tmpl, ok := diagnosticTemplates[id]
	if ok {
		tmpl.ID = id
	}
	return tmpl, ok
}

// formatTemplate replaces {placeholder} with values from params in a single
// left-to-right pass. Substituted values are never scanned again, so a value
// that itself looks like a placeholder is written as is. Unknown placeholders
// are kept.
func formatTemplate(template string, params map[string]any) string {
	var b strings.Builder
	b.Grow(len(template))
	for {
		open := strings.IndexByte(template, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(template[open:], '}')
		if end < 0 {
			break
		}
		end += open
		b.WriteString(template[:open])
		if value, ok := params[template[open+1:end]]; ok {
			b.WriteString(fmt.Sprint(value))
		} else {
			b.WriteString(template[open : end+1])
		}
		template = template[end+1:]
	}
	b.WriteString(template)
	return b.String()
}

// AddWithID adds an issue using the template's own severity.
func (r *Result) AddWithID(id DiagnosticID, params map[string]any, expression ...string) *Issue {
	tmpl, ok := diagnosticTemplates[id]
	if !ok {
		r.add(SeverityError, CodeProcessing, string(id), string(id), expression)
		return &r.Issues[len(r.Issues)-1]
	}
	r.add(tmpl.Severity, tmpl.Code, formatTemplate(tmpl.Template, params), string(id), expression)
	return &r.Issues[len(r.Issues)-1]
}

// AddErrorWithID adds an error using a diagnostic template.
func (r *Result) AddErrorWithID(id DiagnosticID, params map[string]any, expression ...string) *Issue {
	iss := r.AddWithID(id, params, expression...)
	iss.Severity = SeverityError
	return iss
}

// AddWarningWithID adds a warning using a diagnostic template.
func (r *Result) AddWarningWithID(id DiagnosticID, params map[string]any, expression ...string) *Issue {
	iss := r.AddWithID(id, params, expression...)
	iss.Severity = SeverityWarning
	return iss
}

// AddInfoWithID adds an informational message using a diagnostic template.
func (r *Result) AddInfoWithID(id DiagnosticID, params map[string]any, expression ...string) *Issue {
	iss := r.AddWithID(id, params, expression...)
	iss.Severity = SeverityInformation
	return iss
}

// JoinAlternatives renders values as "A, B, or C" ("A or B" for two).
func JoinAlternatives(values []string) string {
	return joinWith(values, "or")
}

// JoinAll renders values as "A, B, and C" ("A and B" for two).
func JoinAll(values []string) string {
	return joinWith(values, "and")
}

func joinWith(values []string, conj string) string {
	switch len(values) {
	case 0:
		return ""
	case 1:
		return values[0]
	case 2:
		return values[0] + " " + conj + " " + values[1]
	default:
		return strings.Join(values[:len(values)-1], ", ") + ", " + conj + " " + values[len(values)-1]
	}
}
