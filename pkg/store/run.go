package store

import (
	"time"

	"github.com/gofhir/hl7validator/pkg/issue"
)

// Run is one recorded validation.
type Run struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Source         string    `json:"source"`
	ControlID      string    `json:"control_id,omitempty"`
	MessageType    string    `json:"message_type,omitempty"`
	Grammar        string    `json:"grammar"`
	Valid          bool      `json:"valid"`
	StructureValid bool      `json:"structure_valid"`
	Errors         []string  `json:"errors"`
	Warnings       []string  `json:"warnings"`
	Findings       []Finding `json:"findings"`
	DurationNs     int64     `json:"duration_ns"`
}

// Finding is the serialized form of an issue.Issue.
type Finding struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics"`
	Expression  []string `json:"expression,omitempty"`
	Line        int      `json:"line,omitempty"`
	Column      int      `json:"column,omitempty"`
	MessageID   string   `json:"message_id,omitempty"`
}

// NewRun records result under source. The ID and creation time are
// assigned by Save.
func NewRun(source string, result *issue.Result) *Run {
	r := &Run{
		Source:   source,
		Valid:    result.Valid(),
		Errors:   nonNil(result.Errors()),
		Warnings: nonNil(result.Warnings()),
		Findings: Findings(result),
	}
	if s := result.Stats; s != nil {
		r.ControlID = s.ControlID
		r.MessageType = s.MessageType
		r.Grammar = s.Grammar
		r.StructureValid = s.StructureValid
		r.DurationNs = s.Duration
	}
	return r
}

// Findings converts every issue of result, in order.
func Findings(result *issue.Result) []Finding {
	out := make([]Finding, 0, len(result.Issues))
	for _, iss := range result.Issues {
		f := Finding{
			Severity:    string(iss.Severity),
			Code:        string(iss.Code),
			Diagnostics: iss.Diagnostics,
			Expression:  iss.Expression,
			MessageID:   iss.MessageID,
		}
		if iss.Location != nil {
			f.Line = iss.Location.Line
			f.Column = iss.Location.Column
		}
		out = append(out, f)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
