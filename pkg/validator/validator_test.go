package validator

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/gofhir/hl7validator/internal/fixture"
	"github.com/gofhir/hl7validator/pkg/grammar"
	"github.com/gofhir/hl7validator/pkg/issue"
	"github.com/gofhir/hl7validator/pkg/metrics"
	"github.com/gofhir/hl7validator/pkg/profile"
	"github.com/gofhir/hl7validator/pkg/rules"
	"github.com/gofhir/hl7validator/pkg/terminology"
)

const structureError = "Invalid Message: Missing essential segments, should have all the following segments: MSH, SFT, PID, ORC, OBR, OBX, and SPM."

func newValidator(t *testing.T, opts ...Option) *Validator {
	t.Helper()
	v, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return v
}

func validate(t *testing.T, v *Validator, text string) *issue.Result {
	t.Helper()
	result, err := v.ValidateString(context.Background(), text)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return result
}

func TestValidateValidMessage(t *testing.T) {
	v := newValidator(t)
	result := validate(t, v, fixture.ValidORU)

	if !result.Valid() {
		t.Errorf("Errors() = %q, want none", result.Errors())
	}
	if len(result.Warnings()) != 0 {
		t.Errorf("Warnings() = %q, want none", result.Warnings())
	}

	s := result.Stats
	if s == nil {
		t.Fatal("Stats should be set")
	}
	if !s.StructureValid || s.Segments != 7 || s.SegmentsChecked != 7 {
		t.Errorf("Stats = %+v, want a valid structure with 7 checked segments", s)
	}
	if s.ControlID != "103" || s.MessageType != "ORU^R01^ORU_R01" || s.Grammar != profile.ELRName {
		t.Errorf("Stats = %+v, want control ID 103, type ORU^R01^ORU_R01, grammar %s", s, profile.ELRName)
	}
	if s.RulesEvaluated == 0 {
		t.Error("RulesEvaluated should count evaluated rules")
	}
}

func TestValidateStructure(t *testing.T) {
	lines := fixture.Lines()
	without := func(typ string) []string {
		var out []string
		for _, l := range lines {
			if !strings.HasPrefix(l, typ+"|") {
				out = append(out, l)
			}
		}
		return out
	}

	tests := []struct {
		name      string
		text      string
		wantValid bool
		wantHint  issue.DiagnosticID
	}{
		{"minimal required sequence", fixture.ValidORU, true, ""},
		{"missing MSH", fixture.Join(without("MSH")...), false, issue.DiagStructureUnexpected},
		{"duplicate MSH", fixture.Join(append([]string{fixture.MSH}, lines...)...), false, issue.DiagStructureUnexpected},
		{"missing SFT", fixture.Join(without("SFT")...), false, issue.DiagStructureUnexpected},
		{"truncated after OBX", fixture.Join(lines[:6]...), false, issue.DiagStructureTruncated},
		{"empty input", "", false, issue.DiagStructureUnexpected},
		{
			"repeated order groups",
			fixture.Join(fixture.MSH, fixture.SFT, fixture.PID, fixture.ORC, fixture.OBR, fixture.OBX, fixture.OBX, fixture.SPM, fixture.OBR, fixture.OBX, fixture.SPM),
			true, "",
		},
		{
			"optional segments",
			fixture.Join(fixture.MSH, fixture.SFT, fixture.PID, "NTE|1||note", "PV1|1|O", fixture.ORC, fixture.OBR, fixture.OBX, "NTE|1||obs note", fixture.SPM),
			true, "",
		},
	}

	v := newValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validate(t, v, tt.text)
			if result.Stats.StructureValid != tt.wantValid {
				t.Fatalf("StructureValid = %v, want %v (errors %q)", result.Stats.StructureValid, tt.wantValid, result.Errors())
			}
			if tt.wantValid {
				if !result.Valid() {
					t.Errorf("Errors() = %q, want none", result.Errors())
				}
				return
			}

			// exactly one structural error and no field findings
			if got := result.Errors(); !reflect.DeepEqual(got, []string{structureError}) {
				t.Errorf("Errors() = %q, want only the structural error", got)
			}
			if got := result.Warnings(); len(got) != 0 {
				t.Errorf("Warnings() = %q, want none", got)
			}
			if result.Stats.RulesEvaluated != 0 {
				t.Errorf("RulesEvaluated = %d, want 0 after a structural failure", result.Stats.RulesEvaluated)
			}
			if result.InfoCount() != 1 || result.Issues[1].MessageID != string(tt.wantHint) {
				t.Errorf("hint = %+v, want one %s", result.Issues, tt.wantHint)
			}
		})
	}
}

func TestValidateFieldFindings(t *testing.T) {
	tests := []struct {
		name         string
		typ          string
		line         string
		wantErrors   []string
		wantWarnings []string
	}{
		{
			name:       "invalid sex",
			typ:        "PID",
			line:       strings.Replace(fixture.PID, "|20200202|M|", "|20200202|X|", 1),
			wantErrors: []string{"Invalid Patient Sex (PID-8): X, should be either F, M, O, or U."},
		},
		{
			name:       "numeric result without units",
			typ:        "OBX",
			line:       strings.Replace(fixture.OBX, "OBX|1|CE|", "OBX|1|NM|", 1),
			wantErrors: []string{"Missing Result Units (OBX-6)."},
		},
		{
			name:         "non-alphabetic last name",
			typ:          "PID",
			line:         strings.Replace(fixture.PID, "|Test^Rick^A|", "|T3st^Rick^A|", 1),
			wantWarnings: []string{"Patient Last Name (PID-5-1) contains non-alphabetic characters: T3st."},
		},
		{
			name: "errors and warnings together",
			typ:  "PID",
			line: strings.Replace(strings.Replace(fixture.PID, "|20200202|M|", "|2020-02-02|M|", 1), "|Test^Rick^A|", "|Test^R1ck^A|", 1),
			wantErrors: []string{
				"Invalid Patient Date of Birth (PID-7): 2020-02-02, should be in the format of YYYYMMDD.",
			},
			wantWarnings: []string{"Patient First Name (PID-5-2) contains non-alphabetic characters: R1ck."},
		},
	}

	v := newValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := fixture.Join(fixture.Replace(fixture.Lines(), tt.typ, tt.line)...)
			result := validate(t, v, text)
			if got := result.Errors(); !reflect.DeepEqual(got, tt.wantErrors) {
				t.Errorf("Errors() = %q, want %q", got, tt.wantErrors)
			}
			if got := result.Warnings(); !reflect.DeepEqual(got, tt.wantWarnings) {
				t.Errorf("Warnings() = %q, want %q", got, tt.wantWarnings)
			}
		})
	}
}

func TestValidateLocations(t *testing.T) {
	text := fixture.Join(fixture.Replace(fixture.Lines(), "PID",
		strings.Replace(fixture.PID, "|20200202|M|", "|20200202|X|", 1))...)

	result := validate(t, newValidator(t), text)
	if len(result.Issues) != 1 {
		t.Fatalf("Issues = %+v, want one", result.Issues)
	}
	iss := result.Issues[0]
	if iss.Segment != 2 || !reflect.DeepEqual(iss.Expression, []string{"PID-8"}) {
		t.Errorf("issue = %+v, want segment 2 and expression PID-8", iss)
	}
	if iss.Location == nil || iss.Location.Line != 3 || iss.Location.Column != 39 {
		t.Errorf("Location = %+v, want line 3 column 39", iss.Location)
	}

	result = validate(t, newValidator(t, WithLocations(false)), text)
	if result.Issues[0].Location != nil {
		t.Error("Location should be nil when locations are disabled")
	}
}

func TestStrictMode(t *testing.T) {
	text := fixture.Join(fixture.Replace(fixture.Lines(), "MSH",
		strings.Replace(fixture.MSH, "|Test Lab^99999^CLIA|", "|Sacramento County Public Health Lab^99999^CLIA|", 1))...)
	want := "Invalid Reporting Facility Name (MSH-4-1): Sacramento County Public Health Lab, must not exceed 20 characters."

	lenient := validate(t, newValidator(t), text)
	if !lenient.Valid() || !reflect.DeepEqual(lenient.Warnings(), []string{want}) {
		t.Errorf("lenient: errors %q, warnings %q; want one warning", lenient.Errors(), lenient.Warnings())
	}

	strict := validate(t, newValidator(t, WithStrictMode(true)), text)
	if strict.Valid() || !reflect.DeepEqual(strict.Errors(), []string{want}) {
		t.Errorf("strict: errors %q; want the warning promoted", strict.Errors())
	}

	perCall, err := newValidator(t).ValidateString(context.Background(), text, ValidateWithStrictMode(true))
	if err != nil {
		t.Fatalf("ValidateString() error = %v", err)
	}
	if perCall.Valid() {
		t.Error("ValidateWithStrictMode(true) should promote warnings")
	}
	relaxed, err := newValidator(t, WithStrictMode(true)).ValidateString(context.Background(), text, ValidateWithStrictMode(false))
	if err != nil {
		t.Fatalf("ValidateString() error = %v", err)
	}
	if !relaxed.Valid() {
		t.Error("ValidateWithStrictMode(false) should override strict mode")
	}
}

func TestDeterminism(t *testing.T) {
	v := newValidator(t)
	text := fixture.Join(fixture.Replace(fixture.Lines(), "OBX", "OBX|1|XX")...)

	first := validate(t, v, text)
	for i := 0; i < 5; i++ {
		again := validate(t, v, text)
		if !reflect.DeepEqual(first.Errors(), again.Errors()) || !reflect.DeepEqual(first.Warnings(), again.Warnings()) {
			t.Fatalf("run %d differs: %q vs %q", i, again.Errors(), first.Errors())
		}
	}
}

func TestDeterminismWithPlaceholderValues(t *testing.T) {
	v := newValidator(t)
	pid := strings.Replace(fixture.PID, "|20200202|M|", "|20200202|{path}|", 1)
	text := fixture.Join(fixture.Replace(fixture.Lines(), "PID", pid)...)
	want := "Invalid Patient Sex (PID-8): {path}, should be either F, M, O, or U."

	for i := 0; i < 200; i++ {
		result := validate(t, v, text)
		errs := result.Errors()
		if len(errs) != 1 || errs[0] != want {
			t.Fatalf("run %d: Errors() = %q, want [%q]", i, errs, want)
		}
	}
}

func TestSegmentSeparator(t *testing.T) {
	text := strings.ReplaceAll(fixture.ValidORU, "\n", "\r")

	result := validate(t, newValidator(t, WithSegmentSeparator("\r")), text)
	if !result.Valid() {
		t.Errorf("Errors() = %q, want none", result.Errors())
	}

	result = validate(t, newValidator(t), text)
	if result.Stats.StructureValid {
		t.Error("a carriage-return separated message should not match with the default separator")
	}
}

func TestCustomGrammarAndRules(t *testing.T) {
	spec := grammar.Spec{
		Name: "ADT_A01",
		Nodes: []grammar.Node{
			grammar.Leaf("MSH", 1, 1),
			grammar.Leaf("PID", 1, 1),
			grammar.Leaf("PV1", 0, 1),
		},
	}
	reg := rules.MustNewRegistry(terminology.NewDefaultRegistry(), rules.Set{
		Segment: rules.SegmentPID,
		Rules:   []rules.Rule{rules.Field("PID-8", "Patient Sex", rules.Required())},
	})
	v := newValidator(t, WithGrammar(spec), WithRegistry(reg))

	result := validate(t, v, fixture.Join("MSH|^~\\&|ADT", "PID|1||42||Doe^Jane"))
	if got, want := result.Errors(), []string{"Missing Patient Sex (PID-8)."}; !reflect.DeepEqual(got, want) {
		t.Errorf("Errors() = %q, want %q", got, want)
	}

	result = validate(t, v, fixture.ValidORU)
	want := "Invalid Message: Missing essential segments, should have all the following segments: MSH and PID."
	if got := result.Errors(); !reflect.DeepEqual(got, []string{want}) {
		t.Errorf("Errors() = %q, want %q", got, want)
	}
}

func TestNewInvalidGrammar(t *testing.T) {
	_, err := New(WithGrammar(grammar.Spec{Name: "broken", Nodes: []grammar.Node{grammar.Leaf("MSH", 2, 1)}}))
	if !errors.Is(err, grammar.ErrInvalidSpec) {
		t.Errorf("New() error = %v, want ErrInvalidSpec", err)
	}
}

func TestValidateWithProfile(t *testing.T) {
	m := metrics.New()
	v := newValidator(t, WithMetrics(m))

	adt, err := profile.New("ADT", grammar.Spec{Name: "ADT", Nodes: []grammar.Node{
		grammar.Leaf("MSH", 1, 1),
		grammar.Leaf("PID", 1, 1),
	}}, terminology.NewDefaultRegistry())
	if err != nil {
		t.Fatalf("profile.New() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		result, err := v.Validate(context.Background(), []byte("MSH|^~\\&|ADT\nPID|1\n"), ValidateWithProfile(adt))
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if !result.Valid() || result.Stats.Grammar != "ADT" {
			t.Errorf("Validate() = %q (grammar %s), want valid against ADT", result.Errors(), result.Stats.Grammar)
		}
	}

	s := m.Snapshot()
	// default grammar and ADT compiled once each, ADT reused once
	if s.CacheMisses != 2 || s.CacheHits != 1 {
		t.Errorf("cache hits/misses = %d/%d, want 1/2", s.CacheHits, s.CacheMisses)
	}
	if stats := v.CacheStats(); stats.Size != 2 {
		t.Errorf("CacheStats().Size = %d, want 2", stats.Size)
	}
}

func TestValidateMetrics(t *testing.T) {
	m := metrics.New()
	v := newValidator(t, WithMetrics(m))

	validate(t, v, fixture.ValidORU)
	validate(t, v, fixture.Join(fixture.SFT, fixture.PID))

	s := m.Snapshot()
	if s.ValidationsTotal != 2 || s.ValidationsValid != 1 || s.StructureRejected != 1 {
		t.Errorf("Snapshot = %+v, want 2 validations, 1 valid, 1 rejected", s)
	}
	if s.ErrorsTotal != 1 || s.InfosTotal != 1 {
		t.Errorf("issue totals = %d errors / %d infos, want 1 / 1", s.ErrorsTotal, s.InfosTotal)
	}
	if v.Metrics() != m {
		t.Error("Metrics() should return the configured sink")
	}

	stages := map[string]uint64{}
	for _, st := range s.Stages {
		stages[st.Name] = st.Invocations
	}
	want := map[string]uint64{metrics.StageTokenize: 2, metrics.StageSequence: 2, metrics.StageFields: 1}
	if !reflect.DeepEqual(stages, want) {
		t.Errorf("stage invocations = %v, want %v", stages, want)
	}
}

func TestValidateBatch(t *testing.T) {
	v := newValidator(t, WithWorkers(3))
	msgs := [][]byte{
		[]byte(fixture.ValidORU),
		[]byte(fixture.Join(fixture.SFT, fixture.PID)),
		[]byte(fixture.ValidORU),
		[]byte(fixture.Join(fixture.Replace(fixture.Lines(), "PID",
			strings.Replace(fixture.PID, "|20200202|M|", "|20200202|X|", 1))...)),
	}

	results, err := v.ValidateBatch(context.Background(), msgs)
	if err != nil {
		t.Fatalf("ValidateBatch() error = %v", err)
	}
	want := []bool{true, false, true, false}
	for i, r := range results {
		if r.Valid() != want[i] {
			t.Errorf("results[%d].Valid() = %v, want %v", i, r.Valid(), want[i])
		}
	}
	if !results[1].HasErrors() || results[1].Stats.StructureValid {
		t.Error("results[1] should be the structural rejection")
	}
	if results[3].Stats.StructureValid != true {
		t.Error("results[3] should fail on fields only")
	}
}

func TestValidateCanceled(t *testing.T) {
	v := newValidator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := v.ValidateString(ctx, fixture.ValidORU); !errors.Is(err, context.Canceled) {
		t.Errorf("Validate() error = %v, want context.Canceled", err)
	}
	if _, err := v.ValidateBatch(ctx, [][]byte{[]byte(fixture.ValidORU)}); !errors.Is(err, context.Canceled) {
		t.Errorf("ValidateBatch() error = %v, want context.Canceled", err)
	}
}

func TestConcurrentValidate(t *testing.T) {
	v := newValidator(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := v.ValidateString(context.Background(), fixture.ValidORU)
			if err != nil || !result.Valid() {
				t.Errorf("concurrent Validate() = %v, %v", result, err)
			}
		}()
	}
	wg.Wait()
}

func BenchmarkValidate(b *testing.B) {
	v, err := New()
	if err != nil {
		b.Fatal(err)
	}
	data := []byte(fixture.ValidORU)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := v.Validate(ctx, data); err != nil {
			b.Fatal(err)
		}
	}
}
