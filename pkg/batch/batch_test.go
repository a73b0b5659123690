package batch

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofhir/hl7validator/internal/fixture"
	"github.com/gofhir/hl7validator/pkg/issue"
	"github.com/gofhir/hl7validator/pkg/validator"
)

func batchText(n int) string {
	var sb strings.Builder
	sb.WriteString("FHS|^~\\&\nBHS|^~\\&\n")
	for i := 0; i < n; i++ {
		if i%3 == 1 {
			// structurally invalid: no SFT
			sb.WriteString(fixture.Join(fixture.MSH, fixture.PID, fixture.ORC, fixture.OBR, fixture.OBX, fixture.SPM))
			continue
		}
		sb.WriteString(fixture.ValidORU)
	}
	sb.WriteString("BTS|1\nFTS|1\n")
	return sb.String()
}

func validateWith(v *validator.Validator) ValidateFunc {
	return func(ctx context.Context, data []byte) (*issue.Result, error) {
		return v.Validate(ctx, data)
	}
}

func TestValidateStream(t *testing.T) {
	v, err := validator.New()
	if err != nil {
		t.Fatalf("validator.New() error = %v", err)
	}

	bv := New(validateWith(v)).WithWorkerCount(4).WithBufferSize(2)
	results, summary := Collect(bv.ValidateStream(context.Background(), strings.NewReader(batchText(10))))

	if len(results) != 10 {
		t.Fatalf("got %d results, want 10", len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("results[%d].Index = %d, want input order", i, r.Index)
		}
		if r.Error != nil {
			t.Errorf("results[%d].Error = %v", i, r.Error)
			continue
		}
		if want := i%3 != 1; r.Result.Valid() != want {
			t.Errorf("results[%d].Valid() = %v, want %v", i, r.Result.Valid(), want)
		}
		if r.ControlID != "103" {
			t.Errorf("results[%d].ControlID = %q, want 103", i, r.ControlID)
		}
	}

	want := Summary{Total: 10, Valid: 7, Invalid: 3, Errors: 3}
	if summary != want {
		t.Errorf("Summary = %+v, want %+v", summary, want)
	}
}

func TestValidateStreamSeparator(t *testing.T) {
	v, err := validator.New(validator.WithSegmentSeparator("\r"))
	if err != nil {
		t.Fatalf("validator.New() error = %v", err)
	}
	text := strings.ReplaceAll(fixture.ValidORU+fixture.ValidORU, "\n", "\r")

	bv := New(validateWith(v)).WithSegmentSeparator("\r")
	_, summary := Collect(bv.ValidateStream(context.Background(), strings.NewReader(text)))
	if summary.Total != 2 || summary.Valid != 2 {
		t.Errorf("Summary = %+v, want 2 valid messages", summary)
	}
}

func TestValidateStreamErrors(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	fn := func(context.Context, []byte) (*issue.Result, error) {
		if calls.Add(1) == 2 {
			return nil, boom
		}
		return issue.NewResult(), nil
	}

	results, summary := Collect(New(fn).WithWorkerCount(1).ValidateStream(context.Background(), strings.NewReader(batchText(3))))
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !errors.Is(results[1].Error, boom) {
		t.Errorf("results[1].Error = %v, want boom", results[1].Error)
	}
	if summary.Failed != 1 || summary.Valid != 2 {
		t.Errorf("Summary = %+v, want 1 failed and 2 valid", summary)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestValidateStreamReadError(t *testing.T) {
	fn := func(context.Context, []byte) (*issue.Result, error) { return issue.NewResult(), nil }

	results, summary := Collect(New(fn).ValidateStream(context.Background(), failingReader{}))
	if len(results) != 1 || results[0].Index != -1 || results[0].Error == nil {
		t.Fatalf("results = %+v, want a single read error", results)
	}
	if summary.Total != 0 || summary.Failed != 1 {
		t.Errorf("Summary = %+v", summary)
	}
}

func TestValidateStreamCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fn := func(ctx context.Context, _ []byte) (*issue.Result, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range New(fn).WithWorkerCount(2).ValidateStream(ctx, strings.NewReader(batchText(50))) {
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ValidateStream did not stop after cancellation")
	}
}

func TestValidateStreamConsumerStops(t *testing.T) {
	before := runtime.NumGoroutine()

	ctx, cancel := context.WithCancel(context.Background())
	fn := func(context.Context, []byte) (*issue.Result, error) { return issue.NewResult(), nil }
	results := New(fn).WithBufferSize(1).WithWorkerCount(2).ValidateStream(ctx, strings.NewReader(batchText(20)))

	if r := <-results; r == nil || r.Index != 0 {
		t.Fatalf("first result = %+v, want index 0", r)
	}
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines = %d after cancel, want at most %d", runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestValidateStreamEmpty(t *testing.T) {
	fn := func(context.Context, []byte) (*issue.Result, error) { return issue.NewResult(), nil }
	results, summary := Collect(New(fn).ValidateStream(context.Background(), strings.NewReader("")))
	if len(results) != 0 || summary.Total != 0 {
		t.Errorf("results = %v, summary = %+v, want nothing", results, summary)
	}
}
