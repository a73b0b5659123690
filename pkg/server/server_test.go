package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/gofhir/hl7validator/internal/fixture"
	"github.com/gofhir/hl7validator/pkg/metrics"
	"github.com/gofhir/hl7validator/pkg/store"
	"github.com/gofhir/hl7validator/pkg/validator"
)

var invalidSex = fixture.Join(fixture.Replace(fixture.Lines(), "PID", strings.Replace(fixture.PID, "|20200202|M|", "|20200202|X|", 1))...)

func newServer(t *testing.T, cfg Config, withStore bool) (*Server, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	v, err := validator.New(validator.WithMetrics(m))
	if err != nil {
		t.Fatalf("validator.New() error = %v", err)
	}
	collector, err := metrics.NewCollector(m, metrics.CollectorConfig{}, nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	opts := []Option{WithCollector(collector)}
	if withStore {
		st, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
		if err != nil {
			t.Fatalf("store.Open() error = %v", err)
		}
		t.Cleanup(func() { st.Close() })
		opts = append(opts, WithStore(st))
	}
	return New(v, cfg, opts...), m
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s, _ := newServer(t, Config{}, false)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	if got["status"] != "ok" || got["grammar"] != "ELR_ORU_R01" || got["history"] != false {
		t.Errorf("healthz = %v", got)
	}
}

func TestValidate(t *testing.T) {
	s, m := newServer(t, Config{}, true)

	tests := []struct {
		name       string
		target     string
		body       string
		wantStatus int
		wantValid  bool
		wantErrors []string
	}{
		{"valid message", "/v1/validate", fixture.ValidORU, http.StatusOK, true, []string{}},
		{"field error", "/v1/validate?source=lab", invalidSex, http.StatusOK, false,
			[]string{"Invalid Patient Sex (PID-8): X, should be either F, M, O, or U."}},
		{"structural error", "/v1/validate", fixture.Join(fixture.MSH, fixture.PID), http.StatusOK, false,
			[]string{"Invalid Message: Missing essential segments, should have all the following segments: MSH, SFT, PID, ORC, OBR, OBX, and SPM."}},
		{"bad strict flag", "/v1/validate?strict=maybe", fixture.ValidORU, http.StatusBadRequest, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, tt.target, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			run := decode[store.Run](t, rec)
			if run.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", run.Valid, tt.wantValid)
			}
			if strings.Join(run.Errors, "\n") != strings.Join(tt.wantErrors, "\n") {
				t.Errorf("Errors = %q, want %q", run.Errors, tt.wantErrors)
			}
			if run.ID == "" {
				t.Error("run should have been saved")
			}
		})
	}

	if got := m.ValidationsTotal(); got != 3 {
		t.Errorf("ValidationsTotal() = %d, want 3", got)
	}
}

func TestValidateStrict(t *testing.T) {
	s, _ := newServer(t, Config{}, false)
	text := fixture.Join(fixture.Replace(fixture.Lines(), "MSH",
		strings.Replace(fixture.MSH, "|Test Lab^99999^CLIA|", "|Sacramento County Public Health Lab^99999^CLIA|", 1))...)

	lenient := decode[store.Run](t, do(t, s, http.MethodPost, "/v1/validate", text))
	if !lenient.Valid || len(lenient.Warnings) != 1 {
		t.Errorf("lenient run = %+v, want one warning", lenient)
	}
	strict := decode[store.Run](t, do(t, s, http.MethodPost, "/v1/validate?strict=true", text))
	if strict.Valid || len(strict.Errors) != 1 {
		t.Errorf("strict run = %+v, want one error", strict)
	}
	if strict.ID != "" {
		t.Error("runs should not be saved without a store")
	}
}

func TestValidateBodyLimit(t *testing.T) {
	s, _ := newServer(t, Config{MaxBodyBytes: 64}, false)

	for _, target := range []string{"/v1/validate", "/v1/validate/batch"} {
		rec := do(t, s, http.MethodPost, target, fixture.ValidORU)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("POST %s status = %d, want 413", target, rec.Code)
		}
	}
}

func TestValidateBatch(t *testing.T) {
	s, _ := newServer(t, Config{}, true)
	body := "BHS|^~\\&\n" + fixture.ValidORU + invalidSex + fixture.ValidORU + "BTS|3\n"

	rec := do(t, s, http.MethodPost, "/v1/validate/batch?source=upload", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	resp := decode[BatchResponse](t, rec)
	if resp.Summary.Total != 3 || resp.Summary.Valid != 2 || resp.Summary.Invalid != 1 {
		t.Errorf("Summary = %+v", resp.Summary)
	}
	for i, item := range resp.Messages {
		if item.Index != i || item.Run == nil || item.Run.Source != "upload" {
			t.Errorf("Messages[%d] = %+v", i, item)
		}
	}

	list := decode[map[string][]store.Run](t, do(t, s, http.MethodGet, "/v1/runs?invalid=true", ""))
	if len(list["runs"]) != 1 {
		t.Errorf("invalid runs = %d, want 1", len(list["runs"]))
	}
}

func TestRuns(t *testing.T) {
	s, _ := newServer(t, Config{}, true)

	saved := decode[store.Run](t, do(t, s, http.MethodPost, "/v1/validate?source=lab", invalidSex))

	rec := do(t, s, http.MethodGet, "/v1/runs/"+saved.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET run status = %d", rec.Code)
	}
	if got := decode[store.Run](t, rec); got.ID != saved.ID || got.Source != "lab" || len(got.Findings) != 1 {
		t.Errorf("GET run = %+v", got)
	}

	if rec := do(t, s, http.MethodGet, "/v1/runs/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET missing run status = %d, want 404", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/v1/runs?limit=-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d, want 400", rec.Code)
	}

	list := decode[map[string][]store.Run](t, do(t, s, http.MethodGet, "/v1/runs?source=other", ""))
	if runs, ok := list["runs"]; !ok || len(runs) != 0 {
		t.Errorf("runs for unknown source = %v, want empty list", list)
	}

	noStore, _ := newServer(t, Config{}, false)
	if rec := do(t, noStore, http.MethodGet, "/v1/runs", ""); rec.Code != http.StatusNotFound {
		t.Errorf("runs without history status = %d, want 404", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newServer(t, Config{MetricsPath: "/prom"}, false)
	do(t, s, http.MethodPost, "/v1/validate", fixture.ValidORU)

	rec := do(t, s, http.MethodGet, "/prom", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hl7validator_validator_validations_total 1") {
		t.Errorf("metrics output missing validations counter:\n%s", rec.Body.String())
	}
}

func TestRunShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	s, _ := newServer(t, Config{ListenAddress: addr, ShutdownTimeout: time.Second}, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get("http://" + addr + "/healthz"); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never became ready: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
