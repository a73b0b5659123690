package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gofhir/hl7validator/internal/fixture"
	"github.com/gofhir/hl7validator/pkg/issue"
	"github.com/gofhir/hl7validator/pkg/validator"
)

type collector struct {
	mu      sync.Mutex
	reports map[string]Report
	seen    chan string
}

func newCollector() *collector {
	return &collector{reports: make(map[string]Report), seen: make(chan string, 16)}
}

func (c *collector) add(r Report) {
	c.mu.Lock()
	c.reports[filepath.Base(r.Path)] = r
	c.mu.Unlock()
	c.seen <- filepath.Base(r.Path)
}

func (c *collector) wait(t *testing.T, name string) Report {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-c.seen:
			if got == name {
				c.mu.Lock()
				defer c.mu.Unlock()
				return c.reports[name]
			}
		case <-deadline:
			t.Fatalf("no report for %s", name)
		}
	}
}

func startWatcher(t *testing.T, cfg Config, c *collector) {
	t.Helper()
	v, err := validator.New()
	if err != nil {
		t.Fatalf("validator.New() error = %v", err)
	}
	fn := func(ctx context.Context, data []byte) (*issue.Result, error) {
		return v.Validate(ctx, data)
	}

	w, err := New(cfg, fn, c.add)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run() did not return after cancel")
		}
	})
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestWatchNewFiles(t *testing.T) {
	dir := t.TempDir()
	c := newCollector()
	startWatcher(t, Config{Dir: dir, Settle: 20 * time.Millisecond, Workers: 2}, c)

	// give the watcher time to register the directory
	time.Sleep(50 * time.Millisecond)

	invalid := fixture.Join(fixture.MSH, fixture.PID, fixture.ORC, fixture.OBR, fixture.OBX, fixture.SPM)
	writeFile(t, dir, "ignored.json", fixture.ValidORU)
	writeFile(t, dir, "lab.hl7", fixture.ValidORU+invalid)

	r := c.wait(t, "lab.hl7")
	if r.Err != nil {
		t.Fatalf("Report.Err = %v", r.Err)
	}
	if r.Summary.Total != 2 || r.Summary.Valid != 1 || r.Summary.Invalid != 1 {
		t.Errorf("Summary = %+v, want 1 valid and 1 invalid", r.Summary)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.reports["ignored.json"]; ok {
		t.Error("files with other extensions should be ignored")
	}
}

func TestWatchExisting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.hl7", fixture.ValidORU)
	writeFile(t, dir, "b.txt", fixture.ValidORU+fixture.ValidORU)
	writeFile(t, dir, ".partial.hl7", fixture.ValidORU)

	c := newCollector()
	startWatcher(t, Config{Dir: dir, Existing: true}, c)

	if r := c.wait(t, "a.hl7"); r.Summary.Valid != 1 {
		t.Errorf("a.hl7 Summary = %+v", r.Summary)
	}
	if r := c.wait(t, "b.txt"); r.Summary.Valid != 2 {
		t.Errorf("b.txt Summary = %+v", r.Summary)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.reports[".partial.hl7"]; ok {
		t.Error("hidden files should be ignored")
	}
}

func TestShouldProcess(t *testing.T) {
	w := &Watcher{cfg: Config{Extensions: []string{".hl7", ".TXT"}}}

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"create hl7", fsnotify.Event{Name: "/in/a.hl7", Op: fsnotify.Create}, true},
		{"write txt", fsnotify.Event{Name: "/in/a.txt", Op: fsnotify.Write}, true},
		{"upper case extension", fsnotify.Event{Name: "/in/A.HL7", Op: fsnotify.Write}, true},
		{"remove", fsnotify.Event{Name: "/in/a.hl7", Op: fsnotify.Remove}, false},
		{"chmod", fsnotify.Event{Name: "/in/a.hl7", Op: fsnotify.Chmod}, false},
		{"other extension", fsnotify.Event{Name: "/in/a.json", Op: fsnotify.Create}, false},
		{"hidden", fsnotify.Event{Name: "/in/.a.hl7", Op: fsnotify.Create}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.shouldProcess(tt.event); got != tt.want {
				t.Errorf("shouldProcess(%v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(Config{}, nil, nil); err == nil {
		t.Error("New() without a directory should fail")
	}

	w, err := New(Config{Dir: filepath.Join(t.TempDir(), "missing")}, nil, func(Report) {})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Run(context.Background()); err == nil {
		t.Error("Run() on a missing directory should fail")
	}
}
