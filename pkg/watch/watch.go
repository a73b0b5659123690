// Package watch validates HL7 v2 files dropped into an inbox directory.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gofhir/hl7validator/pkg/batch"
	"github.com/gofhir/hl7validator/pkg/logger"
)

// Config configures a Watcher.
type Config struct {
	// Dir is the inbox directory
	Dir string

	// Extensions selects the files to validate (default ".hl7", ".txt")
	Extensions []string

	// Workers is the number of files validated concurrently
	Workers int

	// Settle is how long a file must be quiet before it is read (default 100ms)
	Settle time.Duration

	// SegmentSeparator of the files (default "\n")
	SegmentSeparator string

	// Existing validates files already present when Run starts
	Existing bool
}

// Report is the outcome of validating one file.
type Report struct {
	Path    string
	Results []*batch.MessageResult
	Summary batch.Summary
	Err     error
}

// Watcher validates files as they appear in a directory.
type Watcher struct {
	cfg      Config
	validate batch.ValidateFunc
	onReport func(Report)
	watcher  *fsnotify.Watcher
	log      *zap.SugaredLogger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a Watcher. onReport is called once per processed file, from
// worker goroutines.
func New(cfg Config, validate batch.ValidateFunc, onReport func(Report)) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch dir cannot be empty")
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".hl7", ".txt"}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 100 * time.Millisecond
	}
	if cfg.SegmentSeparator == "" {
		cfg.SegmentSeparator = "\n"
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		cfg:      cfg,
		validate: validate,
		onReport: onReport,
		watcher:  fw,
		log:      logger.For("watch"),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Run watches the directory until ctx is done. Files being processed when
// ctx ends are finished before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.cfg.Dir, err)
	}
	w.log.Infow("Watching inbox", "dir", w.cfg.Dir, "extensions", w.cfg.Extensions, "workers", w.cfg.Workers)

	jobs := make(chan string, w.cfg.Workers)
	var g errgroup.Group
	for i := 0; i < w.cfg.Workers; i++ {
		g.Go(func() error {
			for path := range jobs {
				w.onReport(w.process(ctx, path))
			}
			return nil
		})
	}

	ready := make(chan string)
	done := make(chan struct{})
	err := w.loop(ctx, jobs, ready, done)
	close(done)

	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	close(jobs)
	g.Wait() //nolint:errcheck // workers never fail

	w.log.Infow("Inbox watcher stopped", "dir", w.cfg.Dir)
	return err
}

func (w *Watcher) loop(ctx context.Context, jobs chan<- string, ready chan string, done <-chan struct{}) error {
	var backlog []string
	if w.cfg.Existing {
		existing, err := w.existing()
		if err != nil {
			return err
		}
		backlog = existing
	}

	for {
		var (
			next string
			out  chan<- string
		)
		if len(backlog) > 0 {
			next, out = backlog[0], jobs
		}

		select {
		case <-ctx.Done():
			return nil

		case out <- next:
			backlog = backlog[1:]

		case path := <-ready:
			backlog = append(backlog, path)

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.shouldProcess(event) {
				continue
			}
			w.log.Debugw("File event detected", "path", event.Name, "op", event.Op.String())
			w.settle(event.Name, ready, done)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.log.Errorw("File watcher error", "error", err)
		}
	}
}

// settle schedules path once no event arrived for it during the settle time.
func (w *Watcher) settle(path string, ready chan<- string, done <-chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.cfg.Settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.cfg.Settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case ready <- path:
		case <-done:
		}
	})
}

func (w *Watcher) shouldProcess(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	return w.matches(event.Name)
}

func (w *Watcher) matches(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, want := range w.cfg.Extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

func (w *Watcher) existing() ([]string, error) {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", w.cfg.Dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && w.matches(e.Name()) {
			paths = append(paths, filepath.Join(w.cfg.Dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// process validates every message of the file at path.
func (w *Watcher) process(ctx context.Context, path string) Report {
	report := Report{Path: path}

	f, err := os.Open(path)
	if err != nil {
		report.Err = fmt.Errorf("failed to open %s: %w", path, err)
		w.log.Errorw("Cannot read file", "path", path, "error", err)
		return report
	}
	defer f.Close()

	bv := batch.New(w.validate).WithSegmentSeparator(w.cfg.SegmentSeparator)
	report.Results, report.Summary = batch.Collect(bv.ValidateStream(ctx, f))

	w.log.Infow("Validated file",
		"path", path,
		"messages", report.Summary.Total,
		"valid", report.Summary.Valid,
		"invalid", report.Summary.Invalid,
		"errors", report.Summary.Errors,
		"warnings", report.Summary.Warnings,
	)
	return report
}
