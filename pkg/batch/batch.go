// Package batch validates multi-message HL7 v2 files as a stream.
package batch

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/gofhir/hl7validator/pkg/issue"
	"github.com/gofhir/hl7validator/pkg/message"
)

// MessageResult is the validation result of one message of a batch.
type MessageResult struct {
	// Index is the position of the message in the batch, -1 for read errors
	Index int

	// ControlID is MSH-10 of the message (if present)
	ControlID string

	// Result contains the validation findings for this message
	Result *issue.Result

	// Error is set if the message could not be read or validated
	Error error
}

// ValidateFunc validates a single message.
type ValidateFunc func(ctx context.Context, data []byte) (*issue.Result, error)

// Validator splits a batch into messages and validates them.
type Validator struct {
	validate    ValidateFunc
	bufferSize  int
	workerCount int
	separator   string
}

// New creates a streaming batch validator.
func New(validate ValidateFunc) *Validator {
	return &Validator{
		validate:    validate,
		bufferSize:  100,
		workerCount: 4,
		separator:   "\n",
	}
}

// WithBufferSize sets the channel buffer size.
func (v *Validator) WithBufferSize(size int) *Validator {
	if size > 0 {
		v.bufferSize = size
	}
	return v
}

// WithWorkerCount sets the number of parallel workers.
func (v *Validator) WithWorkerCount(count int) *Validator {
	if count > 0 {
		v.workerCount = count
	}
	return v
}

// WithSegmentSeparator sets the segment separator of the batch text.
func (v *Validator) WithSegmentSeparator(sep string) *Validator {
	if sep != "" {
		v.separator = sep
	}
	return v
}

type job struct {
	index int
	text  string
}

// ValidateStream reads messages from r and emits one result per message,
// in input order, while up to the worker count validate concurrently.
// The channel is closed when the input is exhausted, a read fails, or ctx
// is done.
func (v *Validator) ValidateStream(ctx context.Context, r io.Reader) <-chan *MessageResult {
	results := make(chan *MessageResult, v.bufferSize)

	go func() {
		defer close(results)

		jobs := make(chan job, v.bufferSize)
		done := make(chan *MessageResult, v.bufferSize)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			defer close(jobs)
			scanner := message.NewScanner(r, message.WithSegmentSeparator(v.separator))
			for i := 0; scanner.Scan(); i++ {
				select {
				case jobs <- job{index: i, text: scanner.Text()}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read batch: %w", err)
			}
			return nil
		})
		for w := 0; w < v.workerCount; w++ {
			g.Go(func() error {
				for j := range jobs {
					select {
					case done <- v.process(gctx, j):
					case <-gctx.Done():
						return gctx.Err()
					}
				}
				return nil
			})
		}

		waitErr := make(chan error, 1)
		go func() {
			waitErr <- g.Wait()
			close(done)
		}()

		emit := func(r *MessageResult) bool {
			select {
			case results <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// Reorder and emit. Once ctx is done the consumer may have stopped
		// reading, so the workers are left to unwind through gctx.
		pending := make(map[int]*MessageResult)
		next := 0
		for res := range done {
			pending[res.Index] = res
			for {
				r, ok := pending[next]
				if !ok {
					break
				}
				if !emit(r) {
					return
				}
				delete(pending, next)
				next++
			}
		}

		if err := <-waitErr; err != nil {
			emit(&MessageResult{Index: -1, Error: err})
		}
	}()

	return results
}

// process validates a single message.
func (v *Validator) process(ctx context.Context, j job) *MessageResult {
	res := &MessageResult{
		Index:     j.index,
		ControlID: message.Parse(j.text, message.WithSegmentSeparator(v.separator)).ControlID(),
	}
	result, err := v.validate(ctx, []byte(j.text))
	if err != nil {
		res.Error = fmt.Errorf("message %d: %w", j.index, err)
		return res
	}
	res.Result = result
	return res
}

// Summary aggregates the results of a batch.
type Summary struct {
	Total    int `json:"total"`
	Valid    int `json:"valid"`
	Invalid  int `json:"invalid"`
	Failed   int `json:"failed"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// Add accounts for one message result. Read errors (Index -1) count as failed.
func (s *Summary) Add(r *MessageResult) {
	if r.Index >= 0 {
		s.Total++
	}
	if r.Error != nil || r.Result == nil {
		s.Failed++
		return
	}
	s.Errors += r.Result.ErrorCount()
	s.Warnings += r.Result.WarningCount()
	if r.Result.Valid() {
		s.Valid++
	} else {
		s.Invalid++
	}
}

// Collect drains results and returns them with their summary.
func Collect(results <-chan *MessageResult) ([]*MessageResult, Summary) {
	var (
		all     []*MessageResult
		summary Summary
	)
	for r := range results {
		all = append(all, r)
		summary.Add(r)
	}
	return all, summary
}
