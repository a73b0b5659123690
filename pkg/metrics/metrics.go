// Package metrics tracks validation counters and exports them to Prometheus.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofhir/hl7validator/pkg/issue"
)

// Stage names recorded by the validator.
const (
	StageTokenize = "tokenize"
	StageSequence = "sequence"
	StageFields   = "fields"
)

// Metrics tracks validation performance metrics using lock-free atomic operations.
// All methods are safe for concurrent use.
type Metrics struct {
	validationsTotal  atomic.Uint64
	validationsValid  atomic.Uint64
	structureRejected atomic.Uint64
	segmentsTotal     atomic.Uint64

	// Timing (stored as nanoseconds)
	validationTimeTotal atomic.Uint64
	validationTimeMin   atomic.Uint64
	validationTimeMax   atomic.Uint64

	// Compiled pattern cache
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64

	errorsTotal   atomic.Uint64
	warningsTotal atomic.Uint64
	infosTotal    atomic.Uint64

	stageTiming sync.Map // map[string]*stageMetrics
}

type stageMetrics struct {
	invocations atomic.Uint64
	totalTime   atomic.Uint64
	issuesFound atomic.Uint64
}

// New creates a Metrics instance.
func New() *Metrics {
	m := &Metrics{}
	// first recorded value becomes the minimum
	m.validationTimeMin.Store(^uint64(0))
	return m
}

// RecordValidation records a completed validation.
func (m *Metrics) RecordValidation(duration time.Duration, valid bool, segments int) {
	m.validationsTotal.Add(1)
	if valid {
		m.validationsValid.Add(1)
	}
	m.segmentsTotal.Add(uint64(max(segments, 0))) //nolint:gosec // clamped to non-negative

	ns := uint64(max(duration.Nanoseconds(), 0)) //nolint:gosec // clamped to non-negative
	m.validationTimeTotal.Add(ns)

	for {
		old := m.validationTimeMin.Load()
		if ns >= old || m.validationTimeMin.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.validationTimeMax.Load()
		if ns <= old || m.validationTimeMax.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordStructureRejected records a message rejected by the sequence grammar.
func (m *Metrics) RecordStructureRejected() {
	m.structureRejected.Add(1)
}

// RecordCacheHit records a compiled pattern cache hit.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a compiled pattern cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

// RecordIssue records an issue based on severity.
func (m *Metrics) RecordIssue(severity issue.Severity) {
	switch severity {
	case issue.SeverityError:
		m.errorsTotal.Add(1)
	case issue.SeverityWarning:
		m.warningsTotal.Add(1)
	case issue.SeverityInformation:
		m.infosTotal.Add(1)
	}
}

// RecordResult records every issue of r.
func (m *Metrics) RecordResult(r *issue.Result) {
	if r == nil {
		return
	}
	for i := range r.Issues {
		m.RecordIssue(r.Issues[i].Severity)
	}
}

// RecordStage records metrics for one validation stage.
func (m *Metrics) RecordStage(name string, duration time.Duration, issuesFound int) {
	sm := m.stage(name)
	sm.invocations.Add(1)
	sm.totalTime.Add(uint64(max(duration.Nanoseconds(), 0))) //nolint:gosec // clamped to non-negative
	sm.issuesFound.Add(uint64(max(issuesFound, 0)))          //nolint:gosec // clamped to non-negative
}

func (m *Metrics) stage(name string) *stageMetrics {
	if v, ok := m.stageTiming.Load(name); ok {
		return v.(*stageMetrics)
	}
	actual, _ := m.stageTiming.LoadOrStore(name, &stageMetrics{})
	return actual.(*stageMetrics)
}

// ValidationsTotal returns the number of validations performed.
func (m *Metrics) ValidationsTotal() uint64 {
	return m.validationsTotal.Load()
}

// ValidationsValid returns the number of validations without errors.
func (m *Metrics) ValidationsValid() uint64 {
	return m.validationsValid.Load()
}

// StructureRejected returns the number of messages rejected by the grammar.
func (m *Metrics) StructureRejected() uint64 {
	return m.structureRejected.Load()
}

// AverageValidationTime returns the average validation duration.
func (m *Metrics) AverageValidationTime() time.Duration {
	total := m.validationsTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.validationTimeTotal.Load() / total) //nolint:gosec // nanoseconds within int64 range
}

// ErrorsTotal returns the total error issues found.
func (m *Metrics) ErrorsTotal() uint64 {
	return m.errorsTotal.Load()
}

// WarningsTotal returns the total warning issues found.
func (m *Metrics) WarningsTotal() uint64 {
	return m.warningsTotal.Load()
}

// StageStats summarizes one stage.
type StageStats struct {
	Name        string        `json:"name"`
	Invocations uint64        `json:"invocations"`
	TotalTime   time.Duration `json:"total_time_ns"`
	AvgTime     time.Duration `json:"avg_time_ns"`
	IssuesFound uint64        `json:"issues_found"`
}

// AllStageStats returns statistics for every recorded stage.
func (m *Metrics) AllStageStats() []StageStats {
	var stats []StageStats
	m.stageTiming.Range(func(key, value any) bool {
		sm := value.(*stageMetrics)
		invocations := sm.invocations.Load()
		totalTime := sm.totalTime.Load()

		var avg time.Duration
		if invocations > 0 {
			avg = time.Duration(totalTime / invocations) //nolint:gosec // nanoseconds within int64 range
		}
		stats = append(stats, StageStats{
			Name:        key.(string),
			Invocations: invocations,
			TotalTime:   time.Duration(totalTime), //nolint:gosec // nanoseconds within int64 range
			AvgTime:     avg,
			IssuesFound: sm.issuesFound.Load(),
		})
		return true
	})
	return stats
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	ValidationsTotal  uint64  `json:"validations_total"`
	ValidationsValid  uint64  `json:"validations_valid"`
	ValidationRate    float64 `json:"validation_rate"`
	StructureRejected uint64  `json:"structure_rejected"`
	SegmentsTotal     uint64  `json:"segments_total"`

	AvgValidationTimeNs   uint64 `json:"avg_validation_time_ns"`
	MinValidationTimeNs   uint64 `json:"min_validation_time_ns"`
	MaxValidationTimeNs   uint64 `json:"max_validation_time_ns"`
	TotalValidationTimeNs uint64 `json:"total_validation_time_ns"`

	CacheHits    uint64  `json:"cache_hits"`
	CacheMisses  uint64  `json:"cache_misses"`
	CacheHitRate float64 `json:"cache_hit_rate"`

	ErrorsTotal   uint64 `json:"errors_total"`
	WarningsTotal uint64 `json:"warnings_total"`
	InfosTotal    uint64 `json:"infos_total"`

	Stages []StageStats `json:"stages,omitempty"`
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	total := m.validationsTotal.Load()
	hits := m.cacheHits.Load()
	misses := m.cacheMisses.Load()
	totalTime := m.validationTimeTotal.Load()

	s := Snapshot{
		Timestamp:             time.Now(),
		ValidationsTotal:      total,
		ValidationsValid:      m.validationsValid.Load(),
		StructureRejected:     m.structureRejected.Load(),
		SegmentsTotal:         m.segmentsTotal.Load(),
		MaxValidationTimeNs:   m.validationTimeMax.Load(),
		TotalValidationTimeNs: totalTime,
		CacheHits:             hits,
		CacheMisses:           misses,
		ErrorsTotal:           m.errorsTotal.Load(),
		WarningsTotal:         m.warningsTotal.Load(),
		InfosTotal:            m.infosTotal.Load(),
		Stages:                m.AllStageStats(),
	}
	if total > 0 {
		s.AvgValidationTimeNs = totalTime / total
		s.ValidationRate = float64(s.ValidationsValid) / float64(total)
	}
	if hits+misses > 0 {
		s.CacheHitRate = float64(hits) / float64(hits+misses)
	}
	if minTime := m.validationTimeMin.Load(); minTime != ^uint64(0) {
		s.MinValidationTimeNs = minTime
	}
	return s
}
