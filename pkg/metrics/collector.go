package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CollectorConfig names the exported metric family prefix.
type CollectorConfig struct {
	Namespace string
	Subsystem string
}

// Collector exposes a Metrics instance to Prometheus. Values are read from
// a Snapshot on each scrape, so recording stays on the atomic fast path.
type Collector struct {
	config   CollectorConfig
	registry *prometheus.Registry
	metrics  *Metrics

	validations  *prometheus.Desc
	valid        *prometheus.Desc
	rejected     *prometheus.Desc
	segments     *prometheus.Desc
	duration     *prometheus.Desc
	cacheLookups *prometheus.Desc
	issues       *prometheus.Desc
	stageCalls   *prometheus.Desc
	stageSeconds *prometheus.Desc
}

// NewCollector registers m with registry. If registry is nil a new one is
// created. Empty config fields default to "hl7validator" and "validator".
//
// Example:
//
//	m := metrics.New()
//	c, err := metrics.NewCollector(m, metrics.CollectorConfig{}, nil)
//	http.Handle("/metrics", c.Handler())
func NewCollector(m *Metrics, cfg CollectorConfig, registry *prometheus.Registry) (*Collector, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "hl7validator"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "validator"
	}

	name := func(n string) string {
		return prometheus.BuildFQName(cfg.Namespace, cfg.Subsystem, n)
	}
	c := &Collector{
		config:   cfg,
		registry: registry,
		metrics:  m,
		validations: prometheus.NewDesc(name("validations_total"),
			"Total number of messages validated.", nil, nil),
		valid: prometheus.NewDesc(name("valid_total"),
			"Total number of messages validated without errors.", nil, nil),
		rejected: prometheus.NewDesc(name("structure_rejected_total"),
			"Total number of messages rejected by the segment grammar.", nil, nil),
		segments: prometheus.NewDesc(name("segments_total"),
			"Total number of segments tokenized.", nil, nil),
		duration: prometheus.NewDesc(name("validation_seconds_total"),
			"Total time spent validating messages.", nil, nil),
		cacheLookups: prometheus.NewDesc(name("pattern_cache_lookups_total"),
			"Compiled pattern cache lookups by result.", []string{"result"}, nil),
		issues: prometheus.NewDesc(name("issues_total"),
			"Findings reported by severity.", []string{"severity"}, nil),
		stageCalls: prometheus.NewDesc(name("stage_invocations_total"),
			"Validation stage invocations.", []string{"stage"}, nil),
		stageSeconds: prometheus.NewDesc(name("stage_seconds_total"),
			"Time spent per validation stage.", []string{"stage"}, nil),
	}
	if err := registry.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.validations
	ch <- c.valid
	ch <- c.rejected
	ch <- c.segments
	ch <- c.duration
	ch <- c.cacheLookups
	ch <- c.issues
	ch <- c.stageCalls
	ch <- c.stageSeconds
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.metrics.Snapshot()

	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}
	counter(c.validations, float64(s.ValidationsTotal))
	counter(c.valid, float64(s.ValidationsValid))
	counter(c.rejected, float64(s.StructureRejected))
	counter(c.segments, float64(s.SegmentsTotal))
	counter(c.duration, float64(s.TotalValidationTimeNs)/1e9)
	counter(c.cacheLookups, float64(s.CacheHits), "hit")
	counter(c.cacheLookups, float64(s.CacheMisses), "miss")
	counter(c.issues, float64(s.ErrorsTotal), "error")
	counter(c.issues, float64(s.WarningsTotal), "warning")
	counter(c.issues, float64(s.InfosTotal), "information")
	for _, st := range s.Stages {
		counter(c.stageCalls, float64(st.Invocations), st.Name)
		counter(c.stageSeconds, st.TotalTime.Seconds(), st.Name)
	}
}

// Registry returns the registry the collector is registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
