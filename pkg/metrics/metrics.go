// Package metrics records sbomkit counters, gauges and histograms.
//
// Components record through the Collector interface with label name/value
// pairs, e.g. CounterInc(ProviderInvocations.Name, "provider", "nomos",
// "status", "ok"). The CLI installs a PrometheusCollector and exports it as
// a node-exporter textfile; tests use InMemoryCollector.
package metrics

import (
	"strings"
	"sync"
	"time"
)

// Collector records metric samples. Labels are name/value pairs.
type Collector interface {
	CounterInc(name string, labels ...string)
	CounterAdd(name string, value float64, labels ...string)
	GaugeSet(name string, value float64, labels ...string)
	HistogramObserve(name string, value float64, labels ...string)

	// Reset drops every recorded sample.
	Reset()
}

// MetricType is the Prometheus type of a metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// MetricDefinition describes one metric. Labels are the label names in the
// order callers pass their values.
type MetricDefinition struct {
	Name    string     `json:"name"`
	Type    MetricType `json:"type"`
	Help    string     `json:"help"`
	Labels  []string   `json:"labels,omitempty"`
	Buckets []float64  `json:"buckets,omitempty"`
}

var (
	// Provider metrics
	ProviderInvocations = MetricDefinition{
		Name:   "sbomkit_provider_invocations_total",
		Type:   MetricTypeCounter,
		Help:   "Provider invocations by outcome (ok, failed, unavailable)",
		Labels: []string{"provider", "status"},
	}
	ProviderDuration = MetricDefinition{
		Name:    "sbomkit_provider_invocation_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of provider invocations in seconds",
		Labels:  []string{"provider"},
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}
	ScanCacheHits = MetricDefinition{
		Name:   "sbomkit_scan_cache_hits_total",
		Type:   MetricTypeCounter,
		Help:   "Scans skipped because the provider already ran on the content",
		Labels: []string{"provider"},
	}
	FindingsMerged = MetricDefinition{
		Name:   "sbomkit_findings_merged_total",
		Type:   MetricTypeCounter,
		Help:   "New file/license associations recorded",
		Labels: []string{"provider"},
	}

	// Registration metrics
	FilesRegistered = MetricDefinition{
		Name: "sbomkit_files_registered_total",
		Type: MetricTypeCounter,
		Help: "Files added to the store",
	}
	PackagesRegistered = MetricDefinition{
		Name:   "sbomkit_packages_registered_total",
		Type:   MetricTypeCounter,
		Help:   "Packages added to the store",
		Labels: []string{"kind"},
	}

	// Document metrics
	DocumentsCreated = MetricDefinition{
		Name: "sbomkit_documents_created_total",
		Type: MetricTypeCounter,
		Help: "Documents created",
	}

	LastRun = MetricDefinition{
		Name: "sbomkit_last_run_timestamp_seconds",
		Type: MetricTypeGauge,
		Help: "Unix time the last run finished",
	}
)

// Definitions lists every sbomkit metric.
var Definitions = []MetricDefinition{
	ProviderInvocations,
	ProviderDuration,
	ScanCacheHits,
	FindingsMerged,
	FilesRegistered,
	PackagesRegistered,
	DocumentsCreated,
	LastRun,
}

// NopCollector discards every sample.
type NopCollector struct{}

func (*NopCollector) CounterInc(string, ...string)                {}
func (*NopCollector) CounterAdd(string, float64, ...string)       {}
func (*NopCollector) GaugeSet(string, float64, ...string)         {}
func (*NopCollector) HistogramObserve(string, float64, ...string) {}
func (*NopCollector) Reset()                                      {}

// InMemoryCollector keeps samples in maps keyed by name and labels, so
// tests can assert on them.
type InMemoryCollector struct {
	mu           sync.RWMutex
	values       map[string]float64
	observations map[string][]float64
}

func NewInMemoryCollector() *InMemoryCollector {
	c := &InMemoryCollector{}
	c.Reset()
	return c
}

// seriesKey is "name{l1=v1,l2=v2}". Counters and gauges share the value
// map; metric names never collide across types.
func seriesKey(name string, labels []string) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i := 0; i+1 < len(labels); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(labels[i] + "=" + labels[i+1])
	}
	b.WriteByte('}')
	return b.String()
}

func (c *InMemoryCollector) CounterInc(name string, labels ...string) {
	c.CounterAdd(name, 1, labels...)
}

func (c *InMemoryCollector) CounterAdd(name string, value float64, labels ...string) {
	c.mu.Lock()
	c.values[seriesKey(name, labels)] += value
	c.mu.Unlock()
}

func (c *InMemoryCollector) GaugeSet(name string, value float64, labels ...string) {
	c.mu.Lock()
	c.values[seriesKey(name, labels)] = value
	c.mu.Unlock()
}

func (c *InMemoryCollector) HistogramObserve(name string, value float64, labels ...string) {
	key := seriesKey(name, labels)
	c.mu.Lock()
	c.observations[key] = append(c.observations[key], value)
	c.mu.Unlock()
}

func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	c.values = make(map[string]float64)
	c.observations = make(map[string][]float64)
	c.mu.Unlock()
}

func (c *InMemoryCollector) value(name string, labels []string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[seriesKey(name, labels)]
}

// GetCounter returns the current value of a counter series.
func (c *InMemoryCollector) GetCounter(name string, labels ...string) float64 {
	return c.value(name, labels)
}

// GetGauge returns the last value set on a gauge series.
func (c *InMemoryCollector) GetGauge(name string, labels ...string) float64 {
	return c.value(name, labels)
}

// GetHistogram returns a copy of the observations of a histogram series.
func (c *InMemoryCollector) GetHistogram(name string, labels ...string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]float64(nil), c.observations[seriesKey(name, labels)]...)
}

// Timer observes the seconds since it was started into a histogram.
type Timer struct {
	start     time.Time
	collector Collector
	name      string
	labels    []string
}

func NewTimer(collector Collector, name string, labels ...string) *Timer {
	return &Timer{start: time.Now(), collector: collector, name: name, labels: labels}
}

// ObserveDuration records and returns the elapsed time.
func (t *Timer) ObserveDuration() time.Duration {
	d := time.Since(t.start)
	t.collector.HistogramObserve(t.name, d.Seconds(), t.labels...)
	return d
}

var (
	defaultMu        sync.RWMutex
	defaultCollector Collector = &NopCollector{}
)

// SetDefaultCollector installs the package default; nil restores the
// NopCollector.
func SetDefaultCollector(c Collector) {
	if c == nil {
		c = &NopCollector{}
	}
	defaultMu.Lock()
	defaultCollector = c
	defaultMu.Unlock()
}

func GetDefaultCollector() Collector {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultCollector
}

// OrDefault returns c, or the package default when c is nil.
func OrDefault(c Collector) Collector {
	if c == nil {
		return GetDefaultCollector()
	}
	return c
}

var (
	_ Collector = (*NopCollector)(nil)
	_ Collector = (*InMemoryCollector)(nil)
)
