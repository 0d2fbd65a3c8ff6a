package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// PrometheusCollector implements the Collector interface using Prometheus.
// Metrics that were never registered are silently dropped.
type PrometheusCollector struct {
	mu sync.RWMutex

	registry *prometheus.Registry

	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// PrometheusConfig configures the Prometheus collector.
type PrometheusConfig struct {
	// Registry is the Prometheus registry to use (nil = new registry)
	Registry *prometheus.Registry

	// IncludeRuntime registers the Go runtime and process collectors.
	IncludeRuntime bool
}

// NewPrometheusCollector creates a collector with every sbomkit metric
// registered.
func NewPrometheusCollector(cfg *PrometheusConfig) (*PrometheusCollector, error) {
	if cfg == nil {
		cfg = &PrometheusConfig{}
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.IncludeRuntime {
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	c := &PrometheusCollector{
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	for _, def := range Definitions {
		if err := c.Register(def); err != nil {
			return nil, fmt.Errorf("register %s: %w", def.Name, err)
		}
	}
	return c, nil
}

// Register registers a metric according to its type.
func (c *PrometheusCollector) Register(def MetricDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		col prometheus.Collector
		add func()
	)
	switch def.Type {
	case MetricTypeCounter:
		if _, exists := c.counters[def.Name]; exists {
			return nil
		}
		v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: def.Name, Help: def.Help}, def.Labels)
		col, add = v, func() { c.counters[def.Name] = v }
	case MetricTypeGauge:
		if _, exists := c.gauges[def.Name]; exists {
			return nil
		}
		v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: def.Name, Help: def.Help}, def.Labels)
		col, add = v, func() { c.gauges[def.Name] = v }
	case MetricTypeHistogram:
		if _, exists := c.histograms[def.Name]; exists {
			return nil
		}
		buckets := def.Buckets
		if len(buckets) == 0 {
			buckets = prometheus.DefBuckets
		}
		v := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: def.Name, Help: def.Help, Buckets: buckets}, def.Labels)
		col, add = v, func() { c.histograms[def.Name] = v }
	default:
		return fmt.Errorf("unsupported metric type %q", def.Type)
	}

	if err := c.registry.Register(col); err != nil {
		return err
	}
	add()
	return nil
}

func (c *PrometheusCollector) CounterInc(name string, labels ...string) {
	c.CounterAdd(name, 1, labels...)
}

func (c *PrometheusCollector) CounterAdd(name string, value float64, labels ...string) {
	c.mu.RLock()
	counter, ok := c.counters[name]
	c.mu.RUnlock()
	if !ok {
		return
	}
	counter.WithLabelValues(labelsToValues(labels)...).Add(value)
}

func (c *PrometheusCollector) GaugeSet(name string, value float64, labels ...string) {
	c.mu.RLock()
	gauge, ok := c.gauges[name]
	c.mu.RUnlock()
	if !ok {
		return
	}
	gauge.WithLabelValues(labelsToValues(labels)...).Set(value)
}

func (c *PrometheusCollector) HistogramObserve(name string, value float64, labels ...string) {
	c.mu.RLock()
	histogram, ok := c.histograms[name]
	c.mu.RUnlock()
	if !ok {
		return
	}
	histogram.WithLabelValues(labelsToValues(labels)...).Observe(value)
}

func (c *PrometheusCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range c.counters {
		v.Reset()
	}
	for _, v := range c.gauges {
		v.Reset()
	}
	for _, v := range c.histograms {
		v.Reset()
	}
}

// Registry returns the underlying Prometheus registry.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes the current metrics in the text exposition format,
// for pickup by node-exporter's textfile collector. The file is replaced
// atomically.
func (c *PrometheusCollector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	return prometheus.WriteToTextfile(path, c.registry)
}

// labelsToValues keeps the values of name/value label pairs, in order.
func labelsToValues(labels []string) []string {
	var values []string
	for i := 1; i < len(labels); i += 2 {
		values = append(values, labels[i])
	}
	return values
}

var _ Collector = (*PrometheusCollector)(nil)
