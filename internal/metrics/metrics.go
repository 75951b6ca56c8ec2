// Package metrics exposes Prometheus instrumentation for the analysis flow.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "activity_check"

// Metrics holds the collectors for the service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Analyses          *prometheus.CounterVec
	AnalysisErrors    *prometheus.CounterVec
	DownloadDuration  prometheus.Histogram
	DetectionDuration prometheus.Histogram
	CacheLookups      *prometheus.CounterVec
	BreakerState      prometheus.Gauge
}

// New registers the service collectors, plus Go and process collectors, on a fresh registry.
func New() (*Metrics, error) {
	return NewWithRegistry(prometheus.NewRegistry(), true)
}

// NewWithRegistry registers the service collectors on registry. When runtime is
// true the Go runtime and process collectors are registered as well.
func NewWithRegistry(registry *prometheus.Registry, runtime bool) (*Metrics, error) {
	m := &Metrics{
		registry: registry,
		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Completed image analyses by detected activity.",
		}, []string{"activity"}),
		AnalysisErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_errors_total",
			Help:      "Failed image analyses by error kind.",
		}, []string{"kind"}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_download_duration_seconds",
			Help:      "Duration of image downloads in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		DetectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "label_detection_duration_seconds",
			Help:      "Duration of label detection calls in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "label_cache_lookups_total",
			Help:      "Label cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vision_breaker_state",
			Help:      "Label detection circuit breaker state (0 closed, 1 half-open, 2 open).",
		}),
	}

	toRegister := []prometheus.Collector{
		m.Analyses, m.AnalysisErrors, m.DownloadDuration,
		m.DetectionDuration, m.CacheLookups, m.BreakerState,
	}
	if runtime {
		toRegister = append(toRegister,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	for _, c := range toRegister {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAnalysis counts a completed analysis.
func (m *Metrics) ObserveAnalysis(activity string) {
	if m == nil {
		return
	}
	m.Analyses.WithLabelValues(activity).Inc()
}

// ObserveError counts a failed analysis.
func (m *Metrics) ObserveError(kind string) {
	if m == nil {
		return
	}
	m.AnalysisErrors.WithLabelValues(kind).Inc()
}

// ObserveDownload records how long an image download took.
func (m *Metrics) ObserveDownload(d time.Duration) {
	if m == nil {
		return
	}
	m.DownloadDuration.Observe(d.Seconds())
}

// ObserveDetection records how long a label detection call took.
func (m *Metrics) ObserveDetection(d time.Duration) {
	if m == nil {
		return
	}
	m.DetectionDuration.Observe(d.Seconds())
}

// ObserveCacheLookup counts a label cache lookup; result is hit, miss or error.
func (m *Metrics) ObserveCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// SetBreakerState records the circuit breaker state as its numeric value.
func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
}
