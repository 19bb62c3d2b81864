package crawler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry            *prometheus.Registry
	PagesLoadedTotal    prometheus.Counter
	PageLoadDuration    prometheus.Histogram
	ItemsExtractedTotal prometheus.Counter
	FieldMissesTotal    *prometheus.CounterVec
	ErrorsTotal         *prometheus.CounterVec
	ReadinessFallbacks  prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_pages_loaded_total",
			Help: "Total catalogue pages loaded and extracted.",
		},
	)
	loadDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_page_load_duration_seconds",
			Help:    "Time taken by the renderer to load a page.",
			Buckets: prometheus.DefBuckets,
		},
	)
	items := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_items_extracted_total",
			Help: "Total number of item records extracted.",
		},
	)
	misses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_field_misses_total",
			Help: "Fields that fell back to the placeholder, by field.",
		},
		[]string{"field"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "Total number of fatal crawl errors by type.",
		},
		[]string{"error_type"},
	)
	fallbacks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_readiness_fallbacks_total",
			Help: "Pages where the readiness wait failed and the settle delay was used.",
		},
	)

	registry.MustRegister(pages, loadDuration, items, misses, errorsTotal, fallbacks)

	return &Metrics{
		Registry:            registry,
		PagesLoadedTotal:    pages,
		PageLoadDuration:    loadDuration,
		ItemsExtractedTotal: items,
		FieldMissesTotal:    misses,
		ErrorsTotal:         errorsTotal,
		ReadinessFallbacks:  fallbacks,
	}
}

// IncPage increments the pages loaded counter.
func (m *Metrics) IncPage() {
	if m == nil {
		return
	}
	m.PagesLoadedTotal.Inc()
}

// ObserveLoad records a page load duration.
func (m *Metrics) ObserveLoad(d time.Duration) {
	if m == nil {
		return
	}
	m.PageLoadDuration.Observe(d.Seconds())
}

// AddItems increments the items extracted counter.
func (m *Metrics) AddItems(n int) {
	if m == nil {
		return
	}
	m.ItemsExtractedTotal.Add(float64(n))
}

// IncFieldMiss increments the misses counter for a field.
func (m *Metrics) IncFieldMiss(field string) {
	if m == nil {
		return
	}
	m.FieldMissesTotal.WithLabelValues(field).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncFallback increments the readiness fallback counter.
func (m *Metrics) IncFallback() {
	if m == nil {
		return
	}
	m.ReadinessFallbacks.Inc()
}
