package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the assistant's Prometheus metrics on a private registry,
// so multiple collectors can coexist in tests. A nil *Collector is valid
// and records nothing.
type Collector struct {
	registry *prometheus.Registry

	CacheLookups         *prometheus.CounterVec
	Queries              *prometheus.CounterVec
	Ingestions           *prometheus.CounterVec
	CompressionRatio     prometheus.Histogram
	RetrievedChunks      prometheus.Histogram
	StageDuration        *prometheus.HistogramVec
	DetachedTaskFailures *prometheus.CounterVec
}

func New(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Answer cache lookups by result",
			},
			[]string{"result"},
		),
		Queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Answered queries by outcome",
			},
			[]string{"outcome"},
		),
		Ingestions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingestions_total",
				Help:      "Resource ingestions by kind and status",
			},
			[]string{"kind", "status"},
		),
		CompressionRatio: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compression_ratio",
				Help:      "Share of characters removed by content normalization",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		RetrievedChunks: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieved_chunks",
				Help:      "Chunks returned by the retriever after merge and truncation",
				Buckets:   []float64{0, 1, 3, 5, 10, 15, 20},
			},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		DetachedTaskFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detached_task_failures_total",
				Help:      "Background task failures by task name",
			},
			[]string{"task"},
		),
	}

	registry.MustRegister(
		c.CacheLookups,
		c.Queries,
		c.Ingestions,
		c.CompressionRatio,
		c.RetrievedChunks,
		c.StageDuration,
		c.DetachedTaskFailures,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) CacheLookup(result string) {
	if c == nil {
		return
	}
	c.CacheLookups.WithLabelValues(result).Inc()
}

func (c *Collector) Query(outcome string) {
	if c == nil {
		return
	}
	c.Queries.WithLabelValues(outcome).Inc()
}

func (c *Collector) Ingestion(kind, status string) {
	if c == nil {
		return
	}
	c.Ingestions.WithLabelValues(kind, status).Inc()
}

func (c *Collector) Compression(ratio float64) {
	if c == nil {
		return
	}
	c.CompressionRatio.Observe(ratio)
}

func (c *Collector) Retrieved(n int) {
	if c == nil {
		return
	}
	c.RetrievedChunks.Observe(float64(n))
}

// Since records the time elapsed since start under stage.
func (c *Collector) Since(stage string, start time.Time) {
	if c == nil {
		return
	}
	c.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (c *Collector) TaskFailed(task string) {
	if c == nil {
		return
	}
	c.DetachedTaskFailures.WithLabelValues(task).Inc()
}
