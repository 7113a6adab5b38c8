package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values shared by the pipeline counters.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Metrics holds the instruments for a single service. Every service owns a
// private registry so tests and multi-service processes never collide on
// collector registration.
type Metrics struct {
	registry *prometheus.Registry
	service  string

	messagesProcessed *prometheus.CounterVec
	handlerDuration   *prometheus.HistogramVec
	articlesCollected *prometheus.CounterVec
	digestsPublished  *prometheus.CounterVec
}

// New creates a registry with the Go runtime and process collectors plus the
// pipeline instruments, labeled with the owning service's name.
func New(service string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: registry,
		service:  service,
		messagesProcessed: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ravedigest_messages_processed_total",
			Help: "Stream messages handled, by service, stream and result.",
		}, []string{"service", "stream", "result"}),
		handlerDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ravedigest_handler_duration_seconds",
			Help:    "Time spent handling a single stream message.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "stream"}),
		articlesCollected: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ravedigest_articles_collected_total",
			Help: "Feed items processed during collection, by source and result.",
		}, []string{"source", "result"}),
		digestsPublished: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ravedigest_digests_published_total",
			Help: "Digest publish attempts, by result.",
		}, []string{"result"}),
	}
}

// ObserveMessage records the outcome and duration of one handled stream message.
func (m *Metrics) ObserveMessage(stream, result string, elapsed time.Duration) {
	m.messagesProcessed.WithLabelValues(m.service, stream, result).Inc()
	m.handlerDuration.WithLabelValues(m.service, stream).Observe(elapsed.Seconds())
}

// ArticleCollected counts the outcome of one feed item for a source.
func (m *Metrics) ArticleCollected(source, result string) {
	m.articlesCollected.WithLabelValues(source, result).Inc()
}

// DigestPublished counts the outcome of one digest publish attempt.
func (m *Metrics) DigestPublished(result string) {
	m.digestsPublished.WithLabelValues(result).Inc()
}

// Handler serves the Prometheus scrape endpoint for this service's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
