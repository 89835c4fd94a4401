// Package metrics exposes Prometheus collectors for the monitoring service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapeBatchesTotal         *prometheus.CounterVec
	productsIngestedTotal      prometheus.Counter
	snapshotsWrittenTotal      prometheus.Counter
	alertsTriggeredTotal       *prometheus.CounterVec
	webhookEventsTotal         *prometheus.CounterVec
	reportJobsTotal            *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapeBatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amzwatch_scrape_batches_total",
				Help: "Total scrape batch submissions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		productsIngestedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "amzwatch_products_ingested_total",
				Help: "Total catalog rows upserted from webhook datasets.",
			},
		)

		snapshotsWrittenTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "amzwatch_snapshots_written_total",
				Help: "Total daily snapshots written.",
			},
		)

		alertsTriggeredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amzwatch_alerts_triggered_total",
				Help: "Total alert events produced, labeled by rule type.",
			},
			[]string{"rule_type"},
		)

		webhookEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amzwatch_webhook_events_total",
				Help: "Total webhook notifications received, labeled by event type and result.",
			},
			[]string{"event_type", "result"},
		)

		reportJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amzwatch_report_jobs_total",
				Help: "Total report jobs reaching a state, labeled by status.",
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScrapeBatch records one batch submission outcome ("submitted",
// "failed", "empty").
func ObserveScrapeBatch(outcome string) {
	if scrapeBatchesTotal != nil {
		scrapeBatchesTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveIngest records catalog and snapshot write counts for one webhook.
func ObserveIngest(products, snapshots int) {
	if productsIngestedTotal != nil {
		productsIngestedTotal.Add(float64(products))
	}
	if snapshotsWrittenTotal != nil {
		snapshotsWrittenTotal.Add(float64(snapshots))
	}
}

// ObserveAlerts records triggered alert events by rule type.
func ObserveAlerts(ruleType string, count int) {
	if alertsTriggeredTotal != nil && count > 0 {
		alertsTriggeredTotal.WithLabelValues(ruleType).Add(float64(count))
	}
}

// ObserveWebhookEvent records one webhook notification.
func ObserveWebhookEvent(eventType, result string) {
	if webhookEventsTotal != nil {
		webhookEventsTotal.WithLabelValues(eventType, result).Inc()
	}
}

// ObserveReportJob records a report job status change.
func ObserveReportJob(status string) {
	if reportJobsTotal != nil {
		reportJobsTotal.WithLabelValues(status).Inc()
	}
}

// statusRecorder captures the response code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments HTTP handlers with request count and latency.
// The route label uses the chi route pattern, not the raw path, to keep
// cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if httpRequestsTotal != nil {
			httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		}
		if httpRequestDurationSeconds != nil {
			httpRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
}
