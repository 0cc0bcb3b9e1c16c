// Package metrics exposes Prometheus collectors for the budget service, the
// sync worker and the HTTP layer. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"foodbudget/internal/core"
)

const namespace = "foodbudget"

// Sync outcomes recorded by SyncResult.
const (
	SyncSynced  = "synced"
	SyncFailed  = "failed"
	SyncSkipped = "skipped"
)

type Metrics struct {
	registry *prometheus.Registry

	expensesCreated     *prometheus.CounterVec
	aggregations        prometheus.Counter
	aggregationDuration prometheus.Histogram
	anomalies           *prometheus.CounterVec
	syncResults         *prometheus.CounterVec
	pendingBacklog      prometheus.Gauge
	sheetRowsSkipped    prometheus.Counter
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		expensesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expenses_created_total",
			Help:      "Expenses accepted, by write path (direct or queued).",
		}, []string{"path"}),
		aggregations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weekly_aggregations_total",
			Help:      "Weekly views computed.",
		}),
		aggregationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weekly_aggregation_duration_seconds",
			Help:      "Time spent fetching and folding a weekly view.",
			Buckets:   prometheus.DefBuckets,
		}),
		anomalies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_anomalies_total",
			Help:      "Records flagged during aggregation, by reason.",
		}, []string{"reason"}),
		syncResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_results_total",
			Help:      "Pending expenses processed by the sync worker, by outcome.",
		}, []string{"result"}),
		pendingBacklog: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_pending_backlog",
			Help:      "Unsynced expenses seen in the last worker batch.",
		}),
		sheetRowsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheet_rows_skipped_total",
			Help:      "Malformed record rows ignored while reading Google Sheets.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method and status code.",
		}, []string{"method", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ExpenseCreated(queued bool) {
	if m == nil {
		return
	}
	path := "direct"
	if queued {
		path = "queued"
	}
	m.expensesCreated.WithLabelValues(path).Inc()
}

func (m *Metrics) ObserveAggregation(d time.Duration, anomalies []core.Anomaly) {
	if m == nil {
		return
	}
	m.aggregations.Inc()
	m.aggregationDuration.Observe(d.Seconds())
	for _, a := range anomalies {
		m.anomalies.WithLabelValues(string(a.Reason)).Inc()
	}
}

func (m *Metrics) SyncResult(result string) {
	if m == nil {
		return
	}
	m.syncResults.WithLabelValues(result).Inc()
}

func (m *Metrics) SetPendingBacklog(n int) {
	if m == nil {
		return
	}
	m.pendingBacklog.Set(float64(n))
}

func (m *Metrics) SheetRowSkipped() {
	if m == nil {
		return
	}
	m.sheetRowsSkipped.Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(d.Seconds())
}
