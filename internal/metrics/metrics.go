package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for campaignhub
type Metrics struct {
	// Upstream API
	UpstreamRequestsTotal          *prometheus.CounterVec
	UpstreamRequestDurationSeconds *prometheus.HistogramVec
	UpstreamRetriesTotal           *prometheus.CounterVec
	BreakerState                   *prometheus.GaugeVec
	ReportFailuresTotal            *prometheus.CounterVec

	// Refresh orchestration
	RefreshTotal           *prometheus.CounterVec
	RefreshDurationSeconds *prometheus.HistogramVec
	DashboardReadsTotal    *prometheus.CounterVec

	// Cache
	CacheRows *prometheus.GaugeVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds prometheus.Gauge
	Goroutines    prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		UpstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignhub_upstream_requests_total",
				Help: "Total number of Mailchimp API requests",
			},
			[]string{"region", "endpoint", "status"},
		),
		UpstreamRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campaignhub_upstream_request_duration_seconds",
				Help:    "Mailchimp API request duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"region", "endpoint"},
		),
		UpstreamRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignhub_upstream_retries_total",
				Help: "Total number of retried Mailchimp API requests",
			},
			[]string{"region"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "campaignhub_upstream_breaker_state",
				Help: "Circuit breaker state per region (0 closed, 1 half-open, 2 open)",
			},
			[]string{"region"},
		),
		ReportFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignhub_report_failures_total",
				Help: "Total number of campaign report fetches that failed",
			},
			[]string{"region"},
		),

		RefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignhub_refresh_total",
				Help: "Total number of region refreshes",
			},
			[]string{"region", "trigger", "result"},
		),
		RefreshDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campaignhub_refresh_duration_seconds",
				Help:    "Region refresh duration in seconds",
				Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"region"},
		),
		DashboardReadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignhub_dashboard_reads_total",
				Help: "Total number of dashboard reads by data source",
			},
			[]string{"source"},
		),

		CacheRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "campaignhub_cache_rows",
				Help: "Number of cached campaign rows per region",
			},
			[]string{"region"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignhub_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "route", "region", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campaignhub_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route", "region"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignhub_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "campaignhub_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "campaignhub_goroutines",
				Help: "Number of active goroutines",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.UpstreamRequestsTotal,
		m.UpstreamRequestDurationSeconds,
		m.UpstreamRetriesTotal,
		m.BreakerState,
		m.ReportFailuresTotal,
		m.RefreshTotal,
		m.RefreshDurationSeconds,
		m.DashboardReadsTotal,
		m.CacheRows,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// ObserveUpstreamRequest records one upstream HTTP attempt
func ObserveUpstreamRequest(region, endpoint, status string, seconds float64) {
	m := Global()
	if m != nil {
		m.UpstreamRequestsTotal.WithLabelValues(region, endpoint, status).Inc()
		m.UpstreamRequestDurationSeconds.WithLabelValues(region, endpoint).Observe(seconds)
	}
}

// IncUpstreamRetries increments the retry counter
func IncUpstreamRetries(region string) {
	m := Global()
	if m != nil {
		m.UpstreamRetriesTotal.WithLabelValues(region).Inc()
	}
}

// SetBreakerState records the circuit breaker state of a region
func SetBreakerState(region string, state int) {
	m := Global()
	if m != nil {
		m.BreakerState.WithLabelValues(region).Set(float64(state))
	}
}

// IncReportFailures increments the failed report counter
func IncReportFailures(region string) {
	m := Global()
	if m != nil {
		m.ReportFailuresTotal.WithLabelValues(region).Inc()
	}
}

// ObserveRefresh records a finished region refresh
func ObserveRefresh(region, trigger, result string, seconds float64) {
	m := Global()
	if m != nil {
		m.RefreshTotal.WithLabelValues(region, trigger, result).Inc()
		m.RefreshDurationSeconds.WithLabelValues(region).Observe(seconds)
	}
}

// IncDashboardReads increments the dashboard read counter
func IncDashboardReads(source string) {
	m := Global()
	if m != nil {
		m.DashboardReadsTotal.WithLabelValues(source).Inc()
	}
}

// SetCacheRows replaces the per-region cache row gauges
func SetCacheRows(byRegion map[string]int64) {
	m := Global()
	if m != nil {
		m.CacheRows.Reset()
		for region, n := range byRegion {
			m.CacheRows.WithLabelValues(region).Set(float64(n))
		}
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
