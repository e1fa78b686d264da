package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	kpiEvaluationsTotal   *prometheus.CounterVec
	kpiTriggerRunsTotal   *prometheus.CounterVec
	kpiTriggerDuration    prometheus.Histogram
	kpiActionsTotal       *prometheus.CounterVec
	kpiEmailsTotal        *prometheus.CounterVec
	notificationsTotal    *prometheus.CounterVec
	sseClientsActive      prometheus.Gauge
	kpiConfigCacheLookups *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API and the KPI pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		kpiEvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kpi_evaluations_total",
			Help: "KPI rows evaluated, by resulting rating.",
		}, []string{"rating"})

		kpiTriggerRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kpi_trigger_runs_total",
			Help: "KPI trigger processing runs, by outcome.",
		}, []string{"outcome"})

		kpiTriggerDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kpi_trigger_duration_seconds",
			Help:    "Wall time spent processing the triggers of one KPI score.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		})

		kpiActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kpi_actions_total",
			Help: "Remedial artifacts handled by the KPI pipeline, by kind and result.",
		}, []string{"kind", "result"})

		kpiEmailsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kpi_emails_total",
			Help: "Emails attempted by the KPI pipeline, by template and status.",
		}, []string{"template", "status"})

		notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "In-app notifications published, by type.",
		}, []string{"type"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sse_clients_active",
			Help: "Currently connected notification stream clients.",
		})

		kpiConfigCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kpi_config_cache_lookups_total",
			Help: "Rule table lookups, by source.",
		}, []string{"source"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			kpiEvaluationsTotal,
			kpiTriggerRunsTotal,
			kpiTriggerDuration,
			kpiActionsTotal,
			kpiEmailsTotal,
			notificationsTotal,
			sseClientsActive,
			kpiConfigCacheLookups,
		)
	})
}

// MetricsHandler serves the default registry, including Go runtime collectors, in Prometheus or OpenMetrics format.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// KPIEvaluations counts evaluated rows by rating.
func KPIEvaluations() *prometheus.CounterVec {
	RegisterMetrics()
	return kpiEvaluationsTotal
}

// KPITriggerRuns counts orchestrator runs by outcome (success, partial, failed, skipped).
func KPITriggerRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return kpiTriggerRunsTotal
}

// KPITriggerDuration observes orchestrator wall time.
func KPITriggerDuration() prometheus.Histogram {
	RegisterMetrics()
	return kpiTriggerDuration
}

// KPIActions counts created or skipped trainings, audits and warnings.
func KPIActions() *prometheus.CounterVec {
	RegisterMetrics()
	return kpiActionsTotal
}

// KPIEmails counts email sends by template and status.
func KPIEmails() *prometheus.CounterVec {
	RegisterMetrics()
	return kpiEmailsTotal
}

// NotificationsPublishedTotal counts published notifications by type.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsTotal
}

// SSEClientsActive tracks connected stream clients.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}

// KPIConfigLookups counts rule table resolutions by source (cache, database, default).
func KPIConfigLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return kpiConfigCacheLookups
}
