package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	vgRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsguard_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	vgRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vitalsguard_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	vgIngestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsguard_ingest_total",
		Help: "Ingestion pipeline outcomes: success or the failing step.",
	}, []string{"outcome"})

	vgLedgerAppendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitalsguard_ledger_appends_total",
		Help: "Total trust ledger blocks appended.",
	})

	vgLockdownActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vitalsguard_lockdown_active",
		Help: "1 while the system is locked down.",
	})

	vgAccessDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsguard_access_decisions_total",
		Help: "Access policy decisions by verdict and deciding rule.",
	}, []string{"verdict", "rule"})

	vgSecurityEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsguard_security_events_total",
		Help: "Security events recorded by type and severity.",
	}, []string{"type", "severity"})

	vgNotifyDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsguard_notify_deliveries_total",
		Help: "SIEM webhook delivery attempts by result.",
	}, []string{"status"})

	vgDependencyProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsguard_dependency_probes_total",
		Help: "Dependency health probes by dependency and result.",
	}, []string{"dependency", "result"})

	vgBackgroundTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsguard_background_tasks_total",
		Help: "Best-effort background tasks by name and result.",
	}, []string{"task", "result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		vgRequestsTotal.WithLabelValues(method, path, status).Inc()
		vgRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordIngestOutcome matches ingest.OutcomeRecordFunc.
func RecordIngestOutcome(outcome string) {
	vgIngestTotal.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		vgLedgerAppendsTotal.Inc()
	}
}

// RecordLockdown matches lockdown.TransitionFunc.
func RecordLockdown(active bool, _ string) {
	if active {
		vgLockdownActive.Set(1)
	} else {
		vgLockdownActive.Set(0)
	}
}

// RecordAccessDecision matches policy.DecisionRecordFunc.
func RecordAccessDecision(allowed bool, rule string) {
	verdict := "deny"
	if allowed {
		verdict = "allow"
	}
	vgAccessDecisionsTotal.WithLabelValues(verdict, rule).Inc()
}

// RecordSecurityEvent counts a recorded security event.
func RecordSecurityEvent(typ, severity string) {
	vgSecurityEventsTotal.WithLabelValues(typ, severity).Inc()
}

// RecordNotifyDelivery matches notify.MetricsRecorder.
func RecordNotifyDelivery(success bool) {
	vgNotifyDeliveriesTotal.WithLabelValues(result(success)).Inc()
}

// RecordDependencyProbe matches health.MetricsRecordFunc.
func RecordDependencyProbe(dependency string, success bool) {
	vgDependencyProbesTotal.WithLabelValues(dependency, result(success)).Inc()
}

// RecordBackgroundTask matches the worker pool completion callback.
func RecordBackgroundTask(task string, err error) {
	vgBackgroundTasksTotal.WithLabelValues(task, result(err == nil)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
