package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "case_mentor"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	simulationSteps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "steps_total",
			Help:      "Total number of ecosystem steps executed.",
		},
	)

	simulationsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "finished_total",
			Help:      "Simulations that reached a terminal status.",
		},
		[]string{"status", "reason"},
	)

	simulationScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "score",
			Help:      "Distribution of final simulation scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
	)

	drillAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "drills",
			Name:      "attempts_total",
			Help:      "Drill attempts by resulting status.",
		},
		[]string{"status"},
	)

	evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "evaluations_total",
			Help:      "Feedback evaluations by target and evaluator.",
		},
		[]string{"target", "evaluator"},
	)

	evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of feedback evaluations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"evaluator"},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Stripe webhook events by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	maintenanceRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "job_runs_total",
			Help:      "Total number of maintenance job runs.",
		},
		[]string{"job", "success"},
	)

	maintenanceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "job_run_duration_seconds",
			Help:      "Duration of maintenance job runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"job"},
	)

	maintenanceAffected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "maintenance",
			Name:      "records_updated_total",
			Help:      "Records changed by maintenance jobs.",
		},
		[]string{"job"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		simulationSteps,
		simulationsFinished,
		simulationScores,
		drillAttempts,
		evaluations,
		evaluationDuration,
		webhookEvents,
		maintenanceRuns,
		maintenanceDuration,
		maintenanceAffected,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Used as router middleware the path label is the matched route template.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := routePath(r)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordSimulationSteps counts executed engine steps.
func RecordSimulationSteps(n int) {
	if n > 0 {
		simulationSteps.Add(float64(n))
	}
}

// RecordSimulationFinished records a simulation reaching a terminal status.
func RecordSimulationFinished(status, reason string, score int) {
	if reason == "" {
		reason = "unknown"
	}
	simulationsFinished.WithLabelValues(status, reason).Inc()
	simulationScores.Observe(float64(score))
}

// RecordDrillAttempt counts a drill attempt transition.
func RecordDrillAttempt(status string) {
	drillAttempts.WithLabelValues(status).Inc()
}

// RecordEvaluation records one feedback evaluation.
func RecordEvaluation(target, evaluator string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	evaluations.WithLabelValues(target, evaluator).Inc()
	evaluationDuration.WithLabelValues(evaluator).Observe(duration.Seconds())
}

// RecordWebhookEvent records a processed billing webhook.
func RecordWebhookEvent(eventType, outcome string) {
	if eventType == "" {
		eventType = "unknown"
	}
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordMaintenanceRun records a maintenance job run.
func RecordMaintenanceRun(job string, duration time.Duration, affected int, success bool) {
	if job == "" {
		job = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	result := "false"
	if success {
		result = "true"
	}
	maintenanceRuns.WithLabelValues(job, result).Inc()
	maintenanceDuration.WithLabelValues(job).Observe(duration.Seconds())
	if affected > 0 {
		maintenanceAffected.WithLabelValues(job).Add(float64(affected))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return canonicalPath(r.URL.Path)
}

// collections whose second path segment is a record id.
var collections = map[string]bool{
	"users":       true,
	"drills":      true,
	"attempts":    true,
	"simulations": true,
	"feedback":    true,
}

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if !collections[parts[0]] {
		return "/" + strings.Join(parts, "/")
	}
	for i := 1; i < len(parts); i += 2 {
		parts[i] = "{id}"
	}
	return "/" + strings.Join(parts, "/")
}
