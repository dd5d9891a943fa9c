package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                            "/",
		"/":                           "/",
		"/me":                         "/me",
		"/subscription/checkout":      "/subscription/checkout",
		"/drills/abc":                 "/drills/{id}",
		"/drills/abc/attempts":        "/drills/{id}/attempts",
		"/simulations/1/species/kelp": "/simulations/{id}/species/{id}",
		"/webhooks/stripe":            "/webhooks/stripe",
	}
	for in, want := range cases {
		assert.Equal(t, want, canonicalPath(in), in)
	}
}

func TestInstrumentHandlerUsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(InstrumentHandler)
	router.HandleFunc("/widgets/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/widgets/{id}", "418"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets/42", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/widgets/{id}", "418"))
	assert.Equal(t, before+1, after)
}

func TestRecordersExposeMetrics(t *testing.T) {
	RecordSimulationSteps(3)
	RecordSimulationFinished("COMPLETED", "stability_reached", 88)
	RecordDrillAttempt("evaluated")
	RecordEvaluation("drill", "heuristic", 0)
	RecordWebhookEvent("", "ignored")
	RecordMaintenanceRun("expire-attempts", time.Second, 2, true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{
		"case_mentor_simulation_steps_total",
		"case_mentor_simulation_finished_total",
		"case_mentor_drills_attempts_total",
		"case_mentor_feedback_evaluations_total",
		`case_mentor_billing_webhook_events_total{outcome="ignored",type="unknown"}`,
		`case_mentor_maintenance_records_updated_total{job="expire-attempts"}`,
	} {
		assert.True(t, strings.Contains(body, name), "missing %s", name)
	}
}
