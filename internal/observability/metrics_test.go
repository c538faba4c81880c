package observability_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clarence1208/PAMP-submissions-service/internal/observability"
)

func TestMetrics_RecordRunIncrementsByState(t *testing.T) {
	m := observability.NewMetrics()
	m.RecordRun("Done")
	m.RecordRun("Failed")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "simcheck_pipeline_runs_total")
	assert.Contains(t, body, `state="Done"`)
	assert.Contains(t, body, `state="Failed"`)
}

func TestMetrics_ObserveStageRecordsHistogram(t *testing.T) {
	m := observability.NewMetrics()
	m.ObserveStage("fingerprint", 25*time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rr.Body.String()
	assert.Contains(t, body, "simcheck_pipeline_stage_duration_seconds")
	assert.Contains(t, body, `stage="fingerprint"`)
}

func TestNewMetrics_IndependentRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		observability.NewMetrics()
		observability.NewMetrics()
	})
}
