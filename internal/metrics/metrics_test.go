package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codebuddy/internal/metrics"
)

func TestCollector(t *testing.T) {
	c := metrics.NewCollector()

	c.ObserveValidation("goja", "passed", 20*time.Millisecond)
	c.ObserveValidation("goja", "passed", 30*time.Millisecond)
	c.ObserveValidation("goja", "timed_out", 5*time.Second)
	c.ObserveExecution("python", "Accepted")
	c.ObserveChat("ok")
	c.ObserveRateLimited("/api/message")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Validations.WithLabelValues("goja", "passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Validations.WithLabelValues("goja", "timed_out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Executions.WithLabelValues("python", "Accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ChatRequests.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RateLimited.WithLabelValues("/api/message")))

	// Two collectors must not clash on registration.
	assert.NotPanics(t, func() { metrics.NewCollector() })
}

func TestHandler(t *testing.T) {
	c := metrics.NewCollector()
	c.ObserveValidation("docker", "failed", time.Second)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `codebuddy_validator_validations_total{backend="docker",status="failed"} 1`)
	assert.Contains(t, string(body), "codebuddy_validator_validation_duration_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}
