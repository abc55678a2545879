package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Commit("revision", "ok")
	m.Commit("revision", "ok")
	m.ValidationFailed("pay_amount")
	m.ValidationFailed("")
	m.OrderExpired()
	m.EventPublished(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commits.WithLabelValues("revision", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Validations.WithLabelValues("pay_amount")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Validations.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Expired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("error")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Commit("revision", "ok")
		m.ObserveRequest("/x", 200, 1)
		m.IntegrityIssue("over_max")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRequest("/api/orders/:id", 200, 12)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "reserva_http_requests_total"))
}
