package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m, err := New("printstatus")
	require.NoError(t, err)

	m.Incr("update", "accepted")
	m.Incr("update", "accepted")
	m.MeasureSince(time.Now(), "update", "duration")

	assert.Equal(t, 2, m.Counter("printstatus.update.accepted"))
	assert.Equal(t, 0, m.Counter("printstatus.update.nothing"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Incr("a")
		m.IncrWithReason("r", "a")
		m.MeasureSince(time.Now(), "a")
	})
	assert.Equal(t, 0, m.Counter("a"))
}

func TestServeHTTP(t *testing.T) {
	m, err := New("printstatus")
	require.NoError(t, err)
	m.Incr("update", "accepted")

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "printstatus.update.accepted")
}
