package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.RunStarted()
	m.RunStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.runsInFlight))

	m.RunFinished("completed", 3*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("completed")))

	m.RunEnded("failed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("failed")))

	m.FindingRecorded("HIGH")
	m.FindingRecorded("HIGH")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.findingsTotal.WithLabelValues("HIGH")))

	m.ObserveToolCall("xss_test", true, time.Second)
	m.ObserveToolCall("xss_test", false, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCallsTotal.WithLabelValues("xss_test", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCallsTotal.WithLabelValues("xss_test", "failure")))
}

func TestMetrics_Handler(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.ObserveToolCall("scrape_page", true, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `webpentest_tool_calls_total{outcome="success",tool="scrape_page"} 1`)
}
