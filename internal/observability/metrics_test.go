// File: internal/observability/metrics_test.go
package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recording(t *testing.T) {
	m := NewMetrics("webpilot_test")

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive))

	m.IterationStarted()
	m.IterationStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.iterationsTotal))

	m.TaskFinished("completed")
	m.TaskFinished("bound_reached")
	m.TaskFinished("bound_reached")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionOutcomes.WithLabelValues("bound_reached")))

	m.ToolExecuted("click_element", "error")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolExecutions.WithLabelValues("click_element", "error")))

	m.ReasoningCompleted("gemini", nil, 300*time.Millisecond)
	m.ReasoningCompleted("gemini", errors.New("quota"), time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reasoningRequests.WithLabelValues("gemini", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reasoningRequests.WithLabelValues("gemini", "error")))

	m.AutomationCompleted("screenshot", errors.New("down"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.automationRequests.WithLabelValues("screenshot", "error")))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionOpened()
		m.SessionClosed()
		m.IterationStarted()
		m.TaskFinished("completed")
		m.ToolExecuted("navigate_to_url", "success")
		m.ReasoningCompleted("openai", nil, time.Millisecond)
		m.AutomationCompleted("execute", nil)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("webpilot_test")
	m.ToolExecuted("fill_field", "success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `webpilot_test_tool_executions_total{status="success",tool="fill_field"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
