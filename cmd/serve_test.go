// File: cmd/serve_test.go
package cmd

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

func testDeps(reasoner schemas.ReasoningClient, browser schemas.AutomationClient, metrics *observability.Metrics) agent.SessionDeps {
	return agent.SessionDeps{
		Reasoner:   reasoner,
		Automation: browser,
		Logger:     zap.NewNop(),
		Metrics:    metrics,
	}
}

func TestRouter(t *testing.T) {
	cfg := config.NewDefaultConfig()
	metrics := observability.NewMetrics(cfg.Metrics().Namespace)
	manager := agent.NewWSManager(cfg, testDeps(&scriptedReasoner{decisions: []schemas.Decision{finish("")}}, &stubBrowser{}, metrics))
	srv := httptest.NewServer(newRouter(cfg, manager, metrics))
	defer srv.Close()

	t.Run("healthz", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, map[string]string{"status": "ok"}, body)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "webpilot_sessions_active")
	})

	t.Run("metrics disabled", func(t *testing.T) {
		disabled := config.NewDefaultConfig()
		disabled.MetricsCfg.Enabled = false
		srv := httptest.NewServer(newRouter(disabled, manager, nil))
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestServe_EndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := config.NewDefaultConfig()
	cfg.ServerCfg.ShutdownTimeout = 2 * time.Second
	browser := &stubBrowser{}
	reasoner := &scriptedReasoner{decisions: []schemas.Decision{navigate("https://example.com"), finish("done")}}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- serve(ctx, ln, cfg, testDeps(reasoner, browser, nil), nil) }()

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+cfg.Server().WSPath, nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, conn.WriteJSON(schemas.OperatorMessage{Type: schemas.MessageUserTask, Content: "Open example.com"}))

	var types []string
	for i := 0; i < 6; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		types = append(types, frame["type"].(string))
	}
	assert.Equal(t, []string{"thought", "action", "result", "thought", "action", "result"}, types)
	assert.Equal(t, []string{"await page.goto('https://example.com')"}, browser.Executed())

	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}

	// The operator connection is closed as part of shutdown.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	conn.Close()
}
