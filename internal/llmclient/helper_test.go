package llmclient

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/tools"
)

// setupTestLogger returns a logger backed by an observer so tests can assert on log entries.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

// getValidLLMConfig returns a valid LLMConfig for testing purposes.
func getValidLLMConfig(provider config.LLMProvider) config.LLMConfig {
	return config.LLMConfig{
		Provider:    provider,
		APIKey:      "test-api-key",
		Model:       "test-model",
		APITimeout:  5 * time.Second,
		Temperature: 0.2,
		MaxTokens:   512,
	}
}

// sampleRequest is a reasoning request with one completed tool round trip.
func sampleRequest() schemas.ReasoningRequest {
	inv := schemas.ToolInvocation{ID: "call-1", Name: tools.NavigateToURL, Args: map[string]any{"url": "https://example.com"}}
	return schemas.ReasoningRequest{
		History: []schemas.Turn{
			schemas.UserTurn("Search for weather in Paris"),
			schemas.ModelCallTurn(inv),
			schemas.ToolTurn(tools.NavigateToURL, schemas.ResultEnvelope{Status: schemas.StatusSuccess, Message: "Successfully executed navigate_to_url."}),
		},
		Screenshot:  schemas.Screenshot{Data: []byte("png-bytes"), MIMEType: "image/png"},
		Tools:       tools.Default().List(),
		Instruction: config.DefaultInstruction,
	}
}

// decodeBody reads a JSON request body into a generic map.
func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

// writeJSON writes v as the response body.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
