package llmclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/tools"
)

// -- Test Setup Helpers --

// setupGeminiClient points a GeminiClient at a mock generateContent endpoint.
func setupGeminiClient(t *testing.T, handler http.HandlerFunc) (*GeminiClient, *observer.ObservedLogs) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger, logs := setupTestLogger(t)
	cfg := getValidLLMConfig(config.ProviderGemini)
	cfg.Endpoint = server.URL

	client, err := NewGeminiClient(context.Background(), cfg, "", logger)
	require.NoError(t, err, "NewGeminiClient initialization failed")
	return client, logs
}

func geminiFunctionCall(name string, args map[string]any) map[string]any {
	return map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"role":  "model",
				"parts": []any{map[string]any{"functionCall": map[string]any{"name": name, "args": args}}},
			},
			"finishReason": "STOP",
		}},
		"usageMetadata": map[string]any{"promptTokenCount": 120, "candidatesTokenCount": 8, "totalTokenCount": 128},
	}
}

// -- Test Cases: Request Shape --

func TestGeminiClient_RequestShape(t *testing.T) {
	var body map[string]any
	var path string
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body = decodeBody(t, r)
		writeJSON(w, geminiFunctionCall(tools.ClickElement, map[string]any{"selector": "#go", "reason": "submit"}))
	})

	_, err := client.Decide(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(path, "models/test-model:generateContent"), "unexpected path %s", path)

	contents := body["contents"].([]any)
	// user task, model call, then tool result merged with the screenshot turn
	require.Len(t, contents, 3)

	first := contents[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "Search for weather in Paris", first["parts"].([]any)[0].(map[string]any)["text"])

	second := contents[1].(map[string]any)
	assert.Equal(t, "model", second["role"])
	call := second["parts"].([]any)[0].(map[string]any)["functionCall"].(map[string]any)
	assert.Equal(t, tools.NavigateToURL, call["name"])

	last := contents[2].(map[string]any)
	assert.Equal(t, "user", last["role"])
	parts := last["parts"].([]any)
	require.Len(t, parts, 3)
	resp := parts[0].(map[string]any)["functionResponse"].(map[string]any)
	assert.Equal(t, tools.NavigateToURL, resp["name"])
	assert.Equal(t, "success", resp["response"].(map[string]any)["status"])
	inline := parts[1].(map[string]any)["inlineData"].(map[string]any)
	assert.Equal(t, "image/png", inline["mimeType"])
	assert.Equal(t, config.DefaultInstruction, parts[2].(map[string]any)["text"])

	sys := body["systemInstruction"].(map[string]any)
	assert.Equal(t, DefaultSystemPrompt, sys["parts"].([]any)[0].(map[string]any)["text"])

	toolList := body["tools"].([]any)
	require.Len(t, toolList, 1)
	decls := toolList[0].(map[string]any)["functionDeclarations"].([]any)
	require.Len(t, decls, 5)
	fill := decls[2].(map[string]any)
	assert.Equal(t, tools.FillField, fill["name"])
	params := fill["parameters"].(map[string]any)
	assert.Equal(t, "OBJECT", params["type"])
	assert.Equal(t, []any{"selector", "text", "reason"}, params["required"])
	assert.Equal(t, []any{"selector", "text", "reason"}, params["propertyOrdering"])
}

// -- Test Cases: Response Handling --

func TestGeminiClient_Decide(t *testing.T) {
	t.Run("function call", func(t *testing.T) {
		client, logs := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, geminiFunctionCall(tools.FillField, map[string]any{"selector": "#q", "text": "weather", "reason": "search"}))
		})

		d, err := client.Decide(context.Background(), sampleRequest())
		require.NoError(t, err)
		require.True(t, d.HasInvocation())
		assert.Equal(t, tools.FillField, d.Invocation.Name)
		assert.Equal(t, "weather", d.Invocation.Args["text"])
		assert.NotEmpty(t, d.Invocation.ID, "a call without a backend id gets a generated one")

		entries := logs.FilterMessage("LLM generation complete (Gemini)").All()
		require.Len(t, entries, 1)
		assert.Equal(t, int32(128), entries[0].ContextMap()["total_tokens"])
	})

	t.Run("free text", func(t *testing.T) {
		client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"candidates": []any{map[string]any{
				"content": map[string]any{"role": "model", "parts": []any{
					map[string]any{"text": "The page is still "},
					map[string]any{"text": "loading."},
				}},
			}}})
		})

		d, err := client.Decide(context.Background(), sampleRequest())
		require.NoError(t, err)
		assert.False(t, d.HasInvocation())
		assert.Equal(t, "The page is still loading.", d.Text)
	})

	t.Run("several calls keeps the first", func(t *testing.T) {
		client, logs := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"candidates": []any{map[string]any{
				"content": map[string]any{"role": "model", "parts": []any{
					map[string]any{"functionCall": map[string]any{"name": tools.ClickElement, "args": map[string]any{"selector": "a", "reason": "r"}}},
					map[string]any{"functionCall": map[string]any{"name": tools.FinishTask, "args": map[string]any{"summary": "s"}}},
				}},
			}}})
		})

		d, err := client.Decide(context.Background(), sampleRequest())
		require.NoError(t, err)
		assert.Equal(t, tools.ClickElement, d.Invocation.Name)
		assert.Equal(t, 1, logs.FilterMessage("Model returned several function calls; only the first is used.").Len())
	})

	t.Run("no candidates", func(t *testing.T) {
		client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"candidates": []any{}})
		})

		_, err := client.Decide(context.Background(), sampleRequest())
		assert.ErrorContains(t, err, "no candidates")
	})

	t.Run("blocked prompt", func(t *testing.T) {
		client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"promptFeedback": map[string]any{"blockReason": "SAFETY"}})
		})

		_, err := client.Decide(context.Background(), sampleRequest())
		assert.ErrorContains(t, err, "blocked the prompt")
	})

	t.Run("api error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		client, logs := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
		})

		_, err := client.Decide(context.Background(), sampleRequest())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gemini generateContent failed")
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, 1, logs.FilterMessage("Gemini request failed.").Len())
	})
}
