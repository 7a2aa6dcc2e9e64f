// internal/llmutil/parser_test.go
package llmutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeArguments(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]any
	}{
		{"bare object", `{"url":"https://example.com"}`, map[string]any{"url": "https://example.com"}},
		{"fenced with language", "```json\n{\"selector\": \"#q\", \"text\": \"go\"}\n```", map[string]any{"selector": "#q", "text": "go"}},
		{"fenced without language", "```\n{\"key\":\"Enter\"}\n```", map[string]any{"key": "Enter"}},
		{"surrounded by text", `Sure, here you go: {"summary":"done"} Hope that helps.`, map[string]any{"summary": "done"}},
		{"empty", "   ", map[string]any{}},
		{"null", "null", map[string]any{}},
		{"numbers stay numbers", `{"n": 3}`, map[string]any{"n": float64(3)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeArguments(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeArguments_Malformed(t *testing.T) {
	_, err := DecodeArguments(`{"url": `)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal LLM JSON response")

	_, err = DecodeArguments(`["not", "an", "object"]`)
	require.Error(t, err)
}

func TestParseJSONResponse_TruncatesSnippet(t *testing.T) {
	_, err := ParseJSONResponse[map[string]any]("{" + strings.Repeat("x", 500))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "...")
	assert.Less(t, len(err.Error()), 400)
}
