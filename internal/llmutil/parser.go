// internal/llmutil/parser.go
package llmutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// jsonObjectRegex extracts a JSON object wrapped in a markdown fence. Backticks
// are written as \x60 because raw strings cannot contain them.
var jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")

// ParseJSONResponse decodes a model-produced JSON object into T. It accepts a
// bare object, an object inside a markdown code fence, and an object
// surrounded by conversational text.
func ParseJSONResponse[T any](response string) (*T, error) {
	raw := ExtractJSONObject(response)

	var result T
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(raw, 200))
	}
	return &result, nil
}

// ExtractJSONObject returns the JSON object embedded in response, or the
// trimmed response unchanged when no object boundaries are found.
func ExtractJSONObject(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```") {
		if m := jsonObjectRegex.FindStringSubmatch(response); len(m) > 1 {
			return m[1]
		}
		return response
	}
	if strings.HasPrefix(response, "{") {
		return response
	}

	first := strings.Index(response, "{")
	last := strings.LastIndex(response, "}")
	if first != -1 && last > first {
		return response[first : last+1]
	}
	return response
}

// DecodeArguments decodes tool-call arguments. Empty input yields an empty map.
func DecodeArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	args, err := ParseJSONResponse[map[string]any](raw)
	if err != nil {
		return nil, err
	}
	if *args == nil {
		return map[string]any{}, nil
	}
	return *args, nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
