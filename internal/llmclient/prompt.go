// internal/llmclient/prompt.go
package llmclient

import (
	"github.com/xkilldash9x/webpilot/api/schemas"
)

// DefaultSystemPrompt is used when no prompt is configured.
const DefaultSystemPrompt = `You are a web automation agent operating a real browser on behalf of a user.

On every turn you receive a screenshot of the current page. Decide on exactly one next step and
perform it by calling one of the available tools. Prefer robust Playwright selectors such as
text=, role= or :has-text() over brittle CSS paths. When a previous action failed, look at the new
screenshot and try a different approach instead of repeating it.

When the user's entire task is complete, call finish_task with a short summary of what you did.`

// SystemPrompt returns configured unless it is empty.
func SystemPrompt(configured string) string {
	if configured != "" {
		return configured
	}
	return DefaultSystemPrompt
}

// resultPayload is the structured form of a tool turn sent back to a model.
func resultPayload(r *schemas.ResultEnvelope) map[string]any {
	if r == nil {
		return map[string]any{"status": string(schemas.StatusError), "message": "no result recorded"}
	}
	return map[string]any{"status": string(r.Status), "message": r.Message}
}

// jsonSchemaFor renders a tool's parameters as a JSON-Schema object. Only the
// required list keeps declaration order.
func jsonSchemaFor(def schemas.ToolDefinition) map[string]any {
	props := make(map[string]any, len(def.Parameters))
	for _, p := range def.Parameters {
		props[p.Name] = map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
	}
	required := def.RequiredParameters()
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}
