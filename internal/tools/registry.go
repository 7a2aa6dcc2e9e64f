// internal/tools/registry.go
package tools

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Canonical tool names. The dispatcher matches on these exhaustively.
const (
	NavigateToURL = "navigate_to_url"
	ClickElement  = "click_element"
	FillField     = "fill_field"
	PressKey      = "press_key"
	FinishTask    = "finish_task"
)

// ErrUnknownTool is returned when a name does not resolve to a registered tool.
var ErrUnknownTool = errors.New("unknown tool")

// Registry is an immutable, ordered catalogue of tool definitions.
type Registry struct {
	defs  []schemas.ToolDefinition
	index map[string]int
}

// NewRegistry builds a registry from the given definitions, preserving their
// order. Duplicate or empty names are rejected.
func NewRegistry(defs ...schemas.ToolDefinition) (*Registry, error) {
	r := &Registry{
		defs:  make([]schemas.ToolDefinition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("tool definition at position %d has no name", len(r.defs))
		}
		if _, exists := r.index[d.Name]; exists {
			return nil, fmt.Errorf("duplicate tool definition: %s", d.Name)
		}
		r.index[d.Name] = len(r.defs)
		r.defs = append(r.defs, cloneDefinition(d))
	}
	return r, nil
}

// List returns every definition in declaration order. The result is a copy.
func (r *Registry) List() []schemas.ToolDefinition {
	out := make([]schemas.ToolDefinition, len(r.defs))
	for i, d := range r.defs {
		out[i] = cloneDefinition(d)
	}
	return out
}

// Names returns the tool names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.defs))
	for i, d := range r.defs {
		names[i] = d.Name
	}
	return names
}

// Resolve looks up a definition by name.
func (r *Registry) Resolve(name string) (schemas.ToolDefinition, error) {
	i, ok := r.index[name]
	if !ok {
		return schemas.ToolDefinition{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return cloneDefinition(r.defs[i]), nil
}

// IsTerminal reports whether invoking the named tool ends the task.
func IsTerminal(name string) bool { return name == FinishTask }

func cloneDefinition(d schemas.ToolDefinition) schemas.ToolDefinition {
	d.Parameters = append([]schemas.ToolParameter(nil), d.Parameters...)
	return d
}

// -- Default Catalogue --

var defaultRegistry = mustRegistry(
	schemas.ToolDefinition{
		Name:        NavigateToURL,
		Description: "Navigates the browser to a specific URL.",
		Parameters: []schemas.ToolParameter{
			required("url", "The full URL to navigate to."),
		},
	},
	schemas.ToolDefinition{
		Name:        ClickElement,
		Description: "Clicks on an element on the page specified by a selector.",
		Parameters: []schemas.ToolParameter{
			required("selector", `A robust Playwright selector (e.g., 'button:has-text("Submit")').`),
			required("reason", "Why you are clicking this element."),
		},
	},
	schemas.ToolDefinition{
		Name:        FillField,
		Description: "Fills a text into an input field, specified by a selector.",
		Parameters: []schemas.ToolParameter{
			required("selector", "A robust Playwright selector for the input field."),
			required("text", "The text to type into the field."),
			required("reason", "Why you are filling this field."),
		},
	},
	schemas.ToolDefinition{
		Name:        PressKey,
		Description: "Simulates a key press on a specific element.",
		Parameters: []schemas.ToolParameter{
			required("selector", "A robust Playwright selector for the element."),
			required("key", "The key to press (e.g., 'Enter', 'ArrowDown')."),
			required("reason", "Why you are pressing this key."),
		},
	},
	schemas.ToolDefinition{
		Name:        FinishTask,
		Description: "Call this function when you believe the user's entire task is successfully completed.",
		Parameters: []schemas.ToolParameter{
			required("summary", "A brief summary of what you accomplished."),
		},
	},
)

// Default returns the shared registry of the five browser tools. It is
// immutable and safe for concurrent use.
func Default() *Registry { return defaultRegistry }

func required(name, description string) schemas.ToolParameter {
	return schemas.ToolParameter{
		Name:        name,
		Type:        schemas.ParameterString,
		Description: description,
		Required:    true,
	}
}

func mustRegistry(defs ...schemas.ToolDefinition) *Registry {
	r, err := NewRegistry(defs...)
	if err != nil {
		panic(err)
	}
	return r
}
