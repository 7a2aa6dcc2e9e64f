package schemas

import (
	"encoding/json"
	"fmt"
)

// -- Tool Catalogue --

// ParameterType names the JSON type of a tool parameter.
type ParameterType string

const (
	ParameterString ParameterType = "string"
)

// ToolParameter describes a single named argument of a tool.
type ToolParameter struct {
	Name        string        `json:"name" yaml:"name"`
	Type        ParameterType `json:"type" yaml:"type"`
	Description string        `json:"description" yaml:"description"`
	Required    bool          `json:"required" yaml:"required"`
}

// ToolDefinition is the declarative schema of one action the model may invoke.
// Parameters are kept in declaration order.
type ToolDefinition struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Parameters  []ToolParameter `json:"parameters" yaml:"parameters"`
}

// RequiredParameters returns the names of the required parameters in declaration order.
func (d ToolDefinition) RequiredParameters() []string {
	var names []string
	for _, p := range d.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// ToolInvocation is a concrete request from the reasoning backend to run a tool.
type ToolInvocation struct {
	// ID correlates a model call with its tool result. Backends that do not
	// supply one get a generated identifier.
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// StringArg returns the named argument rendered as a string and whether it was present.
func (i ToolInvocation) StringArg(name string) (string, bool) {
	v, ok := i.Args[name]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// -- Execution Results --

// ResultStatus is the outcome of a tool execution.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
)

// ResultEnvelope is the normalized outcome of dispatching a tool invocation.
type ResultEnvelope struct {
	Status  ResultStatus `json:"status"`
	Message string       `json:"message"`
}

// OK reports whether the envelope represents a successful execution.
func (r ResultEnvelope) OK() bool { return r.Status == StatusSuccess }

// -- Conversation --

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser  Role = "user"  // Operator input.
	RoleModel Role = "model" // Reasoning backend output.
	RoleTool  Role = "tool"  // Result of a dispatched tool.
)

// Turn is one entry of the conversation history. Exactly one payload is set,
// selected by Role: user turns carry Text, model turns carry Text or
// Invocation, tool turns carry ToolName and Result.
type Turn struct {
	Role       Role            `json:"role"`
	Text       string          `json:"text,omitempty"`
	Invocation *ToolInvocation `json:"invocation,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Result     *ResultEnvelope `json:"result,omitempty"`
}

// UserTurn records operator input.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// ModelTextTurn records free text produced by the model.
func ModelTextTurn(text string) Turn {
	return Turn{Role: RoleModel, Text: text}
}

// ModelCallTurn records a tool invocation requested by the model.
func ModelCallTurn(inv ToolInvocation) Turn {
	return Turn{Role: RoleModel, Invocation: &inv}
}

// ToolTurn records the result of executing a tool.
func ToolTurn(name string, result ResultEnvelope) Turn {
	return Turn{Role: RoleTool, ToolName: name, Result: &result}
}

// IsCall reports whether the turn is a model tool invocation.
func (t Turn) IsCall() bool { return t.Role == RoleModel && t.Invocation != nil }

// -- Reasoning --

// Screenshot is an encoded image of the current browser viewport.
type Screenshot struct {
	Data     []byte
	MIMEType string
}

// ReasoningRequest carries everything a reasoning backend needs to pick the next action.
type ReasoningRequest struct {
	History     []Turn
	Screenshot  Screenshot
	Tools       []ToolDefinition
	Instruction string
}

// Decision is the reasoning backend's answer: a tool invocation, or free text
// when the model declined to call a tool.
type Decision struct {
	Text       string
	Invocation *ToolInvocation
}

// HasInvocation reports whether the decision names a tool to run.
func (d Decision) HasInvocation() bool { return d.Invocation != nil }

// -- Operator Protocol --

// EventType discriminates events streamed to the operator.
type EventType string

const (
	EventThought EventType = "thought"
	EventAction  EventType = "action"
	EventResult  EventType = "result"
	EventError   EventType = "error"
)

// Event is one frame streamed to the operator. thought, result and error
// events carry Content; action events carry Tool and Args.
type Event struct {
	Type    EventType      `json:"type"`
	Content string         `json:"content,omitempty"`
	Tool    string         `json:"tool,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
}

// MarshalJSON emits exactly the fields defined for the event's type, so an
// action with no arguments still carries "args": {} and a result with an empty
// message still carries "content": "".
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Type == EventAction {
		args := e.Args
		if args == nil {
			args = map[string]any{}
		}
		return json.Marshal(struct {
			Type EventType      `json:"type"`
			Tool string         `json:"tool"`
			Args map[string]any `json:"args"`
		}{e.Type, e.Tool, args})
	}
	return json.Marshal(struct {
		Type    EventType `json:"type"`
		Content string    `json:"content"`
	}{e.Type, e.Content})
}

// ThoughtEvent builds a thought event.
func ThoughtEvent(content string) Event { return Event{Type: EventThought, Content: content} }

// ResultEvent builds a result event.
func ResultEvent(content string) Event { return Event{Type: EventResult, Content: content} }

// ErrorEvent builds an error event.
func ErrorEvent(content string) Event { return Event{Type: EventError, Content: content} }

// ActionEvent builds an action event. A nil argument map is sent as an empty object.
func ActionEvent(tool string, args map[string]any) Event {
	if args == nil {
		args = map[string]any{}
	}
	return Event{Type: EventAction, Tool: tool, Args: args}
}

// MessageType discriminates inbound operator messages.
type MessageType string

const (
	MessageUserTask MessageType = "user_task"
)

// OperatorMessage is an inbound frame from the operator.
type OperatorMessage struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}
