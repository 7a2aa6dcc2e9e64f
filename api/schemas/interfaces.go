package schemas

import (
	"context"
)

// -- Backend Interfaces --

// ReasoningClient asks a vision-capable model for the next action. It is
// called once per loop iteration and must be safe for concurrent use by
// independent sessions.
type ReasoningClient interface {
	// Decide returns either a single tool invocation or free text. A non-nil
	// error means the backend could not produce a decision at all.
	Decide(ctx context.Context, req ReasoningRequest) (Decision, error)
}

// AutomationClient talks to the remote browser-automation service.
type AutomationClient interface {
	// Screenshot captures the current viewport.
	Screenshot(ctx context.Context) (Screenshot, error)
	// Execute runs one command string against the live page. A nil error means
	// the service acknowledged it with a success status.
	Execute(ctx context.Context, code string) error
}

// EventSink receives operator events in emission order. Implementations must
// not retain the event's Args map beyond the call.
type EventSink func(Event)
