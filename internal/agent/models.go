// internal/agent/models.go
package agent

import "go.opentelemetry.io/otel/attribute"

// Outcome describes how a task run ended.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"     // The model invoked finish_task.
	OutcomeBoundReached Outcome = "bound_reached" // The iteration budget ran out without finish_task.
	OutcomeAborted      Outcome = "aborted"       // The context was cancelled, usually by a disconnect.
)

// Phase names a step of a loop iteration. It is attached to logs and spans.
type Phase string

const (
	PhasePerceive Phase = "perceive"
	PhaseReason   Phase = "reason"
	PhaseAct      Phase = "act"
)

func phaseAttr(p Phase) attribute.KeyValue { return attribute.String("phase", string(p)) }
