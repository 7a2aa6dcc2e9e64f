// internal/agent/errors.go
package agent

import "errors"

// ErrorCode classifies dispatcher failures in logs.
type ErrorCode string

const (
	ErrCodeUnknownTool       ErrorCode = "UNKNOWN_TOOL"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	ErrCodeTimeoutError      ErrorCode = "TIMEOUT_ERROR"
	ErrCodeNotDispatchable   ErrorCode = "NOT_DISPATCHABLE"
)

// ErrMissingArgument is returned when an invocation lacks an argument its command needs.
var ErrMissingArgument = errors.New("missing required argument")

// ErrNotDispatchable is returned for tools that have no browser command.
var ErrNotDispatchable = errors.New("tool has no browser command")

// Operator-facing message formats.
const (
	msgUnknownTool      = "Unknown tool: %s"
	msgExecuted         = "Successfully executed %s."
	msgExecuteFailed    = "Failed to execute %s: %v"
	msgThought          = "I need to use the `%s` tool."
	msgTaskFinished     = "Task Finished: %s"
	msgScreenshotFailed = "Failed to capture screenshot: %v"
	msgReasoningFailed  = "Reasoning backend failed: %v"
	msgTaskQueueFull    = "Task ignored: another task is still queued for this session."
)
