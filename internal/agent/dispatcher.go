// internal/agent/dispatcher.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/observability"
	"github.com/xkilldash9x/webpilot/internal/tools"
)

// DefaultExecuteTimeout bounds a single command submission.
const DefaultExecuteTimeout = 10 * time.Second

// Dispatcher turns tool invocations into browser commands and submits them
// to the automation service. Each invocation results in at most one request.
type Dispatcher struct {
	registry *tools.Registry
	backend  schemas.AutomationClient
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewDispatcher creates a dispatcher. A non-positive timeout selects DefaultExecuteTimeout.
func NewDispatcher(registry *tools.Registry, backend schemas.AutomationClient, timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultExecuteTimeout
	}
	return &Dispatcher{
		registry: registry,
		backend:  backend,
		timeout:  timeout,
		logger:   logger.Named("dispatcher"),
		metrics:  metrics,
	}
}

// Execute resolves, renders and submits inv, and always returns an envelope.
// Failures never propagate as Go errors.
func (d *Dispatcher) Execute(ctx context.Context, inv schemas.ToolInvocation) schemas.ResultEnvelope {
	logger := d.logger.With(zap.String("tool", inv.Name), zap.String("call_id", inv.ID))

	// 1. The name must be in the catalogue.
	if _, err := d.registry.Resolve(inv.Name); err != nil {
		logger.Warn("Rejected invocation of unknown tool.", zap.String("error_code", string(ErrCodeUnknownTool)))
		return d.record(inv.Name, failure(fmt.Sprintf(msgUnknownTool, inv.Name)))
	}

	// 2. Render the command. Nothing is sent when arguments are missing.
	code, err := RenderCommand(inv)
	if err != nil {
		errCode := ErrCodeInvalidParameters
		switch {
		case errors.Is(err, tools.ErrUnknownTool):
			logger.Warn("Tool has no renderer.", zap.String("error_code", string(ErrCodeUnknownTool)))
			return d.record(inv.Name, failure(fmt.Sprintf(msgUnknownTool, inv.Name)))
		case errors.Is(err, ErrNotDispatchable):
			errCode = ErrCodeNotDispatchable
		}
		logger.Warn("Invocation could not be rendered.", zap.String("error_code", string(errCode)), zap.Error(err))
		return d.record(inv.Name, failure(fmt.Sprintf(msgExecuteFailed, inv.Name, err)))
	}

	// 3. Submit under the execution deadline.
	execCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	if err := d.backend.Execute(execCtx, code); err != nil {
		errCode := ErrCodeExecutionFailure
		if errors.Is(err, context.DeadlineExceeded) {
			errCode = ErrCodeTimeoutError
		}
		logger.Warn("Tool execution failed.",
			zap.String("error_code", string(errCode)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return d.record(inv.Name, failure(fmt.Sprintf(msgExecuteFailed, inv.Name, err)))
	}

	logger.Info("Tool executed.", zap.String("code", code), zap.Duration("duration", time.Since(start)))
	return d.record(inv.Name, schemas.ResultEnvelope{
		Status:  schemas.StatusSuccess,
		Message: fmt.Sprintf(msgExecuted, inv.Name),
	})
}

func (d *Dispatcher) record(tool string, r schemas.ResultEnvelope) schemas.ResultEnvelope {
	d.metrics.ToolExecuted(tool, string(r.Status))
	return r
}

func failure(msg string) schemas.ResultEnvelope {
	return schemas.ResultEnvelope{Status: schemas.StatusError, Message: msg}
}

// RenderCommand produces the Playwright statement for inv by plain
// substitution. Argument values are not escaped, so a quote inside a
// selector or text changes the statement.
func RenderCommand(inv schemas.ToolInvocation) (string, error) {
	switch inv.Name {
	case tools.NavigateToURL:
		a, err := requireArgs(inv, "url")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("await page.goto('%s')", a[0]), nil
	case tools.ClickElement:
		a, err := requireArgs(inv, "selector")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("await page.click('%s')", a[0]), nil
	case tools.FillField:
		a, err := requireArgs(inv, "selector", "text")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("await page.fill('%s', '%s')", a[0], a[1]), nil
	case tools.PressKey:
		a, err := requireArgs(inv, "selector", "key")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("await page.press('%s', '%s')", a[0], a[1]), nil
	case tools.FinishTask:
		return "", fmt.Errorf("%w: %s", ErrNotDispatchable, inv.Name)
	default:
		return "", fmt.Errorf("%w: %s", tools.ErrUnknownTool, inv.Name)
	}
}

func requireArgs(inv schemas.ToolInvocation, names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		v, ok := inv.StringArg(n)
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingArgument, n)
		}
		out[i] = v
	}
	return out, nil
}
