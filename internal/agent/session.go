// internal/agent/session.go
package agent

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
	"github.com/xkilldash9x/webpilot/internal/tools"
)

// SessionDeps are the shared, concurrency-safe collaborators of a session.
type SessionDeps struct {
	Reasoner   schemas.ReasoningClient
	Automation schemas.AutomationClient
	// Registry defaults to tools.Default().
	Registry *tools.Registry
	Logger   *zap.Logger
	// Metrics may be nil.
	Metrics *observability.Metrics
	// Tracer defaults to observability.Tracer().
	Tracer trace.Tracer
}

// Session runs tasks for one operator connection. It owns the connection's
// history, which accumulates across every task submitted on it. Tasks run one
// at a time.
type Session struct {
	id         string
	agentCfg   config.AgentConfig
	reasoner   schemas.ReasoningClient
	automation schemas.AutomationClient
	dispatcher *Dispatcher
	catalogue  []schemas.ToolDefinition
	history    *History
	logger     *zap.Logger
	metrics    *observability.Metrics
	tracer     trace.Tracer

	runMu      sync.Mutex
	iterations atomic.Int64
}

// NewSession creates a session with an empty history.
func NewSession(cfg config.Interface, deps SessionDeps) *Session {
	registry := deps.Registry
	if registry == nil {
		registry = tools.Default()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = observability.Tracer()
	}
	logger := deps.Logger
	if logger == nil {
		logger = observability.GetLogger()
	}

	id := uuid.NewString()
	logger = logger.Named("session").With(zap.String("session_id", id))

	return &Session{
		id:         id,
		agentCfg:   cfg.Agent(),
		reasoner:   deps.Reasoner,
		automation: deps.Automation,
		dispatcher: NewDispatcher(registry, deps.Automation, cfg.Automation().ExecuteTimeout, logger, deps.Metrics),
		catalogue:  registry.List(),
		history:    NewHistory(),
		logger:     logger,
		metrics:    deps.Metrics,
		tracer:     tracer,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// History returns a snapshot of the conversation so far.
func (s *Session) History() []schemas.Turn { return s.history.Turns() }

// Iterations reports how many loop iterations the session has started across all tasks.
func (s *Session) Iterations() int {
	return int(s.iterations.Load())
}

// Run drives one task through the perceive, reason, act loop, emitting
// operator events in order. It returns OutcomeCompleted when the model calls
// finish_task, OutcomeBoundReached after agent.max_iterations iterations with
// no event emitted for the exhaustion, and OutcomeAborted with the context
// error when ctx is cancelled.
func (s *Session) Run(ctx context.Context, task string, emit schemas.EventSink) (Outcome, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx, span := s.tracer.Start(ctx, "agent.task", trace.WithAttributes(attribute.String("session.id", s.id)))
	defer span.End()

	s.history.Append(schemas.UserTurn(task))
	s.logger.Info("Task received.", zap.String("task", task), zap.Int("history_len", s.history.Len()))
	start := time.Now()

	for i := 1; i <= s.agentCfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return s.finish(span, OutcomeAborted, i-1, start, err)
		}
		done, err := s.iterate(ctx, i, emit)
		if err != nil {
			return s.finish(span, OutcomeAborted, i, start, err)
		}
		if done {
			return s.finish(span, OutcomeCompleted, i, start, nil)
		}
	}
	return s.finish(span, OutcomeBoundReached, s.agentCfg.MaxIterations, start, nil)
}

func (s *Session) finish(span trace.Span, outcome Outcome, iterations int, start time.Time, err error) (Outcome, error) {
	span.SetAttributes(attribute.String("task.outcome", string(outcome)), attribute.Int("task.iterations", iterations))
	s.metrics.TaskFinished(string(outcome))

	fields := []zap.Field{
		zap.String("outcome", string(outcome)),
		zap.Int("iterations", iterations),
		zap.Duration("duration", time.Since(start)),
	}
	switch outcome {
	case OutcomeBoundReached:
		s.logger.Warn("Iteration budget exhausted before the task finished.", fields...)
	case OutcomeAborted:
		span.SetStatus(codes.Error, "aborted")
		s.logger.Info("Task abandoned.", append(fields, zap.Error(err))...)
	default:
		s.logger.Info("Task finished.", fields...)
	}
	return outcome, err
}

// iterate runs one iteration. It reports true when the task finished and
// returns an error only when ctx was cancelled.
func (s *Session) iterate(ctx context.Context, n int, emit schemas.EventSink) (bool, error) {
	s.iterations.Add(1)
	s.metrics.IterationStarted()

	ctx, span := s.tracer.Start(ctx, "agent.iteration", trace.WithAttributes(attribute.Int("iteration", n)))
	defer span.End()
	logger := s.logger.With(zap.Int("iteration", n))

	// 1. Perceive.
	shot, err := s.perceive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		logger.Warn("Perception failed; skipping iteration.", zap.String("phase", string(PhasePerceive)), zap.Error(err))
		emit(schemas.ErrorEvent(fmt.Sprintf(msgScreenshotFailed, err)))
		return false, nil
	}

	// 2. Reason.
	decision, err := s.reason(ctx, shot)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		logger.Warn("Reasoning failed; skipping iteration.", zap.String("phase", string(PhaseReason)), zap.Error(err))
		emit(schemas.ErrorEvent(fmt.Sprintf(msgReasoningFailed, err)))
		return false, nil
	}

	if !decision.HasInvocation() {
		logger.Info("Model answered without a tool call.", zap.Int("text_len", len(decision.Text)))
		if decision.Text != "" {
			s.history.Append(schemas.ModelTextTurn(decision.Text))
			emit(schemas.ThoughtEvent(decision.Text))
		}
		return false, nil
	}

	// 3. Act.
	inv := *decision.Invocation
	emit(schemas.ThoughtEvent(fmt.Sprintf(msgThought, inv.Name)))
	emit(schemas.ActionEvent(inv.Name, maps.Clone(inv.Args)))

	if tools.IsTerminal(inv.Name) {
		summary, _ := inv.StringArg("summary")
		logger.Info("Model declared the task finished.", zap.String("summary", summary))
		emit(schemas.ResultEvent(fmt.Sprintf(msgTaskFinished, summary)))
		return true, nil
	}

	result := s.act(ctx, inv)
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if result.OK() {
		emit(schemas.ResultEvent(result.Message))
	} else {
		emit(schemas.ErrorEvent(result.Message))
	}
	s.history.Append(schemas.ModelCallTurn(inv), schemas.ToolTurn(inv.Name, result))
	return false, nil
}

func (s *Session) perceive(ctx context.Context) (schemas.Screenshot, error) {
	ctx, span := s.tracer.Start(ctx, "agent.perceive", trace.WithAttributes(phaseAttr(PhasePerceive)))
	defer span.End()

	shot, err := s.automation.Screenshot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "screenshot failed")
		return schemas.Screenshot{}, err
	}
	span.SetAttributes(attribute.Int("screenshot.bytes", len(shot.Data)))
	return shot, nil
}

func (s *Session) reason(ctx context.Context, shot schemas.Screenshot) (schemas.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "agent.reason", trace.WithAttributes(phaseAttr(PhaseReason)))
	defer span.End()

	decision, err := s.reasoner.Decide(ctx, schemas.ReasoningRequest{
		History:     s.history.Turns(),
		Screenshot:  shot,
		Tools:       s.catalogue,
		Instruction: s.agentCfg.Instruction,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reasoning failed")
		return schemas.Decision{}, err
	}
	if decision.HasInvocation() {
		span.SetAttributes(attribute.String("tool.name", decision.Invocation.Name))
	}
	return decision, nil
}

func (s *Session) act(ctx context.Context, inv schemas.ToolInvocation) schemas.ResultEnvelope {
	ctx, span := s.tracer.Start(ctx, "agent.act", trace.WithAttributes(phaseAttr(PhaseAct), attribute.String("tool.name", inv.Name)))
	defer span.End()

	result := s.dispatcher.Execute(ctx, inv)
	span.SetAttributes(attribute.String("tool.status", string(result.Status)))
	if !result.OK() {
		span.SetStatus(codes.Error, result.Message)
	}
	return result
}
