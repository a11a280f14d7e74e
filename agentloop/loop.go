package agentloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agentd-dev/agentd/llm"
	"github.com/agentd-dev/agentd/taskstore"
)

// Status is the terminal state of a run.
type Status string

const (
	// StatusDone means the model produced a final answer.
	StatusDone Status = "DONE"
	// StatusPartial means the run stopped early with at least one
	// successful step; Outcome.Report describes recoverable progress.
	StatusPartial Status = "PARTIAL"
	// StatusFailed means the run stopped with nothing usable.
	StatusFailed Status = "FAILED"
)

// Outcome is the result of a run.
type Outcome struct {
	Status     Status
	Answer     string  // final answer when Status is StatusDone
	Report     *Report // progress report when Status is StatusPartial
	Message    string  // failure description when Status is StatusFailed
	TaskID     string
	Iterations int
}

// ModelCapability is the model surface the loop depends on. *llm.Client
// satisfies it.
type ModelCapability interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Loop runs queries against a model with tool execution, checkpointing,
// and partial-result synthesis. A Loop is safe for concurrent Run calls;
// each run keeps its own conversation and checkpoint.
type Loop struct {
	model    ModelCapability
	registry *ToolRegistry
	store    taskstore.Store
	sources  []Source
	cfg      Config
	logger   *slog.Logger
	emitter  *EventEmitter
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithStore sets the checkpoint store. Without one, progress is not
// persisted across runs.
func WithStore(store taskstore.Store) LoopOption {
	return func(l *Loop) { l.store = store }
}

// WithSources sets the tool sources discovered lazily on the first run
// that needs tools.
func WithSources(sources ...Source) LoopOption {
	return func(l *Loop) { l.sources = sources }
}

// WithConfig overrides the default configuration.
func WithConfig(cfg Config) LoopOption {
	return func(l *Loop) { l.cfg = cfg.withDefaults() }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) { l.logger = logger }
}

// WithEventEmitter attaches an event stream shared by all runs of the
// loop. The caller owns the emitter's lifecycle.
func WithEventEmitter(emitter *EventEmitter) LoopOption {
	return func(l *Loop) { l.emitter = emitter }
}

// NewLoop creates a Loop around a model and a tool registry.
func NewLoop(model ModelCapability, registry *ToolRegistry, opts ...LoopOption) *Loop {
	if registry == nil {
		registry = NewToolRegistry()
	}
	l := &Loop{
		model:    model,
		registry: registry,
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Registry returns the loop's tool registry.
func (l *Loop) Registry() *ToolRegistry { return l.registry }

// run carries the per-run state of one query.
type run struct {
	id            string
	query         string
	class         Classification
	checkpoint    *Checkpoint
	conversation  *ConversationState
	loop          *Loop
	signatures    []string
	steeringCount int
}

func (r *run) emit(kind EventKind, data map[string]any) {
	if r.loop.emitter == nil {
		return
	}
	r.loop.emitter.Emit(Event{
		Kind:   kind,
		RunID:  r.id,
		TaskID: r.checkpoint.TaskID,
		Data:   data,
	})
}

// Run executes a query to completion. It never panics and never returns a
// Go error: every run ends in a Done, Partial, or Failed outcome.
func (l *Loop) Run(ctx context.Context, query string) (outcome Outcome) {
	r := &run{
		id:         uuid.NewString(),
		query:      query,
		loop:       l,
		checkpoint: NewCheckpoint(query),
	}

	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Error("run panicked", "run_id", r.id, "panic", rec)
			outcome = l.stopOutcome(ctx, r, fmt.Sprintf("internal error: %v", rec))
			outcome.TaskID = r.checkpoint.TaskID
		}
	}()

	r.class = Classify(query)

	if r.class == Action {
		l.registry.DiscoverOnce(l.logger, l.sources...)
	}

	r.conversation = NewConversationState(l.cfg.SystemPrompt)
	r.conversation.AppendUser(query)

	model := l.cfg.ModelFor(r.class)
	l.logger.Info("run start",
		"run_id", r.id,
		"task_id", r.checkpoint.TaskID,
		"classification", r.class,
		"model", model)
	r.emit(EventRunStart, map[string]any{
		"query":          query,
		"classification": string(r.class),
		"model":          model,
	})

	outcome = l.iterate(ctx, r, model)
	outcome.TaskID = r.checkpoint.TaskID

	l.logger.Info("run end",
		"run_id", r.id,
		"task_id", r.checkpoint.TaskID,
		"status", outcome.Status,
		"iterations", outcome.Iterations)
	r.emit(EventRunEnd, map[string]any{
		"status":     string(outcome.Status),
		"iterations": outcome.Iterations,
	})
	return outcome
}

func (l *Loop) iterate(ctx context.Context, r *run, model string) Outcome {
	var tools []llm.ToolDefinition
	if r.class == Action {
		tools = l.registry.Schemas()
	}

	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			out := l.stopOutcome(ctx, r, fmt.Sprintf("run cancelled: %v", err))
			out.Iterations = iteration - 1
			return out
		}

		r.emit(EventIteration, map[string]any{"iteration": iteration})

		resp, err := l.complete(ctx, r, model, tools)
		if err != nil {
			out := l.stopOutcome(ctx, r, fmt.Sprintf("model call failed: %v", err))
			out.Iterations = iteration
			return out
		}

		toolCalls := resp.ToolCalls()
		if len(toolCalls) == 0 {
			l.persist(ctx, r)
			return Outcome{
				Status:     StatusDone,
				Answer:     resp.Text(),
				Iterations: iteration,
			}
		}

		r.conversation.AppendAssistant(resp.Message.Content, toolCalls...)
		l.executeToolCalls(ctx, r, toolCalls)
		l.persist(ctx, r)

		if l.cfg.EnableLoopDetection && DetectLoop(r.signatures, l.cfg.LoopDetectionWindow) {
			l.injectSteering(r)
		}
	}

	out := l.stopOutcome(ctx, r, fmt.Sprintf("iteration limit of %d reached", l.cfg.MaxIterations))
	out.Iterations = l.cfg.MaxIterations
	return out
}

// complete calls the model with a per-call timeout. Retry policy lives in
// the llm client; this only bounds the overall call.
func (l *Loop) complete(ctx context.Context, r *run, model string, tools []llm.ToolDefinition) (*llm.Response, error) {
	callCtx := ctx
	if l.cfg.ModelTimeoutMs > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(l.cfg.ModelTimeoutMs)*time.Millisecond)
		defer cancel()
	}
	return l.model.Complete(callCtx, llm.Request{
		Model:    model,
		Messages: r.conversation.Messages(),
		Tools:    tools,
	})
}

// executeToolCalls runs the model's tool calls sequentially in request
// order. Failures are recorded and fed back to the model; they never abort
// the run.
func (l *Loop) executeToolCalls(ctx context.Context, r *run, toolCalls []llm.ToolCall) {
	for _, call := range toolCalls {
		r.signatures = append(r.signatures, toolCallSignature(call.Name, call.Arguments))
		r.emit(EventToolCallStart, map[string]any{
			"tool": call.Name,
			"id":   call.ID,
		})

		callCtx := ctx
		if l.cfg.ToolTimeoutMs > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, time.Duration(l.cfg.ToolTimeoutMs)*time.Millisecond)
			result := l.registry.Invoke(callCtx, call.Name, call.Arguments)
			cancel()
			l.recordToolResult(r, call, result)
			continue
		}
		result := l.registry.Invoke(callCtx, call.Name, call.Arguments)
		l.recordToolResult(r, call, result)
	}
}

func (l *Loop) recordToolResult(r *run, call llm.ToolCall, result InvokeResult) {
	if result.Failed() {
		l.logger.Warn("tool call failed",
			"run_id", r.id,
			"tool", call.Name,
			"error", result.Message)
		r.checkpoint.AddStep(call.Name, false, "", result.Message)
		r.conversation.AppendToolResult(call.ID, result.Message, true)
	} else {
		// The conversation gets truncated output; the checkpoint keeps
		// the full payload.
		r.checkpoint.AddStep(call.Name, true, result.Content, "")
		truncated := TruncateToolOutput(result.Content, call.Name, l.cfg.ToolOutputLimits, l.cfg.ToolLineLimits)
		r.conversation.AppendToolResult(call.ID, truncated, false)
	}
	r.emit(EventToolCallEnd, map[string]any{
		"tool":   call.Name,
		"id":     call.ID,
		"failed": result.Failed(),
	})
}

// injectSteering appends a corrective user message when the model repeats
// the same tool calls.
func (l *Loop) injectSteering(r *run) {
	r.steeringCount++
	msg := "You appear to be repeating the same tool calls without making progress. " +
		"Step back, reassess the task, and either try a different approach or give your best final answer now."
	r.conversation.AppendUser(msg)
	l.logger.Warn("loop detected, steering injected",
		"run_id", r.id,
		"count", r.steeringCount)
	r.emit(EventSteeringInjected, map[string]any{"count": r.steeringCount})
}

// stopOutcome builds the terminal outcome for a run that did not reach a
// final answer, persisting the checkpoint and synthesizing a partial
// report when any step succeeded.
func (l *Loop) stopOutcome(ctx context.Context, r *run, reason string) Outcome {
	l.persist(ctx, r)
	if r.checkpoint.HasAnySuccess() {
		return Outcome{
			Status: StatusPartial,
			Report: Synthesize(r.checkpoint, reason),
		}
	}
	return Outcome{
		Status:  StatusFailed,
		Message: reason,
	}
}

// persist saves the checkpoint if a store is configured. Uses a detached
// context so cancellation of the run does not lose progress.
func (l *Loop) persist(ctx context.Context, r *run) {
	if l.store == nil {
		return
	}
	saveCtx := context.WithoutCancel(ctx)
	saveCtx, cancel := context.WithTimeout(saveCtx, 5*time.Second)
	defer cancel()
	if err := r.checkpoint.Save(saveCtx, l.store); err != nil {
		l.logger.Warn("checkpoint save failed",
			"run_id", r.id,
			"task_id", r.checkpoint.TaskID,
			"error", err)
	}
}

// ResumeReport loads the checkpoint for a previous query and synthesizes
// a report of its recorded progress. Returns taskstore.ErrNotFound when no
// checkpoint exists.
func (l *Loop) ResumeReport(ctx context.Context, query string) (*Report, error) {
	if l.store == nil {
		return nil, errors.New("agentloop: no checkpoint store configured")
	}
	cp, err := LoadCheckpoint(ctx, l.store, TaskID(query))
	if err != nil {
		return nil, err
	}
	return Synthesize(cp, "loaded from checkpoint"), nil
}
