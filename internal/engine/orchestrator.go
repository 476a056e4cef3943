package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ericvicenti/botical-sub000/internal/actions"
	"github.com/ericvicenti/botical-sub000/internal/logging"
	"github.com/ericvicenti/botical-sub000/internal/store"
	"github.com/ericvicenti/botical-sub000/internal/streaming"
	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

const (
	// DefaultPoolSize caps concurrent step goroutines across all executions.
	DefaultPoolSize = 10

	// Sub-workflow polling defaults: 1s interval, 300 attempts (5 minutes).
	DefaultSubWorkflowPollInterval = time.Second
	DefaultSubWorkflowPollAttempts = 300
)

// EngineConfig holds orchestrator configuration.
type EngineConfig struct {
	PoolSize                int
	CircuitBreaker          *CircuitBreakerConfig
	SubWorkflowPollInterval time.Duration
	SubWorkflowPollAttempts int
}

// Engine is the workflow orchestrator. ExecuteWorkflow validates, persists
// and launches a run, returning the execution id immediately; the run
// itself proceeds on a detached goroutine and reports through the store
// and the event hub.
type Engine struct {
	store     store.Store
	hub       streaming.EventHub
	actions   actions.ActionRegistry
	sessions  SessionService
	approvals ApprovalService
	validator *schema.InputValidator
	breakers  *CircuitBreakerRegistry
	pool      *WorkerPool
	subPool   *WorkerPool
	logger    *slog.Logger
	config    EngineConfig
}

// ExecOptions carries per-execution options.
type ExecOptions struct {
	// AgentContext marks an agent-initiated run; notify steps return
	// their message as output instead of broadcasting.
	AgentContext bool
	// ParentSessionID parents sessions spawned by session steps.
	ParentSessionID string
}

// execRun tracks one in-flight execution.
type execRun struct {
	executionID     string
	rec             *store.WorkflowRecord
	dag             *DAG
	scope           *Scope
	parentSessionID string
	finalOutput     map[string]any
}

// NewEngine creates an orchestrator. sessions and approvals may be nil;
// session and approval steps then fail at execution time.
func NewEngine(s store.Store, hub streaming.EventHub, registry actions.ActionRegistry, sessions SessionService, approvals ApprovalService, logger *slog.Logger, cfg EngineConfig) *Engine {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.SubWorkflowPollInterval <= 0 {
		cfg.SubWorkflowPollInterval = DefaultSubWorkflowPollInterval
	}
	if cfg.SubWorkflowPollAttempts <= 0 {
		cfg.SubWorkflowPollAttempts = DefaultSubWorkflowPollAttempts
	}

	cbConfig := DefaultCircuitBreakerConfig()
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		store:     s,
		hub:       hub,
		actions:   registry,
		sessions:  sessions,
		approvals: approvals,
		validator: schema.NewInputValidator(),
		breakers:  NewCircuitBreakerRegistry(cbConfig),
		pool:      NewWorkerPool(cfg.PoolSize),
		subPool:   NewWorkerPool(cfg.PoolSize),
		logger:    logger,
		config:    cfg,
	}
}

// Shutdown stops accepting step work and waits for in-flight steps.
func (e *Engine) Shutdown() {
	e.pool.Shutdown()
	e.subPool.Shutdown()
}

// ExecuteWorkflow starts an execution of the given definition. It
// validates the input, builds the DAG, persists the pending execution
// and step rows, then returns the new execution id while the run
// proceeds in the background. Validation and cycle errors are returned
// synchronously, before any record is created.
func (e *Engine) ExecuteWorkflow(ctx context.Context, rec *store.WorkflowRecord, input map[string]any, opts ExecOptions) (string, error) {
	if rec == nil {
		return "", schema.NewError(schema.ErrCodeValidation, "workflow record is nil")
	}

	validated, err := e.validator.Validate(&rec.Definition, input)
	if err != nil {
		return "", err
	}

	dag, err := BuildDAG(rec.Definition.Steps)
	if err != nil {
		return "", err
	}

	executionID := uuid.NewString()
	inputJSON, err := json.Marshal(validated)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "encode input: %s", err.Error()).WithCause(err)
	}

	exec := &store.Execution{
		ID:         executionID,
		WorkflowID: rec.ID,
		ProjectID:  rec.ProjectID,
		Status:     schema.ExecutionStatusPending,
		Input:      inputJSON,
	}
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return "", err
	}

	for _, step := range rec.Definition.Steps {
		if err := e.store.UpsertStepExecution(ctx, &store.StepExecution{
			ExecutionID: executionID,
			StepID:      step.ID,
			Status:      schema.StepStatusPending,
		}); err != nil {
			return "", err
		}
	}

	run := &execRun{
		executionID:     executionID,
		rec:             rec,
		dag:             dag,
		scope:           NewScope(validated, opts.AgentContext),
		parentSessionID: opts.ParentSessionID,
		finalOutput:     make(map[string]any),
	}

	// Detach from the caller's cancellation; the run owns its lifetime.
	runCtx := logging.WithIDs(context.WithoutCancel(ctx), executionID, "", rec.ProjectID)
	go e.runWorkflow(runCtx, run)

	return executionID, nil
}

// stepOutcome is the settled result of one step within a level.
type stepOutcome struct {
	step    *schema.WorkflowStep
	status  schema.StepStatus
	output  any
	err     error
	started time.Time
}

// runWorkflow drives the DAG level by level until completion or a fatal
// step failure.
func (e *Engine) runWorkflow(ctx context.Context, run *execRun) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "workflow run panicked", "panic", r)
			e.finishExecution(ctx, run, schema.NewErrorf(schema.ErrCodeExecution, "internal error: %v", r))
		}
	}()

	if err := e.store.MarkExecutionRunning(ctx, run.executionID); err != nil {
		e.logger.ErrorContext(ctx, "mark execution running failed", "error", err)
		return
	}
	e.broadcastExecution(ctx, run, schema.ExecutionStatusRunning, "")

	for _, level := range run.dag.Levels {
		outcomes := e.runLevel(ctx, run, level)

		var fatal *schema.BoticalError
		for _, oc := range outcomes {
			e.settleStep(ctx, run, oc)
			if oc.err == nil {
				continue
			}
			if fatal == nil && isFatal(oc) {
				fatal = toBoticalError(oc.err, oc.step.ID)
			}
		}

		if fatal != nil {
			e.skipRemaining(ctx, run)
			e.finishExecution(ctx, run, fatal)
			return
		}
	}

	e.finishExecution(ctx, run, nil)
}

// runLevel dispatches a level's steps through the shared pool and waits
// for all of them to settle.
func (e *Engine) runLevel(ctx context.Context, run *execRun, level []*schema.WorkflowStep) []stepOutcome {
	outcomes := make([]stepOutcome, len(level))
	done := make(chan struct{}, len(level))

	for i, step := range level {
		idx, s := i, step
		// Workflow steps spend nearly all their time polling a child
		// execution, so they occupy slots in a separate pool; a level
		// full of sub-workflows cannot starve the children's own steps.
		pool := e.pool
		if s.Type == schema.StepTypeWorkflow {
			pool = e.subPool
		}
		err := pool.Submit(ctx, func(stepCtx context.Context) error {
			defer func() { done <- struct{}{} }()
			outcomes[idx] = e.runStep(stepCtx, run, s)
			return outcomes[idx].err
		})
		if err != nil {
			outcomes[idx] = stepOutcome{step: s, status: schema.StepStatusFailed, err: err, started: time.Now().UTC()}
			done <- struct{}{}
		}
	}

	for range level {
		<-done
	}
	return outcomes
}

// runStep evaluates the step's condition and executes it.
func (e *Engine) runStep(ctx context.Context, run *execRun, step *schema.WorkflowStep) stepOutcome {
	started := time.Now().UTC()
	ctx = logging.WithStepID(ctx, step.ID)

	if !EvalCondition(step.If, run.scope) {
		return stepOutcome{step: step, status: schema.StepStatusSkipped, started: started}
	}

	running := schema.StepStatusRunning
	e.patchStep(ctx, run.executionID, step.ID, store.StepPatch{Status: &running, StartedAt: &started})
	e.broadcastStep(ctx, run, step.ID, schema.StepStatusRunning, "")

	output, err := e.executeStep(ctx, run, step)
	if err != nil {
		return stepOutcome{step: step, status: schema.StepStatusFailed, err: err, started: started}
	}
	return stepOutcome{step: step, status: schema.StepStatusCompleted, output: output, started: started}
}

// settleStep persists and broadcasts a step's terminal status, publishes
// its output into the scope, and merges resolve outputs.
func (e *Engine) settleStep(ctx context.Context, run *execRun, oc stepOutcome) {
	completedAt := time.Now().UTC()
	patch := store.StepPatch{Status: &oc.status, CompletedAt: &completedAt}

	errMsg := ""
	switch oc.status {
	case schema.StepStatusCompleted:
		if raw, err := json.Marshal(oc.output); err == nil {
			patch.Output = raw
		}
		// Only completed steps are visible to later bindings.
		run.scope.SetStepOutput(oc.step.ID, oc.output)

		if oc.step.Type == schema.StepTypeResolve {
			if m, ok := oc.output.(map[string]any); ok {
				for k, v := range m {
					run.finalOutput[k] = v
				}
			}
		}
	case schema.StepStatusFailed:
		errMsg = oc.err.Error()
		patch.Error = &errMsg
	}

	e.patchStep(ctx, run.executionID, oc.step.ID, patch)
	e.broadcastStep(ctx, run, oc.step.ID, oc.status, errMsg)
}

// skipRemaining marks all still-pending steps skipped after a fatal
// failure.
func (e *Engine) skipRemaining(ctx context.Context, run *execRun) {
	steps, err := e.store.ListStepExecutions(ctx, run.executionID)
	if err != nil {
		return
	}
	skipped := schema.StepStatusSkipped
	for _, s := range steps {
		if s.Status != schema.StepStatusPending {
			continue
		}
		e.patchStep(ctx, run.executionID, s.StepID, store.StepPatch{Status: &skipped})
		e.broadcastStep(ctx, run, s.StepID, schema.StepStatusSkipped, "")
	}
}

// finishExecution persists the terminal execution status and broadcasts it.
func (e *Engine) finishExecution(ctx context.Context, run *execRun, fatal *schema.BoticalError) {
	if fatal != nil {
		if err := e.store.FailExecution(ctx, run.executionID, fatal.Error()); err != nil {
			e.logger.ErrorContext(ctx, "persist failed execution", "error", err)
		}
		e.broadcastExecution(ctx, run, schema.ExecutionStatusFailed, fatal.Error())
		return
	}

	output, err := json.Marshal(run.finalOutput)
	if err != nil {
		output = []byte("{}")
	}
	if err := e.store.CompleteExecution(ctx, run.executionID, output); err != nil {
		e.logger.ErrorContext(ctx, "persist completed execution", "error", err)
	}
	e.broadcastExecution(ctx, run, schema.ExecutionStatusCompleted, "")
}

// isFatal reports whether a failed step aborts the run. Non-action kinds
// always do; action steps survive a failure when their policy says
// continue or retry.
func isFatal(oc stepOutcome) bool {
	if oc.step.Type != schema.StepTypeAction {
		return true
	}
	if oc.step.OnError == nil {
		return true
	}
	switch oc.step.OnError.Strategy {
	case schema.ErrorStrategyContinue, schema.ErrorStrategyRetry:
		return false
	}
	return true
}

func toBoticalError(err error, stepID string) *schema.BoticalError {
	if berr, ok := err.(*schema.BoticalError); ok {
		if berr.StepID == "" {
			berr.StepID = stepID
		}
		return berr
	}
	return schema.NewErrorf(schema.ErrCodeStepFailed, "%s", err.Error()).WithStep(stepID).WithCause(err)
}

// --- persistence and broadcast helpers ---

func stepPatchArgs(raw json.RawMessage) store.StepPatch {
	return store.StepPatch{ResolvedArgs: raw}
}

func (e *Engine) patchStep(ctx context.Context, executionID, stepID string, patch store.StepPatch) {
	if err := e.store.UpdateStepExecution(ctx, executionID, stepID, patch); err != nil {
		e.logger.ErrorContext(ctx, "persist step state", "step_id", stepID, "error", err)
	}
}

func (e *Engine) broadcastExecution(ctx context.Context, run *execRun, status schema.ExecutionStatus, errMsg string) {
	payload := map[string]any{
		"executionId": run.executionID,
		"workflowId":  run.rec.ID,
		"status":      string(status),
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	_ = e.hub.Publish(ctx, streaming.StreamEvent{
		ExecutionID: run.executionID,
		ProjectID:   run.rec.ProjectID,
		EventType:   schema.EventExecution,
		Payload:     payload,
	})
}

func (e *Engine) broadcastStep(ctx context.Context, run *execRun, stepID string, status schema.StepStatus, errMsg string) {
	payload := map[string]any{
		"executionId": run.executionID,
		"stepId":      stepID,
		"status":      string(status),
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	_ = e.hub.Publish(ctx, streaming.StreamEvent{
		ExecutionID: run.executionID,
		ProjectID:   run.rec.ProjectID,
		StepID:      stepID,
		EventType:   schema.EventStep,
		Payload:     payload,
	})
}
