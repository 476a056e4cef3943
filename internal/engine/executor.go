package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericvicenti/botical-sub000/internal/actions"
	"github.com/ericvicenti/botical-sub000/internal/store"
	"github.com/ericvicenti/botical-sub000/internal/streaming"
	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

// SessionRequest describes an agent session spawned by a session step.
type SessionRequest struct {
	ProjectID       string `json:"project_id"`
	ParentSessionID string `json:"parent_session_id,omitempty"`
	Agent           string `json:"agent,omitempty"`
	SystemPrompt    string `json:"system_prompt,omitempty"`
	ProviderID      string `json:"provider_id,omitempty"`
	ModelID         string `json:"model_id,omitempty"`
	Message         string `json:"message"`
	MaxMessages     int    `json:"max_messages,omitempty"`
}

// SessionOutcome is the result of a completed agent session.
type SessionOutcome struct {
	SessionID    string  `json:"session_id"`
	MessageCount int     `json:"message_count"`
	TotalCost    float64 `json:"total_cost"`
	Response     string  `json:"response,omitempty"`
	Status       string  `json:"status"`
}

// SessionService runs agent sessions on behalf of session steps. The call
// blocks until the session finishes or errors.
type SessionService interface {
	RunAgentSession(ctx context.Context, req SessionRequest) (*SessionOutcome, error)
}

// ApprovalParams describes an approval request raised by an approval step.
type ApprovalParams struct {
	ExecutionID    string   `json:"execution_id"`
	StepID         string   `json:"step_id"`
	ProjectID      string   `json:"project_id"`
	Message        string   `json:"message,omitempty"`
	Approvers      []string `json:"approvers,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
	AutoApprove    bool     `json:"auto_approve,omitempty"`
}

// ApprovalTicket is the immediate response to a created approval request.
// Approval steps do not block the run; responses arrive out of band.
type ApprovalTicket struct {
	ApprovalID     string   `json:"approvalId"`
	Status         string   `json:"status"`
	Approvers      []string `json:"approvers"`
	TimeoutSeconds int      `json:"timeout,omitempty"`
}

// ApprovalService creates approval requests for approval steps.
type ApprovalService interface {
	Create(ctx context.Context, params ApprovalParams) (*ApprovalTicket, error)
}

// executeStep dispatches one step by kind and returns its output.
// A nil error with a non-nil output means the step completed; errors are
// classified for fatality by the level loop.
func (e *Engine) executeStep(ctx context.Context, run *execRun, step *schema.WorkflowStep) (any, error) {
	switch step.Type {
	case schema.StepTypeAction:
		return e.executeActionStep(ctx, run, step)
	case schema.StepTypeNotify:
		return e.executeNotifyStep(ctx, run, step)
	case schema.StepTypeLog:
		return e.executeLogStep(ctx, run, step)
	case schema.StepTypeResolve:
		return e.executeResolveStep(run, step)
	case schema.StepTypeReject:
		return e.executeRejectStep(run, step)
	case schema.StepTypeSession:
		return e.executeSessionStep(ctx, run, step)
	case schema.StepTypeApproval:
		return e.executeApprovalStep(ctx, run, step)
	case schema.StepTypeWorkflow:
		return e.executeWorkflowStep(ctx, run, step)
	}
	return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown step type %q", step.Type).WithStep(step.ID)
}

// executeActionStep runs an action through the registry, wrapped in the
// circuit breaker and the step's retry policy.
func (e *Engine) executeActionStep(ctx context.Context, run *execRun, step *schema.WorkflowStep) (any, error) {
	resolvedArgs := ResolveArgs(step.Args, run.scope)

	// Snapshot the resolved bindings for audit before invoking.
	if raw, err := json.Marshal(resolvedArgs); err == nil {
		e.patchStep(ctx, run.executionID, step.ID, stepPatchArgs(raw))
	}

	actx := actions.ActionContext{
		ProjectID: run.rec.ProjectID,
		SessionID: run.parentSessionID,
		IsAgent:   run.scope.AgentContext,
	}

	return e.runWithRetry(ctx, step, step.Action, func(ctx context.Context) (any, error) {
		return e.invokeAction(ctx, step.Action, resolvedArgs, actx)
	})
}

// runWithRetry applies the step's onError retry policy around invoke.
// Action, session and workflow kinds all route through here. Without a
// retry strategy, invoke runs once and its error surfaces as-is.
func (e *Engine) runWithRetry(ctx context.Context, step *schema.WorkflowStep, target string, invoke func(ctx context.Context) (any, error)) (any, error) {
	if step.OnError == nil || step.OnError.Strategy != schema.ErrorStrategyRetry {
		return invoke(ctx)
	}

	retryCount := step.OnError.RetryCount
	if retryCount <= 0 {
		retryCount = DefaultRetryCount
	}
	baseDelay := time.Duration(step.OnError.RetryDelay) * time.Millisecond
	if baseDelay <= 0 {
		baseDelay = DefaultRetryDelay
	}

	totalAttempts := 1 + retryCount
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= totalAttempts; attempt++ {
		attempts = attempt
		out, err := invoke(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			break
		}
		if attempt == totalAttempts {
			break
		}

		e.logger.WarnContext(ctx, "step failed, retrying",
			"target", target,
			"step_id", step.ID,
			"attempt", attempt,
			"max_attempts", totalAttempts,
			"error", err.Error())

		if werr := WaitForBackoff(ctx, ComputeBackoff(baseDelay, attempt)); werr != nil {
			lastErr = werr
			break
		}
	}

	// Retries exhausted (or a terminal error): the step degrades to a
	// completed output describing the failure instead of failing the run.
	return map[string]any{
		"error":         lastErr.Error(),
		"retryFailed":   true,
		"attempts":      attempts,
		"lastAttemptAt": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// invokeAction performs a single guarded action invocation. A rejection by
// the open circuit does not count as a new failure.
func (e *Engine) invokeAction(ctx context.Context, actionID string, args map[string]any, actx actions.ActionContext) (any, error) {
	if err := e.breakers.AllowRequest(actionID); err != nil {
		return nil, err
	}

	result, err := e.actions.Execute(ctx, actionID, args, actx)
	if err != nil {
		e.breakers.RecordFailure(actionID)
		return nil, err
	}
	if result != nil && result.Type == actions.ResultError {
		e.breakers.RecordFailure(actionID)
		return nil, schema.NewError(schema.ErrCodeExecution, result.Message)
	}

	e.breakers.RecordSuccess(actionID)
	if result == nil {
		return nil, nil
	}
	switch result.Type {
	case actions.ResultNavigate:
		out := map[string]any{"type": "navigate", "pageId": result.PageID}
		if result.Params != nil {
			out["params"] = result.Params
		}
		return out, nil
	case actions.ResultUI:
		out := map[string]any{"type": "ui", "action": result.Action}
		if result.Value != nil {
			out["value"] = result.Value
		}
		if result.Message != "" {
			out["message"] = result.Message
		}
		return out, nil
	}
	return result.Output, nil
}

// executeNotifyStep broadcasts a toast, or in agent context returns the
// message as output without broadcasting.
func (e *Engine) executeNotifyStep(ctx context.Context, run *execRun, step *schema.WorkflowStep) (any, error) {
	message := stringValue(ResolveBinding(step.Message, run.scope))
	variant := stringValue(ResolveBinding(step.Variant, run.scope))
	if variant == "" {
		variant = "info"
	}

	if run.scope.AgentContext {
		return map[string]any{"message": message, "variant": variant}, nil
	}

	err := e.hub.Publish(ctx, streaming.StreamEvent{
		ExecutionID: run.executionID,
		ProjectID:   run.rec.ProjectID,
		StepID:      step.ID,
		EventType:   schema.EventNotify,
		Payload:     map[string]any{"message": message, "variant": variant},
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "notify broadcast failed: %s", err.Error()).WithStep(step.ID).WithCause(err)
	}
	return map[string]any{"message": message, "variant": variant}, nil
}

// executeLogStep writes a structured log line at the resolved level.
func (e *Engine) executeLogStep(ctx context.Context, run *execRun, step *schema.WorkflowStep) (any, error) {
	message := stringValue(ResolveBinding(step.Message, run.scope))
	level := stringValue(ResolveBinding(step.Level, run.scope))

	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	e.logger.Log(ctx, logLevel, message,
		"execution_id", run.executionID,
		"step_id", step.ID)

	return map[string]any{"logged": true, "message": message, "level": level}, nil
}

// executeResolveStep resolves the output bindings. The level loop merges
// them into the execution's final output.
func (e *Engine) executeResolveStep(run *execRun, step *schema.WorkflowStep) (any, error) {
	return ResolveArgs(step.Output, run.scope), nil
}

// executeRejectStep fails the execution with the resolved message.
func (e *Engine) executeRejectStep(run *execRun, step *schema.WorkflowStep) (any, error) {
	message := stringValue(ResolveBinding(step.Message, run.scope))
	if message == "" {
		message = "workflow rejected"
	}
	return nil, schema.NewError(schema.ErrCodeExecution, message).WithStep(step.ID)
}

// executeSessionStep spawns an agent session and blocks until it finishes.
func (e *Engine) executeSessionStep(ctx context.Context, run *execRun, step *schema.WorkflowStep) (any, error) {
	if e.sessions == nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "no session service configured").WithStep(step.ID)
	}

	message, ok := ResolveBinding(step.Message, run.scope).(string)
	if !ok || message == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "session step message must resolve to a non-empty string").WithStep(step.ID)
	}

	req := SessionRequest{
		ProjectID:       run.rec.ProjectID,
		ParentSessionID: run.parentSessionID,
		Agent:           stringValue(ResolveBinding(step.Agent, run.scope)),
		SystemPrompt:    stringValue(ResolveBinding(step.SystemPrompt, run.scope)),
		ProviderID:      stringValue(ResolveBinding(step.ProviderID, run.scope)),
		ModelID:         stringValue(ResolveBinding(step.ModelID, run.scope)),
		Message:         message,
		MaxMessages:     intValue(ResolveBinding(step.MaxMessages, run.scope)),
	}

	return e.runWithRetry(ctx, step, "session", func(ctx context.Context) (any, error) {
		outcome, err := e.sessions.RunAgentSession(ctx, req)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"sessionId":    outcome.SessionID,
			"messageCount": outcome.MessageCount,
			"totalCost":    outcome.TotalCost,
			"response":     outcome.Response,
			"status":       outcome.Status,
		}, nil
	})
}

// executeApprovalStep creates an approval request and completes
// immediately; the run does not block on the human response.
func (e *Engine) executeApprovalStep(ctx context.Context, run *execRun, step *schema.WorkflowStep) (any, error) {
	if e.approvals == nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "no approval service configured").WithStep(step.ID)
	}

	params := ApprovalParams{
		ExecutionID:    run.executionID,
		StepID:         step.ID,
		ProjectID:      run.rec.ProjectID,
		Message:        stringValue(ResolveBinding(step.Message, run.scope)),
		Approvers:      stringSliceValue(ResolveBinding(step.Approvers, run.scope)),
		TimeoutSeconds: intValue(ResolveBinding(step.Timeout, run.scope)),
		AutoApprove:    boolValue(ResolveBinding(step.AutoApprove, run.scope)),
	}

	ticket, err := e.approvals.Create(ctx, params)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"approvalId": ticket.ApprovalID,
		"status":     ticket.Status,
		"approvers":  ticket.Approvers,
	}
	if ticket.TimeoutSeconds > 0 {
		out["timeout"] = ticket.TimeoutSeconds
	}
	return out, nil
}

// executeWorkflowStep launches a sub-workflow execution and polls its
// record until it reaches a terminal status.
func (e *Engine) executeWorkflowStep(ctx context.Context, run *execRun, step *schema.WorkflowStep) (any, error) {
	workflowID := stringValue(ResolveBinding(step.WorkflowID, run.scope))
	workflowName := stringValue(ResolveBinding(step.WorkflowName, run.scope))

	// The definition-time XOR re-checked against resolved values: a
	// binding can resolve to empty at run time.
	if (workflowID == "") == (workflowName == "") {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"workflow step must resolve exactly one of workflowId or workflowName").WithStep(step.ID)
	}

	var child *store.WorkflowRecord
	var err error
	if workflowID != "" {
		child, err = e.store.GetWorkflowDefinition(ctx, workflowID)
	} else {
		child, err = e.store.GetWorkflowDefinitionByName(ctx, run.rec.ProjectID, workflowName)
	}
	if err != nil {
		return nil, err
	}

	if child.ID == run.rec.ID {
		return nil, schema.NewErrorf(schema.ErrCodeRecursion,
			"workflow %q cannot invoke itself", child.Name).WithStep(step.ID)
	}

	childInput := ResolveArgs(step.Input, run.scope)
	return e.runWithRetry(ctx, step, child.Name, func(ctx context.Context) (any, error) {
		return e.runSubWorkflow(ctx, run, step, child, childInput)
	})
}

// runSubWorkflow launches one child execution and polls its persisted
// record until it reaches a terminal status. A retry policy on the step
// relaunches the child from scratch.
func (e *Engine) runSubWorkflow(ctx context.Context, run *execRun, step *schema.WorkflowStep, child *store.WorkflowRecord, childInput map[string]any) (any, error) {
	childExecID, err := e.ExecuteWorkflow(ctx, child, childInput, ExecOptions{
		AgentContext:    run.scope.AgentContext,
		ParentSessionID: run.parentSessionID,
	})
	if err != nil {
		return nil, err
	}

	// Poll the child's persisted record; there is no in-process handle to
	// wait on because the child runs detached like any other execution.
	for attempt := 0; attempt < e.config.SubWorkflowPollAttempts; attempt++ {
		if err := WaitForBackoff(ctx, e.config.SubWorkflowPollInterval); err != nil {
			return nil, err
		}

		exec, err := e.store.GetExecution(ctx, childExecID)
		if err != nil {
			return nil, err
		}
		if !exec.Status.Terminal() {
			continue
		}

		switch exec.Status {
		case schema.ExecutionStatusCompleted:
			var out any
			if len(exec.Output) > 0 {
				if err := json.Unmarshal(exec.Output, &out); err != nil {
					return nil, schema.NewErrorf(schema.ErrCodeExecution,
						"decode sub-workflow output: %s", err.Error()).WithStep(step.ID).WithCause(err)
				}
			}
			return out, nil
		case schema.ExecutionStatusCancelled:
			return nil, schema.NewErrorf(schema.ErrCodeCancelled,
				"sub-workflow execution %s was cancelled", childExecID).WithStep(step.ID)
		default:
			return nil, schema.NewErrorf(schema.ErrCodeStepFailed,
				"sub-workflow %q failed: %s", child.Name, exec.Error).WithStep(step.ID)
		}
	}

	return nil, schema.NewErrorf(schema.ErrCodeTimeout,
		"sub-workflow execution %s did not finish within %s", childExecID,
		time.Duration(e.config.SubWorkflowPollAttempts)*e.config.SubWorkflowPollInterval).WithStep(step.ID)
}

// --- resolved value coercion helpers ---

func stringValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return int(i)
	}
	return 0
}

func boolValue(v any) bool {
	b, _ := v.(bool)
	return b
}

func stringSliceValue(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
