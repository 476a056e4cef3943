package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ericvicenti/botical-sub000/internal/diagram"
	"github.com/ericvicenti/botical-sub000/internal/engine"
	"github.com/ericvicenti/botical-sub000/internal/store"
	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

// handleDefine registers a workflow definition, replacing any previous
// definition stored under the same id.
func (s *BoticalServer) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError("project_id is required"), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}

	defRaw := mcp.ParseStringMap(req, "definition", nil)
	if defRaw == nil {
		return mcp.NewToolResultError("definition is required"), nil
	}

	// Marshal then unmarshal to get a typed WorkflowDefinition.
	defBytes, marshalErr := json.Marshal(defRaw)
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", marshalErr)), nil
	}
	var def schema.WorkflowDefinition
	if unmarshalErr := json.Unmarshal(defBytes, &def); unmarshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", unmarshalErr)), nil
	}

	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	def.ProjectID = projectID
	def.Name = name

	// Reject structurally invalid workflows at registration time.
	if _, dagErr := engine.BuildDAG(def.Steps); dagErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid workflow: %v", dagErr)), nil
	}

	s.captureSession(ctx, projectID)

	rec := &store.WorkflowRecord{
		ID:         def.ID,
		ProjectID:  projectID,
		Name:       name,
		Label:      req.GetString("label", def.Label),
		Category:   req.GetString("category", def.Category),
		Definition: def,
	}
	if saveErr := s.store.SaveWorkflowDefinition(ctx, rec); saveErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save workflow: %v", saveErr)), nil
	}

	return marshalResult(map[string]any{
		"workflowId": rec.ID,
		"name":       name,
	})
}

// handleExecute starts a workflow run. The call returns as soon as the
// execution is accepted; botical.status reports progress.
func (s *BoticalServer) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID := req.GetString("workflow_id", "")
	workflowName := req.GetString("workflow_name", "")
	projectID := req.GetString("project_id", "")

	var rec *store.WorkflowRecord
	var lookupErr error
	switch {
	case workflowID != "":
		rec, lookupErr = s.store.GetWorkflowDefinition(ctx, workflowID)
	case workflowName != "":
		if projectID == "" {
			return mcp.NewToolResultError("project_id is required when executing by workflow_name"), nil
		}
		rec, lookupErr = s.store.GetWorkflowDefinitionByName(ctx, projectID, workflowName)
	default:
		return mcp.NewToolResultError("one of workflow_id or workflow_name is required"), nil
	}
	if lookupErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", lookupErr)), nil
	}

	s.captureSession(ctx, rec.ProjectID)

	input := mcp.ParseStringMap(req, "input", nil)
	executionID, execErr := s.engine.ExecuteWorkflow(ctx, rec, input, engine.ExecOptions{
		AgentContext: req.GetBool("agent_context", false),
	})
	if execErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start execution: %v", execErr)), nil
	}

	return marshalResult(map[string]any{
		"executionId": executionID,
		"workflowId":  rec.ID,
		"status":      string(schema.ExecutionStatusPending),
	})
}

// handleStatus returns an execution record together with its step states.
func (s *BoticalServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	executionID, err := req.RequireString("execution_id")
	if err != nil {
		return mcp.NewToolResultError("execution_id is required"), nil
	}

	exec, execErr := s.store.GetExecution(ctx, executionID)
	if execErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("execution lookup failed: %v", execErr)), nil
	}
	steps, stepsErr := s.store.ListStepExecutions(ctx, executionID)
	if stepsErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("step lookup failed: %v", stepsErr)), nil
	}

	return marshalResult(map[string]any{
		"execution": exec,
		"steps":     steps,
	})
}

// handleExecutions lists executions matching the given filters.
func (s *BoticalServer) handleExecutions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.ExecutionFilter{
		ProjectID:  req.GetString("project_id", ""),
		WorkflowID: req.GetString("workflow_id", ""),
		Limit:      req.GetInt("limit", 50),
	}
	if status := req.GetString("status", ""); status != "" {
		es := schema.ExecutionStatus(status)
		filter.Status = &es
	}
	if since := req.GetString("since", ""); since != "" {
		t, parseErr := time.Parse(time.RFC3339, since)
		if parseErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid since timestamp: %v", parseErr)), nil
		}
		filter.Since = &t
	}

	execs, err := s.store.ListExecutions(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"executions": execs})
}

// handleApprove records a human decision on a pending approval request.
func (s *BoticalServer) handleApprove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	approvalID, err := req.RequireString("approval_id")
	if err != nil {
		return mcp.NewToolResultError("approval_id is required"), nil
	}
	responder, err := req.RequireString("responder")
	if err != nil {
		return mcp.NewToolResultError("responder is required"), nil
	}
	approve, err := req.RequireBool("approve")
	if err != nil {
		return mcp.NewToolResultError("approve is required"), nil
	}

	resolved, respErr := s.approvals.Respond(ctx, approvalID, responder, approve)
	if respErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("approval response failed: %v", respErr)), nil
	}

	return marshalResult(map[string]any{
		"approvalId":  resolved.ID,
		"status":      string(resolved.Status),
		"respondedBy": resolved.RespondedBy,
	})
}

// handleDiagram renders a workflow or execution as a flowchart. When an
// execution id is given the diagram carries step status overlays.
func (s *BoticalServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "mermaid" && format != "ascii" {
		return mcp.NewToolResultError("format must be mermaid or ascii"), nil
	}

	workflowID := req.GetString("workflow_id", "")
	executionID := req.GetString("execution_id", "")
	if workflowID == "" && executionID == "" {
		return mcp.NewToolResultError("one of workflow_id or execution_id is required"), nil
	}

	var steps []*store.StepExecution
	if executionID != "" {
		exec, execErr := s.store.GetExecution(ctx, executionID)
		if execErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("execution lookup failed: %v", execErr)), nil
		}
		workflowID = exec.WorkflowID
		if ss, ssErr := s.store.ListStepExecutions(ctx, executionID); ssErr == nil {
			steps = ss
		}
	}

	rec, recErr := s.store.GetWorkflowDefinition(ctx, workflowID)
	if recErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", recErr)), nil
	}

	model, buildErr := diagram.Build(&rec.Definition, steps)
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", buildErr)), nil
	}

	switch format {
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	}
}

// --- Internal helpers ---

// captureSession maps the project to the caller's MCP session so stream
// events can be pushed back to it.
func (s *BoticalServer) captureSession(ctx context.Context, projectID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(projectID, session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
