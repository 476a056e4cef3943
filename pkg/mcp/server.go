package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ericvicenti/botical-sub000/internal/engine"
	"github.com/ericvicenti/botical-sub000/internal/store"
	"github.com/ericvicenti/botical-sub000/internal/streaming"
)

// WorkflowEngine starts workflow executions. Satisfied by engine.Engine.
type WorkflowEngine interface {
	ExecuteWorkflow(ctx context.Context, rec *store.WorkflowRecord, input map[string]any, opts engine.ExecOptions) (string, error)
}

// ApprovalResponder resolves pending approval requests. Satisfied by
// approval.Service.
type ApprovalResponder interface {
	Respond(ctx context.Context, approvalID, responder string, approve bool) (*store.ApprovalRequest, error)
	ListPending(ctx context.Context, projectID string) ([]*store.ApprovalRequest, error)
}

// BoticalServerDeps holds the dependencies for creating a BoticalServer.
type BoticalServerDeps struct {
	Engine    WorkflowEngine
	Store     store.Store
	Approvals ApprovalResponder
	Hub       streaming.EventHub
	Logger    *slog.Logger
}

// BoticalServer wraps an MCP server with botical-specific tool handlers.
type BoticalServer struct {
	engine    WorkflowEngine
	store     store.Store
	approvals ApprovalResponder
	hub       streaming.EventHub
	sessions  *SessionRegistry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewBoticalServer creates a new BoticalServer with all 5 tools registered.
func NewBoticalServer(deps BoticalServerDeps) *BoticalServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &BoticalServer{
		engine:    deps.Engine,
		store:     deps.Store,
		approvals: deps.Approvals,
		hub:       deps.Hub,
		sessions:  NewSessionRegistry(),
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"botical",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Botical runs DAG-structured workflows. Use botical.define to register a workflow, botical.execute to start a run, botical.status to inspect an execution and its steps, botical.executions to list runs, botical.approve to resolve a pending approval request, and botical.diagram to render a workflow as a flowchart."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *BoticalServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *BoticalServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the registry mapping projects to connected MCP sessions.
func (s *BoticalServer) Sessions() *SessionRegistry {
	return s.sessions
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *BoticalServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: executeTool(), Handler: s.handleExecute},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: executionsTool(), Handler: s.handleExecutions},
		{Tool: approveTool(), Handler: s.handleApprove},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func defineTool() mcp.Tool {
	return mcp.NewTool("botical.define",
		mcp.WithDescription("Register a workflow definition"),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project the workflow belongs to")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Workflow name, unique within the project")),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition object with steps")),
		mcp.WithString("label", mcp.Description("Human-readable label")),
		mcp.WithString("category", mcp.Description("Grouping category")),
	)
}

func executeTool() mcp.Tool {
	return mcp.NewTool("botical.execute",
		mcp.WithDescription("Start a workflow execution and return its execution id"),
		mcp.WithString("workflow_id", mcp.Description("ID of the workflow to run")),
		mcp.WithString("workflow_name", mcp.Description("Name of the workflow to run (requires project_id)")),
		mcp.WithString("project_id", mcp.Description("Project scope for name lookup")),
		mcp.WithObject("input", mcp.Description("Workflow input values")),
		mcp.WithBoolean("agent_context", mcp.Description("Run with agent context: notify steps return their message instead of broadcasting")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("botical.status",
		mcp.WithDescription("Get the state of a workflow execution and its steps"),
		mcp.WithString("execution_id", mcp.Required(), mcp.Description("ID of the execution to inspect")),
	)
}

func executionsTool() mcp.Tool {
	return mcp.NewTool("botical.executions",
		mcp.WithDescription("List workflow executions"),
		mcp.WithString("project_id", mcp.Description("Filter by project")),
		mcp.WithString("workflow_id", mcp.Description("Filter by workflow")),
		mcp.WithString("status", mcp.Description("Filter by status"),
			mcp.Enum("pending", "running", "completed", "failed", "cancelled"),
		),
		mcp.WithString("since", mcp.Description("RFC3339 timestamp, only executions created after it")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows to return (default 50)")),
	)
}

func approveTool() mcp.Tool {
	return mcp.NewTool("botical.approve",
		mcp.WithDescription("Respond to a pending approval request"),
		mcp.WithString("approval_id", mcp.Required(), mcp.Description("ID of the approval request")),
		mcp.WithString("responder", mcp.Required(), mcp.Description("User responding to the request")),
		mcp.WithBoolean("approve", mcp.Required(), mcp.Description("true to approve, false to reject")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("botical.diagram",
		mcp.WithDescription("Render a workflow as a Mermaid flowchart or ASCII diagram"),
		mcp.WithString("workflow_id", mcp.Description("Workflow to render")),
		mcp.WithString("execution_id", mcp.Description("Execution to render, with step status overlay")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("mermaid", "ascii"),
			mcp.Description("Output format"),
		),
	)
}
