package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflow definitions
	SaveWorkflowDefinition(ctx context.Context, rec *WorkflowRecord) error
	GetWorkflowDefinition(ctx context.Context, id string) (*WorkflowRecord, error)
	GetWorkflowDefinitionByName(ctx context.Context, projectID, name string) (*WorkflowRecord, error)
	ListWorkflowDefinitions(ctx context.Context, projectID string) ([]*WorkflowRecord, error)
	DeleteWorkflowDefinition(ctx context.Context, id string) error

	// Executions
	CreateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	MarkExecutionRunning(ctx context.Context, id string) error
	CompleteExecution(ctx context.Context, id string, output []byte) error
	FailExecution(ctx context.Context, id string, errMsg string) error
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)

	// Step executions
	UpsertStepExecution(ctx context.Context, step *StepExecution) error
	UpdateStepExecution(ctx context.Context, executionID, stepID string, patch StepPatch) error
	GetStepExecution(ctx context.Context, executionID, stepID string) (*StepExecution, error)
	ListStepExecutions(ctx context.Context, executionID string) ([]*StepExecution, error)

	// Approval requests
	CreateApprovalRequest(ctx context.Context, req *ApprovalRequest) error
	GetApprovalRequest(ctx context.Context, id string) (*ApprovalRequest, error)
	RespondApprovalRequest(ctx context.Context, id, responder string, approve bool) error
	ListApprovalRequests(ctx context.Context, filter ApprovalFilter) ([]*ApprovalRequest, error)

	// Sessions and messages
	CreateSession(ctx context.Context, sess *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	FinishSession(ctx context.Context, id, status string, totalCost float64) error
	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)

	// Project members
	AddProjectMember(ctx context.Context, projectID, userID, role string) error
	ListProjectMembers(ctx context.Context, projectID string) ([]string, error)

	// Scheduled runs
	CreateScheduledRun(ctx context.Context, run *ScheduledRun) error
	GetScheduledRun(ctx context.Context, id string) (*ScheduledRun, error)
	UpdateScheduledRun(ctx context.Context, id string, update ScheduledRunUpdate) error
	ListScheduledRuns(ctx context.Context, filter ScheduledRunFilter) ([]*ScheduledRun, error)
	DeleteScheduledRun(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
