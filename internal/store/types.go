package store

import (
	"encoding/json"
	"time"

	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

// WorkflowRecord is a persisted workflow definition, addressable by id or
// by name within its project.
type WorkflowRecord struct {
	ID         string                    `json:"id"`
	ProjectID  string                    `json:"project_id"`
	Name       string                    `json:"name"`
	Label      string                    `json:"label,omitempty"`
	Category   string                    `json:"category,omitempty"`
	Definition schema.WorkflowDefinition `json:"definition"`
	CreatedAt  time.Time                 `json:"created_at"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

// Execution is the persisted representation of one workflow run.
type Execution struct {
	ID          string                 `json:"id"`
	WorkflowID  string                 `json:"workflow_id"`
	ProjectID   string                 `json:"project_id"`
	Status      schema.ExecutionStatus `json:"status"`
	Input       json.RawMessage        `json:"input,omitempty"`
	Output      json.RawMessage        `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// StepExecution is the persisted state of one step within an execution.
// ResolvedArgs is the audit snapshot of the step's bindings as resolved
// at run time.
type StepExecution struct {
	ExecutionID  string            `json:"execution_id"`
	StepID       string            `json:"step_id"`
	Status       schema.StepStatus `json:"status"`
	ResolvedArgs json.RawMessage   `json:"resolved_args,omitempty"`
	Output       json.RawMessage   `json:"output,omitempty"`
	Error        string            `json:"error,omitempty"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// ApprovalRequest is a persisted human-approval request raised by an
// approval step.
type ApprovalRequest struct {
	ID             string                `json:"id"`
	ExecutionID    string                `json:"execution_id"`
	StepID         string                `json:"step_id"`
	ProjectID      string                `json:"project_id"`
	Message        string                `json:"message,omitempty"`
	Approvers      []string              `json:"approvers"`
	TimeoutSeconds int                   `json:"timeout_seconds,omitempty"`
	AutoApprove    bool                  `json:"auto_approve,omitempty"`
	Status         schema.ApprovalStatus `json:"status"`
	RespondedBy    string                `json:"responded_by,omitempty"`
	RespondedAt    *time.Time            `json:"responded_at,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

// Session is a persisted agent conversation session. Sessions spawned by
// workflow session steps are parented to the invoking session.
type Session struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	ParentID     string    `json:"parent_id,omitempty"`
	Agent        string    `json:"agent,omitempty"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	ProviderID   string    `json:"provider_id,omitempty"`
	ModelID      string    `json:"model_id,omitempty"`
	Status       string    `json:"status"` // running | completed | failed
	TotalCost    float64   `json:"total_cost"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is one turn in a session.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // user | assistant | system
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ScheduledRun is a cron-triggered workflow execution.
type ScheduledRun struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	ProjectID      string          `json:"project_id"`
	CronExpression string          `json:"cron_expression"`
	Input          json.RawMessage `json:"input,omitempty"`
	Enabled        bool            `json:"enabled"`
	LastRunAt      *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time      `json:"next_run_at,omitempty"`
	LastRunStatus  string          `json:"last_run_status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// --- Filter, patch and update types ---

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	ProjectID  string                  `json:"project_id,omitempty"`
	WorkflowID string                  `json:"workflow_id,omitempty"`
	Status     *schema.ExecutionStatus `json:"status,omitempty"`
	Since      *time.Time              `json:"since,omitempty"`
	Limit      int                     `json:"limit,omitempty"`
	Offset     int                     `json:"offset,omitempty"`
}

// StepPatch specifies mutable fields of a step execution. Nil fields are
// left untouched.
type StepPatch struct {
	Status       *schema.StepStatus `json:"status,omitempty"`
	ResolvedArgs json.RawMessage    `json:"resolved_args,omitempty"`
	Output       json.RawMessage    `json:"output,omitempty"`
	Error        *string            `json:"error,omitempty"`
	StartedAt    *time.Time         `json:"started_at,omitempty"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
}

// ApprovalFilter specifies criteria for listing approval requests.
type ApprovalFilter struct {
	ProjectID   string                 `json:"project_id,omitempty"`
	ExecutionID string                 `json:"execution_id,omitempty"`
	Status      *schema.ApprovalStatus `json:"status,omitempty"`
	Limit       int                    `json:"limit,omitempty"`
}

// ScheduledRunUpdate specifies mutable fields of a scheduled run.
type ScheduledRunUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduledRunFilter specifies criteria for listing scheduled runs.
type ScheduledRunFilter struct {
	ProjectID string `json:"project_id,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}
