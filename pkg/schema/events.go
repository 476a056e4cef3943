package schema

// Event names emitted on the broadcast channel. Delivery is at-most-once
// per connected subscriber; state recovery goes through the store.
const (
	EventExecution        = "workflow.execution"
	EventStep             = "workflow.step"
	EventNotify           = "workflow.notify"
	EventApprovalRequired = "workflow.approval.required"
)

// ExecutionStatus represents the lifecycle state of a workflow execution.
// The engine itself only transitions pending -> running -> completed|failed;
// cancelled is reachable at the persistence layer but never set in-process.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transition.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}
	return false
}

// StepStatus represents the lifecycle state of a step execution.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// ApprovalStatus represents the lifecycle state of an approval request.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
	ApprovalStatusExpired  ApprovalStatus = "expired"
)
