package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeTimeout           = "TIMEOUT_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeCycleDetected     = "CYCLE_DETECTED"
	ErrCodeStepFailed        = "STEP_FAILED"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeCircuitOpen       = "CIRCUIT_OPEN"
	ErrCodeRetryExhausted    = "RETRY_EXHAUSTED"
	ErrCodeNonRetryable      = "NON_RETRYABLE"
	ErrCodeRecursion         = "RECURSION_ERROR"
	ErrCodeActionUnavailable = "ACTION_UNAVAILABLE"
	ErrCodeStore             = "STORE_ERROR"
)

// BoticalError is the structured error type for all botical operations.
type BoticalError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *BoticalError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *BoticalError) Unwrap() error {
	return e.Cause
}

// NewError creates a new BoticalError.
func NewError(code, message string) *BoticalError {
	return &BoticalError{Code: code, Message: message}
}

// NewErrorf creates a new BoticalError with a formatted message.
func NewErrorf(code, format string, args ...any) *BoticalError {
	return &BoticalError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step ID to the error.
func (e *BoticalError) WithStep(stepID string) *BoticalError {
	e.StepID = stepID
	return e
}

// WithCause attaches an underlying cause.
func (e *BoticalError) WithCause(err error) *BoticalError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *BoticalError) WithDetails(details map[string]any) *BoticalError {
	e.Details = details
	return e
}

// IsRetryable reports whether the error code marks a transient condition.
func (e *BoticalError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeValidation, ErrCodeNotFound, ErrCodeConflict, ErrCodeCycleDetected,
		ErrCodeCancelled, ErrCodeNonRetryable, ErrCodeRecursion,
		ErrCodeActionUnavailable, ErrCodeCircuitOpen:
		return false
	}
	return true
}
