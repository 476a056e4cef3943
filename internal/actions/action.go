package actions

import (
	"context"
	"encoding/json"
	"fmt"
)

// Action is an executable unit of work invoked by action-kind workflow steps.
type Action interface {
	Name() string
	Schema() ActionSchema
	Execute(ctx context.Context, input ActionInput) (*ActionResult, error)
	Validate(args map[string]any) error
}

// ActionRegistry manages the lifecycle and lookup of available actions.
type ActionRegistry interface {
	Register(action Action) error
	Get(name string) (Action, error)
	Execute(ctx context.Context, name string, args map[string]any, actx ActionContext) (*ActionResult, error)
	List() []ActionInfo
}

// ActionContext identifies the caller on whose behalf an action runs.
type ActionContext struct {
	ProjectID string `json:"project_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	// IsAgent marks an agent-initiated run; notify steps return their
	// message as output instead of broadcasting a toast.
	IsAgent bool `json:"is_agent,omitempty"`
}

// ActionSchema describes the input/output contract of an action.
type ActionSchema struct {
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	Description  string          `json:"description,omitempty"`
}

// ActionInput is the data provided to an action at execution time.
type ActionInput struct {
	Args    map[string]any `json:"args"`
	Context ActionContext  `json:"context,omitempty"`
}

// ActionInfo is a summary of a registered action for listing.
type ActionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ResultType discriminates ActionResult variants.
type ResultType string

const (
	ResultSuccess  ResultType = "success"
	ResultError    ResultType = "error"
	ResultNavigate ResultType = "navigate"
	ResultUI       ResultType = "ui"
)

// ActionResult is the tagged result union returned by every action:
// success carries an output value, error carries a message, navigate
// points the client at a page, ui requests a client-side interaction.
type ActionResult struct {
	Type ResultType `json:"type"`

	// success
	Title    string         `json:"title,omitempty"`
	Output   any            `json:"output,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// error / ui
	Message string `json:"message,omitempty"`

	// navigate
	PageID string         `json:"pageId,omitempty"`
	Params map[string]any `json:"params,omitempty"`

	// ui
	Action string `json:"action,omitempty"`
	Value  any    `json:"value,omitempty"`
}

// Success builds a success result with the given output value.
func Success(output any) *ActionResult {
	return &ActionResult{Type: ResultSuccess, Output: output}
}

// Errorf builds an error result with a formatted message.
func Errorf(format string, args ...any) *ActionResult {
	return &ActionResult{Type: ResultError, Message: fmt.Sprintf(format, args...)}
}
