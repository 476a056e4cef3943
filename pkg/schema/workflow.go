package schema

// WorkflowDefinition is the immutable JSON-serializable workflow format.
// Loaded once per execution; the engine never mutates it.
type WorkflowDefinition struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"projectId"`
	Name      string         `json:"name"`
	Label     string         `json:"label,omitempty"`
	Category  string         `json:"category,omitempty"`
	Inputs    []InputField   `json:"inputs,omitempty"`
	Steps     []WorkflowStep `json:"steps"`
}

// InputField declares one named input of a workflow definition.
type InputField struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"` // string | number | boolean | object | array
	Required bool   `json:"required,omitempty"`
	Default  any    `json:"default,omitempty"`
}

// StepType enumerates the kinds of steps in a workflow.
type StepType string

const (
	StepTypeAction   StepType = "action"
	StepTypeNotify   StepType = "notify"
	StepTypeLog      StepType = "log"
	StepTypeResolve  StepType = "resolve"
	StepTypeReject   StepType = "reject"
	StepTypeSession  StepType = "session"
	StepTypeApproval StepType = "approval"
	StepTypeWorkflow StepType = "workflow"
)

// WorkflowStep is the tagged union over the eight step kinds. Only the
// fields belonging to the step's Type are meaningful; kind-specific values
// are ArgBindings so later steps can reference earlier outputs.
type WorkflowStep struct {
	ID        string               `json:"id"`
	Type      StepType             `json:"type"`
	DependsOn []string             `json:"dependsOn,omitempty"`
	If        *ConditionExpression `json:"if,omitempty"`
	OnError   *ErrorPolicy         `json:"onError,omitempty"`

	// action
	Action string                `json:"action,omitempty"`
	Args   map[string]ArgBinding `json:"args,omitempty"`

	// notify / log / reject / session / approval
	Message *ArgBinding `json:"message,omitempty"`
	// notify
	Variant *ArgBinding `json:"variant,omitempty"`
	// log
	Level *ArgBinding `json:"level,omitempty"`

	// resolve
	Output map[string]ArgBinding `json:"output,omitempty"`

	// session
	Agent        *ArgBinding `json:"agent,omitempty"`
	SystemPrompt *ArgBinding `json:"systemPrompt,omitempty"`
	ProviderID   *ArgBinding `json:"providerId,omitempty"`
	ModelID      *ArgBinding `json:"modelId,omitempty"`
	MaxMessages  *ArgBinding `json:"maxMessages,omitempty"`

	// approval
	Approvers   *ArgBinding `json:"approvers,omitempty"`
	Timeout     *ArgBinding `json:"timeout,omitempty"`
	AutoApprove *ArgBinding `json:"autoApprove,omitempty"`

	// workflow
	WorkflowID   *ArgBinding           `json:"workflowId,omitempty"`
	WorkflowName *ArgBinding           `json:"workflowName,omitempty"`
	Input        map[string]ArgBinding `json:"input,omitempty"`
}

// BindingType discriminates ArgBinding variants.
type BindingType string

const (
	BindingLiteral BindingType = "literal"
	BindingInput   BindingType = "input"
	BindingStep    BindingType = "step"
)

// ArgBinding is a deferred reference resolved at execution time:
// a literal value, a dot-path into the execution input, or a dot-path
// into a prior step's output.
type ArgBinding struct {
	Type   BindingType `json:"type"`
	Value  any         `json:"value,omitempty"`  // literal
	Path   string      `json:"path,omitempty"`   // input, step
	StepID string      `json:"stepId,omitempty"` // step
}

// Lit builds a literal binding. Convenience for programmatic definitions.
func Lit(v any) *ArgBinding {
	return &ArgBinding{Type: BindingLiteral, Value: v}
}

// ConditionOp enumerates condition operators.
type ConditionOp string

const (
	CondEquals    ConditionOp = "equals"
	CondNotEquals ConditionOp = "notEquals"
	CondContains  ConditionOp = "contains"
	CondExists    ConditionOp = "exists"
	CondTruthy    ConditionOp = "truthy"
	CondAnd       ConditionOp = "and"
	CondOr        ConditionOp = "or"
	CondNot       ConditionOp = "not"
)

// ConditionExpression is a boolean expression tree whose leaves are
// ArgBindings. It is a literal tree, not a graph, so evaluation always
// terminates.
type ConditionExpression struct {
	Op ConditionOp `json:"op"`

	// equals / notEquals
	Left  *ArgBinding `json:"left,omitempty"`
	Right *ArgBinding `json:"right,omitempty"`

	// contains / exists / truthy
	Value  *ArgBinding `json:"value,omitempty"`
	Search *ArgBinding `json:"search,omitempty"`

	// and / or
	Conditions []ConditionExpression `json:"conditions,omitempty"`
	// not
	Condition *ConditionExpression `json:"condition,omitempty"`
}

// ErrorStrategy enumerates onError strategies.
type ErrorStrategy string

const (
	ErrorStrategyFail     ErrorStrategy = "fail"
	ErrorStrategyContinue ErrorStrategy = "continue"
	ErrorStrategyRetry    ErrorStrategy = "retry"
)

// ErrorPolicy configures failure handling for kinds that can fail
// externally (action, session, workflow).
type ErrorPolicy struct {
	Strategy   ErrorStrategy `json:"strategy"`
	RetryCount int           `json:"retryCount,omitempty"` // default 3
	RetryDelay int           `json:"retryDelay,omitempty"` // base delay in ms, default 1000
}
