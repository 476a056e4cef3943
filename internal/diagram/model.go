package diagram

// NodeKind classifies a diagram node by its workflow step type.
type NodeKind string

const (
	NodeKindAction   NodeKind = "action"
	NodeKindNotify   NodeKind = "notify"
	NodeKindLog      NodeKind = "log"
	NodeKindResolve  NodeKind = "resolve"
	NodeKindReject   NodeKind = "reject"
	NodeKindSession  NodeKind = "session"
	NodeKindApproval NodeKind = "approval"
	NodeKindWorkflow NodeKind = "workflow"
	NodeKindStart    NodeKind = "start"
	NodeKindEnd      NodeKind = "end"
)

// Model is the intermediate representation used by all renderers.
type Model struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node represents a single step in the diagram.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Status *StatusOverlay
}

// StatusOverlay carries runtime state for a node.
type StatusOverlay struct {
	Status     string // from schema.StepStatus
	DurationMs int64
	Error      string
}

// Edge represents a dependency between two nodes.
type Edge struct {
	From string
	To   string
}
