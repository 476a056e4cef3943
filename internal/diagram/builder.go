package diagram

import (
	"fmt"

	"github.com/ericvicenti/botical-sub000/internal/engine"
	"github.com/ericvicenti/botical-sub000/internal/store"
	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

// Build constructs a Model from a WorkflowDefinition and optional step
// executions. Topology comes from engine.BuildDAG, so anything renderable
// is also runnable.
func Build(def *schema.WorkflowDefinition, steps []*store.StepExecution) (*Model, error) {
	dag, err := engine.BuildDAG(def.Steps)
	if err != nil {
		return nil, fmt.Errorf("diagram: build DAG: %w", err)
	}

	stateMap := make(map[string]*store.StepExecution, len(steps))
	for _, s := range steps {
		stateMap[s.StepID] = s
	}

	nodes := make([]*Node, 0, len(dag.Steps)+2) // +2 for start/end
	nodes = append(nodes, &Node{ID: "__start__", Label: "Start", Kind: NodeKindStart})

	for _, level := range dag.Levels {
		for _, step := range level {
			node := &Node{
				ID:    step.ID,
				Label: nodeLabel(step),
				Kind:  stepTypeToKind(step.Type),
			}
			overlayStatus(node, stateMap)
			nodes = append(nodes, node)
		}
	}

	nodes = append(nodes, &Node{ID: "__end__", Label: "End", Kind: NodeKindEnd})

	return &Model{
		Title:  titleFromDef(def),
		Nodes:  nodes,
		Edges:  buildEdges(dag),
		Levels: buildLevels(dag),
	}, nil
}

// stepTypeToKind converts a schema.StepType to a NodeKind.
func stepTypeToKind(st schema.StepType) NodeKind {
	switch st {
	case schema.StepTypeNotify:
		return NodeKindNotify
	case schema.StepTypeLog:
		return NodeKindLog
	case schema.StepTypeResolve:
		return NodeKindResolve
	case schema.StepTypeReject:
		return NodeKindReject
	case schema.StepTypeSession:
		return NodeKindSession
	case schema.StepTypeApproval:
		return NodeKindApproval
	case schema.StepTypeWorkflow:
		return NodeKindWorkflow
	default:
		return NodeKindAction
	}
}

// nodeLabel creates a human-readable label for a node.
func nodeLabel(step *schema.WorkflowStep) string {
	if step.Action != "" {
		return fmt.Sprintf("%s (%s)", step.ID, step.Action)
	}
	return step.ID
}

// overlayStatus applies runtime step state to a node.
func overlayStatus(node *Node, stateMap map[string]*store.StepExecution) {
	ss, ok := stateMap[node.ID]
	if !ok {
		return
	}
	overlay := &StatusOverlay{
		Status: string(ss.Status),
		Error:  ss.Error,
	}
	if ss.StartedAt != nil && ss.CompletedAt != nil {
		overlay.DurationMs = ss.CompletedAt.Sub(*ss.StartedAt).Milliseconds()
	}
	node.Status = overlay
}

// buildEdges constructs the Edge list from DAG adjacency, adding virtual
// start/end edges for roots and leaves.
func buildEdges(dag *engine.DAG) []Edge {
	hasDependents := make(map[string]bool, len(dag.Steps))
	for _, deps := range dag.Edges {
		for _, dep := range deps {
			hasDependents[dep] = true
		}
	}

	var edges []Edge
	for _, level := range dag.Levels {
		for _, step := range level {
			deps := dag.Edges[step.ID]
			if len(deps) == 0 {
				edges = append(edges, Edge{From: "__start__", To: step.ID})
			}
			for _, dep := range deps {
				edges = append(edges, Edge{From: dep, To: step.ID})
			}
			if !hasDependents[step.ID] {
				edges = append(edges, Edge{From: step.ID, To: "__end__"})
			}
		}
	}
	return edges
}

// buildLevels wraps DAG levels with virtual start/end levels.
func buildLevels(dag *engine.DAG) [][]string {
	levels := make([][]string, 0, len(dag.Levels)+2)
	levels = append(levels, []string{"__start__"})
	for _, level := range dag.Levels {
		ids := make([]string, 0, len(level))
		for _, step := range level {
			ids = append(ids, step.ID)
		}
		levels = append(levels, ids)
	}
	levels = append(levels, []string{"__end__"})
	return levels
}

// titleFromDef generates a diagram title from workflow metadata.
func titleFromDef(def *schema.WorkflowDefinition) string {
	if def.Label != "" {
		return def.Label
	}
	if def.Name != "" {
		return def.Name
	}
	return "Workflow"
}
