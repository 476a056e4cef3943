package engine

import (
	"fmt"

	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

// DAG is the in-memory graph built from a definition's step list. Levels
// are sets of steps whose dependencies are all satisfied by earlier
// levels; steps within a level run concurrently.
type DAG struct {
	Steps  map[string]*schema.WorkflowStep
	Edges  map[string][]string // step ID -> in-graph dependencies
	Levels [][]*schema.WorkflowStep
}

// validStepTypes is the set of recognized step kinds.
var validStepTypes = map[schema.StepType]bool{
	schema.StepTypeAction:   true,
	schema.StepTypeNotify:   true,
	schema.StepTypeLog:      true,
	schema.StepTypeResolve:  true,
	schema.StepTypeReject:   true,
	schema.StepTypeSession:  true,
	schema.StepTypeApproval: true,
	schema.StepTypeWorkflow: true,
}

// BuildDAG validates the step list and computes execution levels using
// Kahn's algorithm. dependsOn entries naming non-existent steps are
// ignored rather than rejected, so a dangling edge cannot block a run.
// A cycle is fatal and is reported before any step runs. Declaration
// order is preserved within each level.
func BuildDAG(steps []schema.WorkflowStep) (*DAG, error) {
	if len(steps) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow has no steps")
	}

	dag := &DAG{
		Steps: make(map[string]*schema.WorkflowStep, len(steps)),
		Edges: make(map[string][]string, len(steps)),
	}

	order := make([]string, 0, len(steps))
	for i := range steps {
		step := &steps[i]
		if step.ID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, fmt.Sprintf("step at index %d has empty ID", i))
		}
		if _, exists := dag.Steps[step.ID]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate step ID: %s", step.ID)
		}
		if !validStepTypes[step.Type] {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "step %s has unknown type: %s", step.ID, step.Type)
		}
		if err := validateStepFields(step); err != nil {
			return nil, err
		}
		dag.Steps[step.ID] = step
		order = append(order, step.ID)
	}

	// Adjacency lists over in-graph edges only.
	for _, id := range order {
		step := dag.Steps[id]
		deps := make([]string, 0, len(step.DependsOn))
		for _, dep := range step.DependsOn {
			if _, exists := dag.Steps[dep]; !exists {
				continue
			}
			deps = append(deps, dep)
		}
		dag.Edges[id] = deps
	}

	// Kahn's algorithm over declaration order: topological depth doubles
	// as the level index, and cycle detection falls out of the count.
	depth := make(map[string]int, len(order))
	resolved := make(map[string]bool, len(order))
	remaining := len(order)
	for remaining > 0 {
		progressed := false
		for _, id := range order {
			if resolved[id] {
				continue
			}
			maxDep := -1
			ready := true
			for _, dep := range dag.Edges[id] {
				if !resolved[dep] {
					ready = false
					break
				}
				if depth[dep] > maxDep {
					maxDep = depth[dep]
				}
			}
			if !ready {
				continue
			}
			depth[id] = maxDep + 1
			resolved[id] = true
			remaining--
			progressed = true
		}
		if !progressed {
			return nil, schema.NewError(schema.ErrCodeCycleDetected, "workflow contains a cycle")
		}
	}

	maxLevel := 0
	for _, d := range depth {
		if d > maxLevel {
			maxLevel = d
		}
	}
	dag.Levels = make([][]*schema.WorkflowStep, maxLevel+1)
	for _, id := range order {
		d := depth[id]
		dag.Levels[d] = append(dag.Levels[d], dag.Steps[id])
	}

	return dag, nil
}

// validateStepFields checks kind-specific constraints that make a
// definition unrunnable.
func validateStepFields(step *schema.WorkflowStep) error {
	switch step.Type {
	case schema.StepTypeAction:
		if step.Action == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "action step %s has no action id", step.ID)
		}
	case schema.StepTypeSession:
		if step.Message == nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "session step %s has no message", step.ID)
		}
	case schema.StepTypeWorkflow:
		hasID := step.WorkflowID != nil
		hasName := step.WorkflowName != nil
		if hasID == hasName {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"workflow step %s must set exactly one of workflowId or workflowName", step.ID)
		}
	}
	return nil
}
