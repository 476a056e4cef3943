package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

func actionStep(id string, deps ...string) schema.WorkflowStep {
	return schema.WorkflowStep{ID: id, Type: schema.StepTypeAction, Action: "test.noop", DependsOn: deps}
}

func levelIDs(level []*schema.WorkflowStep) []string {
	ids := make([]string, len(level))
	for i, s := range level {
		ids[i] = s.ID
	}
	return ids
}

func TestBuildDAGLevels(t *testing.T) {
	dag, err := BuildDAG([]schema.WorkflowStep{
		actionStep("a"),
		actionStep("b"),
		actionStep("c", "a", "b"),
		actionStep("d", "c"),
	})
	require.NoError(t, err)

	require.Len(t, dag.Levels, 3)
	assert.Equal(t, []string{"a", "b"}, levelIDs(dag.Levels[0]))
	assert.Equal(t, []string{"c"}, levelIDs(dag.Levels[1]))
	assert.Equal(t, []string{"d"}, levelIDs(dag.Levels[2]))
}

func TestBuildDAGPreservesDeclarationOrder(t *testing.T) {
	dag, err := BuildDAG([]schema.WorkflowStep{
		actionStep("z"),
		actionStep("m"),
		actionStep("a"),
	})
	require.NoError(t, err)
	require.Len(t, dag.Levels, 1)
	assert.Equal(t, []string{"z", "m", "a"}, levelIDs(dag.Levels[0]))
}

func TestBuildDAGIgnoresDanglingDependencies(t *testing.T) {
	dag, err := BuildDAG([]schema.WorkflowStep{
		actionStep("a", "does-not-exist"),
		actionStep("b", "a", "also-missing"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, levelIDs(dag.Levels[0]))
	assert.Equal(t, []string{"b"}, levelIDs(dag.Levels[1]))
}

func TestBuildDAGCycle(t *testing.T) {
	_, err := BuildDAG([]schema.WorkflowStep{
		actionStep("a", "b"),
		actionStep("b", "a"),
	})
	require.Error(t, err)

	var berr *schema.BoticalError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, schema.ErrCodeCycleDetected, berr.Code)
}

func TestBuildDAGSelfCycle(t *testing.T) {
	_, err := BuildDAG([]schema.WorkflowStep{actionStep("a", "a")})
	require.Error(t, err)

	var berr *schema.BoticalError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, schema.ErrCodeCycleDetected, berr.Code)
}

func TestBuildDAGValidation(t *testing.T) {
	tests := []struct {
		name  string
		steps []schema.WorkflowStep
	}{
		{"empty workflow", nil},
		{"empty step id", []schema.WorkflowStep{{Type: schema.StepTypeAction, Action: "x"}}},
		{"duplicate id", []schema.WorkflowStep{actionStep("a"), actionStep("a")}},
		{"unknown type", []schema.WorkflowStep{{ID: "a", Type: "teleport"}}},
		{"action without action id", []schema.WorkflowStep{{ID: "a", Type: schema.StepTypeAction}}},
		{"session without message", []schema.WorkflowStep{{ID: "a", Type: schema.StepTypeSession}}},
		{"workflow with neither id nor name", []schema.WorkflowStep{{ID: "a", Type: schema.StepTypeWorkflow}}},
		{"workflow with both id and name", []schema.WorkflowStep{{
			ID: "a", Type: schema.StepTypeWorkflow,
			WorkflowID: schema.Lit("w1"), WorkflowName: schema.Lit("deploy"),
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildDAG(tt.steps)
			require.Error(t, err)

			var berr *schema.BoticalError
			require.True(t, errors.As(err, &berr))
			assert.Equal(t, schema.ErrCodeValidation, berr.Code)
		})
	}
}

func TestBuildDAGAllStepKinds(t *testing.T) {
	dag, err := BuildDAG([]schema.WorkflowStep{
		{ID: "act", Type: schema.StepTypeAction, Action: "test.noop"},
		{ID: "note", Type: schema.StepTypeNotify, Message: schema.Lit("hi")},
		{ID: "trace", Type: schema.StepTypeLog, Message: schema.Lit("start")},
		{ID: "out", Type: schema.StepTypeResolve},
		{ID: "bail", Type: schema.StepTypeReject, Message: schema.Lit("no")},
		{ID: "chat", Type: schema.StepTypeSession, Message: schema.Lit("summarize")},
		{ID: "gate", Type: schema.StepTypeApproval},
		{ID: "sub", Type: schema.StepTypeWorkflow, WorkflowName: schema.Lit("child")},
	})
	require.NoError(t, err)
	assert.Len(t, dag.Steps, 8)
}
