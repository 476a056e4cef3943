package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericvicenti/botical-sub000/internal/store"
	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

func TestRenderMermaid(t *testing.T) {
	model, err := Build(pipelineDef(), []*store.StepExecution{
		{StepID: "fetch", Status: schema.StepStatusCompleted},
	})
	require.NoError(t, err)

	out := RenderMermaid(model)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "%% Build Pipeline")
	assert.Contains(t, out, `fetch["fetch (http.get)"]`)
	assert.Contains(t, out, "__start__ --> fetch")
	assert.Contains(t, out, "out --> __end__")
	assert.Contains(t, out, "class fetch completed")
	// Nodes without runtime state carry no class.
	assert.NotContains(t, out, "class transform")
}

func TestRenderMermaidShapes(t *testing.T) {
	def := &schema.WorkflowDefinition{
		Name: "shapes",
		Steps: []schema.WorkflowStep{
			{ID: "gate", Type: schema.StepTypeApproval},
			{ID: "chat", Type: schema.StepTypeSession, Message: schema.Lit("hi")},
		},
	}
	model, err := Build(def, nil)
	require.NoError(t, err)

	out := RenderMermaid(model)
	assert.Contains(t, out, `gate{"gate"}`)
	assert.Contains(t, out, `chat{{"chat"}}`)
}

func TestRenderASCII(t *testing.T) {
	model, err := Build(pipelineDef(), []*store.StepExecution{
		{StepID: "transform", Status: schema.StepStatusFailed},
	})
	require.NoError(t, err)

	out := RenderASCII(model)

	assert.Contains(t, out, "=== Build Pipeline ===")
	assert.Contains(t, out, "Start")
	assert.Contains(t, out, "fetch (http.get)")
	assert.Contains(t, out, "[FAIL]")
	assert.Contains(t, out, "▼")
}
