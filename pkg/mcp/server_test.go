package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBoticalServer(t *testing.T) {
	s := NewBoticalServer(BoticalServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.Sessions())
}

func TestToolRegistration(t *testing.T) {
	s := NewBoticalServer(BoticalServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 6)

	expectedTools := []string{
		"botical.define",
		"botical.execute",
		"botical.status",
		"botical.executions",
		"botical.approve",
		"botical.diagram",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"define", "botical.define", "Register a workflow definition"},
		{"execute", "botical.execute", "Start a workflow execution and return its execution id"},
		{"status", "botical.status", "Get the state of a workflow execution and its steps"},
		{"executions", "botical.executions", "List workflow executions"},
		{"approve", "botical.approve", "Respond to a pending approval request"},
		{"diagram", "botical.diagram", "Render a workflow as a Mermaid flowchart or ASCII diagram"},
	}

	s := NewBoticalServer(BoticalServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
