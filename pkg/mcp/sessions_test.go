package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRegistry(t *testing.T) {
	r := NewSessionRegistry()

	_, ok := r.SessionFor("proj-1")
	assert.False(t, ok)

	r.Register("proj-1", "sess-a")
	sid, ok := r.SessionFor("proj-1")
	assert.True(t, ok)
	assert.Equal(t, "sess-a", sid)

	// Reconnect overwrites.
	r.Register("proj-1", "sess-b")
	sid, _ = r.SessionFor("proj-1")
	assert.Equal(t, "sess-b", sid)
}

func TestSessionRegistryRemove(t *testing.T) {
	r := NewSessionRegistry()
	r.Register("proj-1", "sess-a")
	r.Register("proj-2", "sess-a")
	r.Register("proj-3", "sess-b")

	r.Remove("sess-a")

	_, ok := r.SessionFor("proj-1")
	assert.False(t, ok)
	_, ok = r.SessionFor("proj-2")
	assert.False(t, ok)

	sid, ok := r.SessionFor("proj-3")
	assert.True(t, ok)
	assert.Equal(t, "sess-b", sid)
}
