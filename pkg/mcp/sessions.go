package mcp

import "sync"

// SessionRegistry maps project IDs to MCP session IDs.
// Populated automatically when callers invoke any tool scoped to a project.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string // projectID → sessionID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Register associates a project ID with a session ID.
// If the project already has a session, it is overwritten (reconnect).
func (r *SessionRegistry) Register(projectID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[projectID] = sessionID
}

// SessionFor returns the session ID for the given project, if connected.
func (r *SessionRegistry) SessionFor(projectID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[projectID]
	return sid, ok
}

// Remove deletes all project mappings for the given session ID.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for pid, sid := range r.sessions {
		if sid == sessionID {
			delete(r.sessions, pid)
		}
	}
}
