package engine

import "sync"

// Scope is the execution-local runtime context. It lives for the duration
// of one runWorkflow call and is never persisted.
//
// Steps holds the outputs of completed steps only; failed and skipped
// steps are absent, so bindings referencing them resolve to nil. Writes
// happen between levels, reads happen concurrently within a level, so
// access goes through the mutex.
type Scope struct {
	mu    sync.RWMutex
	input map[string]any
	steps map[string]any

	// AgentContext changes notify semantics: in agent context the message
	// becomes the step output instead of a broadcast toast.
	AgentContext bool
}

// NewScope creates a scope over the given execution input.
func NewScope(input map[string]any, agentContext bool) *Scope {
	if input == nil {
		input = map[string]any{}
	}
	return &Scope{
		input:        input,
		steps:        make(map[string]any),
		AgentContext: agentContext,
	}
}

// Input returns the execution input map.
func (s *Scope) Input() map[string]any {
	return s.input
}

// StepOutput returns the output of a completed step, or nil.
func (s *Scope) StepOutput(stepID string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.steps[stepID]
}

// SetStepOutput records a completed step's output.
func (s *Scope) SetStepOutput(stepID string, output any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[stepID] = output
}
