package engine

import (
	"sync"
	"time"

	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Failing, rejecting calls
	CircuitHalfOpen                     // Testing recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures within MonitoringWindow
	// that opens the circuit.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before allowing a
	// half-open probe.
	ResetTimeout time.Duration
	// MonitoringWindow is the rolling window over which failures count.
	MonitoringWindow time.Duration
}

// DefaultCircuitBreakerConfig returns the standard configuration:
// 5 failures in 60s open the circuit, probing resumes after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		MonitoringWindow: 60 * time.Second,
	}
}

// circuitBreaker tracks failure state for a single action id. One breaker
// is shared across all concurrent executions that invoke the action, so
// every access holds the mutex.
type circuitBreaker struct {
	mu       sync.Mutex
	state    CircuitState
	failures []time.Time // within the monitoring window
	openedAt time.Time
	probing  bool
	config   CircuitBreakerConfig
}

// CircuitBreakerRegistry manages per-action-id circuit breakers.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*circuitBreaker
	config   CircuitBreakerConfig
	now      func() time.Time
}

// NewCircuitBreakerRegistry creates a new registry with the given config.
func NewCircuitBreakerRegistry(config CircuitBreakerConfig) *CircuitBreakerRegistry {
	if config.FailureThreshold <= 0 {
		config = DefaultCircuitBreakerConfig()
	}
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*circuitBreaker),
		config:   config,
		now:      time.Now,
	}
}

// AllowRequest checks whether an invocation of the given action id may
// proceed. Returns nil if allowed, or a CIRCUIT_OPEN error if the circuit
// is open. An open circuit whose reset timeout elapsed admits exactly one
// half-open probe at a time.
func (r *CircuitBreakerRegistry) AllowRequest(actionID string) error {
	cb := r.getOrCreate(actionID)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := r.now()
	switch cb.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		if now.Sub(cb.openedAt) >= cb.config.ResetTimeout {
			cb.state = CircuitHalfOpen
			cb.probing = true
			return nil
		}
		return schema.NewErrorf(schema.ErrCodeCircuitOpen,
			"circuit breaker open for action %q", actionID).
			WithDetails(map[string]any{
				"action":          actionID,
				"state":           cb.state.String(),
				"recent_failures": len(cb.failures),
				"reset_remaining": (cb.config.ResetTimeout - now.Sub(cb.openedAt)).String(),
			})

	case CircuitHalfOpen:
		if cb.probing {
			return schema.NewErrorf(schema.ErrCodeCircuitOpen,
				"circuit breaker half-open for action %q: probe in flight", actionID)
		}
		cb.probing = true
		return nil
	}

	return nil
}

// RecordSuccess records a successful invocation, closing the circuit.
func (r *CircuitBreakerRegistry) RecordSuccess(actionID string) {
	cb := r.getOrCreate(actionID)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = cb.failures[:0]
	cb.probing = false
}

// RecordFailure records a failed invocation and returns the new state.
// Failures older than the monitoring window are pruned first, so only a
// burst of FailureThreshold failures within the window opens the circuit.
func (r *CircuitBreakerRegistry) RecordFailure(actionID string) CircuitState {
	cb := r.getOrCreate(actionID)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := r.now()
	cb.failures = pruneOlderThan(cb.failures, now.Add(-cb.config.MonitoringWindow))
	cb.failures = append(cb.failures, now)

	if cb.state == CircuitHalfOpen {
		// A failed probe reopens the circuit.
		cb.state = CircuitOpen
		cb.openedAt = now
		cb.probing = false
		return CircuitOpen
	}

	if len(cb.failures) >= cb.config.FailureThreshold {
		cb.state = CircuitOpen
		cb.openedAt = now
		return CircuitOpen
	}

	return cb.state
}

// GetState returns the current state of the circuit for an action id.
func (r *CircuitBreakerRegistry) GetState(actionID string) CircuitState {
	cb := r.getOrCreate(actionID)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && r.now().Sub(cb.openedAt) >= cb.config.ResetTimeout {
		cb.state = CircuitHalfOpen
		cb.probing = false
	}
	return cb.state
}

// GetStats returns diagnostic information about a circuit breaker.
func (r *CircuitBreakerRegistry) GetStats(actionID string) map[string]any {
	cb := r.getOrCreate(actionID)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]any{
		"action":            actionID,
		"state":             cb.state.String(),
		"recent_failures":   len(cb.failures),
		"failure_threshold": cb.config.FailureThreshold,
		"reset_timeout":     cb.config.ResetTimeout.String(),
		"monitoring_window": cb.config.MonitoringWindow.String(),
	}
}

func (r *CircuitBreakerRegistry) getOrCreate(actionID string) *circuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[actionID]
	if !ok {
		cb = &circuitBreaker{
			state:  CircuitClosed,
			config: r.config,
		}
		r.breakers[actionID] = cb
	}
	return cb
}

func pruneOlderThan(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
