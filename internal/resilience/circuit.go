package resilience

import (
	"sync"
	"time"

	"tablelens/internal/domain"
)

// Circuit breaker defaults.
const (
	DefaultFailureThreshold = 5
	DefaultOpenTimeout      = 60 * time.Second
)

// circuit tracks consecutive failures for one operation name.
type circuit struct {
	failureCount int
	open         bool
	openedAt     time.Time
}

// CircuitRegistry holds one breaker per operation name. All state lives
// behind a single mutex; callers never see a circuit struct directly.
//
// The half-open state is implicit: once the open timeout elapses, Allow
// starts returning true again and the next outcome either resets the
// breaker (RecordSuccess) or re-opens it (RecordFailure).
type CircuitRegistry struct {
	mu        sync.Mutex
	circuits  map[string]*circuit
	threshold int
	timeout   time.Duration
	now       func() time.Time // overridable in tests
}

// NewCircuitRegistry creates a registry with the given failure threshold and
// open timeout. Zero values select the defaults.
func NewCircuitRegistry(threshold int, timeout time.Duration) *CircuitRegistry {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if timeout <= 0 {
		timeout = DefaultOpenTimeout
	}
	return &CircuitRegistry{
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Allow reports whether a call for the operation may proceed. An open
// breaker whose timeout has elapsed permits the call without announcing a
// distinct half-open state.
func (r *CircuitRegistry) Allow(operation string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.circuits[operation]
	if !ok || !c.open {
		return true
	}
	if r.now().Sub(c.openedAt) > r.timeout {
		c.open = false
		return true
	}
	return false
}

// RecordSuccess resets the breaker for the operation.
func (r *CircuitRegistry) RecordSuccess(operation string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.circuits[operation]; ok {
		c.failureCount = 0
		c.open = false
	}
}

// RecordFailure increments the failure counter and opens the breaker once
// the threshold is reached. Returns true if the breaker is now open.
func (r *CircuitRegistry) RecordFailure(operation string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.circuits[operation]
	if !ok {
		c = &circuit{}
		r.circuits[operation] = c
	}
	c.failureCount++
	if c.failureCount >= r.threshold {
		c.open = true
		c.openedAt = r.now()
	}
	return c.open
}

// Reset clears the breaker for one operation.
func (r *CircuitRegistry) Reset(operation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.circuits, operation)
}

// Snapshot returns the visible state of every breaker.
func (r *CircuitRegistry) Snapshot() []domain.CircuitSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.CircuitSnapshot, 0, len(r.circuits))
	for op, c := range r.circuits {
		out = append(out, domain.CircuitSnapshot{
			Operation:    op,
			Open:         c.open,
			FailureCount: c.failureCount,
		})
	}
	return out
}
