package imagefront

import (
	"sync"
	"time"
)

const (
	healthFailureThreshold = 3
	healthFailureWindow    = 5 * time.Minute
	healthCooldown         = 30 * time.Second
)

// HealthTracker sidelines upstream credentials that keep failing backend
// calls. A credential that accumulates healthFailureThreshold failures
// within healthFailureWindow is unavailable for healthCooldown, after which
// it gets another chance. Process-local; quota state is unaffected.
type HealthTracker struct {
	mu      sync.Mutex
	entries map[string]*credentialHealth
}

type credentialHealth struct {
	failures      []time.Time
	cooldownUntil time.Time
}

// NewHealthTracker creates an empty HealthTracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{entries: make(map[string]*credentialHealth)}
}

// Available reports whether the credential may be tried now.
func (h *HealthTracker) Available(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[id]
	if !ok {
		return true
	}
	return !time.Now().Before(e.cooldownUntil)
}

// RecordSuccess clears the failure history for a credential.
func (h *HealthTracker) RecordSuccess(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, id)
}

// RecordFailure notes a failed backend call for a credential and starts a
// cooldown once the threshold is crossed.
func (h *HealthTracker) RecordFailure(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entries[id]
	if !ok {
		e = &credentialHealth{}
		h.entries[id] = e
	}

	now := time.Now()
	cutoff := now.Add(-healthFailureWindow)
	valid := e.failures[:0]
	for _, t := range e.failures {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	e.failures = append(valid, now)

	if len(e.failures) >= healthFailureThreshold {
		e.cooldownUntil = now.Add(healthCooldown)
		e.failures = e.failures[:0]
	}
}
