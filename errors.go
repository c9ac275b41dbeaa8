package imagefront

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrPoolEmpty means the pool has zero records configured. Callers
	// typically fall through to default/unauthenticated behavior.
	ErrPoolEmpty = errors.New("imagefront: no credentials configured")

	// ErrPoolExhausted means credentials exist but every one is disabled or
	// over quota. Unlike ErrPoolEmpty this is a hard failure.
	ErrPoolExhausted = errors.New("imagefront: all credentials exhausted or disabled")

	ErrNotFound         = errors.New("imagefront: credential not found")
	ErrQuotaExceeded    = errors.New("imagefront: quota exceeded")
	ErrDisabled         = errors.New("imagefront: credential disabled")
	ErrInvalidInput     = errors.New("imagefront: invalid input")
	ErrUnauthorized     = errors.New("imagefront: invalid credential")
	ErrStoreUnavailable = errors.New("imagefront: store unavailable")
)

// PoolError wraps an error with pool context. The credential id is stored
// masked so the error can be logged or returned without leaking a secret.
type PoolError struct {
	Err    error
	Pool   string
	ID     string // masked
	Reason string
}

func (e *PoolError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("imagefront: pool=%s id=%s: %s", e.Pool, e.ID, e.Reason)
	}
	return fmt.Sprintf("imagefront: pool=%s id=%s: %v", e.Pool, e.ID, e.Err)
}

func (e *PoolError) Unwrap() error {
	return e.Err
}

// IsAuthFailure reports whether err should map to an unauthorized outward
// status (bad or unknown credential) rather than a rate-limit status.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound)
}

// IsRateLimited reports whether err should map to a too-many-requests
// outward status. These are expected steady-state outcomes, not faults.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrDisabled) ||
		errors.Is(err, ErrPoolExhausted)
}
