package imagefront

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
)

// Gate is the inbound auth boundary: it validates client API keys against
// the key pool and picks the upstream credential each authorized request
// should use, honoring per-key dedicated sub-pools.
type Gate struct {
	keys      *Pool
	tokens    *Pool
	staticKey string
	log       *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithStaticKey enables the single-key compatibility mode: when the key
// pool is empty, the bearer token is compared against this value instead.
func WithStaticKey(key string) GateOption {
	return func(g *Gate) { g.staticKey = key }
}

// WithGateLogger sets the logger. If unset, slog.Default() is used.
func WithGateLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.log = l }
}

// NewGate creates a Gate over the client key pool and the upstream token pool.
func NewGate(keys, tokens *Pool, opts ...GateOption) *Gate {
	g := &Gate{keys: keys, tokens: tokens}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	return g
}

// Authorize validates an inbound bearer token and returns the client key it
// belongs to. A nil credential with nil error means the request is allowed
// without a per-client key (open access or static-key compatibility mode).
//
// Failures classify with IsAuthFailure (map to an unauthorized status) or
// IsRateLimited (map to a too-many-requests status) and never carry another
// credential's identity.
func (g *Gate) Authorize(ctx context.Context, bearer string) (*Credential, error) {
	stats, err := g.keys.Statistics(ctx)
	if err != nil {
		return nil, err
	}

	// No keys configured: fall through to static-key mode, or open access
	// when that is not configured either.
	if stats.Total == 0 {
		if g.staticKey == "" {
			return nil, nil
		}
		if subtle.ConstantTimeCompare([]byte(bearer), []byte(g.staticKey)) == 1 {
			return nil, nil
		}
		g.log.Warn("auth failed", "reason", "static key mismatch")
		return nil, ErrUnauthorized
	}

	if bearer == "" {
		return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}

	c, err := g.keys.Validate(ctx, bearer)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPoolEmpty) {
			g.log.Warn("auth failed", "reason", "unknown api key")
			return nil, ErrUnauthorized
		}
		// Disabled or over quota: expected steady state, not a fault.
		g.log.Info("auth rejected", "credential", MaskSecret(bearer), "reason", err.Error())
		return nil, err
	}
	return &c, nil
}

// UpstreamFor selects (and counts one usage unit against) the upstream
// credential for a request. A client key with bound credentials draws from
// its dedicated sub-pool; everything else draws from the shared pool.
//
// skip, when non-nil, removes credentials from consideration before
// selection; a skipped credential is never charged. Pass nil to consider
// the whole pool.
func (g *Gate) UpstreamFor(ctx context.Context, client *Credential, skip func(id string) bool) (Credential, error) {
	if client != nil && len(client.BoundCredentials) > 0 {
		return g.tokens.next(ctx, client.BoundCredentials, skip)
	}
	return g.tokens.next(ctx, nil, skip)
}

// RecordClientUsage counts one usage unit against the client key, if any.
// Call exactly once per successful downstream operation.
func (g *Gate) RecordClientUsage(ctx context.Context, client *Credential) error {
	if client == nil {
		return nil
	}
	return g.keys.RecordUsage(ctx, client.ID)
}

// Keys returns the client key pool (admin surface pass-through).
func (g *Gate) Keys() *Pool { return g.keys }

// Tokens returns the upstream token pool (admin surface pass-through).
func (g *Gate) Tokens() *Pool { return g.tokens }
