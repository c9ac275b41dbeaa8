package imagefront

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Pool orchestrates a Store, a rotation Strategy and the quota windows
// behind one concurrency-safe API. Construct one Pool per credential kind
// (client keys, upstream tokens) and share it across request handlers; all
// mutation atomicity lives in the Store, so Pool itself holds no lock.
type Pool struct {
	name        string
	store       Store
	strategy    Strategy
	subStrategy Strategy
	meter       Meter
	log         *slog.Logger
	idPrefix    string
	now         func() time.Time
}

// Option configures a Pool.
type Option func(*Pool)

// WithStrategy sets the rotation strategy (default random).
func WithStrategy(s Strategy) Option {
	return func(p *Pool) { p.strategy = s }
}

// WithSubPoolStrategy sets the strategy used for dedicated sub-pool
// selection (default random).
func WithSubPoolStrategy(s Strategy) Option {
	return func(p *Pool) { p.subStrategy = s }
}

// WithMeter sets the event meter.
func WithMeter(m Meter) Option {
	return func(p *Pool) { p.meter = m }
}

// WithLogger sets the logger. If unset, slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// WithIDPrefix sets the human prefix of generated secrets (default "sk").
func WithIDPrefix(prefix string) Option {
	return func(p *Pool) { p.idPrefix = prefix }
}

// WithClock overrides the pool's time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// NewPool creates a Pool named name over the given store.
func NewPool(name string, store Store, opts ...Option) *Pool {
	p := &Pool{
		name:     name,
		store:    store,
		idPrefix: "sk",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.strategy == nil {
		p.strategy = randomStrategy{}
	}
	if p.subStrategy == nil {
		p.subStrategy = randomStrategy{}
	}
	if p.meter == nil {
		p.meter = noopMeter{}
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	return p
}

// CreateParams are the operator-supplied fields of a new credential.
type CreateParams struct {
	DisplayName      string
	DailyLimit       *int64
	MonthlyLimit     *int64
	BoundCredentials []string
	Note             string
}

func (cp CreateParams) validate() error {
	if cp.DisplayName == "" {
		return fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	if cp.DailyLimit != nil && *cp.DailyLimit < 0 {
		return fmt.Errorf("%w: daily limit must be non-negative", ErrInvalidInput)
	}
	if cp.MonthlyLimit != nil && *cp.MonthlyLimit < 0 {
		return fmt.Errorf("%w: monthly limit must be non-negative", ErrInvalidInput)
	}
	return nil
}

// Create generates a fresh credential and persists it. The returned record
// carries the only full copy of the secret the pool will ever hand out;
// listings mask it from here on.
func (p *Pool) Create(ctx context.Context, params CreateParams) (Credential, error) {
	if err := params.validate(); err != nil {
		return Credential{}, err
	}

	// The secret is 24 random bytes, collision-free by construction; a
	// collision against an existing record regenerates silently.
	var id string
	for {
		id = generateSecret(p.idPrefix)
		if _, err := p.store.Get(ctx, id); errors.Is(err, ErrNotFound) {
			break
		} else if err != nil {
			return Credential{}, err
		}
	}

	c := p.newRecord(id, params)
	if err := p.store.Put(ctx, c); err != nil {
		return Credential{}, err
	}

	p.log.Info("credential created", "pool", p.name, "credential", c.MaskedID(), "name", c.DisplayName)
	return c, nil
}

// Adopt registers an externally supplied secret (an upstream token from
// configuration) under its own id. If the id already exists the stored
// record is returned unchanged, so re-adopting a configured token list
// preserves accumulated usage.
func (p *Pool) Adopt(ctx context.Context, id string, params CreateParams) (Credential, error) {
	if id == "" {
		return Credential{}, fmt.Errorf("%w: credential id is required", ErrInvalidInput)
	}
	if params.DisplayName == "" {
		params.DisplayName = MaskSecret(id)
	}
	if err := params.validate(); err != nil {
		return Credential{}, err
	}

	existing, err := p.store.Get(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Credential{}, err
	}

	c := p.newRecord(id, params)
	if err := p.store.Put(ctx, c); err != nil {
		return Credential{}, err
	}

	p.log.Info("credential adopted", "pool", p.name, "credential", c.MaskedID())
	return c, nil
}

func (p *Pool) newRecord(id string, params CreateParams) Credential {
	now := p.now().Unix()
	return Credential{
		ID:               id,
		DisplayName:      params.DisplayName,
		CreatedAt:        now,
		Enabled:          true,
		DailyLimit:       params.DailyLimit,
		MonthlyLimit:     params.MonthlyLimit,
		LastDailyReset:   now,
		LastMonthlyReset: now,
		BoundCredentials: params.BoundCredentials,
		Note:             params.Note,
	}
}

// Validate checks whether the credential with the given id may serve one
// more request, applying any due window reset first. It does not record
// usage: callers record usage separately, and only after their downstream
// call succeeds.
//
// On failure the error is one of ErrPoolEmpty, ErrNotFound, ErrDisabled or
// ErrQuotaExceeded wrapped with the human-readable reason.
func (p *Pool) Validate(ctx context.Context, id string) (Credential, error) {
	c, err := p.store.ExpireWindows(ctx, id, p.now())
	if errors.Is(err, ErrNotFound) {
		// Distinguish an unknown id in a populated pool from a pool with
		// nothing configured at all.
		all, lerr := p.store.List(ctx)
		if lerr == nil && len(all) == 0 {
			return Credential{}, ErrPoolEmpty
		}
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, err
	}

	if ok, reason := c.CheckQuota(); !ok {
		sentinel := ErrQuotaExceeded
		if !c.Enabled {
			sentinel = ErrDisabled
		}
		return c, fmt.Errorf("%w: %s", sentinel, reason)
	}
	return c, nil
}

// RecordUsage counts one request against the credential. Each call is one
// real usage unit; call it exactly once per successful downstream operation.
func (p *Pool) RecordUsage(ctx context.Context, id string) error {
	if err := p.store.RecordUsage(ctx, id, p.now()); err != nil {
		return err
	}
	p.meter.OnUsage(UsageEvent{Pool: p.name, ID: MaskSecret(id)})
	return nil
}

// Next selects a usable credential from the whole pool and records one
// usage unit against it in the same step. This is the upstream-rotation
// path: there is no external caller to abort between selection and use, so
// the validate/record split is collapsed.
func (p *Pool) Next(ctx context.Context) (Credential, error) {
	return p.next(ctx, nil, nil)
}

// NextFrom is Next scoped to a dedicated sub-pool of credential ids.
func (p *Pool) NextFrom(ctx context.Context, ids []string) (Credential, error) {
	if len(ids) == 0 {
		return Credential{}, ErrPoolEmpty
	}
	return p.next(ctx, ids, nil)
}

// next selects and charges one credential. skip removes credentials from
// the eligible set before anything is charged: a skipped credential never
// pays for a request it will not serve.
func (p *Pool) next(ctx context.Context, scope []string, skip func(id string) bool) (Credential, error) {
	all, err := p.store.List(ctx)
	if err != nil {
		return Credential{}, err
	}
	if scope != nil {
		all = restrict(all, scope)
		if len(all) == 0 {
			// The sub-pool was configured but none of its ids resolve to a
			// live record; that is exhaustion, not an unconfigured pool.
			return Credential{}, ErrPoolExhausted
		}
	}
	if len(all) == 0 {
		return Credential{}, ErrPoolEmpty
	}

	now := p.now()
	eligible := make([]Credential, 0, len(all))
	for _, c := range all {
		if skip != nil && skip(c.ID) {
			continue
		}
		if DailyWindowDue(c, now) || MonthlyWindowDue(c, now) {
			refreshed, err := p.store.ExpireWindows(ctx, c.ID, now)
			if errors.Is(err, ErrNotFound) {
				continue // deleted since List
			}
			if err != nil {
				return Credential{}, err
			}
			c = refreshed
		}
		if ok, _ := c.CheckQuota(); ok {
			eligible = append(eligible, c)
		}
	}

	strat := p.strategy
	if scope != nil {
		strat = p.subStrategy
	}

	// A credential can be deleted between List and RecordUsage; skip it and
	// pick again from the remainder instead of failing the request.
	for len(eligible) > 0 {
		c, ok := strat.Pick(eligible)
		if !ok {
			break
		}
		err := p.store.RecordUsage(ctx, c.ID, now)
		if errors.Is(err, ErrNotFound) {
			eligible = discard(eligible, c.ID)
			continue
		}
		if err != nil {
			return Credential{}, err
		}
		p.meter.OnSelect(SelectEvent{
			Pool:     p.name,
			ID:       c.MaskedID(),
			Strategy: strat.Name(),
			Eligible: len(eligible),
			Scoped:   scope != nil,
		})
		p.meter.OnUsage(UsageEvent{Pool: p.name, ID: c.MaskedID()})
		return c, nil
	}

	return Credential{}, ErrPoolExhausted
}

// Update applies a sparse patch. Returns false without error when the id is
// unknown.
func (p *Pool) Update(ctx context.Context, id string, u Update) (bool, error) {
	if u.DailyLimit != nil && *u.DailyLimit < 0 {
		return false, fmt.Errorf("%w: daily limit must be non-negative", ErrInvalidInput)
	}
	if u.MonthlyLimit != nil && *u.MonthlyLimit < 0 {
		return false, fmt.Errorf("%w: monthly limit must be non-negative", ErrInvalidInput)
	}
	ok, err := p.store.Patch(ctx, id, u)
	if err != nil {
		return false, err
	}
	if ok {
		p.log.Info("credential updated", "pool", p.name, "credential", MaskSecret(id))
	}
	return ok, nil
}

// Delete removes a credential for good. Returns false when the id was
// unknown. There is no tombstone: in-flight operations holding the id fail
// with ErrNotFound afterwards.
func (p *Pool) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := p.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		p.log.Info("credential deleted", "pool", p.name, "credential", MaskSecret(id))
	}
	return ok, nil
}

// Get returns the full record for id. Intended for internal callers that
// already hold the secret; external listings go through List.
func (p *Pool) Get(ctx context.Context, id string) (Credential, error) {
	return p.store.Get(ctx, id)
}

// List returns masked views of every credential in the pool.
func (p *Pool) List(ctx context.Context) ([]View, error) {
	all, err := p.store.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]View, len(all))
	for i, c := range all {
		views[i] = c.View()
	}
	return views, nil
}

// Statistics summarizes the pool.
type Statistics struct {
	Total         int   `json:"total"`
	Enabled       int   `json:"enabled"`
	Disabled      int   `json:"disabled"`
	TotalUsage    int64 `json:"totalUsage"`
	WithDedicated int   `json:"withDedicated"`
}

// Statistics returns pool-wide counts.
func (p *Pool) Statistics(ctx context.Context) (Statistics, error) {
	all, err := p.store.List(ctx)
	if err != nil {
		return Statistics{}, err
	}
	var s Statistics
	s.Total = len(all)
	for _, c := range all {
		if c.Enabled {
			s.Enabled++
		} else {
			s.Disabled++
		}
		s.TotalUsage += c.Usage.Total
		if len(c.BoundCredentials) > 0 {
			s.WithDedicated++
		}
	}
	return s, nil
}

// Status describes the pool for the operator surface.
type Status struct {
	Size     int    `json:"size"`
	Strategy string `json:"strategy"`
	Usage    []View `json:"usage"`
}

// Status returns the pool size, active strategy and per-credential usage.
func (p *Pool) Status(ctx context.Context) (Status, error) {
	views, err := p.List(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Size: len(views), Strategy: p.strategy.Name(), Usage: views}, nil
}

// Reload re-reads the pool from its source of truth and returns the new
// record count.
func (p *Pool) Reload(ctx context.Context) (int, error) {
	n, err := p.store.Reload(ctx)
	if err != nil {
		return 0, err
	}
	p.log.Info("pool reloaded", "pool", p.name, "count", n)
	return n, nil
}

// ResetAllDaily unconditionally zeroes every daily counter, e.g. to align
// with a provider's billing midnight. Independent of the lazy windows.
func (p *Pool) ResetAllDaily(ctx context.Context) (int, error) {
	n, err := p.store.ResetAllDaily(ctx, p.now())
	if err != nil {
		return 0, err
	}
	p.log.Info("daily usage reset", "pool", p.name, "count", n)
	return n, nil
}

// Flush forces pending store state to durable storage.
func (p *Pool) Flush(ctx context.Context) error {
	return p.store.Flush(ctx)
}

// Close flushes and releases the underlying store.
func (p *Pool) Close() error {
	return p.store.Close()
}

// Name returns the pool name used in logs and events.
func (p *Pool) Name() string { return p.name }

func generateSecret(prefix string) string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(fmt.Sprintf("imagefront: rand: %v", err))
	}
	return prefix + "-" + base64.RawURLEncoding.EncodeToString(buf)
}

func restrict(all []Credential, ids []string) []Credential {
	allowed := make(map[string]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}
	out := all[:0]
	for _, c := range all {
		if allowed[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func discard(creds []Credential, id string) []Credential {
	out := creds[:0]
	for _, c := range creds {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}
