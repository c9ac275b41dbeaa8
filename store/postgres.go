package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantari/imagefront"
)

// Postgres is a networked Store on a PostgreSQL table. Usage counters are
// bumped with single UPDATE statements and window resets are guarded
// UPDATEs conditional on the stored anchor, so multiple processes stay
// consistent without client-side locking.
type Postgres struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var _ imagefront.Store = (*Postgres)(nil)

// PostgresOption configures Postgres.
type PostgresOption func(*Postgres)

// WithTablePrefix sets the table name prefix (default "imagefront_").
func WithTablePrefix(prefix string) PostgresOption {
	return func(p *Postgres) { p.tablePrefix = prefix }
}

// NewPostgres creates a PostgreSQL-backed Store. Close releases the pool.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) *Postgres {
	p := &Postgres{
		pool:        pool,
		tablePrefix: "imagefront_",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Postgres) table() string { return p.tablePrefix + "credentials" }

// EnsureSchema creates the credentials table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			daily_limit BIGINT,
			monthly_limit BIGINT,
			total BIGINT NOT NULL DEFAULT 0,
			daily BIGINT NOT NULL DEFAULT 0,
			monthly BIGINT NOT NULL DEFAULT 0,
			last_used_at BIGINT NOT NULL DEFAULT 0,
			last_daily_reset BIGINT NOT NULL,
			last_monthly_reset BIGINT NOT NULL,
			bound JSONB NOT NULL DEFAULT '[]',
			note TEXT NOT NULL DEFAULT ''
		)`, p.table())
	if _, err := p.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", imagefront.ErrStoreUnavailable, err)
	}
	return nil
}

const credentialColumns = `id, display_name, created_at, enabled, daily_limit, monthly_limit,
	total, daily, monthly, last_used_at, last_daily_reset, last_monthly_reset, bound, note`

func (p *Postgres) Get(ctx context.Context, id string) (imagefront.Credential, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, credentialColumns, p.table())
	row := p.pool.QueryRow(ctx, q, id)
	c, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return imagefront.Credential{}, imagefront.ErrNotFound
	}
	if err != nil {
		return imagefront.Credential{}, fmt.Errorf("%w: get: %v", imagefront.ErrStoreUnavailable, err)
	}
	return c, nil
}

func (p *Postgres) List(ctx context.Context) ([]imagefront.Credential, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, credentialColumns, p.table())
	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", imagefront.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []imagefront.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: list: %v", imagefront.ErrStoreUnavailable, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list: %v", imagefront.ErrStoreUnavailable, err)
	}
	return out, nil
}

func (p *Postgres) Put(ctx context.Context, c imagefront.Credential) error {
	bound, _ := json.Marshal(boundOrEmpty(c.BoundCredentials))
	q := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			enabled = EXCLUDED.enabled,
			daily_limit = EXCLUDED.daily_limit,
			monthly_limit = EXCLUDED.monthly_limit,
			total = EXCLUDED.total,
			daily = EXCLUDED.daily,
			monthly = EXCLUDED.monthly,
			last_used_at = EXCLUDED.last_used_at,
			last_daily_reset = EXCLUDED.last_daily_reset,
			last_monthly_reset = EXCLUDED.last_monthly_reset,
			bound = EXCLUDED.bound,
			note = EXCLUDED.note`, p.table(), credentialColumns)
	_, err := p.pool.Exec(ctx, q,
		c.ID, c.DisplayName, c.CreatedAt, c.Enabled, c.DailyLimit, c.MonthlyLimit,
		c.Usage.Total, c.Usage.Daily, c.Usage.Monthly,
		c.LastUsedAt, c.LastDailyReset, c.LastMonthlyReset, bound, c.Note)
	if err != nil {
		return fmt.Errorf("%w: put: %v", imagefront.ErrStoreUnavailable, err)
	}
	return nil
}

func (p *Postgres) Patch(ctx context.Context, id string, u imagefront.Update) (bool, error) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.DisplayName != nil {
		add("display_name", *u.DisplayName)
	}
	if u.Enabled != nil {
		add("enabled", *u.Enabled)
	}
	if u.DailyLimit != nil {
		add("daily_limit", *u.DailyLimit)
	}
	if u.MonthlyLimit != nil {
		add("monthly_limit", *u.MonthlyLimit)
	}
	if u.Note != nil {
		add("note", *u.Note)
	}
	if u.BoundCredentials != nil {
		bound, _ := json.Marshal(boundOrEmpty(u.BoundCredentials))
		add("bound", bound)
	}
	if len(sets) == 0 {
		_, err := p.Get(ctx, id)
		if errors.Is(err, imagefront.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}

	args = append(args, id)
	q := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`,
		p.table(), strings.Join(sets, ", "), len(args))
	tag, err := p.pool.Exec(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("%w: patch: %v", imagefront.ErrStoreUnavailable, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) Delete(ctx context.Context, id string) (bool, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, p.table())
	tag, err := p.pool.Exec(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("%w: delete: %v", imagefront.ErrStoreUnavailable, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) RecordUsage(ctx context.Context, id string, now time.Time) error {
	q := fmt.Sprintf(`
		UPDATE %s SET total = total + 1, daily = daily + 1, monthly = monthly + 1,
			last_used_at = $2
		WHERE id = $1`, p.table())
	tag, err := p.pool.Exec(ctx, q, id, now.Unix())
	if err != nil {
		return fmt.Errorf("%w: record usage: %v", imagefront.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return imagefront.ErrNotFound
	}
	return nil
}

func (p *Postgres) ExpireWindows(ctx context.Context, id string, now time.Time) (imagefront.Credential, error) {
	// Guarded on the stored anchor: whichever process runs first resets,
	// everyone else matches zero rows.
	daily := fmt.Sprintf(`
		UPDATE %s SET daily = 0, last_daily_reset = $2
		WHERE id = $1 AND $2 - last_daily_reset >= $3`, p.table())
	if _, err := p.pool.Exec(ctx, daily, id, now.Unix(), int64(imagefront.DailyWindow/time.Second)); err != nil {
		return imagefront.Credential{}, fmt.Errorf("%w: expire daily: %v", imagefront.ErrStoreUnavailable, err)
	}
	monthly := fmt.Sprintf(`
		UPDATE %s SET monthly = 0, last_monthly_reset = $2
		WHERE id = $1 AND $2 - last_monthly_reset >= $3`, p.table())
	if _, err := p.pool.Exec(ctx, monthly, id, now.Unix(), int64(imagefront.MonthlyWindow/time.Second)); err != nil {
		return imagefront.Credential{}, fmt.Errorf("%w: expire monthly: %v", imagefront.ErrStoreUnavailable, err)
	}
	return p.Get(ctx, id)
}

func (p *Postgres) ResetAllDaily(ctx context.Context, now time.Time) (int, error) {
	q := fmt.Sprintf(`UPDATE %s SET daily = 0, last_daily_reset = $1`, p.table())
	tag, err := p.pool.Exec(ctx, q, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("%w: reset all daily: %v", imagefront.ErrStoreUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

// Reload re-counts the pool. The database is the source of truth, so there
// is no separate document to re-read.
func (p *Postgres) Reload(ctx context.Context) (int, error) {
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, p.table())
	var n int
	if err := p.pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: reload: %v", imagefront.ErrStoreUnavailable, err)
	}
	return n, nil
}

// Flush is a no-op: every mutation is already durable.
func (p *Postgres) Flush(context.Context) error { return nil }

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanCredential(row pgx.Row) (imagefront.Credential, error) {
	var (
		c     imagefront.Credential
		bound []byte
	)
	err := row.Scan(&c.ID, &c.DisplayName, &c.CreatedAt, &c.Enabled,
		&c.DailyLimit, &c.MonthlyLimit,
		&c.Usage.Total, &c.Usage.Daily, &c.Usage.Monthly,
		&c.LastUsedAt, &c.LastDailyReset, &c.LastMonthlyReset, &bound, &c.Note)
	if err != nil {
		return imagefront.Credential{}, err
	}
	if len(bound) > 0 {
		_ = json.Unmarshal(bound, &c.BoundCredentials)
	}
	if len(c.BoundCredentials) == 0 {
		c.BoundCredentials = nil
	}
	return c, nil
}

func boundOrEmpty(bound []string) []string {
	if bound == nil {
		return []string{}
	}
	return bound
}
