package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vantari/imagefront"
)

// Redis is a networked Store keeping each credential as a separately
// addressable hash. Usage counters are HINCRBY operations and window resets
// run as conditional Lua scripts, so concurrent recording from multiple
// processes never loses an update and a reset race resolves idempotently.
// No client-side lock is held.
type Redis struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ imagefront.Store = (*Redis)(nil)

// RedisOption configures Redis.
type RedisOption func(*Redis)

// WithKeyPrefix sets the Redis key prefix (default "imagefront:pool:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.keyPrefix = prefix }
}

// NewRedis creates a Redis-backed Store.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func NewRedis(client goredis.Cmdable, opts ...RedisOption) *Redis {
	r := &Redis{
		client:    client,
		keyPrefix: "imagefront:pool:",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) recordKey(id string) string {
	return r.keyPrefix + id
}

// usageScript atomically counts one usage unit.
// KEYS[1] = record hash key
// ARGV[1] = now (unix seconds)
// Returns 1 on success, 0 when the record does not exist.
var usageScript = goredis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
    return 0
end
redis.call("HINCRBY", key, "total", 1)
redis.call("HINCRBY", key, "daily", 1)
redis.call("HINCRBY", key, "monthly", 1)
redis.call("HSET", key, "last_used_at", ARGV[1])
return 1
`)

// expireScript applies due window resets. The reset is conditional on the
// stored anchor, so two processes both observing an elapsed window apply it
// once: the loser of the race sees the new anchor and does nothing.
// KEYS[1] = record hash key
// ARGV[1] = now, ARGV[2] = daily window seconds, ARGV[3] = monthly window seconds
// Returns -1 when the record does not exist, else a bitmask of applied resets.
var expireScript = goredis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
    return -1
end
local now = tonumber(ARGV[1])
local daily_window = tonumber(ARGV[2])
local monthly_window = tonumber(ARGV[3])
local applied = 0

local ldr = tonumber(redis.call("HGET", key, "last_daily_reset") or "0")
if now - ldr >= daily_window then
    redis.call("HSET", key, "daily", "0", "last_daily_reset", tostring(now))
    applied = applied + 1
end

local lmr = tonumber(redis.call("HGET", key, "last_monthly_reset") or "0")
if now - lmr >= monthly_window then
    redis.call("HSET", key, "monthly", "0", "last_monthly_reset", tostring(now))
    applied = applied + 2
end
return applied
`)

func (r *Redis) Get(ctx context.Context, id string) (imagefront.Credential, error) {
	vals, err := r.client.HGetAll(ctx, r.recordKey(id)).Result()
	if err != nil {
		return imagefront.Credential{}, fmt.Errorf("%w: redis get: %v", imagefront.ErrStoreUnavailable, err)
	}
	if len(vals) == 0 {
		return imagefront.Credential{}, imagefront.ErrNotFound
	}
	return credentialFromHash(id, vals), nil
}

func (r *Redis) List(ctx context.Context) ([]imagefront.Credential, error) {
	ids, err := r.scanIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]imagefront.Credential, 0, len(ids))
	for _, id := range ids {
		c, err := r.Get(ctx, id)
		if errors.Is(err, imagefront.ErrNotFound) {
			continue // deleted while scanning
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Redis) scanIDs(ctx context.Context) ([]string, error) {
	var ids []string
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(r.keyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: redis scan: %v", imagefront.ErrStoreUnavailable, err)
	}
	return ids, nil
}

func (r *Redis) Put(ctx context.Context, c imagefront.Credential) error {
	fields := hashFromCredential(c)
	if err := r.client.HSet(ctx, r.recordKey(c.ID), fields...).Err(); err != nil {
		return fmt.Errorf("%w: redis put: %v", imagefront.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *Redis) Patch(ctx context.Context, id string, u imagefront.Update) (bool, error) {
	exists, err := r.client.Exists(ctx, r.recordKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: redis patch: %v", imagefront.ErrStoreUnavailable, err)
	}
	if exists == 0 {
		return false, nil
	}

	var fields []any
	if u.DisplayName != nil {
		fields = append(fields, "display_name", *u.DisplayName)
	}
	if u.Enabled != nil {
		fields = append(fields, "enabled", boolField(*u.Enabled))
	}
	if u.DailyLimit != nil {
		fields = append(fields, "daily_limit", strconv.FormatInt(*u.DailyLimit, 10))
	}
	if u.MonthlyLimit != nil {
		fields = append(fields, "monthly_limit", strconv.FormatInt(*u.MonthlyLimit, 10))
	}
	if u.Note != nil {
		fields = append(fields, "note", *u.Note)
	}
	if u.BoundCredentials != nil {
		fields = append(fields, "bound", marshalBound(u.BoundCredentials))
	}
	if len(fields) == 0 {
		return true, nil
	}
	if err := r.client.HSet(ctx, r.recordKey(id), fields...).Err(); err != nil {
		return false, fmt.Errorf("%w: redis patch: %v", imagefront.ErrStoreUnavailable, err)
	}
	return true, nil
}

func (r *Redis) Delete(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Del(ctx, r.recordKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: redis delete: %v", imagefront.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

func (r *Redis) RecordUsage(ctx context.Context, id string, now time.Time) error {
	res, err := usageScript.Run(ctx, r.client, []string{r.recordKey(id)}, now.Unix()).Int64()
	if err != nil {
		return fmt.Errorf("%w: redis record usage: %v", imagefront.ErrStoreUnavailable, err)
	}
	if res == 0 {
		return imagefront.ErrNotFound
	}
	return nil
}

func (r *Redis) ExpireWindows(ctx context.Context, id string, now time.Time) (imagefront.Credential, error) {
	res, err := expireScript.Run(ctx, r.client, []string{r.recordKey(id)},
		now.Unix(),
		int64(imagefront.DailyWindow/time.Second),
		int64(imagefront.MonthlyWindow/time.Second),
	).Int64()
	if err != nil {
		return imagefront.Credential{}, fmt.Errorf("%w: redis expire windows: %v", imagefront.ErrStoreUnavailable, err)
	}
	if res == -1 {
		return imagefront.Credential{}, imagefront.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *Redis) ResetAllDaily(ctx context.Context, now time.Time) (int, error) {
	ids, err := r.scanIDs(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		err := r.client.HSet(ctx, r.recordKey(id),
			"daily", "0",
			"last_daily_reset", strconv.FormatInt(now.Unix(), 10),
		).Err()
		if err != nil {
			return 0, fmt.Errorf("%w: redis reset daily: %v", imagefront.ErrStoreUnavailable, err)
		}
	}
	return len(ids), nil
}

// Reload re-counts the pool. Redis is itself the source of truth, so there
// is no separate document to re-read.
func (r *Redis) Reload(ctx context.Context) (int, error) {
	ids, err := r.scanIDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Flush is a no-op: every mutation is already durable in Redis.
func (r *Redis) Flush(context.Context) error { return nil }

func (r *Redis) Close() error { return nil }

func hashFromCredential(c imagefront.Credential) []any {
	fields := []any{
		"display_name", c.DisplayName,
		"created_at", strconv.FormatInt(c.CreatedAt, 10),
		"enabled", boolField(c.Enabled),
		"total", strconv.FormatInt(c.Usage.Total, 10),
		"daily", strconv.FormatInt(c.Usage.Daily, 10),
		"monthly", strconv.FormatInt(c.Usage.Monthly, 10),
		"last_used_at", strconv.FormatInt(c.LastUsedAt, 10),
		"last_daily_reset", strconv.FormatInt(c.LastDailyReset, 10),
		"last_monthly_reset", strconv.FormatInt(c.LastMonthlyReset, 10),
		"bound", marshalBound(c.BoundCredentials),
		"note", c.Note,
	}
	if c.DailyLimit != nil {
		fields = append(fields, "daily_limit", strconv.FormatInt(*c.DailyLimit, 10))
	}
	if c.MonthlyLimit != nil {
		fields = append(fields, "monthly_limit", strconv.FormatInt(*c.MonthlyLimit, 10))
	}
	return fields
}

func credentialFromHash(id string, vals map[string]string) imagefront.Credential {
	c := imagefront.Credential{
		ID:               id,
		DisplayName:      vals["display_name"],
		CreatedAt:        parseInt(vals["created_at"]),
		Enabled:          vals["enabled"] == "1",
		LastUsedAt:       parseInt(vals["last_used_at"]),
		LastDailyReset:   parseInt(vals["last_daily_reset"]),
		LastMonthlyReset: parseInt(vals["last_monthly_reset"]),
		Note:             vals["note"],
		Usage: imagefront.Usage{
			Total:   parseInt(vals["total"]),
			Daily:   parseInt(vals["daily"]),
			Monthly: parseInt(vals["monthly"]),
		},
	}
	if v, ok := vals["daily_limit"]; ok {
		lim := parseInt(v)
		c.DailyLimit = &lim
	}
	if v, ok := vals["monthly_limit"]; ok {
		lim := parseInt(v)
		c.MonthlyLimit = &lim
	}
	if v := vals["bound"]; v != "" && v != "[]" {
		_ = json.Unmarshal([]byte(v), &c.BoundCredentials)
	}
	return c
}

func marshalBound(bound []string) string {
	if len(bound) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(bound)
	return string(data)
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
