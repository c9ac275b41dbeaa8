package imagefront

import (
	"context"
	"time"
)

// Store is durable persistence for one credential pool. Implementations must
// make each method atomic on their own terms: the file-backed store holds a
// store-wide lock across read-modify-write-persist, the networked stores use
// backend-side atomic increments and conditional writes so that multiple
// processes never lose an update.
//
// Get and every lookup return ErrNotFound for unknown ids. I/O failures are
// reported as errors wrapping ErrStoreUnavailable.
type Store interface {
	// Get returns a copy of the record with the given id.
	Get(ctx context.Context, id string) (Credential, error)

	// List returns copies of all records. Order is not significant.
	List(ctx context.Context) ([]Credential, error)

	// Put upserts a full record.
	Put(ctx context.Context, c Credential) error

	// Patch applies a sparse update. Returns false without error when the
	// id is unknown. Patch never touches usage counters or window anchors.
	Patch(ctx context.Context, id string, u Update) (bool, error)

	// Delete removes a record. Returns false when the id was unknown.
	Delete(ctx context.Context, id string) (bool, error)

	// RecordUsage counts one request: increments total/daily/monthly by one
	// and stamps lastUsedAt, atomically with respect to concurrent callers.
	RecordUsage(ctx context.Context, id string, now time.Time) error

	// ExpireWindows applies any due daily/monthly window resets for id and
	// returns the refreshed record. Idempotent: two racing callers both
	// observing an elapsed window leave the record reset exactly once.
	ExpireWindows(ctx context.Context, id string, now time.Time) (Credential, error)

	// ResetAllDaily unconditionally zeroes every record's daily counter and
	// restamps its daily anchor. Operator escape hatch; returns the number
	// of records touched.
	ResetAllDaily(ctx context.Context, now time.Time) (int, error)

	// Reload discards in-memory state and re-reads from the source of
	// truth, returning the new record count.
	Reload(ctx context.Context) (int, error)

	// Flush forces pending state to durable storage.
	Flush(ctx context.Context) error

	Close() error
}

// Update is a sparse patch for Store.Patch and Pool.Update. Nil fields are
// left unchanged; a non-nil BoundCredentials replaces the whole sub-pool
// (use an empty non-nil slice to clear it).
type Update struct {
	DisplayName      *string
	Enabled          *bool
	DailyLimit       *int64
	MonthlyLimit     *int64
	Note             *string
	BoundCredentials []string
}
