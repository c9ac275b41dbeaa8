// Package store provides the persistence backends for credential pools:
// a single-process JSON file store and two networked stores (Redis,
// PostgreSQL) that stay consistent across processes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vantari/imagefront"
)

// DocKind names the record array in the persisted pool document.
type DocKind string

const (
	KindKeys   DocKind = "keys"
	KindTokens DocKind = "tokens"
)

const docVersion = "1.0"

// fileDocument is the on-disk shape. Exactly one of Keys/Tokens is used,
// per the store's DocKind; unknown extra fields in the file are ignored.
type fileDocument struct {
	Version   string                  `json:"version"`
	UpdatedAt int64                   `json:"updatedAt"`
	Keys      []imagefront.Credential `json:"keys,omitempty"`
	Tokens    []imagefront.Credential `json:"tokens,omitempty"`
}

// File is the single-process file-backed Store. The full pool is serialized
// as one versioned JSON document on every mutation. One mutex spans every
// read-modify-write-persist sequence; between flushes the in-memory map is
// the source of truth, so a failed write is recovered by the next
// successful one.
type File struct {
	mu      sync.Mutex
	records map[string]imagefront.Credential
	path    string
	kind    DocKind
	log     *slog.Logger
}

var _ imagefront.Store = (*File)(nil)

// FileOption configures a File store.
type FileOption func(*File)

// WithDocumentKind sets the record array name (default "keys").
func WithDocumentKind(kind DocKind) FileOption {
	return func(f *File) { f.kind = kind }
}

// WithFileLogger sets the logger. If unset, slog.Default() is used.
func WithFileLogger(l *slog.Logger) FileOption {
	return func(f *File) { f.log = l }
}

// NewFile opens the file-backed store at path. A missing file is an empty
// pool; a malformed file is logged and treated as empty rather than
// failing startup.
func NewFile(path string, opts ...FileOption) *File {
	f := &File{
		records: make(map[string]imagefront.Credential),
		path:    path,
		kind:    KindKeys,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	f.mu.Lock()
	f.loadLocked(true)
	f.mu.Unlock()
	return f
}

// loadLocked replaces the in-memory map from disk. With lenient set,
// missing or malformed files leave an empty pool instead of erroring.
func (f *File) loadLocked(lenient bool) error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.log.Info("pool file does not exist, starting empty", "path", f.path)
		f.records = make(map[string]imagefront.Credential)
		return nil
	}
	if err != nil {
		f.log.Warn("pool file unreadable, starting empty", "path", f.path, "error", err)
		if lenient {
			f.records = make(map[string]imagefront.Credential)
			return nil
		}
		return fmt.Errorf("%w: read %s: %v", imagefront.ErrStoreUnavailable, f.path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		f.log.Error("pool file malformed, starting empty", "path", f.path, "error", err)
		if lenient {
			f.records = make(map[string]imagefront.Credential)
			return nil
		}
		return fmt.Errorf("%w: parse %s: %v", imagefront.ErrStoreUnavailable, f.path, err)
	}

	recs := doc.Keys
	if f.kind == KindTokens {
		recs = doc.Tokens
	}
	m := make(map[string]imagefront.Credential, len(recs))
	for _, c := range recs {
		m[c.ID] = c
	}
	f.records = m
	f.log.Info("pool file loaded", "path", f.path, "count", len(m))
	return nil
}

// saveLocked persists the full document. Call with the lock held.
func (f *File) saveLocked(now time.Time) error {
	doc := fileDocument{Version: docVersion, UpdatedAt: now.Unix()}
	recs := make([]imagefront.Credential, 0, len(f.records))
	for _, c := range f.records {
		recs = append(recs, c)
	}
	if f.kind == KindTokens {
		doc.Tokens = recs
	} else {
		doc.Keys = recs
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal pool: %v", imagefront.ErrStoreUnavailable, err)
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: mkdir %s: %v", imagefront.ErrStoreUnavailable, dir, err)
		}
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("%w: write %s: %v", imagefront.ErrStoreUnavailable, f.path, err)
	}
	return nil
}

// saveQuietLocked is saveLocked for the request path: a failed write is
// logged at error severity but does not fail the request, since the
// in-memory record already carries the delta for the next write.
func (f *File) saveQuietLocked(now time.Time) {
	if err := f.saveLocked(now); err != nil {
		f.log.Error("pool write failed, usage delta held in memory", "path", f.path, "error", err)
	}
}

func (f *File) Get(_ context.Context, id string) (imagefront.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.records[id]
	if !ok {
		return imagefront.Credential{}, imagefront.ErrNotFound
	}
	return c.Clone(), nil
}

func (f *File) List(context.Context) ([]imagefront.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]imagefront.Credential, 0, len(f.records))
	for _, c := range f.records {
		out = append(out, c.Clone())
	}
	return out, nil
}

func (f *File) Put(_ context.Context, c imagefront.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[c.ID] = c.Clone()
	return f.saveLocked(time.Now())
}

func (f *File) Patch(_ context.Context, id string, u imagefront.Update) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.records[id]
	if !ok {
		return false, nil
	}
	applyUpdate(&c, u)
	f.records[id] = c
	return true, f.saveLocked(time.Now())
}

func (f *File) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return false, nil
	}
	delete(f.records, id)
	return true, f.saveLocked(time.Now())
}

func (f *File) RecordUsage(_ context.Context, id string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.records[id]
	if !ok {
		return imagefront.ErrNotFound
	}
	c.RecordUsage(now)
	f.records[id] = c
	f.saveQuietLocked(now)
	return nil
}

func (f *File) ExpireWindows(_ context.Context, id string, now time.Time) (imagefront.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.records[id]
	if !ok {
		return imagefront.Credential{}, imagefront.ErrNotFound
	}
	if imagefront.RefreshWindows(&c, now) {
		f.records[id] = c
		f.saveQuietLocked(now)
	}
	return c.Clone(), nil
}

func (f *File) ResetAllDaily(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.records {
		c.ResetDaily(now)
		f.records[id] = c
	}
	return len(f.records), f.saveLocked(now)
}

func (f *File) Reload(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(false); err != nil {
		return 0, err
	}
	return len(f.records), nil
}

func (f *File) Flush(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveLocked(time.Now())
}

func (f *File) Close() error {
	return f.Flush(context.Background())
}

// applyUpdate merges sparse fields into c. Shared by the file and postgres
// backends; the redis backend applies the same merge in HSET field sets.
func applyUpdate(c *imagefront.Credential, u imagefront.Update) {
	if u.DisplayName != nil {
		c.DisplayName = *u.DisplayName
	}
	if u.Enabled != nil {
		c.Enabled = *u.Enabled
	}
	if u.DailyLimit != nil {
		v := *u.DailyLimit
		c.DailyLimit = &v
	}
	if u.MonthlyLimit != nil {
		v := *u.MonthlyLimit
		c.MonthlyLimit = &v
	}
	if u.Note != nil {
		c.Note = *u.Note
	}
	if u.BoundCredentials != nil {
		c.BoundCredentials = append([]string(nil), u.BoundCredentials...)
	}
}
