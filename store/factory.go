package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vantari/imagefront"
)

// Open constructs the Store selected by cfg for one pool. The returned Store
// is the only place backend choice exists; pool logic is written once
// against the interface.
//
// kind picks the record array of the file document and namespaces the
// networked backends so the two pools never collide. file is the document
// path for the file backend and is ignored otherwise.
func Open(ctx context.Context, cfg imagefront.StoreConfig, kind DocKind, file string) (imagefront.Store, error) {
	switch cfg.Backend {
	case imagefront.BackendFile, "":
		return NewFile(file, WithDocumentKind(kind)), nil

	case imagefront.BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("%w: redis ping: %v", imagefront.ErrStoreUnavailable, err)
		}
		prefix := cfg.Redis.KeyPrefix
		if prefix == "" {
			prefix = "imagefront:"
		}
		return NewRedis(client, WithKeyPrefix(prefix+string(kind)+":")), nil

	case imagefront.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("%w: postgres connect: %v", imagefront.ErrStoreUnavailable, err)
		}
		prefix := cfg.Postgres.TablePrefix
		if prefix == "" {
			prefix = "imagefront_"
		}
		s := NewPostgres(pool, WithTablePrefix(prefix+string(kind)+"_"))
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
}
