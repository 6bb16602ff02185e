package main

import (
	"github.com/redis/go-redis/v9"

	"github.com/loomkit/loom/pkg/config"
	"github.com/loomkit/loom/pkg/errors"
	"github.com/loomkit/loom/pkg/store"
)

// storeSet bundles the opened persistence backends.
type storeSet struct {
	traces    store.TraceStore
	patterns  store.PatternStore
	workflows store.WorkflowStore
	stats     store.StatsStore
	close     func() error
}

// openStores wires the configured backend. With redis_addr set, arm
// stats move to Redis while documents stay in the primary backend.
func openStores(cfg *config.Config) (*storeSet, error) {
	var set *storeSet

	switch cfg.Store.Backend {
	case "memory":
		mem := store.NewMemory()
		set = &storeSet{
			traces: mem, patterns: mem, workflows: mem, stats: mem,
			close: func() error { return nil },
		}
	case "sqlite":
		db, err := store.NewSQLite(store.SQLiteConfig{Path: cfg.Store.Path, EnableWAL: true})
		if err != nil {
			return nil, err
		}
		set = &storeSet{
			traces: db, patterns: db, workflows: db, stats: db,
			close: db.Close,
		}
	default:
		return nil, errors.New(errors.InvalidInput, "unknown store backend "+cfg.Store.Backend)
	}

	if cfg.Store.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		set.stats = store.NewRedisStats(client)
		inner := set.close
		set.close = func() error {
			if err := client.Close(); err != nil {
				return err
			}
			return inner()
		}
	}
	return set, nil
}
