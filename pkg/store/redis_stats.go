package store

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/loomkit/loom/pkg/core"
	"github.com/loomkit/loom/pkg/errors"
)

const statsKeyPrefix = "loom:stats:"

// RedisStats is a StatsStore on Redis, for deployments where several
// resolver replicas share arm statistics. The compare-and-swap runs as
// a WATCH/MULTI transaction on the pattern's key.
type RedisStats struct {
	client *redis.Client
}

// NewRedisStats wraps an existing Redis client.
func NewRedisStats(client *redis.Client) *RedisStats {
	return &RedisStats{client: client}
}

func statsKey(pattern string) string {
	return statsKeyPrefix + pattern
}

func (r *RedisStats) GetStats(ctx context.Context, pattern string) (*core.ArmStats, error) {
	doc, err := r.client.Get(ctx, statsKey(pattern)).Bytes()
	if err == redis.Nil {
		return &core.ArmStats{Pattern: pattern}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailure, "failed to read arm stats")
	}

	var stats core.ArmStats
	if err := json.Unmarshal(doc, &stats); err != nil {
		return nil, errors.Wrap(err, errors.StorageFailure, "failed to decode arm stats")
	}
	stats.Pattern = pattern
	return &stats, nil
}

func (r *RedisStats) PutStats(ctx context.Context, stats *core.ArmStats) error {
	key := statsKey(stats.Pattern)

	next := stats.Clone()
	next.Version++
	doc, err := json.Marshal(next)
	if err != nil {
		return errors.Wrap(err, errors.StorageFailure, "failed to encode arm stats")
	}

	txn := func(tx *redis.Tx) error {
		current := int64(0)
		existing, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			var stored core.ArmStats
			if err := json.Unmarshal(existing, &stored); err != nil {
				return err
			}
			current = stored.Version
		}
		if stats.Version != current {
			return ErrVersionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, doc, 0)
			return nil
		})
		return err
	}

	err = r.client.Watch(ctx, txn, key)
	if err == ErrVersionConflict || err == redis.TxFailedErr {
		// A concurrent writer touched the key; the caller re-reads.
		return ErrVersionConflict
	}
	if err != nil {
		return errors.Wrap(err, errors.StorageFailure, "failed to commit arm stats")
	}
	return nil
}
