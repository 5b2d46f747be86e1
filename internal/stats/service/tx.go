package service

import (
	"context"
	"sync"

	dErrors "homechef/pkg/domain-errors"
)

// numStatsShards bounds lock memory while keeping unrelated providers from
// contending on one mutex.
const numStatsShards = 64

// shardedLock serialises stats writers per provider inside this process.
// Cross-process atomicity comes from recordstore.Transact.
type shardedLock struct {
	shards [numStatsShards]sync.Mutex
}

func (l *shardedLock) run(ctx context.Context, key string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "stats update aborted: context cancelled")
	}

	shard := &l.shards[hashString(key)%numStatsShards]
	shard.Lock()
	defer shard.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "stats update aborted: context cancelled")
	}
	return fn()
}

// hashString is FNV-1a.
func hashString(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
