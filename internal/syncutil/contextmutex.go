package syncutil

import (
	"context"
	"sync"
)

// ContextShardedMutex is a pool of channel-backed mutexes addressed by
// string key. Acquisition can be abandoned when the caller's context is
// cancelled, which a plain sync.Mutex cannot offer. The zero value is
// ready to use.
type ContextShardedMutex struct {
	shards [shardCount]chan struct{}
	once   sync.Once
}

// NewContextShardedMutex returns an initialized mutex pool.
func NewContextShardedMutex() *ContextShardedMutex {
	m := &ContextShardedMutex{}
	m.init()
	return m
}

func (m *ContextShardedMutex) init() {
	m.once.Do(func() {
		for i := range m.shards {
			ch := make(chan struct{}, 1)
			ch <- struct{}{} // full slot means unlocked
			m.shards[i] = ch
		}
	})
}

// LockContext acquires the shard owning key. On success it returns the
// unlock function, which the caller must invoke exactly once. If ctx is
// cancelled while waiting it returns the context error and no lock is
// held.
func (m *ContextShardedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	m.init()
	ch := m.shards[shardIndex(key)]

	select {
	case <-ch:
		return func() { ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
