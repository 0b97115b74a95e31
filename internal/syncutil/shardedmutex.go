// Package syncutil holds keyed locking primitives used to serialize
// work on a per-entity basis, such as one wallet address or one
// transaction id at a time.
package syncutil

import (
	"hash/fnv"
	"sync"
)

// shardCount is the fixed number of lock shards. Memory stays bounded no
// matter how many distinct keys pass through, and two keys that hash to
// the same shard simply contend with each other.
const shardCount = 256

func shardIndex(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}

// ShardedMutex is a pool of mutexes addressed by string key. The zero
// value is ready to use.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock acquires the shard owning key and returns its unlock function.
func (s *ShardedMutex) Lock(key string) func() {
	mu := &s.shards[shardIndex(key)]
	mu.Lock()
	return mu.Unlock
}
