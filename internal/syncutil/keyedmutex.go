// Package syncutil provides small concurrency helpers.
package syncutil

import (
	"hash/fnv"
	"sync"
)

const shardCount = 128

// KeyedMutex serializes operations on the same string key using a fixed
// pool of mutexes. Memory stays bounded no matter how many keys are seen;
// keys hashing to the same shard occasionally contend with each other.
//
// The ledger uses one of these keyed by user ID so two concurrent wallet
// operations for the same user never interleave a balance read with a
// stale write.
type KeyedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock acquires the mutex for key and returns the unlock function.
func (m *KeyedMutex) Lock(key string) func() {
	mu := m.shard(key)
	mu.Lock()
	return mu.Unlock
}

func (m *KeyedMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &m.shards[h.Sum32()%shardCount]
}
