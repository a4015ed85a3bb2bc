package cooldown

import (
	"hash/fnv"
	"sync"
	"time"
)

const dedupShardCount = 16

type dedupShard struct {
	mu   sync.Mutex
	data map[string]time.Time
}

// dedupSet is a sharded, TTL-bounded set used for (tx_hash, log_index)
// dedup. Kept in-process rather than in Redis: there is no requirement for
// dedup state to survive a restart or be shared across instances, and a
// per-event round trip to Redis on the hot path would add latency for no
// benefit (documented choice, not an oversight).
type dedupSet struct {
	shards [dedupShardCount]*dedupShard
}

func newDedupSet() *dedupSet {
	s := &dedupSet{}
	for i := range s.shards {
		s.shards[i] = &dedupShard{data: make(map[string]time.Time)}
	}
	return s
}

func (s *dedupSet) shardFor(key string) *dedupShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%dedupShardCount]
}

// markIfUnseen returns true iff key was not already present and not
// expired, and records it with the given TTL either way.
func (s *dedupSet) markIfUnseen(key string, ttl time.Duration) bool {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	expires, ok := shard.data[key]
	now := time.Now()
	if ok && now.Before(expires) {
		return false
	}
	shard.data[key] = now.Add(ttl)
	return true
}

func (s *dedupSet) sweep() {
	now := time.Now()
	for _, shard := range s.shards {
		shard.mu.Lock()
		for k, exp := range shard.data {
			if now.After(exp) {
				delete(shard.data, k)
			}
		}
		shard.mu.Unlock()
	}
}
