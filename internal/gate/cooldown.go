package gate

import (
	"hash/fnv"
	"sync"
	"time"
)

const cooldownShards = 16

type cooldownShard struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// CooldownRegistry enforces the per-instrument minimum interval between
// accepted signals. Entries are overwritten on each acceptance and never
// deleted. Safe for concurrent use via per-shard locking.
type CooldownRegistry struct {
	interval time.Duration
	shards   [cooldownShards]*cooldownShard
}

func NewCooldownRegistry(interval time.Duration) *CooldownRegistry {
	r := &CooldownRegistry{interval: interval}
	for i := range r.shards {
		r.shards[i] = &cooldownShard{last: make(map[string]time.Time)}
	}
	return r
}

func shardIndex(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % n
}

func (r *CooldownRegistry) shard(instrument string) *cooldownShard {
	return r.shards[shardIndex(instrument, cooldownShards)]
}

// Available reports whether the instrument is past its cooldown window.
func (r *CooldownRegistry) Available(instrument string, now time.Time) bool {
	s := r.shard(instrument)
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.last[instrument]
	if !ok {
		return true
	}
	return !now.Before(last.Add(r.interval))
}

// MarkAccepted records an acceptance, starting the cooldown window.
func (r *CooldownRegistry) MarkAccepted(instrument string, at time.Time) {
	s := r.shard(instrument)
	s.mu.Lock()
	s.last[instrument] = at
	s.mu.Unlock()
}

// Remaining returns how long until the instrument becomes available again,
// zero when already available.
func (r *CooldownRegistry) Remaining(instrument string, now time.Time) time.Duration {
	s := r.shard(instrument)
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.last[instrument]
	if !ok {
		return 0
	}
	rem := last.Add(r.interval).Sub(now)
	if rem < 0 {
		return 0
	}
	return rem
}

// Snapshot copies the registry for the export API.
func (r *CooldownRegistry) Snapshot() map[string]time.Time {
	out := make(map[string]time.Time)
	for _, s := range r.shards {
		s.mu.Lock()
		for k, v := range s.last {
			out[k] = v
		}
		s.mu.Unlock()
	}
	return out
}
