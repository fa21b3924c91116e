package hashindex

import (
	"math"
	"sync/atomic"
)

// Sharded fans a hash index out over a power-of-two number of
// independent tables, selected by a second hash that is decorrelated
// from the per-table hash. Shards share nothing, so concurrent writes
// to different shards never contend.
type Sharded struct {
	shards []*Table
	mask   uint32
	counts []atomic.Uint64
}

// NewSharded creates a sharded index. shardCount must be a power of
// two; 1 degenerates to a single table.
func NewSharded(shardCount int, unique bool) *Sharded {
	if shardCount < 1 || shardCount&(shardCount-1) != 0 {
		shardCount = 1
	}
	s := &Sharded{
		shards: make([]*Table, shardCount),
		mask:   uint32(shardCount - 1),
		counts: make([]atomic.Uint64, shardCount),
	}
	for i := range s.shards {
		s.shards[i] = NewTable(unique)
	}
	return s
}

func (s *Sharded) shard(shardHash uint32) *Table {
	i := shardHash & s.mask
	s.counts[i].Add(1)
	return s.shards[i]
}

// Insert forwards to the owning shard
func (s *Sharded) Insert(key []byte, hash, shardHash uint32, id string) error {
	return s.shard(shardHash).Insert(key, hash, id)
}

// Lookup forwards to the owning shard
func (s *Sharded) Lookup(key []byte, hash, shardHash uint32) []string {
	return s.shard(shardHash).Lookup(key, hash)
}

// Contains forwards to the owning shard
func (s *Sharded) Contains(key []byte, hash, shardHash uint32, excludeID string) bool {
	return s.shard(shardHash).Contains(key, hash, excludeID)
}

// Delete forwards to the owning shard
func (s *Sharded) Delete(key []byte, hash, shardHash uint32, id string) bool {
	return s.shard(shardHash).Delete(key, hash, id)
}

// ShardCount returns the number of shards
func (s *Sharded) ShardCount() int {
	return len(s.shards)
}

// Pairs sums (key, id) pairs across shards
func (s *Sharded) Pairs() int {
	total := 0
	for _, t := range s.shards {
		total += t.Pairs()
	}
	return total
}

// Each concatenates the per-shard iterations; there is no ordering
// guarantee across shards.
func (s *Sharded) Each(fn func(key []byte, ids []string) bool) {
	stopped := false
	for _, t := range s.shards {
		if stopped {
			return
		}
		t.Each(func(key []byte, ids []string) bool {
			if !fn(key, ids) {
				stopped = true
				return false
			}
			return true
		})
	}
}

// ProbeHistogram merges the per-shard histograms
func (s *Sharded) ProbeHistogram() map[int]int {
	merged := make(map[int]int)
	for _, t := range s.shards {
		for psl, n := range t.ProbeHistogram() {
			merged[psl] += n
		}
	}
	return merged
}

// BalanceScore is the maximum deviation of per-shard request counts
// from their mean, divided by the mean. 0 means perfectly even.
func (s *Sharded) BalanceScore() float64 {
	if len(s.shards) < 2 {
		return 0
	}
	var total uint64
	for i := range s.counts {
		total += s.counts[i].Load()
	}
	if total == 0 {
		return 0
	}
	mean := float64(total) / float64(len(s.counts))
	var maxDev float64
	for i := range s.counts {
		dev := math.Abs(float64(s.counts[i].Load()) - mean)
		if dev > maxDev {
			maxDev = dev
		}
	}
	return maxDev / mean
}
