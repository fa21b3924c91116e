package keys

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// shardSalt decorrelates shard selection from the in-table hash so a
// pathological key set cannot pile into one bucket of one shard.
var shardSalt = []byte("ghostdb.shard\x00")

// Hasher computes 32-bit key hashes with an optional bounded LRU in
// front of the mixer. The cache is a pure performance optimization:
// every result is identical with and without it.
type Hasher struct {
	cache  *lru.Cache[string, uint32]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewHasher creates a Hasher; cacheSize 0 disables the cache
func NewHasher(cacheSize int) *Hasher {
	h := &Hasher{}
	if cacheSize > 0 {
		h.cache, _ = lru.New[string, uint32](cacheSize)
	}
	return h
}

// Sum returns the 32-bit hash of an encoded key
func (h *Hasher) Sum(encoded []byte) uint32 {
	if h.cache != nil {
		if v, ok := h.cache.Get(string(encoded)); ok {
			h.hits.Add(1)
			return v
		}
	}
	v := fold(xxhash.Sum64(encoded))
	if h.cache != nil {
		h.misses.Add(1)
		h.cache.Add(string(encoded), v)
	}
	return v
}

// CacheStats returns cumulative hit and miss counts
func (h *Hasher) CacheStats() (hits, misses uint64) {
	return h.hits.Load(), h.misses.Load()
}

// ShardSum returns the shard-selection hash of an encoded key. It uses
// a salted digest so it stays decorrelated from Sum.
func ShardSum(encoded []byte) uint32 {
	d := xxhash.New()
	d.Write(shardSalt)
	d.Write(encoded)
	return fold(d.Sum64())
}

func fold(h uint64) uint32 {
	return uint32(h ^ (h >> 32))
}
