package hashindex

import (
	"bytes"
	"fmt"
	"sync"

	"ghostdb/src/dberrors"
)

const (
	// InitialBucketCount is the capacity of a fresh table; always a
	// power of two so the bucket mask stays a single AND.
	InitialBucketCount = 16

	// MaxLoadFactor is the occupancy ratio that triggers a rehash
	MaxLoadFactor = 0.75
)

// bucket is one slot of the open-addressed array. An empty slot is
// encoded by ids == nil; a live slot always carries at least one id.
type bucket struct {
	hash uint32
	psl  int32
	key  []byte
	ids  []string
}

// Table is a Robin Hood open-addressed hash index over canonically
// encoded keys. Non-unique tables keep every document id inserted under
// a key; unique tables reject a second id with ErrDuplicateKey.
type Table struct {
	mu      sync.RWMutex
	buckets []bucket
	mask    uint32
	size    int // occupied buckets (distinct keys)
	pairs   int // total (key, id) pairs
	unique  bool
}

// NewTable creates an empty table
func NewTable(unique bool) *Table {
	return &Table{
		buckets: make([]bucket, InitialBucketCount),
		mask:    InitialBucketCount - 1,
		unique:  unique,
	}
}

// Insert adds (key, id) to the table. The hash must be the 32-bit hash
// of the encoded key; it is stored in the bucket so a rehash never
// recomputes it.
func (t *Table) Insert(key []byte, hash uint32, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if float64(t.size+1)/float64(len(t.buckets)) > MaxLoadFactor {
		t.rehash()
	}

	suitor := bucket{hash: hash, psl: 0, key: key, ids: []string{id}}
	idx := hash & t.mask
	// Only the original suitor can match a stored key; once displaced
	// entries start moving, every key in flight is already distinct.
	fresh := true

	for {
		b := &t.buckets[idx]
		if b.ids == nil {
			*b = suitor
			t.size++
			t.pairs++
			return nil
		}
		if fresh && b.hash == suitor.hash && bytes.Equal(b.key, suitor.key) {
			if t.unique {
				if len(b.ids) > 0 && b.ids[0] != id {
					return fmt.Errorf("key already mapped to document %s: %w", b.ids[0], dberrors.ErrDuplicateKey)
				}
				return nil
			}
			for _, existing := range b.ids {
				if existing == id {
					return nil
				}
			}
			b.ids = append(b.ids, id)
			t.pairs++
			return nil
		}
		if suitor.psl > b.psl {
			suitor, *b = *b, suitor
			fresh = false
		}
		suitor.psl++
		idx = (idx + 1) & t.mask
	}
}

// Lookup returns the ids stored under key, or nil when absent
func (t *Table) Lookup(key []byte, hash uint32) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b := t.find(key, hash)
	if b == nil {
		return nil
	}
	out := make([]string, len(b.ids))
	copy(out, b.ids)
	return out
}

// Contains reports whether the key holds any id other than the given one.
func (t *Table) Contains(key []byte, hash uint32, excludeID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b := t.find(key, hash)
	if b == nil {
		return false
	}
	for _, id := range b.ids {
		if id != excludeID {
			return true
		}
	}
	return false
}

// find locates the bucket for key. The probe stops at the first empty
// slot or as soon as the carried PSL exceeds the incumbent's: by the
// Robin Hood invariant no farther slot can hold the key.
func (t *Table) find(key []byte, hash uint32) *bucket {
	idx := hash & t.mask
	var psl int32
	for {
		b := &t.buckets[idx]
		if b.ids == nil || psl > b.psl {
			return nil
		}
		if b.hash == hash && bytes.Equal(b.key, key) {
			return b
		}
		psl++
		idx = (idx + 1) & t.mask
	}
}

// Delete removes (key, id). When the last id under the key goes, the
// bucket is freed and subsequent entries are shifted backward one slot
// with their PSLs decremented, which preserves the invariant without
// tombstones. Returns whether anything was removed.
func (t *Table) Delete(key []byte, hash uint32, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := hash & t.mask
	var psl int32
	for {
		b := &t.buckets[idx]
		if b.ids == nil || psl > b.psl {
			return false
		}
		if b.hash == hash && bytes.Equal(b.key, key) {
			break
		}
		psl++
		idx = (idx + 1) & t.mask
	}

	b := &t.buckets[idx]
	found := false
	for i, existing := range b.ids {
		if existing == id {
			b.ids = append(b.ids[:i], b.ids[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return false
	}
	t.pairs--
	if len(b.ids) > 0 {
		return true
	}

	// Backward shift
	t.size--
	cur := idx
	for {
		next := (cur + 1) & t.mask
		nb := &t.buckets[next]
		if nb.ids == nil || nb.psl == 0 {
			break
		}
		t.buckets[cur] = *nb
		t.buckets[cur].psl--
		cur = next
	}
	t.buckets[cur] = bucket{}
	return true
}

// rehash doubles the table and reinserts every live bucket using its
// stored hash. Caller holds the write lock.
func (t *Table) rehash() {
	old := t.buckets
	t.buckets = make([]bucket, len(old)*2)
	t.mask = uint32(len(t.buckets) - 1)

	for _, b := range old {
		if b.ids == nil {
			continue
		}
		suitor := bucket{hash: b.hash, psl: 0, key: b.key, ids: b.ids}
		idx := suitor.hash & t.mask
		for {
			slot := &t.buckets[idx]
			if slot.ids == nil {
				*slot = suitor
				break
			}
			if suitor.psl > slot.psl {
				suitor, *slot = *slot, suitor
			}
			suitor.psl++
			idx = (idx + 1) & t.mask
		}
	}
}

// Len returns the number of distinct keys
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

// Pairs returns the number of (key, id) pairs
func (t *Table) Pairs() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pairs
}

// Capacity returns the current bucket count
func (t *Table) Capacity() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.buckets)
}

// Each calls fn for every (key, ids) pair until fn returns false.
// Iteration order is bucket order, which carries no key ordering.
func (t *Table) Each(fn func(key []byte, ids []string) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := range t.buckets {
		b := &t.buckets[i]
		if b.ids == nil {
			continue
		}
		if !fn(b.key, b.ids) {
			return
		}
	}
}

// ProbeHistogram counts live buckets by PSL
func (t *Table) ProbeHistogram() map[int]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	hist := make(map[int]int)
	for i := range t.buckets {
		if t.buckets[i].ids != nil {
			hist[int(t.buckets[i].psl)]++
		}
	}
	return hist
}

// checkInvariants verifies the PSL law and the no-holes law for every
// occupied bucket. Test support.
func (t *Table) checkInvariants() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	capacity := uint32(len(t.buckets))
	for i := range t.buckets {
		b := &t.buckets[i]
		if b.ids == nil {
			continue
		}
		ideal := b.hash & t.mask
		want := (uint32(i) + capacity - ideal) & t.mask
		if uint32(b.psl) != want {
			return fmt.Errorf("bucket %d: psl %d, want %d", i, b.psl, want)
		}
		// No empty slot may sit between the entry and its ideal bucket
		for d := uint32(0); d < want; d++ {
			j := (ideal + d) & t.mask
			if t.buckets[j].ids == nil {
				return fmt.Errorf("bucket %d: hole at %d inside probe path from %d", i, j, ideal)
			}
		}
	}
	return nil
}
