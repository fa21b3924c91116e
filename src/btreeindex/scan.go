package btreeindex

import (
	"fmt"
	"iter"

	"ghostdb/src/keys"
)

// Range bounds a scan. Unset bounds (HasLo/HasHi false) leave that side
// open; IncLo/IncHi choose closed or open endpoints.
type Range struct {
	Lo, Hi       interface{}
	HasLo, HasHi bool
	IncLo, IncHi bool
}

// Scan walks the leaf chain and yields entries inside the range in key
// order (ids ascending within equal keys). A scan with lo > hi is
// empty. The read lock is held for the duration of the iteration;
// stopping the iteration releases it at the current leaf.
func (t *Tree) Scan(r Range) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()

		if r.HasLo && r.HasHi && keys.Compare(r.Lo, r.Hi) > 0 {
			return
		}

		var leaf *node
		var pos int
		if r.HasLo {
			leaf = t.seekLeaf(Entry{Key: r.Lo})
			pos = leafPos(leaf, Entry{Key: r.Lo})
		} else {
			leaf = t.root
			for !leaf.leaf {
				leaf = leaf.children[0]
			}
		}

		for {
			if pos == len(leaf.entries) {
				if leaf.next == nil {
					return
				}
				leaf, pos = leaf.next, 0
				continue
			}
			e := leaf.entries[pos]
			pos++

			if r.HasLo && !r.IncLo && keys.Compare(e.Key, r.Lo) == 0 {
				continue
			}
			if r.HasHi {
				c := keys.Compare(e.Key, r.Hi)
				if c > 0 || (c == 0 && !r.IncHi) {
					return
				}
			}
			if !yield(e) {
				return
			}
		}
	}
}

// All yields every entry in key order
func (t *Tree) All() iter.Seq[Entry] {
	return t.Scan(Range{})
}

// LookupIDs returns the ids stored under exactly this key, ascending
func (t *Tree) LookupIDs(key interface{}) []string {
	var ids []string
	for e := range t.Scan(Range{Lo: key, Hi: key, HasLo: true, HasHi: true, IncLo: true, IncHi: true}) {
		ids = append(ids, e.ID)
	}
	return ids
}

// checkInvariants validates the leaf chain ordering and the per-node
// occupancy bounds. Test support.
func (t *Tree) checkInvariants() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	// Leftmost leaf
	n := t.root
	for !n.leaf {
		if len(n.children) != len(n.seps)+1 {
			return fmt.Errorf("internal node with %d seps has %d children", len(n.seps), len(n.children))
		}
		n = n.children[0]
	}

	var prev *Entry
	seen := 0
	for leaf := n; leaf != nil; leaf = leaf.next {
		for i := range leaf.entries {
			e := leaf.entries[i]
			if prev != nil && compareEntries(*prev, e) >= 0 {
				return fmt.Errorf("leaf chain out of order at entry %v", e)
			}
			prev = &leaf.entries[i]
			seen++
		}
		if leaf.next != nil && leaf.next.prev != leaf {
			return fmt.Errorf("broken prev link after leaf starting at %v", leaf.entries)
		}
	}
	if seen != t.size {
		return fmt.Errorf("leaf chain holds %d entries, size says %d", seen, t.size)
	}

	return t.checkNode(t.root, true)
}

func (t *Tree) checkNode(n *node, isRoot bool) error {
	if !isRoot && n.count() < t.minKeys() {
		return fmt.Errorf("underfull node with %d keys, floor %d", n.count(), t.minKeys())
	}
	if n.count() > t.order-1 {
		return fmt.Errorf("overfull node with %d keys, ceiling %d", n.count(), t.order-1)
	}
	if n.leaf {
		return nil
	}
	for i, sep := range n.seps {
		// Left subtree strictly below the separator, right at or above
		if err := t.checkSubtreeBound(n.children[i], sep, true); err != nil {
			return err
		}
		if err := t.checkSubtreeBound(n.children[i+1], sep, false); err != nil {
			return err
		}
	}
	for _, c := range n.children {
		if err := t.checkNode(c, false); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) checkSubtreeBound(n *node, sep Entry, below bool) error {
	if n.leaf {
		for _, e := range n.entries {
			c := compareEntries(e, sep)
			if below && c >= 0 {
				return fmt.Errorf("entry %v at or above separator %v in left subtree", e, sep)
			}
			if !below && c < 0 {
				return fmt.Errorf("entry %v below separator %v in right subtree", e, sep)
			}
		}
		return nil
	}
	for _, c := range n.children {
		if err := t.checkSubtreeBound(c, sep, below); err != nil {
			return err
		}
	}
	return nil
}
