package indexmanager

import (
	"fmt"

	"ghostdb/src/btreeindex"
	"ghostdb/src/hashindex"
	"ghostdb/src/keys"
	"ghostdb/src/models"
)

// Bundle is the set of index structures on one (collection, field)
// pair: a sharded hash index, a B+ tree, or both, per the requested
// kind. Bundles hold only (key, id) pairs, never document bodies.
type Bundle struct {
	Descriptor models.IndexDescriptor

	hash *hashindex.Sharded
	tree *btreeindex.Tree
}

func newBundle(desc models.IndexDescriptor) *Bundle {
	b := &Bundle{Descriptor: desc}
	if desc.Kind.HasHash() {
		b.hash = hashindex.NewSharded(desc.ShardCount, desc.Unique)
	}
	if desc.Kind.HasOrdered() {
		b.tree = btreeindex.NewTree(desc.Order, desc.Unique)
	}
	return b
}

// add inserts (value, id) into every structure of the bundle. If the
// tree insert fails after the hash insert succeeded, the hash entry is
// taken back out so the bundle never holds half a mutation.
func (b *Bundle) add(hasher *keys.Hasher, value interface{}, id string) error {
	enc := keys.Encode(value)
	hash := hasher.Sum(enc)
	shard := keys.ShardSum(enc)

	if b.hash != nil {
		if err := b.hash.Insert(enc, hash, shard, id); err != nil {
			return fmt.Errorf("field %s: %w", b.Descriptor.Field, err)
		}
	}
	if b.tree != nil {
		if err := b.tree.Insert(value, id); err != nil {
			if b.hash != nil {
				b.hash.Delete(enc, hash, shard, id)
			}
			return fmt.Errorf("field %s: %w", b.Descriptor.Field, err)
		}
	}
	return nil
}

// remove deletes (value, id) from every structure of the bundle
func (b *Bundle) remove(hasher *keys.Hasher, value interface{}, id string) {
	enc := keys.Encode(value)
	hash := hasher.Sum(enc)
	shard := keys.ShardSum(enc)

	if b.hash != nil {
		b.hash.Delete(enc, hash, shard, id)
	}
	if b.tree != nil {
		b.tree.Delete(value, id)
	}
}

// Entries returns the number of (key, id) pairs held by the bundle
func (b *Bundle) Entries() int {
	if b.hash != nil {
		return b.hash.Pairs()
	}
	if b.tree != nil {
		return b.tree.Len()
	}
	return 0
}

// Stats snapshots the bundle for the observability surface
func (b *Bundle) Stats() models.IndexStats {
	s := models.IndexStats{
		Collection: b.Descriptor.Collection,
		Field:      b.Descriptor.Field,
		Kind:       b.Descriptor.Kind,
		Unique:     b.Descriptor.Unique,
		Entries:    b.Entries(),
	}
	if b.hash != nil {
		s.ProbeHistogram = b.hash.ProbeHistogram()
		s.ShardBalance = b.hash.BalanceScore()
	}
	if b.tree != nil {
		s.TreeHeight = b.tree.Height()
	}
	return s
}
