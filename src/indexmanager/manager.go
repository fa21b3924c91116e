package indexmanager

import (
	"fmt"
	"iter"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"ghostdb/src/btreeindex"
	"ghostdb/src/dberrors"
	"ghostdb/src/helpers"
	"ghostdb/src/keys"
	"ghostdb/src/models"
)

// Manager owns every index bundle, keyed by (collection, field). All
// document mutations flow through it so the bundles stay in agreement
// with the live documents; queries come to it for access paths.
type Manager struct {
	mu      sync.RWMutex
	bundles map[string]map[string]*Bundle

	hasher        *keys.Hasher
	logger        *zap.SugaredLogger
	defaultShards int
	defaultOrder  int
}

// NewManager creates an index manager. The hasher is shared across all
// hash indexes so its key cache warms globally.
func NewManager(hasher *keys.Hasher, logger *zap.SugaredLogger, defaultShards, defaultOrder int) *Manager {
	if defaultShards <= 0 {
		defaultShards = 16
	}
	if defaultOrder <= 0 {
		defaultOrder = btreeindex.DefaultOrder
	}
	return &Manager{
		bundles:       make(map[string]map[string]*Bundle),
		hasher:        hasher,
		logger:        logger,
		defaultShards: defaultShards,
		defaultOrder:  defaultOrder,
	}
}

// Create allocates the requested index structures and builds them from
// the document scan. A unique conflict during the build fails the whole
// creation; nothing is registered until the build succeeded.
func (m *Manager) Create(collection, field string, opts models.IndexOptions,
	scan iter.Seq2[string, map[string]interface{}]) (models.IndexDescriptor, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bundles[collection][field]; ok {
		return models.IndexDescriptor{}, fmt.Errorf("field %s on collection %s: %w", field, collection, dberrors.ErrDuplicateIndex)
	}

	kind := opts.Kind
	if kind == "" {
		kind = models.BothKind
	}
	shards := opts.ShardCount
	if shards <= 0 {
		shards = m.defaultShards
	}
	order := opts.Order
	if order <= 0 {
		order = m.defaultOrder
	}

	desc := models.IndexDescriptor{
		IndexID:    helpers.GenerateUUID(),
		Collection: collection,
		Field:      field,
		Kind:       kind,
		Unique:     opts.Unique,
		ShardCount: shards,
		Order:      order,
		CreatedAt:  time.Now(),
	}

	m.logger.Infof("Creating %s index on %s.%s (unique=%v, shards=%d)",
		kind, collection, field, opts.Unique, shards)
	start := time.Now()

	bundle := newBundle(desc)
	entries := 0
	for id, body := range scan {
		value, ok := body[field]
		if !ok {
			continue
		}
		if err := bundle.add(m.hasher, value, id); err != nil {
			IndexBuilds.WithLabelValues(collection, field, "error").Inc()
			return models.IndexDescriptor{}, fmt.Errorf("index build on %s.%s failed at document %s: %w",
				collection, field, id, err)
		}
		entries++
	}

	if m.bundles[collection] == nil {
		m.bundles[collection] = make(map[string]*Bundle)
	}
	m.bundles[collection][field] = bundle

	IndexBuilds.WithLabelValues(collection, field, "success").Inc()
	IndexBuildDuration.WithLabelValues(collection, field).Observe(float64(time.Since(start).Milliseconds()))
	m.logger.Infof("Successfully created index on %s.%s with %d entries", collection, field, entries)
	return desc, nil
}

// Drop releases the bundle on (collection, field)
func (m *Manager) Drop(collection, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bundles[collection][field]; !ok {
		return fmt.Errorf("field %s on collection %s: %w", field, collection, dberrors.ErrUnknownIndex)
	}
	delete(m.bundles[collection], field)
	if len(m.bundles[collection]) == 0 {
		delete(m.bundles, collection)
	}
	m.logger.Infof("Dropped index on %s.%s", collection, field)
	return nil
}

// DropCollection releases every bundle on the collection
func (m *Manager) DropCollection(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bundles, collection)
}

// List returns the descriptors of every bundle on the collection
func (m *Manager) List(collection string) []models.IndexDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.IndexDescriptor
	for _, b := range m.bundles[collection] {
		out = append(out, b.Descriptor)
	}
	return out
}

// HasEquality reports whether (collection, field) has an index that can
// answer equality lookups
func (m *Manager) HasEquality(collection, field string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bundles[collection][field]
	return ok && (b.hash != nil || b.tree != nil)
}

// HasRange reports whether (collection, field) has an ordered index
func (m *Manager) HasRange(collection, field string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bundles[collection][field]
	return ok && b.tree != nil
}

func (m *Manager) collectionBundles(collection string) []*Bundle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Bundle, 0, len(m.bundles[collection]))
	for _, b := range m.bundles[collection] {
		out = append(out, b)
	}
	return out
}

// ApplyInsert indexes a freshly inserted document
func (m *Manager) ApplyInsert(collection, id string, body map[string]interface{}) error {
	return m.applyMutation(collection, id, nil, body, "insert")
}

// ApplyUpdate reindexes the fields whose values changed
func (m *Manager) ApplyUpdate(collection, id string, oldBody, newBody map[string]interface{}) error {
	return m.applyMutation(collection, id, oldBody, newBody, "update")
}

// ApplyDelete purges every index entry of a removed document
func (m *Manager) ApplyDelete(collection, id string, oldBody map[string]interface{}) error {
	return m.applyMutation(collection, id, oldBody, nil, "delete")
}

// applyMutation walks every bundle of the collection and applies the
// remove-old / add-new halves that pertain to it. A failure rolls back
// the halves already applied so the indexes return to their
// pre-mutation state.
func (m *Manager) applyMutation(collection, id string, oldBody, newBody map[string]interface{}, op string) error {
	bundles := m.collectionBundles(collection)
	if len(bundles) == 0 {
		return nil
	}

	var undo []func() error
	for _, b := range bundles {
		field := b.Descriptor.Field
		oldValue, hadOld := lookupField(oldBody, field)
		newValue, hasNew := lookupField(newBody, field)

		if hadOld && hasNew && keys.Equal(oldValue, newValue) {
			continue
		}

		if hadOld {
			bundle := b
			b.remove(m.hasher, oldValue, id)
			undo = append(undo, func() error {
				return bundle.add(m.hasher, oldValue, id)
			})
		}
		if hasNew {
			if err := b.add(m.hasher, newValue, id); err != nil {
				return m.rollback(undo, fmt.Errorf("collection %s: %w", collection, err))
			}
			bundle, value := b, newValue
			undo = append(undo, func() error {
				bundle.remove(m.hasher, value, id)
				return nil
			})
		}
		IndexMutations.WithLabelValues(collection, field, op).Inc()
	}
	return nil
}

// rollback unwinds applied index halves in reverse order. Undo failures
// are joined onto the original error rather than swallowed.
func (m *Manager) rollback(undo []func() error, cause error) error {
	err := cause
	for i := len(undo) - 1; i >= 0; i-- {
		if undoErr := undo[i](); undoErr != nil {
			m.logger.Warnf("index rollback step failed: %v", undoErr)
			err = multierr.Append(err, undoErr)
		}
	}
	return err
}

func lookupField(body map[string]interface{}, field string) (interface{}, bool) {
	if body == nil {
		return nil, false
	}
	v, ok := body[field]
	return v, ok
}

// LookupEqual returns the ids whose indexed field equals value. The
// hash side answers when present; an ordered-only bundle serves the
// lookup as a degenerate range.
func (m *Manager) LookupEqual(collection, field string, value interface{}) ([]string, error) {
	m.mu.RLock()
	b, ok := m.bundles[collection][field]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("field %s on collection %s: %w", field, collection, dberrors.ErrUnknownIndex)
	}

	IndexLookups.WithLabelValues(collection, field, "equal").Inc()
	if b.hash != nil {
		enc := keys.Encode(value)
		return b.hash.Lookup(enc, m.hasher.Sum(enc), keys.ShardSum(enc)), nil
	}
	return b.tree.LookupIDs(value), nil
}

// LookupRange yields ids whose indexed field falls in the range, in
// ascending key order
func (m *Manager) LookupRange(collection, field string, r btreeindex.Range) (iter.Seq[string], error) {
	m.mu.RLock()
	b, ok := m.bundles[collection][field]
	m.mu.RUnlock()
	if !ok || b.tree == nil {
		return nil, fmt.Errorf("field %s on collection %s: %w", field, collection, dberrors.ErrUnknownIndex)
	}

	IndexLookups.WithLabelValues(collection, field, "range").Inc()
	return func(yield func(string) bool) {
		for e := range b.tree.Scan(r) {
			if !yield(e.ID) {
				return
			}
		}
	}, nil
}

// Stats snapshots every bundle on the collection
func (m *Manager) Stats(collection string) []models.IndexStats {
	bundles := m.collectionBundles(collection)
	out := make([]models.IndexStats, 0, len(bundles))
	for _, b := range bundles {
		out = append(out, b.Stats())
	}
	return out
}
