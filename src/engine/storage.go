package engine

import (
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"ghostdb/src/dberrors"
	"ghostdb/src/models"
)

// collection holds the live documents of one named collection. The
// order slice preserves insertion order so scans are stable; version is
// bumped on every mutation and stamps cached query results.
type collection struct {
	mu      sync.RWMutex
	name    string
	schema  map[string]models.FieldDefinition
	docs    map[string]*models.Document
	sizes   map[string]int64
	order   []string
	version uint64
}

// MemoryStore is the in-process storage collaborator: a mapping of
// collection name to (document id -> document), with stable iteration
// for full scans and incremental memory accounting.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*collection

	memory     atomic.Int64
	maxMemory  int64
	versionSrc atomic.Uint64

	logger *zap.SugaredLogger
}

// NewMemoryStore creates an empty store. maxMemory 0 means unlimited.
func NewMemoryStore(maxMemory int64, logger *zap.SugaredLogger) *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*collection),
		maxMemory:   maxMemory,
		logger:      logger,
	}
}

// EstimateSize measures a document body the way the snapshot encodes
// it. The result is computed once per mutation and tracked as a delta,
// never by rescanning the store.
func EstimateSize(body map[string]interface{}) int64 {
	data, err := bson.Marshal(bson.M(body))
	if err != nil {
		return int64(len(fmt.Sprintf("%v", body)))
	}
	return int64(len(data))
}

// CreateCollection registers a new named collection with an optional
// schema
func (s *MemoryStore) CreateCollection(name string, schema []models.FieldDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[name]; ok {
		return fmt.Errorf("collection %s: %w", name, dberrors.ErrDuplicateCollection)
	}

	c := &collection{
		name:  name,
		docs:  make(map[string]*models.Document),
		sizes: make(map[string]int64),
		// A fresh version from the shared source keeps cache keys of a
		// dropped-and-recreated collection distinct.
		version: s.versionSrc.Add(1),
	}
	if len(schema) > 0 {
		c.schema = make(map[string]models.FieldDefinition, len(schema))
		for _, f := range schema {
			c.schema[f.Name] = f
		}
	}
	s.collections[name] = c
	s.logger.Infof("Created collection %s", name)
	return nil
}

// DropCollection removes the collection and all its documents
func (s *MemoryStore) DropCollection(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("collection %s: %w", name, dberrors.ErrUnknownCollection)
	}
	c.mu.Lock()
	for _, size := range c.sizes {
		s.memory.Add(-size)
	}
	c.mu.Unlock()
	delete(s.collections, name)
	s.logger.Infof("Dropped collection %s", name)
	return nil
}

func (s *MemoryStore) collection(name string) (*collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, dberrors.ErrUnknownCollection)
	}
	return c, nil
}

// HasCollection reports whether the collection exists
func (s *MemoryStore) HasCollection(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok
}

// Names returns every collection name
func (s *MemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.collections))
	for name := range s.collections {
		out = append(out, name)
	}
	return out
}

// Schema returns the collection's schema, nil when schema-less
func (s *MemoryStore) Schema(name string) (map[string]models.FieldDefinition, error) {
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	return c.schema, nil
}

// CheckCapacity fails with ErrOutOfMemory when adding delta bytes would
// cross the ceiling. Called before any index mutation of an insert.
func (s *MemoryStore) CheckCapacity(delta int64) error {
	if s.maxMemory <= 0 {
		return nil
	}
	if s.memory.Load()+delta > s.maxMemory {
		return fmt.Errorf("tracked %d bytes, ceiling %d bytes: %w",
			s.memory.Load(), s.maxMemory, dberrors.ErrOutOfMemory)
	}
	return nil
}

// Put inserts or replaces a document
func (s *MemoryStore) Put(name string, doc *models.Document) error {
	c, err := s.collection(name)
	if err != nil {
		return err
	}

	size := EstimateSize(doc.Fields)
	c.mu.Lock()
	if old, ok := c.sizes[doc.DocumentID]; ok {
		s.memory.Add(size - old)
	} else {
		c.order = append(c.order, doc.DocumentID)
		s.memory.Add(size)
	}
	c.docs[doc.DocumentID] = doc
	c.sizes[doc.DocumentID] = size
	c.version = s.versionSrc.Add(1)
	c.mu.Unlock()
	return nil
}

// Get returns the live document, or nil when absent
func (s *MemoryStore) Get(name, id string) (*models.Document, error) {
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docs[id], nil
}

// Remove deletes a document; reports whether it existed
func (s *MemoryStore) Remove(name, id string) (bool, error) {
	c, err := s.collection(name)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return false, nil
	}
	s.memory.Add(-c.sizes[id])
	delete(c.docs, id)
	delete(c.sizes, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.version = s.versionSrc.Add(1)
	return true, nil
}

// Iterate yields (id, body) for every document in insertion order. The
// iteration runs over a snapshot of the membership taken when it
// starts, so the order is stable for the iterator's lifetime.
func (s *MemoryStore) Iterate(name string) iter.Seq2[string, map[string]interface{}] {
	return func(yield func(string, map[string]interface{}) bool) {
		c, err := s.collection(name)
		if err != nil {
			return
		}

		c.mu.RLock()
		ids := make([]string, len(c.order))
		copy(ids, c.order)
		c.mu.RUnlock()

		for _, id := range ids {
			c.mu.RLock()
			doc := c.docs[id]
			c.mu.RUnlock()
			if doc == nil {
				continue
			}
			if !yield(id, doc.Fields) {
				return
			}
		}
	}
}

// Documents returns the live documents in insertion order
func (s *MemoryStore) Documents(name string) ([]*models.Document, error) {
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.Document, 0, len(c.order))
	for _, id := range c.order {
		if doc, ok := c.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Count returns the number of live documents
func (s *MemoryStore) Count(name string) (int, error) {
	c, err := s.collection(name)
	if err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs), nil
}

// Version returns the collection's mutation stamp
func (s *MemoryStore) Version(name string) (uint64, error) {
	c, err := s.collection(name)
	if err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version, nil
}

// MemoryUsage returns the tracked sum of document body sizes
func (s *MemoryStore) MemoryUsage() int64 {
	return s.memory.Load()
}
