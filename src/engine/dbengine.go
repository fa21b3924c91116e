package engine

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"ghostdb/src/dberrors"
	"ghostdb/src/helpers"
	"ghostdb/src/indexmanager"
	"ghostdb/src/keys"
	"ghostdb/src/models"
	"ghostdb/src/persistence"
	"ghostdb/src/settings"
)

// DB is the public surface of the store: collection lifecycle, document
// CRUD, index lifecycle, and observability. It wires the storage layer,
// the index manager, and the query pipeline together.
type DB struct {
	store   *MemoryStore
	indexes *indexmanager.Manager
	hasher  *keys.Hasher

	queryCache  *lru.Cache[string, []string]
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64

	settings *settings.Arguments
	logger   *zap.SugaredLogger
}

// NewDB creates an empty store from the settings
func NewDB(args *settings.Arguments, logger *zap.SugaredLogger) *DB {
	hasher := keys.NewHasher(args.HashCacheSize)
	db := &DB{
		store:    NewMemoryStore(args.MaxMemoryBytes, logger),
		indexes:  indexmanager.NewManager(hasher, logger, args.DefaultShardCount, args.BTreeOrder),
		hasher:   hasher,
		settings: args,
		logger:   logger,
	}
	if args.QueryCacheSize > 0 {
		db.queryCache, _ = lru.New[string, []string](args.QueryCacheSize)
	}
	return db
}

// IndexManager exposes the index manager for observability and tests
func (db *DB) IndexManager() *indexmanager.Manager {
	return db.indexes
}

// CreateCollection registers a new collection; schema is optional
func (db *DB) CreateCollection(name string, schema []models.FieldDefinition) error {
	return db.store.CreateCollection(name, schema)
}

// DropCollection removes the collection, its documents, and all its
// index bundles
func (db *DB) DropCollection(name string) error {
	if err := db.store.DropCollection(name); err != nil {
		return err
	}
	db.indexes.DropCollection(name)
	return nil
}

// Insert adds a document and returns it with its generated id. A
// failure at any stage leaves neither store nor indexes touched.
func (db *DB) Insert(collection string, body map[string]interface{}) (*models.Document, error) {
	schema, err := db.store.Schema(collection)
	if err != nil {
		return nil, err
	}

	fields := cloneBody(body)
	applyDefaults(schema, fields)
	if err := validateSchema(schema, fields); err != nil {
		return nil, fmt.Errorf("collection %s: %w", collection, err)
	}

	// The memory ceiling is checked before any index is mutated
	if err := db.store.CheckCapacity(EstimateSize(fields)); err != nil {
		return nil, fmt.Errorf("collection %s: %w", collection, err)
	}

	now := time.Now()
	doc := &models.Document{
		DocumentID: helpers.NewDocumentID(),
		Fields:     fields,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := db.indexes.ApplyInsert(collection, doc.DocumentID, doc.Fields); err != nil {
		return nil, err
	}
	if err := db.store.Put(collection, doc); err != nil {
		// The collection vanished between the checks; take the index
		// entries back out.
		db.indexes.ApplyDelete(collection, doc.DocumentID, doc.Fields)
		return nil, err
	}
	return doc, nil
}

// FindByID returns the live document, or nil when absent
func (db *DB) FindByID(collection, id string) (*models.Document, error) {
	return db.store.Get(collection, id)
}

// Find runs the query pipeline: plan, candidates, residual filter,
// sort, skip, limit, projection.
func (db *DB) Find(collection string, rawFilter map[string]interface{}, opts models.QueryOptions) ([]*models.Document, error) {
	f, err := ParseFilter(rawFilter)
	if err != nil {
		return nil, err
	}
	version, err := db.store.Version(collection)
	if err != nil {
		return nil, err
	}

	var cacheKey string
	if db.queryCache != nil {
		cacheKey = fmt.Sprintf("%s@%d|%s|%s", collection, version, f.Signature(), optionsSignature(opts))
		if ids, ok := db.queryCache.Get(cacheKey); ok {
			db.cacheHits.Add(1)
			return db.materialize(collection, ids, opts.Projection)
		}
		db.cacheMisses.Add(1)
	}

	plan := db.plan(collection, f)
	docs, err := db.runFilter(collection, f, plan)
	if err != nil {
		return nil, err
	}
	sortDocuments(docs, opts.Sort)
	docs = applyWindow(docs, opts.Skip, opts.Limit)

	if db.queryCache != nil {
		ids := make([]string, len(docs))
		for i, doc := range docs {
			ids[i] = doc.DocumentID
		}
		db.queryCache.Add(cacheKey, ids)
	}
	return project(docs, opts.Projection), nil
}

// materialize re-reads cached result ids from the live store
func (db *DB) materialize(collection string, ids []string, projection []string) ([]*models.Document, error) {
	docs := make([]*models.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := db.store.Get(collection, id)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	return project(docs, projection), nil
}

// FindOne returns the first match, or nil when nothing matches
func (db *DB) FindOne(collection string, rawFilter map[string]interface{}) (*models.Document, error) {
	docs, err := db.Find(collection, rawFilter, models.QueryOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// matched runs just the filtering stages, uncached, for mutations
func (db *DB) matched(collection string, rawFilter map[string]interface{}) ([]*models.Document, error) {
	f, err := ParseFilter(rawFilter)
	if err != nil {
		return nil, err
	}
	if !db.store.HasCollection(collection) {
		return nil, fmt.Errorf("collection %s: %w", collection, dberrors.ErrUnknownCollection)
	}
	return db.runFilter(collection, f, db.plan(collection, f))
}

// Update merges the patch into every matched document's body and bumps
// its updated-at. Documents are updated one at a time; a failure stops
// the walk and reports how many were already updated.
func (db *DB) Update(collection string, rawFilter, patch map[string]interface{}) (int, error) {
	docs, err := db.matched(collection, rawFilter)
	if err != nil {
		return 0, err
	}
	schema, err := db.store.Schema(collection)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, doc := range docs {
		fields := cloneBody(doc.Fields)
		for k, v := range patch {
			fields[k] = v
		}
		if err := validateSchema(schema, fields); err != nil {
			return updated, fmt.Errorf("collection %s document %s: %w", collection, doc.DocumentID, err)
		}
		delta := EstimateSize(fields) - EstimateSize(doc.Fields)
		if delta > 0 {
			if err := db.store.CheckCapacity(delta); err != nil {
				return updated, fmt.Errorf("collection %s document %s: %w", collection, doc.DocumentID, err)
			}
		}

		if err := db.indexes.ApplyUpdate(collection, doc.DocumentID, doc.Fields, fields); err != nil {
			return updated, err
		}
		next := &models.Document{
			DocumentID: doc.DocumentID,
			Fields:     fields,
			CreatedAt:  doc.CreatedAt,
			UpdatedAt:  time.Now(),
		}
		if err := db.store.Put(collection, next); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// Delete removes every matched document and purges its index entries
func (db *DB) Delete(collection string, rawFilter map[string]interface{}) (int, error) {
	docs, err := db.matched(collection, rawFilter)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, doc := range docs {
		if err := db.indexes.ApplyDelete(collection, doc.DocumentID, doc.Fields); err != nil {
			return deleted, err
		}
		removed, err := db.store.Remove(collection, doc.DocumentID)
		if err != nil {
			return deleted, err
		}
		if removed {
			deleted++
		}
	}
	return deleted, nil
}

// Count runs the query pipeline without materializing projections
func (db *DB) Count(collection string, rawFilter map[string]interface{}) (int, error) {
	docs, err := db.matched(collection, rawFilter)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// CreateIndex builds an index bundle on (collection, field), scanning
// any documents the collection already holds
func (db *DB) CreateIndex(collection, field string, opts models.IndexOptions) (models.IndexDescriptor, error) {
	if !db.store.HasCollection(collection) {
		return models.IndexDescriptor{}, fmt.Errorf("collection %s: %w", collection, dberrors.ErrUnknownCollection)
	}
	return db.indexes.Create(collection, field, opts, db.store.Iterate(collection))
}

// DropIndex releases the bundle on (collection, field)
func (db *DB) DropIndex(collection, field string) error {
	if !db.store.HasCollection(collection) {
		return fmt.Errorf("collection %s: %w", collection, dberrors.ErrUnknownCollection)
	}
	return db.indexes.Drop(collection, field)
}

// ListIndexes returns the descriptors of the collection's bundles
func (db *DB) ListIndexes(collection string) ([]models.IndexDescriptor, error) {
	if !db.store.HasCollection(collection) {
		return nil, fmt.Errorf("collection %s: %w", collection, dberrors.ErrUnknownCollection)
	}
	descs := db.indexes.List(collection)
	sort.Slice(descs, func(i, j int) bool { return descs[i].Field < descs[j].Field })
	return descs, nil
}

// Stats snapshots the observability surface
func (db *DB) Stats() models.Stats {
	names := db.store.Names()
	sort.Strings(names)

	stats := models.Stats{MemoryBytes: db.store.MemoryUsage()}
	for _, name := range names {
		count, err := db.store.Count(name)
		if err != nil {
			continue
		}
		stats.Collections = append(stats.Collections, models.CollectionStats{
			Name:      name,
			Documents: count,
			Indexes:   db.indexes.Stats(name),
		})
	}
	stats.QueryCacheHits = db.cacheHits.Load()
	stats.QueryCacheMisses = db.cacheMisses.Load()
	stats.HashCacheHits, stats.HashCacheMisses = db.hasher.CacheStats()
	return stats
}

// Snapshot freezes the whole store into a persistence blob
func (db *DB) Snapshot() (*persistence.Snapshot, error) {
	names := db.store.Names()
	sort.Strings(names)

	snap := &persistence.Snapshot{
		FormatVersion: persistence.FormatVersion,
		TakenAt:       time.Now(),
	}
	for _, name := range names {
		docs, err := db.store.Documents(name)
		if err != nil {
			return nil, err
		}
		schema, err := db.store.Schema(name)
		if err != nil {
			return nil, err
		}

		cs := persistence.CollectionSnapshot{
			Name:    name,
			Indexes: db.indexes.List(name),
		}
		cs.Schema = schemaList(schema)
		for _, doc := range docs {
			cs.Docs = append(cs.Docs, persistence.DocumentSnapshot{
				ID:        doc.DocumentID,
				Fields:    doc.Fields,
				CreatedAt: doc.CreatedAt,
				UpdatedAt: doc.UpdatedAt,
			})
		}
		snap.Collections = append(snap.Collections, cs)
	}
	return snap, nil
}

// RestoreSnapshot loads a snapshot into an empty store. Documents keep
// their ids and timestamps; indexes are rebuilt by scanning the
// restored documents.
func (db *DB) RestoreSnapshot(snap *persistence.Snapshot) error {
	for _, cs := range snap.Collections {
		if err := db.store.CreateCollection(cs.Name, cs.Schema); err != nil {
			return err
		}
		for _, ds := range cs.Docs {
			doc := &models.Document{
				DocumentID: ds.ID,
				Fields:     ds.Fields,
				CreatedAt:  ds.CreatedAt,
				UpdatedAt:  ds.UpdatedAt,
			}
			if err := db.store.Put(cs.Name, doc); err != nil {
				return err
			}
		}
		for _, desc := range cs.Indexes {
			opts := models.IndexOptions{
				Kind:       desc.Kind,
				Unique:     desc.Unique,
				ShardCount: desc.ShardCount,
				Order:      desc.Order,
			}
			if _, err := db.CreateIndex(cs.Name, desc.Field, opts); err != nil {
				return fmt.Errorf("failed to rebuild index on %s.%s: %w", cs.Name, desc.Field, err)
			}
		}
	}
	db.logger.Infof("Restored %d collections from snapshot taken %s",
		len(snap.Collections), snap.TakenAt.Format(time.RFC3339))
	return nil
}

func schemaList(schema map[string]models.FieldDefinition) []models.FieldDefinition {
	if schema == nil {
		return nil
	}
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]models.FieldDefinition, 0, len(names))
	for _, name := range names {
		out = append(out, schema[name])
	}
	return out
}

func cloneBody(body map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(body))
	for k, v := range body {
		out[k] = v
	}
	return out
}
