package models

import "time"

// IndexKind selects which index structures a bundle carries
type IndexKind string

const (
	HashKind    IndexKind = "hash"
	OrderedKind IndexKind = "ordered"
	BothKind    IndexKind = "both"
)

// HasHash reports whether the kind includes an equality index
func (k IndexKind) HasHash() bool {
	return k == HashKind || k == BothKind
}

// HasOrdered reports whether the kind includes an ordered index
func (k IndexKind) HasOrdered() bool {
	return k == OrderedKind || k == BothKind
}

type Document struct {
	// DocumentID is the unique identifier for the document within its collection.
	DocumentID string

	// Fields is the document body.
	Fields map[string]interface{}

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IndexOptions are the caller-supplied knobs for CreateIndex
type IndexOptions struct {
	Kind IndexKind

	// Unique makes duplicate key insertion fail
	Unique bool

	// ShardCount partitions the hash side across this many tables.
	// Must be a power of two; 0 picks the configured default.
	ShardCount int

	// Order is the B+ tree branching factor; 0 picks the configured default.
	Order int
}

// IndexDescriptor describes a live index bundle
type IndexDescriptor struct {
	// IndexID is the unique identifier for the index.
	IndexID string

	Collection string
	Field      string
	Kind       IndexKind
	Unique     bool
	ShardCount int
	Order      int
	CreatedAt  time.Time
}

// FieldDefinition declares one field of an optional collection schema
type FieldDefinition struct {
	Name string

	// Type is one of "string", "int", "float", "bool", "array", "object", "any".
	Type string

	Required     bool
	DefaultValue interface{}
}

type SortField struct {
	Field      string
	Descending bool
}

// QueryOptions shape the result set of a find
type QueryOptions struct {
	Sort       []SortField
	Skip       int
	Limit      int
	Projection []string
}

// IndexStats is the per-bundle slice of Stats
type IndexStats struct {
	Collection string
	Field      string
	Kind       IndexKind
	Unique     bool

	// Entries is the number of (key, id) pairs currently indexed
	Entries int

	// ProbeHistogram counts hash entries by probe sequence length
	ProbeHistogram map[int]int

	// ShardBalance is max deviation from the mean shard load / mean
	ShardBalance float64

	// TreeHeight is the ordered index height, 0 when absent
	TreeHeight int
}

type CollectionStats struct {
	Name      string
	Documents int
	Indexes   []IndexStats
}

// Stats is the snapshot returned by the observability surface
type Stats struct {
	Collections []CollectionStats

	// MemoryBytes is the tracked sum of document body sizes
	MemoryBytes int64

	QueryCacheHits   uint64
	QueryCacheMisses uint64
	HashCacheHits    uint64
	HashCacheMisses  uint64
}
