package engine

import (
	"ghostdb/src/btreeindex"
	"ghostdb/src/keys"
)

// AccessKind is the access path chosen for a query
type AccessKind int

const (
	// AccessScan walks every document of the collection
	AccessScan AccessKind = iota
	// AccessHash resolves candidates by an equality lookup
	AccessHash
	// AccessRange resolves candidates by an ordered range scan
	AccessRange
)

func (k AccessKind) String() string {
	switch k {
	case AccessHash:
		return "hash"
	case AccessRange:
		return "range"
	default:
		return "scan"
	}
}

// Plan is the planner's decision for one query
type Plan struct {
	Access AccessKind
	Field  string

	// Value is the equality key for AccessHash
	Value interface{}

	// Range bounds the ordered scan for AccessRange
	Range btreeindex.Range
}

// plan walks the filter's top-level fields and picks the cheapest
// access path: an indexed equality beats an indexed range beats a full
// scan. Fields are considered in the filter's normalized order, so the
// choice is deterministic.
func (db *DB) plan(collection string, f *Filter) Plan {
	for _, ff := range f.fields {
		if !db.indexes.HasEquality(collection, ff.field) {
			continue
		}
		for _, c := range ff.crits {
			if c.op == "eq" {
				return Plan{Access: AccessHash, Field: ff.field, Value: c.operand}
			}
		}
	}

	for _, ff := range f.fields {
		if !db.indexes.HasRange(collection, ff.field) {
			continue
		}
		r, ok := rangeBounds(ff.crits)
		if ok {
			return Plan{Access: AccessRange, Field: ff.field, Range: r}
		}
	}

	return Plan{Access: AccessScan}
}

// rangeBounds folds gt/gte/lt/lte criteria into scan bounds. When two
// criteria bound the same side, the looser one wins: the scan may only
// over-approximate, since the residual predicate trims the rest.
func rangeBounds(crits []criterion) (btreeindex.Range, bool) {
	var r btreeindex.Range
	found := false
	for _, c := range crits {
		switch c.op {
		case "gt", "gte":
			inclusive := c.op == "gte"
			if !r.HasLo || looser(c.operand, r.Lo, true) {
				r.Lo, r.HasLo, r.IncLo = c.operand, true, inclusive
			}
			found = true
		case "lt", "lte":
			inclusive := c.op == "lte"
			if !r.HasHi || looser(c.operand, r.Hi, false) {
				r.Hi, r.HasHi, r.IncHi = c.operand, true, inclusive
			}
			found = true
		}
	}
	return r, found
}

func looser(candidate, current interface{}, lowSide bool) bool {
	if lowSide {
		return keys.Compare(candidate, current) < 0
	}
	return keys.Compare(candidate, current) > 0
}
