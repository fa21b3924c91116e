package engine

import (
	"fmt"
	"sort"

	"ghostdb/src/keys"
	"ghostdb/src/models"
)

// candidates produces the document ids the access path yields. For a
// full scan this is the stable collection iteration; indexed paths ask
// the index manager.
func (db *DB) candidates(collection string, plan Plan) ([]string, error) {
	switch plan.Access {
	case AccessHash:
		return db.indexes.LookupEqual(collection, plan.Field, plan.Value)

	case AccessRange:
		seq, err := db.indexes.LookupRange(collection, plan.Field, plan.Range)
		if err != nil {
			return nil, err
		}
		var ids []string
		for id := range seq {
			ids = append(ids, id)
		}
		return ids, nil

	default:
		var ids []string
		for id := range db.store.Iterate(collection) {
			ids = append(ids, id)
		}
		return ids, nil
	}
}

// runFilter materializes every candidate from the live store and keeps
// the ones the full filter accepts. Evaluating the complete filter as a
// residual predicate keeps results correct even when an index lags a
// concurrent mutation on another bundle.
func (db *DB) runFilter(collection string, f *Filter, plan Plan) ([]*models.Document, error) {
	ids, err := db.candidates(collection, plan)
	if err != nil {
		return nil, err
	}

	docs := make([]*models.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := db.store.Get(collection, id)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		if f.Matches(doc.Fields) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// sortDocuments stable-sorts in place by the requested keys. On an
// ascending key documents missing the field sort last; on a descending
// key they sort first.
func sortDocuments(docs []*models.Document, sortFields []models.SortField) {
	if len(sortFields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, sf := range sortFields {
			a, aOk := docs[i].Fields[sf.Field]
			b, bOk := docs[j].Fields[sf.Field]
			c := compareForSort(a, b, aOk, bOk, sf.Descending)
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func compareForSort(a, b interface{}, aOk, bOk bool, descending bool) int {
	aNull := !aOk || a == nil
	bNull := !bOk || b == nil
	if aNull || bNull {
		switch {
		case aNull && bNull:
			return 0
		case aNull:
			if descending {
				return -1
			}
			return 1
		default:
			if descending {
				return 1
			}
			return -1
		}
	}

	c := keys.Compare(a, b)
	if descending {
		return -c
	}
	return c
}

// applyWindow applies skip then limit, in that order
func applyWindow(docs []*models.Document, skip, limit int) []*models.Document {
	if skip > 0 {
		if skip >= len(docs) {
			return nil
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

// project copies each document down to the listed fields. The document
// identifier and timestamps are always retained; an empty projection
// returns the documents untouched.
func project(docs []*models.Document, fields []string) []*models.Document {
	if len(fields) == 0 {
		return docs
	}
	out := make([]*models.Document, len(docs))
	for i, doc := range docs {
		trimmed := &models.Document{
			DocumentID: doc.DocumentID,
			Fields:     make(map[string]interface{}, len(fields)),
			CreatedAt:  doc.CreatedAt,
			UpdatedAt:  doc.UpdatedAt,
		}
		for _, f := range fields {
			if v, ok := doc.Fields[f]; ok {
				trimmed.Fields[f] = v
			}
		}
		out[i] = trimmed
	}
	return out
}

// optionsSignature renders query options into the cache key
func optionsSignature(opts models.QueryOptions) string {
	sig := fmt.Sprintf("skip=%d;limit=%d;", opts.Skip, opts.Limit)
	for _, sf := range opts.Sort {
		dir := "asc"
		if sf.Descending {
			dir = "desc"
		}
		sig += fmt.Sprintf("sort=%s.%s;", sf.Field, dir)
	}
	for _, f := range opts.Projection {
		sig += fmt.Sprintf("proj=%s;", f)
	}
	return sig
}
