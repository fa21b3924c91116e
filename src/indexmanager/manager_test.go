package indexmanager

import (
	"fmt"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ghostdb/src/btreeindex"
	"ghostdb/src/dberrors"
	"ghostdb/src/keys"
	"ghostdb/src/models"
)

func newTestManager() *Manager {
	return NewManager(keys.NewHasher(0), zap.NewNop().Sugar(), 4, 8)
}

func emptyScan() iter.Seq2[string, map[string]interface{}] {
	return func(yield func(string, map[string]interface{}) bool) {}
}

func docScan(docs map[string]map[string]interface{}) iter.Seq2[string, map[string]interface{}] {
	return func(yield func(string, map[string]interface{}) bool) {
		for id, body := range docs {
			if !yield(id, body) {
				return
			}
		}
	}
}

func TestCreateAndLookup(t *testing.T) {
	m := newTestManager()

	_, err := m.Create("users", "email", models.IndexOptions{Kind: models.BothKind}, emptyScan())
	require.NoError(t, err)
	assert.True(t, m.HasEquality("users", "email"))
	assert.True(t, m.HasRange("users", "email"))

	require.NoError(t, m.ApplyInsert("users", "u1", map[string]interface{}{"email": "a@x", "age": 3}))
	require.NoError(t, m.ApplyInsert("users", "u2", map[string]interface{}{"email": "b@x"}))

	ids, err := m.LookupEqual("users", "email", "a@x")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)

	// Documents without the field are simply not indexed
	ids, err = m.LookupEqual("users", "email", "missing@x")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCreateBuildsFromExistingDocuments(t *testing.T) {
	m := newTestManager()

	docs := map[string]map[string]interface{}{
		"d1": {"score": 10},
		"d2": {"score": 30},
		"d3": {"other": 1},
		"d4": {"score": 20},
	}
	_, err := m.Create("games", "score", models.IndexOptions{Kind: models.OrderedKind}, docScan(docs))
	require.NoError(t, err)

	seq, err := m.LookupRange("games", "score", btreeindex.Range{})
	require.NoError(t, err)
	var got []string
	for id := range seq {
		got = append(got, id)
	}
	assert.Equal(t, []string{"d1", "d4", "d2"}, got)
}

func TestCreateDuplicateIndexFails(t *testing.T) {
	m := newTestManager()
	_, err := m.Create("c", "f", models.IndexOptions{}, emptyScan())
	require.NoError(t, err)

	_, err = m.Create("c", "f", models.IndexOptions{}, emptyScan())
	require.ErrorIs(t, err, dberrors.ErrDuplicateIndex)
}

func TestUniqueConflictDuringBuildLeavesNoBundle(t *testing.T) {
	m := newTestManager()

	docs := map[string]map[string]interface{}{
		"d1": {"code": "x"},
		"d2": {"code": "x"},
	}
	_, err := m.Create("c", "code", models.IndexOptions{Kind: models.BothKind, Unique: true}, docScan(docs))
	require.ErrorIs(t, err, dberrors.ErrDuplicateKey)

	assert.False(t, m.HasEquality("c", "code"))
	assert.Empty(t, m.List("c"))
}

func TestDropIndex(t *testing.T) {
	m := newTestManager()
	_, err := m.Create("c", "f", models.IndexOptions{}, emptyScan())
	require.NoError(t, err)

	require.NoError(t, m.Drop("c", "f"))
	assert.False(t, m.HasEquality("c", "f"))
	require.ErrorIs(t, m.Drop("c", "f"), dberrors.ErrUnknownIndex)
}

func TestApplyUpdateMovesEntries(t *testing.T) {
	m := newTestManager()
	_, err := m.Create("c", "name", models.IndexOptions{Kind: models.HashKind}, emptyScan())
	require.NoError(t, err)
	_, err = m.Create("c", "ts", models.IndexOptions{Kind: models.OrderedKind}, emptyScan())
	require.NoError(t, err)

	old := map[string]interface{}{"name": "x", "ts": 10}
	require.NoError(t, m.ApplyInsert("c", "X", old))

	updated := map[string]interface{}{"name": "x", "ts": 20}
	require.NoError(t, m.ApplyUpdate("c", "X", old, updated))

	// The unchanged field keeps its entry
	ids, err := m.LookupEqual("c", "name", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, ids)

	// The changed field moved
	inRange := func(lo, hi int) []string {
		seq, err := m.LookupRange("c", "ts", btreeindex.Range{
			Lo: lo, Hi: hi, HasLo: true, HasHi: true, IncLo: true, IncHi: true,
		})
		require.NoError(t, err)
		var out []string
		for id := range seq {
			out = append(out, id)
		}
		return out
	}
	assert.Empty(t, inRange(5, 15))
	assert.Equal(t, []string{"X"}, inRange(15, 25))
}

func TestApplyDeletePurgesAllBundles(t *testing.T) {
	m := newTestManager()
	_, err := m.Create("c", "a", models.IndexOptions{Kind: models.BothKind}, emptyScan())
	require.NoError(t, err)
	_, err = m.Create("c", "b", models.IndexOptions{Kind: models.HashKind}, emptyScan())
	require.NoError(t, err)

	body := map[string]interface{}{"a": 1, "b": "two"}
	require.NoError(t, m.ApplyInsert("c", "doc", body))
	require.NoError(t, m.ApplyDelete("c", "doc", body))

	ids, err := m.LookupEqual("c", "a", 1)
	require.NoError(t, err)
	assert.Empty(t, ids)
	ids, err = m.LookupEqual("c", "b", "two")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFailedInsertRollsBackAppliedBundles(t *testing.T) {
	m := newTestManager()
	_, err := m.Create("c", "free", models.IndexOptions{Kind: models.BothKind}, emptyScan())
	require.NoError(t, err)
	_, err = m.Create("c", "uniq", models.IndexOptions{Kind: models.BothKind, Unique: true}, emptyScan())
	require.NoError(t, err)

	require.NoError(t, m.ApplyInsert("c", "d1", map[string]interface{}{"free": 1, "uniq": "taken"}))

	// The second document collides on the unique bundle; whichever
	// bundle was applied first must be rolled back.
	err = m.ApplyInsert("c", "d2", map[string]interface{}{"free": 2, "uniq": "taken"})
	require.ErrorIs(t, err, dberrors.ErrDuplicateKey)

	ids, err := m.LookupEqual("c", "free", 2)
	require.NoError(t, err)
	assert.Empty(t, ids, "rolled-back insert must leave no entry behind")

	ids, err = m.LookupEqual("c", "uniq", "taken")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, ids)
}

func TestLookupOnMissingIndex(t *testing.T) {
	m := newTestManager()
	_, err := m.LookupEqual("c", "f", 1)
	require.ErrorIs(t, err, dberrors.ErrUnknownIndex)
	_, err = m.LookupRange("c", "f", btreeindex.Range{})
	require.ErrorIs(t, err, dberrors.ErrUnknownIndex)
}

func TestRangeOnHashOnlyIndexFails(t *testing.T) {
	m := newTestManager()
	_, err := m.Create("c", "f", models.IndexOptions{Kind: models.HashKind}, emptyScan())
	require.NoError(t, err)

	assert.True(t, m.HasEquality("c", "f"))
	assert.False(t, m.HasRange("c", "f"))
	_, err = m.LookupRange("c", "f", btreeindex.Range{})
	require.ErrorIs(t, err, dberrors.ErrUnknownIndex)
}

func TestStats(t *testing.T) {
	m := newTestManager()
	_, err := m.Create("c", "f", models.IndexOptions{Kind: models.BothKind, ShardCount: 4}, emptyScan())
	require.NoError(t, err)

	for i := 0; i < 64; i++ {
		require.NoError(t, m.ApplyInsert("c", fmt.Sprintf("d%d", i), map[string]interface{}{"f": i}))
	}

	stats := m.Stats("c")
	require.Len(t, stats, 1)
	assert.Equal(t, 64, stats[0].Entries)
	assert.NotEmpty(t, stats[0].ProbeHistogram)
	assert.GreaterOrEqual(t, stats[0].TreeHeight, 2)
}
