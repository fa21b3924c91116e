package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostdb/src/models"
)

func TestFilterOperators(t *testing.T) {
	doc := body("n", 5, "s", "hello", "flag", true, "null", nil)

	cases := []struct {
		name   string
		filter map[string]interface{}
		want   bool
	}{
		{"literal equality", body("n", 5), true},
		{"literal mismatch", body("n", 6), false},
		{"eq operator", body("n", body("eq", 5)), true},
		{"eq cross numeric", body("n", body("eq", 5.0)), true},
		{"ne present", body("n", body("ne", 6)), true},
		{"ne matching", body("n", body("ne", 5)), false},
		{"ne absent field", body("ghost", body("ne", 1)), true},
		{"gt", body("n", body("gt", 4)), true},
		{"gt equal", body("n", body("gt", 5)), false},
		{"gte equal", body("n", body("gte", 5)), true},
		{"lt", body("n", body("lt", 6)), true},
		{"lte", body("n", body("lte", 5)), true},
		{"range on absent field", body("ghost", body("gte", 0)), false},
		{"in hit", body("s", body("in", []interface{}{"x", "hello"})), true},
		{"in miss", body("s", body("in", []interface{}{"x"})), false},
		{"nin", body("s", body("nin", []interface{}{"x"})), true},
		{"nin absent field", body("ghost", body("nin", []interface{}{1})), true},
		{"exists true", body("flag", body("exists", true)), true},
		{"exists false", body("ghost", body("exists", false)), true},
		{"exists on null field", body("null", body("exists", true)), true},
		{"combined range", body("n", body("gt", 1, "lt", 10)), true},
		{"combined range miss", body("n", body("gt", 1, "lt", 5)), false},
		{"dollar prefixes accepted", body("$n", body("$gte", 5)), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := ParseFilter(tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.want, f.Matches(doc))
		})
	}
}

func TestFilterLogicalKeys(t *testing.T) {
	doc := body("a", 1, "b", 2)

	and := body("and", []interface{}{
		map[string]interface{}{"a": 1},
		map[string]interface{}{"b": 2},
	})
	f, err := ParseFilter(and)
	require.NoError(t, err)
	assert.True(t, f.Matches(doc))

	or := body("or", []interface{}{
		map[string]interface{}{"a": 99},
		map[string]interface{}{"b": 2},
	})
	f, err = ParseFilter(or)
	require.NoError(t, err)
	assert.True(t, f.Matches(doc))

	orMiss := body("or", []interface{}{
		map[string]interface{}{"a": 99},
		map[string]interface{}{"b": 99},
	})
	f, err = ParseFilter(orMiss)
	require.NoError(t, err)
	assert.False(t, f.Matches(doc))

	not := body("not", map[string]interface{}{"a": 1})
	f, err = ParseFilter(not)
	require.NoError(t, err)
	assert.False(t, f.Matches(doc))
}

func TestFilterSignatureDeterministic(t *testing.T) {
	a, err := ParseFilter(body("x", 1, "y", body("gte", 2, "lt", 9)))
	require.NoError(t, err)
	b, err := ParseFilter(body("y", body("lt", 9, "gte", 2), "x", 1))
	require.NoError(t, err)
	assert.Equal(t, a.Signature(), b.Signature())

	c, err := ParseFilter(body("x", 2))
	require.NoError(t, err)
	assert.NotEqual(t, a.Signature(), c.Signature())
}

func TestSortMultiKeyStable(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateCollection("C", nil))

	rows := []map[string]interface{}{
		body("g", "b", "n", 2, "tag", "r1"),
		body("g", "a", "n", 2, "tag", "r2"),
		body("g", "a", "n", 1, "tag", "r3"),
		body("g", "b", "n", 1, "tag", "r4"),
	}
	for _, r := range rows {
		_, err := db.Insert("C", r)
		require.NoError(t, err)
	}

	docs, err := db.Find("C", nil, models.QueryOptions{
		Sort: []models.SortField{
			{Field: "g"},
			{Field: "n", Descending: true},
		},
	})
	require.NoError(t, err)

	var tags []interface{}
	for _, d := range docs {
		tags = append(tags, d.Fields["tag"])
	}
	assert.Equal(t, []interface{}{"r2", "r3", "r1", "r4"}, tags)
}

func TestSortPlacesMissingFieldsPerNullRule(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateCollection("C", nil))

	_, err := db.Insert("C", body("v", 2, "tag", "two"))
	require.NoError(t, err)
	_, err = db.Insert("C", body("tag", "missing"))
	require.NoError(t, err)
	_, err = db.Insert("C", body("v", 1, "tag", "one"))
	require.NoError(t, err)

	asc, err := db.Find("C", nil, models.QueryOptions{Sort: []models.SortField{{Field: "v"}}})
	require.NoError(t, err)
	assert.Equal(t, "missing", asc[len(asc)-1].Fields["tag"], "nulls sort last ascending")
	assert.Equal(t, "one", asc[0].Fields["tag"])

	desc, err := db.Find("C", nil, models.QueryOptions{Sort: []models.SortField{{Field: "v", Descending: true}}})
	require.NoError(t, err)
	assert.Equal(t, "missing", desc[0].Fields["tag"], "nulls sort first descending")
	assert.Equal(t, "two", desc[1].Fields["tag"])
}

func TestSkipThenLimit(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateCollection("C", nil))
	for i := 0; i < 10; i++ {
		_, err := db.Insert("C", body("n", i))
		require.NoError(t, err)
	}

	docs, err := db.Find("C", nil, models.QueryOptions{
		Sort:  []models.SortField{{Field: "n"}},
		Skip:  3,
		Limit: 4,
	})
	require.NoError(t, err)

	var got []interface{}
	for _, d := range docs {
		got = append(got, d.Fields["n"])
	}
	assert.Equal(t, []interface{}{3, 4, 5, 6}, got)

	// Skip past the end yields empty, not an error
	docs, err = db.Find("C", nil, models.QueryOptions{Skip: 50})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestProjectionRetainsIdentifier(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateCollection("C", nil))
	inserted, err := db.Insert("C", body("a", 1, "b", 2, "c", 3))
	require.NoError(t, err)

	docs, err := db.Find("C", nil, models.QueryOptions{Projection: []string{"b"}})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.Equal(t, inserted.DocumentID, docs[0].DocumentID)
	assert.Equal(t, body("b", 2), docs[0].Fields)

	// The projection works on a copy; the stored document is untouched
	full, err := db.FindByID("C", inserted.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, body("a", 1, "b", 2, "c", 3), full.Fields)
}

func TestFindOne(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateCollection("C", nil))
	_, err := db.Insert("C", body("k", "v"))
	require.NoError(t, err)

	doc, err := db.FindOne("C", body("k", "v"))
	require.NoError(t, err)
	require.NotNil(t, doc)

	doc, err = db.FindOne("C", body("k", "absent"))
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestPlannerFallsBackInOrder(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateCollection("C", nil))
	_, err := db.CreateIndex("C", "r", models.IndexOptions{Kind: models.OrderedKind})
	require.NoError(t, err)

	// Equality on an unindexed field, range on an indexed one: the range
	// path wins over a full scan
	f, err := ParseFilter(body("plain", "x", "r", body("lt", 10)))
	require.NoError(t, err)
	plan := db.plan("C", f)
	assert.Equal(t, AccessRange, plan.Access)
	assert.Equal(t, "r", plan.Field)
	assert.True(t, plan.Range.HasHi)
	assert.False(t, plan.Range.HasLo)

	// No usable index at all: full scan
	f, err = ParseFilter(body("plain", "x"))
	require.NoError(t, err)
	assert.Equal(t, AccessScan, db.plan("C", f).Access)

	// An ordered index answers equality too
	f, err = ParseFilter(body("r", 7))
	require.NoError(t, err)
	assert.Equal(t, AccessHash, db.plan("C", f).Access)
}
