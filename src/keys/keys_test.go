package keys

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareTotalOrder(t *testing.T) {
	// nulls < booleans < numerics < strings < arrays < objects
	ordered := []interface{}{
		nil,
		false,
		true,
		int64(-10),
		0,
		1.5,
		2,
		1000,
		"",
		"a",
		"b",
		[]interface{}{1},
		[]interface{}{1, 2},
		[]interface{}{2},
		map[string]interface{}{"a": 1},
		map[string]interface{}{"b": 1},
	}

	for i := range ordered {
		for j := range ordered {
			c := Compare(ordered[i], ordered[j])
			switch {
			case i < j:
				assert.Negative(t, c, "expected %v < %v", ordered[i], ordered[j])
			case i > j:
				assert.Positive(t, c, "expected %v > %v", ordered[i], ordered[j])
			default:
				assert.Zero(t, c, "expected %v == %v", ordered[i], ordered[j])
			}
		}
	}
}

func TestCompareCrossNumeric(t *testing.T) {
	assert.Zero(t, Compare(2, 2.0))
	assert.Zero(t, Compare(int64(7), float64(7)))
	assert.Negative(t, Compare(2, 2.5))
	assert.Positive(t, Compare(3.1, 3))
	assert.Negative(t, Compare(int32(-4), uint16(4)))
}

func TestEncodeEqualValuesEqualBytes(t *testing.T) {
	require.Equal(t, Encode(2), Encode(2.0))
	require.Equal(t, Encode(int64(42)), Encode(42))
	require.Equal(t,
		Encode(map[string]interface{}{"a": 1, "b": "x"}),
		Encode(map[string]interface{}{"b": "x", "a": 1}))
}

func TestEncodeDistinctValuesDistinctBytes(t *testing.T) {
	values := []interface{}{
		nil, false, true, 0, 1, -1, 2.5, "", "0", "a", "aa",
		[]interface{}{}, []interface{}{1}, []interface{}{"a"},
		map[string]interface{}{}, map[string]interface{}{"a": nil},
	}
	for i := range values {
		for j := range values {
			if i == j {
				continue
			}
			assert.False(t, bytes.Equal(Encode(values[i]), Encode(values[j])),
				"%v and %v must not share an encoding", values[i], values[j])
		}
	}
}

func TestEncodeTypeTagSeparation(t *testing.T) {
	// A string "1" and the number 1 are distinct keys
	require.NotEqual(t, Encode("1"), Encode(1))
	// true and the number 1 are distinct keys
	require.NotEqual(t, Encode(true), Encode(1))
}

func TestHasherCacheIsInvisible(t *testing.T) {
	cached := NewHasher(128)
	uncached := NewHasher(0)

	inputs := []interface{}{nil, true, 17, -3.25, "hello", []interface{}{1, "x"}}
	for _, v := range inputs {
		enc := Encode(v)
		first := cached.Sum(enc)
		second := cached.Sum(enc)
		assert.Equal(t, first, second)
		assert.Equal(t, uncached.Sum(enc), first, "cache must not change the hash of %v", v)
	}

	hits, misses := cached.CacheStats()
	assert.Equal(t, uint64(len(inputs)), hits)
	assert.Equal(t, uint64(len(inputs)), misses)
}

func TestShardSumDecorrelated(t *testing.T) {
	h := NewHasher(0)
	same := 0
	for i := 0; i < 256; i++ {
		enc := Encode(i)
		if h.Sum(enc)%16 == ShardSum(enc)%16 {
			same++
		}
	}
	// Roughly 1/16 of keys should agree by chance; flag a full correlation
	assert.Less(t, same, 128)
}
