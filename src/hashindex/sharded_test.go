package hashindex

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostdb/src/keys"
)

func shardEnc(v interface{}) ([]byte, uint32, uint32) {
	e := keys.Encode(v)
	return e, hasher.Sum(e), keys.ShardSum(e)
}

func TestShardedRoundTrip(t *testing.T) {
	s := NewSharded(16, false)
	require.Equal(t, 16, s.ShardCount())

	for i := 0; i < 1000; i++ {
		key, hash, shard := shardEnc(fmt.Sprintf("k%d", i))
		require.NoError(t, s.Insert(key, hash, shard, fmt.Sprintf("doc%d", i)))
	}
	assert.Equal(t, 1000, s.Pairs())

	for i := 0; i < 1000; i++ {
		key, hash, shard := shardEnc(fmt.Sprintf("k%d", i))
		assert.Equal(t, []string{fmt.Sprintf("doc%d", i)}, s.Lookup(key, hash, shard))
	}

	key, hash, shard := shardEnc("k500")
	require.True(t, s.Delete(key, hash, shard, "doc500"))
	assert.Nil(t, s.Lookup(key, hash, shard))
	assert.Equal(t, 999, s.Pairs())
}

func TestShardedIterationCoversAllShards(t *testing.T) {
	s := NewSharded(8, false)
	want := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("doc%d", i)
		key, hash, shard := shardEnc(i)
		require.NoError(t, s.Insert(key, hash, shard, id))
		want[id] = true
	}

	seen := make(map[string]bool)
	s.Each(func(key []byte, ids []string) bool {
		for _, id := range ids {
			seen[id] = true
		}
		return true
	})
	assert.Equal(t, want, seen)
}

func TestShardedEachStops(t *testing.T) {
	s := NewSharded(4, false)
	for i := 0; i < 100; i++ {
		key, hash, shard := shardEnc(i)
		require.NoError(t, s.Insert(key, hash, shard, fmt.Sprintf("d%d", i)))
	}

	visited := 0
	s.Each(func(key []byte, ids []string) bool {
		visited++
		return visited < 10
	})
	assert.Equal(t, 10, visited)
}

func TestShardCountClamp(t *testing.T) {
	// Non-power-of-two counts degrade to a single shard
	assert.Equal(t, 1, NewSharded(3, false).ShardCount())
	assert.Equal(t, 1, NewSharded(0, false).ShardCount())
	assert.Equal(t, 4, NewSharded(4, false).ShardCount())
}

func TestBalanceScore(t *testing.T) {
	s := NewSharded(8, false)
	assert.Zero(t, s.BalanceScore())

	for i := 0; i < 4096; i++ {
		key, hash, shard := shardEnc(fmt.Sprintf("key-%d", i))
		require.NoError(t, s.Insert(key, hash, shard, fmt.Sprintf("d%d", i)))
	}
	// A healthy shard hash keeps the max deviation well under the mean
	assert.Less(t, s.BalanceScore(), 1.0)
}
