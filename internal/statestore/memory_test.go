package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_HashOperations(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// Missing key yields an empty map, not an error.
	fields, err := s.HGetAll(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, fields)

	require.NoError(t, s.HSet(ctx, "h", map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, s.HSet(ctx, "h", map[string]string{"b": "3"}))

	fields, err = s.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, fields)
}

func TestMemoryStore_SetOperations(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SAdd(ctx, "set", "b", "a", "b"))

	members, err := s.SMembers(ctx, "set")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, members)
}

func TestMemoryStore_IncrBy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	v, err := s.IncrBy(ctx, "c", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	v, err = s.IncrBy(ctx, "c", -2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestMemoryStore_SortedSetOperations(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.ZAdd(ctx, "z", 3, "c"))
	require.NoError(t, s.ZAdd(ctx, "z", 1, "a"))
	require.NoError(t, s.ZAdd(ctx, "z", 2, "b"))

	count, err := s.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	members, err := s.ZRange(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, members)

	// Negative start counts from the end.
	members, err = s.ZRange(ctx, "z", -2, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, members)

	// Out-of-range yields empty, not an error.
	members, err = s.ZRange(ctx, "z", 5, 9)
	require.NoError(t, err)
	assert.Empty(t, members)

	require.NoError(t, s.ZRemRangeByScore(ctx, "z", 1, 2))
	members, err = s.ZRange(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, members)
}

func TestMemoryStore_ZAddUpdatesScore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.ZAdd(ctx, "z", 1, "a"))
	require.NoError(t, s.ZAdd(ctx, "z", 9, "a"))

	count, err := s.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, s.ZRemRangeByScore(ctx, "z", 0, 5))
	count, err = s.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_Expire(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.HSet(ctx, "h", map[string]string{"a": "1"}))
	require.NoError(t, s.Expire(ctx, "h", -time.Second)) // already expired

	fields, err := s.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Empty(t, fields)

	// A future TTL keeps the key alive.
	require.NoError(t, s.HSet(ctx, "h2", map[string]string{"a": "1"}))
	require.NoError(t, s.Expire(ctx, "h2", time.Hour))
	fields, err = s.HGetAll(ctx, "h2")
	require.NoError(t, err)
	assert.Len(t, fields, 1)
}

func TestMemoryStore_Pipeline(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	results, err := s.Pipeline(ctx, []Command{
		{"ZADD", "z", 1.0, "a"},
		{"ZADD", "z", 2.0, "b"},
		{"ZCARD", "z"},
		{"ZREMRANGEBYSCORE", "z", 0.0, 1.5},
		{"ZCARD", "z"},
	})
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.Equal(t, int64(2), results[2].Result)
	assert.Equal(t, int64(1), results[4].Result)
}

func TestMemoryStore_PipelineBadCommand(t *testing.T) {
	s := NewMemoryStore()

	results, err := s.Pipeline(context.Background(), []Command{
		{"ZADD", "z", 1.0, "a"},
		{"NOSUCHCMD", "z"},
		{"ZCARD"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Empty(t, results[0].Error)
	assert.Contains(t, results[1].Error, "unsupported command")
	assert.NotEmpty(t, results[2].Error)
}

func TestMemoryStore_Available(t *testing.T) {
	assert.True(t, NewMemoryStore().Available())
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "pattern:p1:state", PatternStateKey("p1"))
	assert.Equal(t, "tenant:acme:patterns", TenantIndexKey("acme"))
	assert.Equal(t, "counter:boosts", CounterKey("boosts"))
	assert.Equal(t, "ratelimit:acme", RateLimitKey("acme"))
}
