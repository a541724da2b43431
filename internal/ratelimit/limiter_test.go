package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/patternd/internal/statestore"
)

var limitNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func testLimiter(t *testing.T, maxRequests int, window time.Duration) (*Limiter, *statestore.MemoryStore) {
	t.Helper()
	store := statestore.NewMemoryStore()
	l := NewLimiter(Config{MaxRequests: maxRequests, Window: window}, store, nil)
	l.now = func() time.Time { return limitNow }
	return l, store
}

func TestCheckRateLimit_AllowsUnderBudget(t *testing.T) {
	l, _ := testLimiter(t, 2, time.Second)
	ctx := context.Background()

	v := l.CheckRateLimit(ctx, "acme")
	assert.True(t, v.Allowed)
	assert.Equal(t, 1, v.Remaining)
	assert.Equal(t, 0, v.RetryAfter)

	// Distinct nanosecond members per request.
	l.now = func() time.Time { return limitNow.Add(time.Millisecond) }
	v = l.CheckRateLimit(ctx, "acme")
	assert.True(t, v.Allowed)
	assert.Equal(t, 0, v.Remaining)
}

func TestCheckRateLimit_DeniesOverBudget(t *testing.T) {
	l, store := testLimiter(t, 2, time.Second)
	ctx := context.Background()

	l.CheckRateLimit(ctx, "acme")
	l.now = func() time.Time { return limitNow.Add(time.Millisecond) }
	l.CheckRateLimit(ctx, "acme")

	l.now = func() time.Time { return limitNow.Add(2 * time.Millisecond) }
	v := l.CheckRateLimit(ctx, "acme")
	assert.False(t, v.Allowed)
	assert.Equal(t, 0, v.Remaining)
	assert.GreaterOrEqual(t, v.RetryAfter, 1)

	// The denied request's timestamp is not left in the window.
	count, err := store.ZCard(ctx, statestore.RateLimitKey("acme"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestCheckRateLimit_WindowSlides(t *testing.T) {
	l, _ := testLimiter(t, 2, time.Second)
	ctx := context.Background()

	l.CheckRateLimit(ctx, "acme")
	l.now = func() time.Time { return limitNow.Add(time.Millisecond) }
	l.CheckRateLimit(ctx, "acme")

	// After the window passes, old entries are trimmed and requests flow.
	l.now = func() time.Time { return limitNow.Add(1100 * time.Millisecond) }
	v := l.CheckRateLimit(ctx, "acme")
	assert.True(t, v.Allowed)
	assert.Equal(t, 1, v.Remaining)
}

func TestCheckRateLimit_TenantsAreIndependent(t *testing.T) {
	l, _ := testLimiter(t, 1, time.Second)
	ctx := context.Background()

	assert.True(t, l.CheckRateLimit(ctx, "acme").Allowed)

	l.now = func() time.Time { return limitNow.Add(time.Millisecond) }
	assert.False(t, l.CheckRateLimit(ctx, "acme").Allowed)
	assert.True(t, l.CheckRateLimit(ctx, "beta").Allowed)
}

// downStore fails every store operation.
type downStore struct {
	statestore.Store
}

func (downStore) Pipeline(context.Context, []statestore.Command) ([]statestore.Result, error) {
	return nil, statestore.ErrStoreUnavailable
}

func (downStore) Available() bool { return false }

func TestCheckRateLimit_DegradesOpenOnStoreFailure(t *testing.T) {
	l := NewLimiter(Config{MaxRequests: 2, Window: time.Second}, downStore{}, nil)

	v := l.CheckRateLimit(context.Background(), "acme")
	assert.True(t, v.Allowed)
	assert.Equal(t, 1, v.Remaining)
}

// insertFailStore serves the pipeline but fails the ZADD insert.
type insertFailStore struct {
	statestore.Store
}

func (insertFailStore) Pipeline(context.Context, []statestore.Command) ([]statestore.Result, error) {
	return []statestore.Result{
		{Result: int64(0)},
		{Result: int64(1)},
		{Error: "WRONGTYPE Operation against a key holding the wrong kind of value"},
		{Result: int64(1)},
	}, nil
}

func (insertFailStore) Available() bool { return true }

func TestCheckRateLimit_AllowsWhenInsertFails(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	l := NewLimiter(Config{MaxRequests: 2, Window: time.Second}, insertFailStore{}, zap.New(core))

	v := l.CheckRateLimit(context.Background(), "acme")
	assert.True(t, v.Allowed)
	assert.Equal(t, 0, v.Remaining)

	require.Equal(t, 1, logs.FilterMessage("recording request timestamp failed").Len())
}

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, 100, cfg.MaxRequests)
	assert.Equal(t, 60*time.Second, cfg.Window)
}
