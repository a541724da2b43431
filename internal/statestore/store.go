// Package statestore provides the shared key/value and indexed-set store that
// backs all adaptive pattern state.
//
// Two backends satisfy the same Store contract: RemoteStore speaks the
// command-array REST protocol of a networked store, and MemoryStore keeps
// identical semantics in process memory. Backend selection happens once at
// construction based on configured credentials, never per call.
//
// Read paths built on this package must tolerate backend absence: the typed
// StateStore facade returns defined defaults instead of propagating errors.
package statestore

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for store operations.
var (
	// ErrStoreUnavailable indicates the networked backend is unreachable or
	// timed out. Callers on read paths degrade to defaults.
	ErrStoreUnavailable = errors.New("state store unavailable")

	// ErrInvalidCommand indicates a malformed command array.
	ErrInvalidCommand = errors.New("invalid store command")
)

// Command is a single store command encoded as a JSON array, e.g.
// ["HSET", key, field, value] or ["ZADD", key, score, member].
type Command []any

// Result is the per-command response shape of the REST protocol.
type Result struct {
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Store is the low-level command contract shared by both backends.
//
// The primitives mirror the remote protocol exactly so that the in-memory
// backend can stand in with identical semantics when no credentials are
// configured or the remote store is unreachable.
type Store interface {
	// HSet sets fields on the hash at key.
	HSet(ctx context.Context, key string, fields map[string]string) error

	// HGetAll returns all fields of the hash at key. A missing key yields an
	// empty map, not an error.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// SAdd adds members to the set at key.
	SAdd(ctx context.Context, key string, members ...string) error

	// SMembers returns all members of the set at key.
	SMembers(ctx context.Context, key string) ([]string, error)

	// IncrBy atomically adds delta to the counter at key and returns the
	// new value.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// ZAdd adds a member with the given score to the sorted set at key.
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRemRangeByScore removes members with scores in [min, max].
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error

	// ZCard returns the cardinality of the sorted set at key.
	ZCard(ctx context.Context, key string) (int64, error)

	// ZRange returns members by rank, ordered by ascending score.
	// Negative indices count from the end, as in the remote protocol.
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Expire sets a TTL on key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Pipeline sends commands as one batch and returns per-command results.
	// The batch is not atomic as a unit across concurrent callers.
	Pipeline(ctx context.Context, cmds []Command) ([]Result, error)

	// Available reports whether the backend answered its last health probe.
	// MemoryStore is always available.
	Available() bool
}

// Key naming conventions shared by all components.
//
// Patterns: pattern:{id}:state (hash)
// Tenant index: tenant:{tenant}:patterns (set)
// Counters: counter:{name} (integer)
// Rate limits: ratelimit:{tenant} (sorted set of request timestamps)
const (
	patternStateKeyPrefix = "pattern:"
	patternStateKeySuffix = ":state"
	tenantIndexKeyPrefix  = "tenant:"
	tenantIndexKeySuffix  = ":patterns"
	counterKeyPrefix      = "counter:"
	rateLimitKeyPrefix    = "ratelimit:"
)

// PatternStateKey returns the hash key for a pattern's adaptive state.
func PatternStateKey(patternID string) string {
	return patternStateKeyPrefix + patternID + patternStateKeySuffix
}

// TenantIndexKey returns the set key indexing a tenant's pattern IDs.
func TenantIndexKey(tenant string) string {
	return tenantIndexKeyPrefix + tenant + tenantIndexKeySuffix
}

// CounterKey returns the key for a named counter.
func CounterKey(name string) string {
	return counterKeyPrefix + name
}

// RateLimitKey returns the sorted-set key for a tenant's request window.
func RateLimitKey(tenant string) string {
	return rateLimitKeyPrefix + tenant
}
