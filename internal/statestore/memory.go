package statestore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process maps.
//
// It mirrors the remote protocol's semantics exactly, including lazy TTL
// expiry, so components behave identically whichever backend they got from
// the factory. State is lost on process restart and is not shared across
// instances.
//
// Thread-safe: all operations hold an internal mutex.
type MemoryStore struct {
	mu       sync.Mutex
	hashes   map[string]map[string]string
	sets     map[string]map[string]struct{}
	counters map[string]int64
	zsets    map[string]map[string]float64
	expiry   map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hashes:   make(map[string]map[string]string),
		sets:     make(map[string]map[string]struct{}),
		counters: make(map[string]int64),
		zsets:    make(map[string]map[string]float64),
		expiry:   make(map[string]time.Time),
	}
}

// Available always reports true for the in-memory backend.
func (s *MemoryStore) Available() bool {
	return true
}

// purgeExpired drops a key in every namespace once its TTL has passed.
// Callers must hold the mutex.
func (s *MemoryStore) purgeExpired(key string) {
	deadline, ok := s.expiry[key]
	if !ok || time.Now().Before(deadline) {
		return
	}
	delete(s.hashes, key)
	delete(s.sets, key)
	delete(s.counters, key)
	delete(s.zsets, key)
	delete(s.expiry, key)
}

// HSet sets fields on the hash at key.
func (s *MemoryStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpired(key)
	h := s.hashes[key]
	if h == nil {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	for f, v := range fields {
		h[f] = v
	}
	return nil
}

// HGetAll returns a copy of all fields of the hash at key.
func (s *MemoryStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpired(key)
	out := make(map[string]string, len(s.hashes[key]))
	for f, v := range s.hashes[key] {
		out[f] = v
	}
	return out, nil
}

// SAdd adds members to the set at key.
func (s *MemoryStore) SAdd(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpired(key)
	set := s.sets[key]
	if set == nil {
		set = make(map[string]struct{}, len(members))
		s.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

// SMembers returns all members of the set at key, sorted for determinism.
func (s *MemoryStore) SMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpired(key)
	out := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// IncrBy atomically adds delta to the counter at key.
func (s *MemoryStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpired(key)
	s.counters[key] += delta
	return s.counters[key], nil
}

// ZAdd adds a scored member to the sorted set at key.
func (s *MemoryStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpired(key)
	z := s.zsets[key]
	if z == nil {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] = score
	return nil
}

// ZRemRangeByScore removes members with scores in [min, max].
func (s *MemoryStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpired(key)
	for m, score := range s.zsets[key] {
		if score >= min && score <= max {
			delete(s.zsets[key], m)
		}
	}
	return nil
}

// ZCard returns the cardinality of the sorted set at key.
func (s *MemoryStore) ZCard(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpired(key)
	return int64(len(s.zsets[key])), nil
}

// ZRange returns members by rank, ascending by score.
func (s *MemoryStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpired(key)
	type entry struct {
		member string
		score  float64
	}
	entries := make([]entry, 0, len(s.zsets[key]))
	for m, score := range s.zsets[key] {
		entries = append(entries, entry{m, score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score < entries[j].score
		}
		return entries[i].member < entries[j].member
	})

	n := int64(len(entries))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return []string{}, nil
	}

	out := make([]string, 0, stop-start+1)
	for _, e := range entries[start : stop+1] {
		out = append(out, e.member)
	}
	return out, nil
}

// Expire sets a TTL on key.
func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expiry[key] = time.Now().Add(ttl)
	return nil
}

// Pipeline executes commands sequentially, matching the remote batch shape.
func (s *MemoryStore) Pipeline(ctx context.Context, cmds []Command) ([]Result, error) {
	results := make([]Result, 0, len(cmds))
	for _, cmd := range cmds {
		result, err := s.execute(ctx, cmd)
		if err != nil {
			results = append(results, Result{Error: err.Error()})
			continue
		}
		results = append(results, Result{Result: result})
	}
	return results, nil
}

// execute dispatches a raw command array to the typed primitive.
func (s *MemoryStore) execute(ctx context.Context, cmd Command) (any, error) {
	if len(cmd) < 2 {
		return nil, ErrInvalidCommand
	}
	name, ok := cmd[0].(string)
	if !ok {
		return nil, ErrInvalidCommand
	}
	key, ok := cmd[1].(string)
	if !ok {
		return nil, ErrInvalidCommand
	}

	switch name {
	case "HSET":
		fields := make(map[string]string)
		for i := 2; i+1 < len(cmd); i += 2 {
			fields[argString(cmd[i])] = argString(cmd[i+1])
		}
		return int64(len(fields)), s.HSet(ctx, key, fields)
	case "HGETALL":
		return s.HGetAll(ctx, key)
	case "SADD":
		members := make([]string, 0, len(cmd)-2)
		for _, m := range cmd[2:] {
			members = append(members, argString(m))
		}
		return int64(len(members)), s.SAdd(ctx, key, members...)
	case "SMEMBERS":
		return s.SMembers(ctx, key)
	case "INCRBY":
		if len(cmd) != 3 {
			return nil, ErrInvalidCommand
		}
		delta, err := argInt64(cmd[2])
		if err != nil {
			return nil, err
		}
		return s.IncrBy(ctx, key, delta)
	case "ZADD":
		if len(cmd) != 4 {
			return nil, ErrInvalidCommand
		}
		score, err := argFloat64(cmd[2])
		if err != nil {
			return nil, err
		}
		return int64(1), s.ZAdd(ctx, key, score, argString(cmd[3]))
	case "ZREMRANGEBYSCORE":
		if len(cmd) != 4 {
			return nil, ErrInvalidCommand
		}
		min, err := argFloat64(cmd[2])
		if err != nil {
			return nil, err
		}
		max, err := argFloat64(cmd[3])
		if err != nil {
			return nil, err
		}
		return int64(0), s.ZRemRangeByScore(ctx, key, min, max)
	case "ZCARD":
		return s.ZCard(ctx, key)
	case "ZRANGE":
		if len(cmd) != 4 {
			return nil, ErrInvalidCommand
		}
		start, err := argInt64(cmd[2])
		if err != nil {
			return nil, err
		}
		stop, err := argInt64(cmd[3])
		if err != nil {
			return nil, err
		}
		return s.ZRange(ctx, key, start, stop)
	case "EXPIRE":
		if len(cmd) != 3 {
			return nil, ErrInvalidCommand
		}
		secs, err := argInt64(cmd[2])
		if err != nil {
			return nil, err
		}
		return int64(1), s.Expire(ctx, key, time.Duration(secs)*time.Second)
	default:
		return nil, fmt.Errorf("%w: unsupported command %q", ErrInvalidCommand, name)
	}
}

func argString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

func argInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("%w: not an integer: %v", ErrInvalidCommand, v)
	}
}

func argFloat64(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("%w: not a number: %v", ErrInvalidCommand, v)
	}
}
