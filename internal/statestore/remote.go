package statestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/patternd/internal/metrics"
)

// RemoteConfig configures the networked store backend.
type RemoteConfig struct {
	// URL is the REST endpoint accepting JSON command arrays.
	URL string `koanf:"url"`

	// Token is the bearer token for authorization.
	Token string `koanf:"token"`

	// RequestTimeout bounds each round trip. Default: 3 seconds.
	// On expiry the call is treated as store-unavailable; there is no
	// automatic retry inside the hot path.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// MaxRequestsPerSecond throttles outbound calls client-side.
	// Default: 200. Zero disables throttling.
	MaxRequestsPerSecond int `koanf:"max_requests_per_second"`
}

// ApplyDefaults sets default values for unset fields.
func (c *RemoteConfig) ApplyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 3 * time.Second
	}
	if c.MaxRequestsPerSecond == 0 {
		c.MaxRequestsPerSecond = 200
	}
}

// Validate validates the remote store configuration.
func (c *RemoteConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("remote store: url is required")
	}
	if c.Token == "" {
		return fmt.Errorf("remote store: token is required")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("remote store: request_timeout must be non-negative")
	}
	return nil
}

// RemoteStore implements Store against the command-array REST protocol.
//
// Single commands POST to the base URL; batches POST to {URL}/pipeline and
// return one Result per command. Failures and timeouts surface as
// ErrStoreUnavailable so callers can degrade uniformly.
type RemoteStore struct {
	config    RemoteConfig
	client    *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger
	available atomic.Bool
}

// NewRemoteStore creates a remote store client.
func NewRemoteStore(config RemoteConfig, logger *zap.Logger) (*RemoteStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if config.MaxRequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.MaxRequestsPerSecond), config.MaxRequestsPerSecond)
	}

	s := &RemoteStore{
		config:  config,
		client:  &http.Client{Timeout: config.RequestTimeout},
		limiter: limiter,
		logger:  logger,
	}
	s.setAvailable(true)
	return s, nil
}

// Available reports whether the most recent call succeeded.
func (s *RemoteStore) Available() bool {
	return s.available.Load()
}

func (s *RemoteStore) setAvailable(up bool) {
	s.available.Store(up)
	if up {
		metrics.StoreAvailable.Set(1)
	} else {
		metrics.StoreAvailable.Set(0)
	}
}

// do sends one command and returns its raw result.
func (s *RemoteStore) do(ctx context.Context, cmd Command) (any, error) {
	results, err := s.post(ctx, s.config.URL, cmd)
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("%w: expected 1 result, got %d", ErrStoreUnavailable, len(results))
	}
	if results[0].Error != "" {
		return nil, fmt.Errorf("store command failed: %s", results[0].Error)
	}
	return results[0].Result, nil
}

// post performs the HTTP round trip. For the base URL the body is a single
// command array and the response a single {result, error} object; for the
// pipeline endpoint the body is an array of commands and the response an
// array of objects. Both are normalized to a []Result.
func (s *RemoteStore) post(ctx context.Context, url string, body any) ([]Result, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.StoreRequests.WithLabelValues("error").Inc()
		s.setAvailable(false)
		s.logger.Warn("state store request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.StoreRequests.WithLabelValues("error").Inc()
		s.setAvailable(false)
		return nil, fmt.Errorf("%w: status %d", ErrStoreUnavailable, resp.StatusCode)
	}
	metrics.StoreRequests.WithLabelValues("ok").Inc()
	s.setAvailable(true)

	dec := json.NewDecoder(resp.Body)
	var results []Result
	if url == s.pipelineURL() {
		if err := dec.Decode(&results); err != nil {
			return nil, fmt.Errorf("%w: decoding pipeline response: %v", ErrStoreUnavailable, err)
		}
		return results, nil
	}

	var single Result
	if err := dec.Decode(&single); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrStoreUnavailable, err)
	}
	return []Result{single}, nil
}

func (s *RemoteStore) pipelineURL() string {
	return s.config.URL + "/pipeline"
}

// HSet sets fields on the hash at key.
func (s *RemoteStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	cmd := Command{"HSET", key}
	for f, v := range fields {
		cmd = append(cmd, f, v)
	}
	_, err := s.do(ctx, cmd)
	return err
}

// HGetAll returns all fields of the hash at key.
func (s *RemoteStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	result, err := s.do(ctx, Command{"HGETALL", key})
	if err != nil {
		return nil, err
	}
	// The protocol returns a flat [field, value, field, value, ...] array.
	raw, ok := result.([]any)
	if !ok {
		if result == nil {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("unexpected HGETALL result type %T", result)
	}
	fields := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		fields[toString(raw[i])] = toString(raw[i+1])
	}
	return fields, nil
}

// SAdd adds members to the set at key.
func (s *RemoteStore) SAdd(ctx context.Context, key string, members ...string) error {
	cmd := Command{"SADD", key}
	for _, m := range members {
		cmd = append(cmd, m)
	}
	_, err := s.do(ctx, cmd)
	return err
}

// SMembers returns all members of the set at key.
func (s *RemoteStore) SMembers(ctx context.Context, key string) ([]string, error) {
	result, err := s.do(ctx, Command{"SMEMBERS", key})
	if err != nil {
		return nil, err
	}
	return toStrings(result)
}

// IncrBy atomically adds delta to the counter at key.
func (s *RemoteStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	result, err := s.do(ctx, Command{"INCRBY", key, delta})
	if err != nil {
		return 0, err
	}
	return toInt64(result)
}

// ZAdd adds a scored member to the sorted set at key.
func (s *RemoteStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	_, err := s.do(ctx, Command{"ZADD", key, score, member})
	return err
}

// ZRemRangeByScore removes members with scores in [min, max].
func (s *RemoteStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	_, err := s.do(ctx, Command{"ZREMRANGEBYSCORE", key, min, max})
	return err
}

// ZCard returns the cardinality of the sorted set at key.
func (s *RemoteStore) ZCard(ctx context.Context, key string) (int64, error) {
	result, err := s.do(ctx, Command{"ZCARD", key})
	if err != nil {
		return 0, err
	}
	return toInt64(result)
}

// ZRange returns members by rank, ascending by score.
func (s *RemoteStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	result, err := s.do(ctx, Command{"ZRANGE", key, start, stop})
	if err != nil {
		return nil, err
	}
	return toStrings(result)
}

// Expire sets a TTL on key.
func (s *RemoteStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.do(ctx, Command{"EXPIRE", key, int64(ttl.Seconds())})
	return err
}

// Pipeline sends commands as one batch to the /pipeline endpoint.
func (s *RemoteStore) Pipeline(ctx context.Context, cmds []Command) ([]Result, error) {
	if len(cmds) == 0 {
		return nil, nil
	}
	return s.post(ctx, s.pipelineURL(), cmds)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toStrings(v any) ([]string, error) {
	if v == nil {
		return []string{}, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T", v)
	}
	out := make([]string, len(raw))
	for i, item := range raw {
		out[i] = toString(item)
	}
	return out, nil
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected numeric result type %T", v)
	}
}
