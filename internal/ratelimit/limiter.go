// Package ratelimit implements a per-tenant sliding-window request throttle
// on top of the shared state store.
//
// The window is recomputed from the store's sorted-set primitives on every
// check; there is no in-process window state beyond the backend itself, so
// instances sharing a remote store share limits. With the in-memory backend
// the identical algorithm applies but state is process-local.
package ratelimit

import (
	"context"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/metrics"
	"github.com/fyrsmithlabs/patternd/internal/statestore"
)

// Config holds the throttle tuning.
type Config struct {
	// MaxRequests is the per-tenant request budget per window. Default: 100.
	MaxRequests int `koanf:"max_requests"`

	// Window is the sliding interval. Default: 60s.
	Window time.Duration `koanf:"window"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxRequests == 0 {
		c.MaxRequests = 100
	}
	if c.Window == 0 {
		c.Window = 60 * time.Second
	}
}

// Verdict is the outcome of one rate limit check. The API layer translates a
// denial into HTTP 429 with a Retry-After header.
type Verdict struct {
	// Allowed is true when the request fits the window.
	Allowed bool `json:"allowed"`

	// Remaining is the budget left in the window after this request.
	Remaining int `json:"remaining"`

	// RetryAfter is the whole seconds until the window frees a slot.
	// Zero when allowed; at least 1 when denied.
	RetryAfter int `json:"retry_after,omitempty"`
}

// Limiter checks tenant request budgets against the store.
type Limiter struct {
	config Config
	store  statestore.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewLimiter creates a rate limiter over the given store.
func NewLimiter(config Config, store statestore.Store, logger *zap.Logger) *Limiter {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		config: config,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// CheckRateLimit runs the trim/count/insert/expire sequence for a tenant.
//
// The four steps go to the store as one pipeline. The batch is not atomic
// across concurrent callers sharing a tenant key; the narrow over-admission
// race this admits is accepted. On store failure the check degrades open:
// throttling is protection, not bookkeeping, and a degraded store must not
// take the API down with it.
func (l *Limiter) CheckRateLimit(ctx context.Context, tenant string) Verdict {
	key := statestore.RateLimitKey(tenant)
	now := l.now()
	nowMs := float64(now.UnixMilli())
	windowMs := float64(l.config.Window.Milliseconds())
	member := strconv.FormatInt(now.UnixNano(), 10)

	results, err := l.store.Pipeline(ctx, []statestore.Command{
		{"ZREMRANGEBYSCORE", key, 0, nowMs - windowMs},
		{"ZCARD", key},
		{"ZADD", key, nowMs, member},
		{"EXPIRE", key, int64(l.config.Window.Seconds()) + 1},
	})
	if err != nil || len(results) < 4 || results[1].Error != "" {
		l.logger.Warn("rate limit check degraded, allowing request",
			zap.String("tenant", tenant),
			zap.Error(err))
		metrics.RateLimitDecisions.WithLabelValues("degraded").Inc()
		return Verdict{Allowed: true, Remaining: l.config.MaxRequests - 1}
	}

	// The count is taken after the trim but before this request's insert.
	count, countErr := resultInt64(results[1].Result)
	if countErr != nil {
		metrics.RateLimitDecisions.WithLabelValues("degraded").Inc()
		return Verdict{Allowed: true, Remaining: l.config.MaxRequests - 1}
	}

	if results[2].Error != "" {
		// The request goes through but its timestamp was not recorded, so
		// the window under-counts by one until it slides past.
		l.logger.Warn("recording request timestamp failed",
			zap.String("tenant", tenant),
			zap.String("error", results[2].Error))
	}

	if count >= int64(l.config.MaxRequests) {
		// Undo this request's own insert; an exact-score trim is the only
		// removal the command protocol offers. A concurrent request landing
		// on the same millisecond may be swept with it, which falls inside
		// the accepted race.
		if remErr := l.store.ZRemRangeByScore(ctx, key, nowMs, nowMs); remErr != nil {
			l.logger.Warn("removing denied request timestamp failed",
				zap.String("tenant", tenant),
				zap.Error(remErr))
		}
		metrics.RateLimitDecisions.WithLabelValues("denied").Inc()
		return Verdict{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: l.retryAfter(ctx, key, now),
		}
	}

	metrics.RateLimitDecisions.WithLabelValues("allowed").Inc()
	return Verdict{
		Allowed:   true,
		Remaining: l.config.MaxRequests - int(count) - 1,
	}
}

// retryAfter computes the whole seconds until the oldest window entry ages
// out, minimum 1.
func (l *Limiter) retryAfter(ctx context.Context, key string, now time.Time) int {
	oldest, err := l.store.ZRange(ctx, key, 0, 0)
	if err != nil || len(oldest) == 0 {
		return 1
	}
	nanos, err := strconv.ParseInt(oldest[0], 10, 64)
	if err != nil {
		return 1
	}
	oldestAt := time.Unix(0, nanos)
	wait := oldestAt.Add(l.config.Window).Sub(now)
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func resultInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, strconv.ErrSyntax
	}
}
