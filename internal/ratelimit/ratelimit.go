// Package ratelimit enforces fixed-window request quotas. Authenticated
// operations count per (user, operation) in UTC minute buckets; the public
// endpoint counts per client address in UTC hour buckets. A counter resets
// entirely when its bucket key changes.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

const (
	OpOptimize = "optimize"
	OpSession  = "session"

	defaultLimit = 100
	publicLimit  = 30

	minuteBucketLayout = "2006-01-02-15-04"
	hourBucketLayout   = "2006-01-02-15"

	// pruneThreshold bounds the counter map; expired buckets are swept
	// once the map grows past it.
	pruneThreshold = 10000
)

// Limits maps an operation to its per-minute cap.
type Limits map[string]int

func DefaultLimits() Limits {
	return Limits{
		OpOptimize: 60,
		OpSession:  120,
	}
}

func (l Limits) For(operation string) int {
	if limit, ok := l[operation]; ok {
		return limit
	}
	return defaultLimit
}

// Limiter is the rate-limiting contract. Check increments and allows when
// under the limit, denies without incrementing at or over it. Info never
// mutates.
type Limiter interface {
	Check(ctx context.Context, userID, operation string) (bool, domain.RateLimitInfo, error)
	Info(ctx context.Context, userID, operation string) (domain.RateLimitInfo, error)
	CheckPublic(ctx context.Context, clientAddr string) (bool, domain.RateLimitInfo, error)
	PublicInfo(ctx context.Context, clientAddr string) (domain.RateLimitInfo, error)
}

type bucket struct {
	count   int
	resetAt time.Time
}

// InMemoryLimiter keeps counters in a map keyed by subject, operation and
// bucket window. The clock is injectable for window-rollover tests.
type InMemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limits  Limits
	public  int
	now     func() time.Time
}

func NewInMemoryLimiter(limits Limits) *InMemoryLimiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &InMemoryLimiter{
		buckets: make(map[string]*bucket),
		limits:  limits,
		public:  publicLimit,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (r *InMemoryLimiter) WithClock(now func() time.Time) *InMemoryLimiter {
	r.now = now
	return r
}

func (r *InMemoryLimiter) Check(ctx context.Context, userID, operation string) (bool, domain.RateLimitInfo, error) {
	limit := r.limits.For(operation)
	key, resetAt := minuteBucket(r.now().UTC(), userID, operation)
	allowed, info := r.check(key, limit, resetAt)
	return allowed, info, nil
}

func (r *InMemoryLimiter) Info(ctx context.Context, userID, operation string) (domain.RateLimitInfo, error) {
	limit := r.limits.For(operation)
	key, resetAt := minuteBucket(r.now().UTC(), userID, operation)
	return r.info(key, limit, resetAt), nil
}

func (r *InMemoryLimiter) CheckPublic(ctx context.Context, clientAddr string) (bool, domain.RateLimitInfo, error) {
	key, resetAt := hourBucket(r.now().UTC(), clientAddr)
	allowed, info := r.check(key, r.public, resetAt)
	return allowed, info, nil
}

func (r *InMemoryLimiter) PublicInfo(ctx context.Context, clientAddr string) (domain.RateLimitInfo, error) {
	key, resetAt := hourBucket(r.now().UTC(), clientAddr)
	return r.info(key, r.public, resetAt), nil
}

func (r *InMemoryLimiter) check(key string, limit int, resetAt time.Time) (bool, domain.RateLimitInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked()

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{resetAt: resetAt}
		r.buckets[key] = b
	}

	allowed := b.count < limit
	if allowed {
		b.count++
	}

	return allowed, infoFor(b.count, limit, resetAt)
}

func (r *InMemoryLimiter) info(key string, limit int, resetAt time.Time) domain.RateLimitInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	if b, ok := r.buckets[key]; ok {
		count = b.count
	}
	return infoFor(count, limit, resetAt)
}

func (r *InMemoryLimiter) pruneLocked() {
	if len(r.buckets) < pruneThreshold {
		return
	}
	now := r.now().UTC()
	for key, b := range r.buckets {
		if now.After(b.resetAt) {
			delete(r.buckets, key)
		}
	}
}

func infoFor(count, limit int, resetAt time.Time) domain.RateLimitInfo {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitInfo{
		Count:     count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

func minuteBucket(now time.Time, userID, operation string) (string, time.Time) {
	key := "rl:user:" + userID + ":" + operation + ":" + now.Format(minuteBucketLayout)
	resetAt := now.Truncate(time.Minute).Add(time.Minute)
	return key, resetAt
}

func hourBucket(now time.Time, clientAddr string) (string, time.Time) {
	key := "rl:ip:" + clientAddr + ":" + now.Format(hourBucketLayout)
	resetAt := now.Truncate(time.Hour).Add(time.Hour)
	return key, resetAt
}
