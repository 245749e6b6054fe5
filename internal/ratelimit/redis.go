package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

// checkScript atomically increments the bucket counter only while it is
// under the limit; a denied call must not consume quota.
var checkScript = redis.NewScript(`
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
if count >= limit then
	return {0, count}
end
count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {1, count}
`)

// RedisLimiter shares fixed-window counters across instances. Bucket keys
// embed the UTC window so counters reset by key rotation; the TTL only
// garbage-collects finished windows.
type RedisLimiter struct {
	client *redis.Client
	limits Limits
	public int
	now    func() time.Time
}

func NewRedisLimiter(redisURL string, limits Limits) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if limits == nil {
		limits = DefaultLimits()
	}

	return &RedisLimiter{
		client: client,
		limits: limits,
		public: publicLimit,
		now:    time.Now,
	}, nil
}

func (r *RedisLimiter) Check(ctx context.Context, userID, operation string) (bool, domain.RateLimitInfo, error) {
	limit := r.limits.For(operation)
	key, resetAt := minuteBucket(r.now().UTC(), userID, operation)
	return r.check(ctx, key, limit, resetAt, 2*time.Minute)
}

func (r *RedisLimiter) Info(ctx context.Context, userID, operation string) (domain.RateLimitInfo, error) {
	limit := r.limits.For(operation)
	key, resetAt := minuteBucket(r.now().UTC(), userID, operation)
	return r.info(ctx, key, limit, resetAt)
}

func (r *RedisLimiter) CheckPublic(ctx context.Context, clientAddr string) (bool, domain.RateLimitInfo, error) {
	key, resetAt := hourBucket(r.now().UTC(), clientAddr)
	return r.check(ctx, key, r.public, resetAt, 2*time.Hour)
}

func (r *RedisLimiter) PublicInfo(ctx context.Context, clientAddr string) (domain.RateLimitInfo, error) {
	key, resetAt := hourBucket(r.now().UTC(), clientAddr)
	return r.info(ctx, key, r.public, resetAt)
}

func (r *RedisLimiter) check(ctx context.Context, key string, limit int, resetAt time.Time, ttl time.Duration) (bool, domain.RateLimitInfo, error) {
	res, err := checkScript.Run(ctx, r.client, []string{key}, limit, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return false, domain.RateLimitInfo{}, err
	}

	allowed := len(res) == 2 && res[0] == 1
	count := 0
	if len(res) == 2 {
		count = int(res[1])
	}

	return allowed, infoFor(count, limit, resetAt), nil
}

func (r *RedisLimiter) info(ctx context.Context, key string, limit int, resetAt time.Time) (domain.RateLimitInfo, error) {
	count, err := r.client.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		return domain.RateLimitInfo{}, err
	}

	return infoFor(count, limit, resetAt), nil
}

func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
