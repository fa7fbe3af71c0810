package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"tokopay/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// NewLimiter returns a Redis backed limiter when cfg.RedisAddr is set and an in-process one
// otherwise.
func NewLimiter(cfg config.RateLimitConfig) Limiter {
	if cfg.RedisAddr != "" {
		return NewRedisLimiter(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}), cfg.RPS, cfg.Burst)
	}
	return NewLocalLimiter(cfg.RPS, cfg.Burst)
}

// RateLimit rejects callers over their budget with 429. Limiter failures let the request
// through.
func RateLimit(limiter Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := "ip:" + c.IP()
		allowed, err := limiter.Allow(c.UserContext(), key)
		if err != nil {
			slog.Error("rate limiter unavailable", "key", key, "err", err)
			return c.Next()
		}
		if !allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(1))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"message": "Too many requests",
			})
		}
		return c.Next()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter keeps one token bucket per key in memory.
type LocalLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	done     chan struct{}
	stop     sync.Once
}

// NewLocalLimiter creates a LocalLimiter and starts evicting keys idle for three minutes.
func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	l := &LocalLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		done:     make(chan struct{}),
	}
	go l.cleanup(time.Minute, 3*time.Minute)
	return l
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()
	return v.limiter.Allow(), nil
}

// Close stops the eviction loop.
func (l *LocalLimiter) Close() error {
	l.stop.Do(func() { close(l.done) })
	return nil
}

func (l *LocalLimiter) cleanup(every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			for key, v := range l.visitors {
				if time.Since(v.lastSeen) > idle {
					delete(l.visitors, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// tokenBucketScript refills and takes one token atomically.
// KEYS[1] = bucket key, ARGV[1] = tokens per second, ARGV[2] = capacity, ARGV[3] = now (seconds).
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return allowed
`)

// RedisLimiter shares token buckets between instances through Redis.
type RedisLimiter struct {
	client *redis.Client
	rps    float64
	burst  int
}

// NewRedisLimiter creates a RedisLimiter on client.
func NewRedisLimiter(client *redis.Client, rps float64, burst int) *RedisLimiter {
	if rps <= 0 {
		rps = 1
	}
	return &RedisLimiter{client: client, rps: rps, burst: burst}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(time.Now().UnixMicro()) / 1e6
	res, err := tokenBucketScript.Run(ctx, l.client, []string{"tokopay:ratelimit:" + key}, l.rps, l.burst, now).Int64()
	if err != nil {
		return false, fmt.Errorf("redis limiter error: %w", err)
	}
	return res == 1, nil
}

// Close releases the Redis connection pool.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
