package shared

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// RateLimiter provides per-IP rate limiting with optional Redis backend.
// With Redis the quota is a fixed per-minute window shared by every
// gateway replica; without it each IP gets a token bucket refilled at rpm/60
// per second with a burst of rpm.
type RateLimiter struct {
	rpm   int
	redis *redis.Client
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rpm int, redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{
		rpm:     rpm,
		redis:   redisClient,
		now:     time.Now,
		buckets: map[string]*bucket{},
	}
}

// Limit is the configured requests per minute; zero disables limiting.
func (r *RateLimiter) Limit() int { return r.rpm }

// key for the current minute window
func minuteKey(ip string, now time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", ip, now.Unix()/60)
}

// Allow returns whether the request is allowed and the remaining quota (best-effort)
func (r *RateLimiter) Allow(ctx context.Context, ip string) (bool, int) {
	if r.rpm <= 0 {
		return true, 0
	}
	if r.redis != nil {
		ctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		key := minuteKey(ip, r.now())
		pipe := r.redis.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 65*time.Second)
		if _, err := pipe.Exec(ctx); err == nil {
			n := int(incr.Val())
			return n <= r.rpm, max(r.rpm-n, 0)
		}
		// Redis unavailable: fall through to the local buckets
	}
	return r.allowInMem(ip)
}

func (r *RateLimiter) allowInMem(ip string) (bool, int) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) > time.Minute {
		for k, b := range r.buckets {
			if now.Sub(b.lastSeen) > limiterIdleTTL {
				delete(r.buckets, k)
			}
		}
		r.lastSweep = now
	}

	b, ok := r.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(r.rpm)/60), r.rpm)}
		r.buckets[ip] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)
	return allowed, max(int(b.limiter.TokensAt(now)), 0)
}
