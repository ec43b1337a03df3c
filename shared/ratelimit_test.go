package shared

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// TestRateLimiterInMemoryBurst checks the per-IP bucket and its refill.
func TestRateLimiterInMemoryBurst(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, nil)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow(ctx, "10.0.0.1"); !ok {
			t.Fatalf("request %d rejected within burst", i+1)
		}
	}
	if ok, remaining := rl.Allow(ctx, "10.0.0.1"); ok || remaining != 0 {
		t.Fatalf("fourth request = %v (remaining %d), want rejected", ok, remaining)
	}
	if ok, _ := rl.Allow(ctx, "10.0.0.2"); !ok {
		t.Fatal("other IP rejected")
	}

	now = now.Add(20 * time.Second) // one token at 3 rpm
	if ok, _ := rl.Allow(ctx, "10.0.0.1"); !ok {
		t.Fatal("request after refill rejected")
	}
}

// TestRateLimiterDisabled checks a zero limit allows everything.
func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, nil)
	for i := 0; i < 100; i++ {
		if ok, _ := rl.Allow(context.Background(), "10.0.0.1"); !ok {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}

// TestRateLimiterRedisWindow checks the shared per-minute counter.
func TestRateLimiterRedisWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	now := time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC)
	rl := NewRateLimiter(2, client)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, remaining := rl.Allow(ctx, "10.0.0.1"); !ok || remaining != 1 {
		t.Fatalf("first = %v/%d, want allowed with 1 left", ok, remaining)
	}
	if ok, remaining := rl.Allow(ctx, "10.0.0.1"); !ok || remaining != 0 {
		t.Fatalf("second = %v/%d, want allowed with 0 left", ok, remaining)
	}
	if ok, _ := rl.Allow(ctx, "10.0.0.1"); ok {
		t.Fatal("third request in the window allowed")
	}
	if ttl := mr.TTL(minuteKey("10.0.0.1", now)); ttl <= 0 {
		t.Fatalf("window key ttl = %s, want expiry", ttl)
	}

	now = now.Add(time.Minute)
	if ok, _ := rl.Allow(ctx, "10.0.0.1"); !ok {
		t.Fatal("request in the next window rejected")
	}
}

// TestRateLimiterFallsBackWhenRedisIsDown checks the local buckets take over.
func TestRateLimiterFallsBackWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	rl := NewRateLimiter(1, client)

	if ok, _ := rl.Allow(context.Background(), "10.0.0.1"); !ok {
		t.Fatal("first request rejected")
	}
	if ok, _ := rl.Allow(context.Background(), "10.0.0.1"); ok {
		t.Fatal("second request allowed over the local limit")
	}
}
