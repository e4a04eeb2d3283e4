package ratelimit

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"messagehub/internal/config"
	"messagehub/internal/redis"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }

func TestWindowSlides(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	w := NewWindow(5, time.Minute).WithClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := w.Allow(ctx, "1.2.3.4")
		if err != nil || !ok {
			t.Fatalf("request %d should pass: %v", i+1, err)
		}
		clock.t = clock.t.Add(time.Second)
	}
	if ok, _ := w.Allow(ctx, "1.2.3.4"); ok {
		t.Fatalf("sixth request inside the window should be denied")
	}
	if ok, _ := w.Allow(ctx, "5.6.7.8"); !ok {
		t.Fatalf("other keys have their own window")
	}

	// first hit was at 12:00:00; at 12:01:00 it is exactly one window old and still counts
	clock.t = time.Date(2024, 1, 1, 12, 1, 0, 0, time.UTC)
	if ok, _ := w.Allow(ctx, "1.2.3.4"); ok {
		t.Fatalf("entry exactly one window old should still count")
	}
	clock.t = clock.t.Add(time.Millisecond)
	if ok, _ := w.Allow(ctx, "1.2.3.4"); !ok {
		t.Fatalf("oldest entry should have slid out")
	}
	if ok, _ := w.Allow(ctx, "1.2.3.4"); ok {
		t.Fatalf("window is full again")
	}
}

func TestDeniedRequestsDoNotExtendWindow(t *testing.T) {
	clock := &stepClock{t: time.Unix(0, 0)}
	w := NewWindow(1, 10*time.Second).WithClock(clock.Now)
	ctx := context.Background()
	if ok, _ := w.Allow(ctx, "k"); !ok {
		t.Fatalf("first request should pass")
	}
	for i := 0; i < 5; i++ {
		clock.t = clock.t.Add(time.Second)
		if ok, _ := w.Allow(ctx, "k"); ok {
			t.Fatalf("request inside window should be denied")
		}
	}
	clock.t = time.Unix(11, 0)
	if ok, _ := w.Allow(ctx, "k"); !ok {
		t.Fatalf("denied requests must not be recorded")
	}
}

func TestPrune(t *testing.T) {
	clock := &stepClock{t: time.Unix(0, 0)}
	w := NewWindow(3, time.Second).WithClock(clock.Now)
	ctx := context.Background()
	w.Allow(ctx, "a")
	w.Allow(ctx, "b")
	clock.t = clock.t.Add(2 * time.Second)
	w.Allow(ctx, "b")
	if removed := w.Prune(); removed != 1 {
		t.Fatalf("Prune removed %d keys, want 1", removed)
	}
	if _, ok := w.hits["a"]; ok {
		t.Fatalf("stale key survived prune")
	}
}

func TestRedisWindow(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed rate limit tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	client, err := redis.NewRedisClient(&config.Config{Redis: config.RedisConfig{Enabled: true, Host: host, Port: port}})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	key := "test-" + uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), redisKeyPrefix+key) })
	w := NewRedisWindow(client, 2, time.Minute)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if ok, err := w.Allow(ctx, key); err != nil || !ok {
			t.Fatalf("request %d should pass: %v", i+1, err)
		}
	}
	if ok, err := w.Allow(ctx, key); err != nil || ok {
		t.Fatalf("third request should be denied: %v", err)
	}
	w.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if ok, err := w.Allow(ctx, key); err != nil || !ok {
		t.Fatalf("window should have slid: %v", err)
	}
}

func TestRedisWindowWithoutClient(t *testing.T) {
	if _, err := NewRedisWindow(nil, 1, time.Second).Allow(context.Background(), "k"); err == nil {
		t.Fatalf("expected error without redis")
	}
}
