package redis

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"messagehub/internal/config"
)

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	ctx := context.Background()
	if c.Enabled() {
		t.Fatalf("nil client reported enabled")
	}
	if err := c.Set(ctx, "k", "v", time.Second); !errors.Is(err, errNotInitialized) {
		t.Fatalf("Set on nil client: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, errNotInitialized) {
		t.Fatalf("Get on nil client: %v", err)
	}
	if _, err := c.Exists(ctx, "k"); !errors.Is(err, errNotInitialized) {
		t.Fatalf("Exists on nil client: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close on nil client: %v", err)
	}
	if c.Raw() != nil {
		t.Fatalf("expected nil raw client")
	}
}

func TestDisabledConfigReturnsNil(t *testing.T) {
	c, err := NewRedisClient(&config.Config{})
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil client when redis disabled")
	}
}

func TestClientRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	c, err := NewRedisClient(&config.Config{Redis: config.RedisConfig{Enabled: true, Host: host, Port: port}})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	key := "test:roundtrip:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := c.Set(ctx, key, "1", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, err := c.Get(ctx, key); err != nil || v != "1" {
		t.Fatalf("Get: %q %v", v, err)
	}
	if n, err := c.Incr(ctx, key); err != nil || n != 2 {
		t.Fatalf("Incr: %d %v", n, err)
	}
	if err := c.Del(ctx, key); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := c.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
}
