package cache

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"messagehub/internal/config"
	"messagehub/internal/models"
	"messagehub/internal/redis"
)

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	c := NewMessageCache(nil, 0)
	ctx := context.Background()
	c.StoreMessages(ctx, "conv", "0", []*models.Message{{ID: "m1"}})
	c.Invalidate(ctx, "conv")
	if _, ver, ok := c.Messages(ctx, "conv"); ok || ver != "" {
		t.Fatalf("disabled cache should miss without a version, got %q", ver)
	}
	if c.ttl != DefaultTTL {
		t.Fatalf("ttl = %v, want %v", c.ttl, DefaultTTL)
	}
}

func TestKeysCarryVersion(t *testing.T) {
	if got := messagesKey("abc", "3"); got != "cache:conv:abc:v3:messages" {
		t.Fatalf("messagesKey = %q", got)
	}
	if got := versionKey("abc"); got != "cache:conv:abc:ver" {
		t.Fatalf("versionKey = %q", got)
	}
}

func TestStoreReadInvalidate(t *testing.T) {
	client := newRedisClient(t)
	c := NewMessageCache(client, time.Minute)
	ctx := context.Background()
	conv := "test-" + uuid.NewString()
	t.Cleanup(func() {
		client.Del(context.Background(), versionKey(conv), messagesKey(conv, "0"), messagesKey(conv, "1"))
	})

	_, ver, ok := c.Messages(ctx, conv)
	if ok || ver != "0" {
		t.Fatalf("expected initial miss at version 0, got %q %v", ver, ok)
	}
	sent := time.Now().UTC().Truncate(time.Second)
	c.StoreMessages(ctx, conv, ver, []*models.Message{{ID: "m1", ConversationID: conv, Body: "hi", SentAt: sent}})
	got, _, ok := c.Messages(ctx, conv)
	if !ok || len(got) != 1 || got[0].Body != "hi" || !got[0].SentAt.Equal(sent) {
		t.Fatalf("unexpected cached messages: %+v %v", got, ok)
	}

	c.Invalidate(ctx, conv)
	if _, ver, ok := c.Messages(ctx, conv); ok || ver != "1" {
		t.Fatalf("expected miss at version 1 after invalidation, got %q %v", ver, ok)
	}
	ttl, err := client.TTL(ctx, messagesKey(conv, "0"))
	if err != nil || ttl <= 0 {
		t.Fatalf("stale entry should still carry a ttl: %v %v", ttl, err)
	}
}

func TestInvalidationDuringLoadDropsStaleStore(t *testing.T) {
	client := newRedisClient(t)
	c := NewMessageCache(client, time.Minute)
	ctx := context.Background()
	conv := "test-" + uuid.NewString()
	t.Cleanup(func() {
		client.Del(context.Background(), versionKey(conv), messagesKey(conv, "0"), messagesKey(conv, "1"))
	})

	// a reader misses and starts loading the list
	_, readVer, ok := c.Messages(ctx, conv)
	if ok {
		t.Fatalf("expected initial miss")
	}
	// a writer commits and invalidates before the reader stores
	c.Invalidate(ctx, conv)
	c.StoreMessages(ctx, conv, readVer, []*models.Message{{ID: "m1", ConversationID: conv, Body: "old"}})

	if got, ver, ok := c.Messages(ctx, conv); ok {
		t.Fatalf("stale list served at version %s: %+v", ver, got)
	}
	c.StoreMessages(ctx, conv, "1", []*models.Message{{ID: "m1", ConversationID: conv, Body: "new"}})
	got, _, ok := c.Messages(ctx, conv)
	if !ok || got[0].Body != "new" {
		t.Fatalf("expected fresh list, got %+v %v", got, ok)
	}
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = miniredis.RunT(t).Addr()
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	client, err := redis.NewRedisClient(&config.Config{
		Redis: config.RedisConfig{Enabled: true, Host: host, Port: port},
	})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}
