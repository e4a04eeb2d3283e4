// Package cache keeps conversation message lists in redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"messagehub/internal/models"
	"messagehub/internal/redis"
)

// DefaultTTL bounds how long a cached message list may be served.
const DefaultTTL = 60 * time.Second

// MessageCache stores conversation message lists under versioned keys.
// Invalidation bumps the version, so stale entries are never read again
// and simply expire.
type MessageCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMessageCache returns a cache backed by client. A nil client disables caching.
func NewMessageCache(client *redis.Client, ttl time.Duration) *MessageCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MessageCache{client: client, ttl: ttl}
}

func versionKey(conversationID string) string {
	return fmt.Sprintf("cache:conv:%s:ver", conversationID)
}

func messagesKey(conversationID, version string) string {
	return fmt.Sprintf("cache:conv:%s:v%s:messages", conversationID, version)
}

func (c *MessageCache) version(ctx context.Context, conversationID string) (string, error) {
	ver, err := c.client.Get(ctx, versionKey(conversationID))
	if errors.Is(err, redis.ErrCacheMiss) {
		return "0", nil
	}
	return ver, err
}

// Messages returns the cached list and the version it was looked up under.
// On a miss the version is still returned so the caller can store a freshly
// loaded list with StoreMessages; an empty version means caching is off or
// redis failed.
func (c *MessageCache) Messages(ctx context.Context, conversationID string) ([]*models.Message, string, bool) {
	if c == nil || !c.client.Enabled() {
		return nil, "", false
	}
	ver, err := c.version(ctx, conversationID)
	if err != nil {
		slog.WarnContext(ctx, "message cache version lookup failed", slog.String("conversation_id", conversationID), slog.Any("err", err))
		return nil, "", false
	}
	raw, err := c.client.Get(ctx, messagesKey(conversationID, ver))
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			slog.WarnContext(ctx, "message cache read failed", slog.String("conversation_id", conversationID), slog.Any("err", err))
			return nil, "", false
		}
		return nil, ver, false
	}
	var msgs []*models.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		slog.WarnContext(ctx, "message cache entry corrupt", slog.String("conversation_id", conversationID), slog.Any("err", err))
		return nil, ver, false
	}
	return msgs, ver, true
}

// StoreMessages caches msgs under version, the one Messages reported before
// the list was loaded. An invalidation in between leaves the entry unreachable.
func (c *MessageCache) StoreMessages(ctx context.Context, conversationID, version string, msgs []*models.Message) {
	if c == nil || !c.client.Enabled() || version == "" {
		return
	}
	payload, err := json.Marshal(msgs)
	if err != nil {
		slog.WarnContext(ctx, "encode message cache entry failed", slog.Any("err", err))
		return
	}
	if err := c.client.Set(ctx, messagesKey(conversationID, version), payload, c.ttl); err != nil {
		slog.WarnContext(ctx, "message cache write failed", slog.String("conversation_id", conversationID), slog.Any("err", err))
	}
}

// Invalidate moves the conversation to a new version.
func (c *MessageCache) Invalidate(ctx context.Context, conversationID string) {
	if c == nil || !c.client.Enabled() {
		return
	}
	if _, err := c.client.Incr(ctx, versionKey(conversationID)); err != nil {
		slog.WarnContext(ctx, "message cache invalidation failed", slog.String("conversation_id", conversationID), slog.Any("err", err))
	}
}
