package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"messagehub/internal/redis"
)

const redisKeyPrefix = "ratelimit:"

// RedisWindow shares the sliding window across instances with one ZSET per key.
// Scores are microsecond timestamps.
type RedisWindow struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisWindow(client *redis.Client, limit int, window time.Duration) *RedisWindow {
	return &RedisWindow{client: client, limit: limit, window: window, now: time.Now}
}

func (w *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	rdb := w.client.Raw()
	if rdb == nil {
		return false, fmt.Errorf("ratelimit: redis client not initialized")
	}
	now := w.now()
	zkey := redisKeyPrefix + key
	member := strconv.FormatInt(now.UnixMicro(), 10) + "-" + uuid.NewString()
	cutoff := now.Add(-w.window).UnixMicro()

	var card *goredis.IntCmd
	_, err := rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, zkey, "-inf", "("+strconv.FormatInt(cutoff, 10))
		pipe.ZAdd(ctx, zkey, goredis.Z{Score: float64(now.UnixMicro()), Member: member})
		card = pipe.ZCard(ctx, zkey)
		pipe.Expire(ctx, zkey, w.window+time.Second)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("ratelimit: %w", err)
	}
	if card.Val() > int64(w.limit) {
		// denied requests do not occupy the window
		if err := rdb.ZRem(ctx, zkey, member).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: %w", err)
		}
		return false, nil
	}
	return true, nil
}
