package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"messagehub/internal/models"
	"messagehub/internal/redis"
)

const redisEventsChannel = "notifications:events"

type eventMessage struct {
	Origin       string               `json:"origin"`
	Notification *models.Notification `json:"notification"`
}

// eventBus relays notifications between instances over redis pub/sub.
type eventBus struct {
	client *redis.Client
}

func newEventBus(client *redis.Client) *eventBus {
	return &eventBus{client: client}
}

func (b *eventBus) enabled() bool {
	return b != nil && b.client.Enabled()
}

// startListener subscribes before returning, then feeds every decoded event to
// handler until ctx is done.
func (b *eventBus) startListener(ctx context.Context, handler func(eventMessage)) {
	if !b.enabled() || handler == nil {
		return
	}
	raw := b.client.Raw()
	pubsub := raw.Subscribe(ctx, redisEventsChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		slog.Warn("notification subscribe failed", slog.Any("err", err))
		pubsub.Close()
		return
	}
	go func() {
		<-ctx.Done()
		pubsub.Close()
	}()
	go func() {
		for msg := range pubsub.Channel() {
			var ev eventMessage
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.Warn("notification event decode failed", slog.Any("err", err))
				continue
			}
			if ev.Notification == nil {
				continue
			}
			handler(ev)
		}
	}()
}

func (b *eventBus) publish(ctx context.Context, ev eventMessage) {
	if !b.enabled() {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("notification event marshal failed", slog.Any("err", err))
		return
	}
	if err := b.client.Raw().Publish(ctx, redisEventsChannel, payload).Err(); err != nil {
		slog.Warn("notification publish failed", slog.Any("err", err))
	}
}
