package worker

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"messagehub/internal/config"
	"messagehub/internal/models"
	"messagehub/internal/redis"
)

func TestEventBusPubSub(t *testing.T) {
	client := newRedisTestClient(t)
	bus := newEventBus(client)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan eventMessage, 1)
	bus.startListener(ctx, func(ev eventMessage) {
		ch <- ev
	})

	sent := eventMessage{Origin: "peer", Notification: &models.Notification{ID: 3, UserID: "u1", MessageID: "m1"}}
	bus.publish(ctx, sent)
	select {
	case got := <-ch:
		if got.Origin != "peer" || got.Notification.ID != 3 || got.Notification.UserID != "u1" {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("did not receive pubsub message")
	}
}

func TestNotifiersShareEventsAcrossInstances(t *testing.T) {
	client := newRedisTestClient(t)
	a := NewNotifier(client, Options{InstanceID: "instance-a"})
	defer a.Close()
	b := NewNotifier(client, Options{InstanceID: "instance-b"})
	defer b.Close()

	feedA, unsubA := a.Subscribe("carol")
	defer unsubA()
	feedB, unsubB := b.Subscribe("carol")
	defer unsubB()

	a.Publish(context.Background(), &models.Notification{ID: 11, UserID: "carol"})
	for name, feed := range map[string]<-chan *models.Notification{"local": feedA, "remote": feedB} {
		select {
		case got := <-feed:
			if got.ID != 11 {
				t.Fatalf("%s subscriber got %+v", name, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s subscriber missed the notification", name)
		}
	}
	select {
	case got := <-feedA:
		t.Fatalf("local subscriber received its own echo %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventBusDisabledWithoutRedis(t *testing.T) {
	bus := newEventBus(nil)
	if bus.enabled() {
		t.Fatalf("bus without client should be disabled")
	}
	bus.publish(context.Background(), eventMessage{})
	bus.startListener(context.Background(), func(eventMessage) { t.Fatalf("handler must not run") })
}

func newRedisTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed worker tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	client, err := redis.NewRedisClient(&config.Config{
		Redis: config.RedisConfig{Enabled: true, Host: host, Port: port, DB: db},
	})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}
