// Package worker delivers stored notifications to live subscribers through a
// per-user fair dispatcher and, when redis is configured, to other instances.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"messagehub/internal/models"
	"messagehub/internal/redis"
)

// Options sizes the delivery pool.
type Options struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
	// Buffer is the per-subscriber channel size.
	Buffer int
	// InstanceID tags events this process publishes; a random id is used when empty.
	InstanceID string
}

// Notifier implements the messaging notifier on top of the dispatcher.
type Notifier struct {
	dispatcher *Dispatcher
	broker     *Broker
	bus        *eventBus
	origin     string
	cancel     context.CancelFunc
}

// NewNotifier starts the worker pool and, when client is usable, the redis listener.
func NewNotifier(client *redis.Client, opts Options) *Notifier {
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		broker: NewBroker(opts.Buffer),
		bus:    newEventBus(client),
		origin: opts.InstanceID,
		cancel: cancel,
	}
	n.dispatcher = NewDispatcher(opts.MinWorkers, opts.MaxWorkers, opts.QueueSize, opts.IdleTimeout, n.deliver)
	n.bus.startListener(ctx, n.receive)
	return n
}

// Publish queues a notification for delivery. A full queue drops it; the row is
// already stored and will show up in the next listing.
func (n *Notifier) Publish(ctx context.Context, note *models.Notification) {
	if note == nil {
		return
	}
	if !n.dispatcher.Submit(Job{Type: Deliver, UserID: note.UserID, Notification: note}) {
		slog.WarnContext(ctx, "notification queue full, dropping live delivery",
			slog.String("user_id", note.UserID), slog.Int64("notification_id", note.ID))
	}
}

// Subscribe returns the live notification feed of userID.
func (n *Notifier) Subscribe(userID string) (<-chan *models.Notification, func()) {
	return n.broker.Subscribe(userID)
}

// Close stops the listener and the worker pool.
func (n *Notifier) Close() {
	n.cancel()
	n.dispatcher.Close()
}

func (n *Notifier) deliver(job Job) {
	delivered := n.broker.Deliver(job.Notification)
	slog.Debug("notification delivered",
		slog.String("user_id", job.UserID),
		slog.Int64("notification_id", job.Notification.ID),
		slog.Int("subscribers", delivered),
	)
	n.bus.publish(context.Background(), eventMessage{Origin: n.origin, Notification: job.Notification})
}

func (n *Notifier) receive(ev eventMessage) {
	if ev.Origin == n.origin {
		return
	}
	n.broker.Deliver(ev.Notification)
}
