package worker

import (
	"sync"

	"messagehub/internal/models"
)

const defaultSubscriberBuffer = 16

type subscriber struct {
	ch chan *models.Notification
}

// Broker fans notifications out to the in-process subscribers of each user.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broker{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a listener for userID. The returned func unsubscribes
// and closes the channel; calling it more than once is safe.
func (b *Broker) Subscribe(userID string) (<-chan *models.Notification, func()) {
	sub := &subscriber{ch: make(chan *models.Notification, b.buffer)}
	b.mu.Lock()
	set := b.subs[userID]
	if set == nil {
		set = make(map[*subscriber]struct{})
		b.subs[userID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[userID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(b.subs, userID)
				}
			}
			close(sub.ch)
			b.mu.Unlock()
		})
	}
}

// Deliver hands n to every subscriber of its user and returns how many took it.
// Subscribers with a full buffer miss the event.
func (b *Broker) Deliver(n *models.Notification) int {
	if n == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	delivered := 0
	for sub := range b.subs[n.UserID] {
		select {
		case sub.ch <- n:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers counts the live subscriptions of userID.
func (b *Broker) Subscribers(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}
