package realtime

import (
	"sync"
)

// Ops of the tardiness_records_changes feed. OpResync is published after the feed was
// interrupted and events may have been missed.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
	OpResync = "RESYNC"
)

const subscriptionBuffer = 16

// Event is a change of a tardiness record.
type Event struct {
	Op string `json:"op"`
	ID string `json:"id"`
}

// Broker fans events out to subscribers. Slow subscribers miss events instead of blocking publishers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	hooks  []func(Event)
	closed bool
}

type Subscription struct {
	C <-chan Event

	ch     chan Event
	broker *Broker
	once   sync.Once
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[*Subscription]struct{})}
}

// OnEvent registers fn to be called synchronously on every published event.
func (b *Broker) OnEvent(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, fn)
}

func (b *Broker) Subscribe() *Subscription {
	ch := make(chan Event, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch, broker: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.once.Do(func() { close(ch) })
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, fn := range b.hooks {
		fn(ev)
	}
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription; later Publish calls are ignored.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		sub.once.Do(func() { close(sub.ch) })
	}
}

// Close unsubscribes; C is closed.
func (s *Subscription) Close() {
	s.broker.mu.Lock()
	delete(s.broker.subs, s)
	s.broker.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}
