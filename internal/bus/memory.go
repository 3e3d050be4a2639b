package bus

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus for tests and single-node development runs.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]*memorySubscription
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySubscription)}
}

func (b *MemoryBus) Publish(_ context.Context, topic string, event Event) error {
	b.mu.Lock()
	subs := make([]*memorySubscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(event)
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Subscription, error) {
	sub := &memorySubscription{
		bus:    b,
		topic:  topic,
		events: make(chan Event, 16),
	}
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()
	return sub, nil
}

type memorySubscription struct {
	bus    *MemoryBus
	topic  string
	events chan Event
	mu     sync.Mutex
	closed bool
}

func (s *memorySubscription) Events() <-chan Event {
	return s.events
}

func (s *memorySubscription) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- event:
	default:
		// A slow test consumer loses the notification, exactly as a lossy
		// pub/sub would; the next event re-triggers a snapshot anyway.
	}
}

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	s.bus.mu.Lock()
	subs := s.bus.subs[s.topic]
	for i, sub := range subs {
		if sub == s {
			s.bus.subs[s.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	s.bus.mu.Unlock()
	return nil
}
