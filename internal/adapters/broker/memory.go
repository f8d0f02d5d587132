package broker

import (
	"route-optimizer-service/internal/domain"
	"route-optimizer-service/internal/ports"
	"sync"
)

var _ ports.UpdateBroker = (*MemoryBroker)(nil)

// MemoryBroker fans route updates out to subscribers in this process.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[*subscription]struct{} // topic -> set of subscriptions
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*subscription]struct{})}
}

// Subscribe never fails.
func (b *MemoryBroker) Subscribe(topic string) (<-chan domain.RouteUpdate, func(), error) {
	s := newSubscription()

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*subscription]struct{})
	}
	b.subs[topic][s] = struct{}{}
	b.mu.Unlock()

	return s.out, func() { b.unsubscribe(topic, s) }, nil
}

func (b *MemoryBroker) unsubscribe(topic string, s *subscription) {
	b.mu.Lock()
	if m := b.subs[topic]; m != nil {
		delete(m, s)
		if len(m) == 0 {
			delete(b.subs, topic)
		}
	}
	b.mu.Unlock()
	s.close()
}

// Publish never blocks on slow subscribers.
func (b *MemoryBroker) Publish(topic string, u domain.RouteUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs[topic] {
		s.offer(u)
	}
}
