package broker

import (
	"route-optimizer-service/internal/domain"
	"sync"
)

// subscription delivers the newest update of each method to one consumer.
// An update that arrives before the consumer read the previous one of the same
// method replaces it; updates of different methods never replace each other.
type subscription struct {
	out  chan domain.RouteUpdate
	wake chan struct{}
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	pending map[domain.Method]domain.RouteUpdate
	order   []domain.Method
}

func newSubscription() *subscription {
	s := &subscription{
		out:     make(chan domain.RouteUpdate),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		pending: make(map[domain.Method]domain.RouteUpdate),
	}
	go s.pump()
	return s
}

// offer never blocks.
func (s *subscription) offer(u domain.RouteUpdate) {
	s.mu.Lock()
	if _, queued := s.pending[u.Method]; !queued {
		s.order = append(s.order, u.Method)
	}
	s.pending[u.Method] = u
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) next() (domain.RouteUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) == 0 {
		return domain.RouteUpdate{}, false
	}
	m := s.order[0]
	s.order = s.order[1:]
	u := s.pending[m]
	delete(s.pending, m)
	return u, true
}

func (s *subscription) pump() {
	defer close(s.out)

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			u, ok := s.next()
			if !ok {
				break
			}
			select {
			case s.out <- u:
			case <-s.done:
				return
			}
		}
	}
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.done) })
}
