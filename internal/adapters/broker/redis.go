package broker

import (
	"context"
	"fmt"
	"route-optimizer-service/internal/domain"
	"route-optimizer-service/internal/ports"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ ports.UpdateBroker = (*RedisBroker)(nil)

const publishTimeout = 2 * time.Second

// outboxKey identifies one stream of superseding updates.
type outboxKey struct {
	channel string
	method  domain.Method
}

type outbound struct {
	channel string
	payload []byte
}

// RedisBroker fans route updates out over Redis pub/sub so every instance
// behind a load balancer can stream any session. Publish only records the
// update; a single goroutine writes to Redis. While Redis is slow, a newer
// update of the same topic and method replaces the one still waiting, so the
// newest state is always the one delivered last.
type RedisBroker struct {
	rdb       *redis.Client
	ownClient bool
	logger    *zap.Logger

	mu      sync.Mutex
	closed  bool
	pending map[outboxKey][]byte
	order   []outboxKey

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewRedisBroker uses an existing client; Close leaves it open.
func NewRedisBroker(rdb *redis.Client, logger *zap.Logger) *RedisBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &RedisBroker{
		rdb:     rdb,
		logger:  logger.With(zap.String("broker", "redis")),
		pending: make(map[outboxKey][]byte),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	b.wg.Add(1)
	go b.loop()
	return b
}

// NewRedisBrokerFromURL connects to url and verifies the connection.
func NewRedisBrokerFromURL(ctx context.Context, url string, logger *zap.Logger) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis broker: parse url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis broker: ping: %w", err)
	}

	b := NewRedisBroker(rdb, logger)
	b.ownClient = true
	return b, nil
}

func channelName(topic string) string { return "routes:" + topic }

// Publish never blocks. Updates published after Close are dropped.
func (b *RedisBroker) Publish(topic string, u domain.RouteUpdate) {
	payload, err := encodeUpdate(u)
	if err != nil {
		b.logger.Error("encode route update", zap.String("topic", topic), zap.Error(err))
		return
	}

	key := outboxKey{channel: channelName(topic), method: u.Method}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if _, queued := b.pending[key]; !queued {
		b.order = append(b.order, key)
	}
	b.pending[key] = payload
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *RedisBroker) next() (outbound, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.order) == 0 {
		return outbound{}, false
	}
	key := b.order[0]
	b.order = b.order[1:]
	payload := b.pending[key]
	delete(b.pending, key)
	return outbound{channel: key.channel, payload: payload}, true
}

func (b *RedisBroker) loop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.wake:
			b.drain()
		case <-b.done:
			b.drain()
			return
		}
	}
}

func (b *RedisBroker) drain() {
	for {
		m, ok := b.next()
		if !ok {
			return
		}
		b.send(m)
	}
}

func (b *RedisBroker) send(m outbound) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.rdb.Publish(ctx, m.channel, m.payload).Err(); err != nil {
		b.logger.Warn("redis publish failed", zap.String("channel", m.channel), zap.Error(err))
	}
}

// Subscribe returns once Redis has confirmed the subscription, so updates
// published afterwards are not missed.
func (b *RedisBroker) Subscribe(topic string) (<-chan domain.RouteUpdate, func(), error) {
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, channelName(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("redis broker: subscribe %q: %w", topic, err)
	}

	s := newSubscription()
	go func() {
		for msg := range ps.Channel() {
			u, err := decodeUpdate([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("drop route update", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			s.offer(u)
		}
	}()

	return s.out, func() {
		_ = ps.Close()
		s.close()
	}, nil
}

// Close sends the updates still waiting and stops the publisher goroutine.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.closeOnce.Do(func() { close(b.done) })
	b.wg.Wait()
	if b.ownClient {
		return b.rdb.Close()
	}
	return nil
}
