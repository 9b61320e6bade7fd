package swarm

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Channel fans swarm messages out to all current subscribers. Each
// subscriber owns an independent bounded buffer; a subscriber that
// falls behind loses the newest messages rather than blocking the
// publisher. Broadcasting to zero subscribers is not an error.
type Channel struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool

	dropped atomic.Int64

	logger  *zap.Logger
	metrics Metrics
}

// Subscription is one subscriber's receive handle. Messages are read
// from Messages(); Cancel releases the handle and closes the stream.
type Subscription struct {
	id      uint64
	ch      chan Message
	channel *Channel
	once    sync.Once
}

// Messages returns the subscriber's receive stream. The channel is
// closed when the subscription is cancelled or the Channel shuts down.
func (s *Subscription) Messages() <-chan Message {
	return s.ch
}

// Cancel removes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.channel.remove(s.id)
	})
}

// NewChannel creates a broadcast channel with the given per-subscriber
// buffer size.
func NewChannel(buffer int, logger *zap.Logger, m Metrics) *Channel {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = NopMetrics{}
	}
	return &Channel{
		subs:    make(map[uint64]*Subscription),
		buffer:  buffer,
		logger:  logger.With(zap.String("component", "swarm_channel")),
		metrics: m,
	}
}

// Subscribe registers a new subscriber and returns its receive handle.
func (c *Channel) Subscribe() *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	sub := &Subscription{
		id:      c.nextID,
		ch:      make(chan Message, c.buffer),
		channel: c,
	}
	if c.closed {
		close(sub.ch)
		return sub
	}
	c.subs[sub.id] = sub
	return sub
}

// Broadcast delivers msg to every current subscriber and returns the
// number of successful deliveries. A subscriber whose buffer is full is
// skipped: the message is dropped for that subscriber only.
func (c *Channel) Broadcast(msg Message) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0
	}

	delivered, droppedNow := 0, 0
	for _, sub := range c.subs {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			droppedNow++
		}
	}
	if droppedNow > 0 {
		c.dropped.Add(int64(droppedNow))
		c.logger.Debug("subscriber buffers full, message dropped",
			zap.String("kind", string(msg.Kind)),
			zap.Int("dropped", droppedNow),
		)
	}
	c.metrics.RecordBroadcast(msg.Kind, delivered, droppedNow)
	return delivered
}

// SubscriberCount returns the number of active subscriptions.
func (c *Channel) SubscriberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Dropped returns the total number of per-subscriber drops since the
// channel was created.
func (c *Channel) Dropped() int64 {
	return c.dropped.Load()
}

// Close terminates all subscriptions. Further broadcasts deliver to
// nobody and further subscriptions receive a closed stream.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
}

func (c *Channel) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(sub.ch)
	}
}
