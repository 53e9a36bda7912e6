// Package broadcast fans published events out to every live subscriber.
//
// Each subscriber owns a bounded queue drained by its own goroutine, so a
// slow or dead connection never holds up delivery to the others. A publish
// that finds a subscriber's queue full disconnects that subscriber.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/livepay/internal/domain"
)

const (
	EventConnected = "connected"

	DefaultKeepAliveInterval = 25 * time.Second
	DefaultBufferSize        = 64
)

// Event is a named, already-serialized payload.
type Event struct {
	Name string
	Data []byte
}

// Sink is the transport side of a subscription. Writes come from a single
// goroutine per subscription.
type Sink interface {
	WriteEvent(ev Event) error
	WriteKeepAlive() error
}

type Option func(*Broadcaster)

func WithKeepAlive(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.keepAlive = d
		}
	}
}

func WithBufferSize(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Broadcaster) {
		if l != nil {
			b.logger = l
		}
	}
}

type Broadcaster struct {
	keepAlive  time.Duration
	bufferSize int
	logger     *slog.Logger

	// publishMu gives every subscriber the same publish order.
	publishMu sync.Mutex

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		keepAlive:  DefaultKeepAliveInterval,
		bufferSize: DefaultBufferSize,
		logger:     slog.Default(),
		subs:       make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type connectedPayload struct {
	SubscriberID uuid.UUID `json:"subscriberId"`
	Time         time.Time `json:"time"`
}

// Subscribe writes the connected acknowledgement to sink, registers it and
// starts its delivery loop. The subscription ends when ctx is cancelled, a
// write fails, or Unsubscribe/Close is called.
func (b *Broadcaster) Subscribe(ctx context.Context, sink Sink) (*Subscription, error) {
	s := &Subscription{
		id:    uuid.New(),
		b:     b,
		sink:  sink,
		queue: make(chan Event, b.bufferSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("Subscribe: %w", domain.ErrBroadcasterClosed)
	}

	ack, err := encodeEvent(EventConnected, connectedPayload{SubscriberID: s.id, Time: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("Subscribe: %w", err)
	}
	if err := sink.WriteEvent(ack); err != nil {
		return nil, fmt.Errorf("Subscribe: connected ack: %w", err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("Subscribe: %w", domain.ErrBroadcasterClosed)
	}
	b.subs[s] = struct{}{}
	active := len(b.subs)
	b.mu.Unlock()

	b.logger.Info("subscriber joined", "subscriber_id", s.id, "active", active)

	go s.run(ctx)
	return s, nil
}

// Unsubscribe is idempotent and ignores handles it does not own.
func (b *Broadcaster) Unsubscribe(s *Subscription) {
	if s == nil || s.b != b {
		return
	}

	b.mu.Lock()
	_, registered := b.subs[s]
	delete(b.subs, s)
	active := len(b.subs)
	b.mu.Unlock()

	s.stop()

	if registered {
		b.logger.Info("subscriber left", "subscriber_id", s.id, "active", active)
	}
}

// Publish serializes payload once and queues it for every subscriber
// registered at call time. It never waits on a subscriber's transport.
func (b *Broadcaster) Publish(name string, payload any) error {
	ev, err := encodeEvent(name, payload)
	if err != nil {
		return fmt.Errorf("Publish: %w", err)
	}

	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(ev) {
			b.logger.Warn("subscriber queue full, disconnecting",
				"subscriber_id", s.id,
				"event", name,
				"buffer_size", b.bufferSize,
			)
			b.Unsubscribe(s)
		}
	}
	return nil
}

func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close disconnects every subscriber and rejects new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		b.Unsubscribe(s)
	}
}

func encodeEvent(name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s event: %w", name, err)
	}
	return Event{Name: name, Data: data}, nil
}
