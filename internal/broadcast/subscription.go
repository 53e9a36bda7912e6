package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Subscription struct {
	id    uuid.UUID
	b     *Broadcaster
	sink  Sink
	queue chan Event

	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

func (s *Subscription) ID() uuid.UUID { return s.id }

// Done is closed once the delivery loop has exited and the sink will not be
// written to again.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) stop() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *Subscription) stopped(ctx context.Context) bool {
	select {
	case <-s.quit:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// enqueue reports false only when the queue is full.
func (s *Subscription) enqueue(ev Event) bool {
	select {
	case <-s.quit:
		return true
	default:
	}

	select {
	case s.queue <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer s.b.Unsubscribe(s)

	ticker := time.NewTicker(s.b.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case <-ticker.C:
			if s.stopped(ctx) {
				return
			}
			if err := s.sink.WriteKeepAlive(); err != nil {
				s.b.logger.Debug("keep-alive write failed", "subscriber_id", s.id, "error", err)
				return
			}
		case ev := <-s.queue:
			if s.stopped(ctx) {
				return
			}
			if err := s.sink.WriteEvent(ev); err != nil {
				s.b.logger.Debug("event write failed", "subscriber_id", s.id, "event", ev.Name, "error", err)
				return
			}
		}
	}
}
