package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull = errors.New("notification queue full")
	ErrClosed    = errors.New("notifier closed")
)

// Async queues events for a single background worker, so a slow broker or
// chat API never holds up the request that produced the event. Events that
// arrive while the queue is full are dropped.
type Async struct {
	next  Sink
	queue chan Event
	done  chan struct{}
	log   logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Sink, buffer int, log logrus.FieldLogger) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		next:  next,
		queue: make(chan Event, buffer),
		done:  make(chan struct{}),
		log:   log.WithField("component", "notify"),
	}
	go a.run()
	return a
}

func (a *Async) Notify(_ context.Context, ev Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.queue {
		if err := a.next.Notify(context.Background(), ev); err != nil {
			a.log.WithError(err).WithFields(logrus.Fields{
				"event":          ev.Type,
				"reservation_id": ev.ReservationID,
			}).Warn("queued notification not delivered")
		}
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
