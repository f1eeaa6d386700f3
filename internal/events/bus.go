// README: In-process topic bus; each subscriber runs in its own goroutine per event.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"cabdispatch/internal/observability"
	"cabdispatch/internal/types"
)

type Topic string

const (
	// TopicBookingPending fires when a booking is created or returns to pending_assignment.
	TopicBookingPending Topic = "booking.pending"
	// TopicDriverUpdated fires when a driver document changes position.
	TopicDriverUpdated Topic = "driver.updated"
)

type Event struct {
	Topic     Topic
	BookingID types.ID
	DriverID  types.ID
	Before    *types.Point
	After     *types.Point
}

type Handler func(ctx context.Context, e Event) error

type subscriber struct {
	name string
	fn   Handler
}

// Bus delivers at least once per Publish call; handlers must be idempotent.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic][]subscriber
	log      *zap.Logger
	wg       sync.WaitGroup
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{handlers: make(map[Topic][]subscriber), log: log.With(zap.String("component", "bus"))}
}

func (b *Bus) Subscribe(topic Topic, name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], subscriber{name: name, fn: h})
}

// Publish hands e to every subscriber of its topic without waiting for them.
// Handlers keep running after the publishing request returns.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	subs := b.handlers[e.Topic]
	b.mu.RUnlock()

	observability.EventsPublishedTotal.WithLabelValues(string(e.Topic)).Inc()
	hctx := context.WithoutCancel(ctx)
	for _, s := range subs {
		b.wg.Add(1)
		go func(s subscriber) {
			defer b.wg.Done()
			if err := s.fn(hctx, e); err != nil {
				b.log.Error("event handler failed",
					zap.String("topic", string(e.Topic)),
					zap.String("handler", s.name),
					zap.String("booking_id", string(e.BookingID)),
					zap.String("driver_id", string(e.DriverID)),
					zap.Error(err))
			}
		}(s)
	}
}

// Wait blocks until every handler started so far has returned.
func (b *Bus) Wait() {
	b.wg.Wait()
}
