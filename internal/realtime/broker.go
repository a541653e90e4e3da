package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Handler receives events for one subscription, one at a time and in publish order.
type Handler func(Event)

type Broker interface {
	Publish(ctx context.Context, channel string, ev Event) error
	Subscribe(ctx context.Context, channel string, h Handler) (*Subscription, error)
}

func PublishCase(ctx context.Context, b Broker, ev Event) error {
	return b.Publish(ctx, CaseChannel(ev.CaseID), ev)
}

func PublishUser(ctx context.Context, b Broker, userID uuid.UUID, ev Event) error {
	return b.Publish(ctx, UserChannel(userID), ev)
}

func SubscribeCase(ctx context.Context, b Broker, caseID uuid.UUID, h Handler) (*Subscription, error) {
	return b.Subscribe(ctx, CaseChannel(caseID), h)
}

func SubscribeUser(ctx context.Context, b Broker, userID uuid.UUID, h Handler) (*Subscription, error) {
	return b.Subscribe(ctx, UserChannel(userID), h)
}

const subscriptionBuffer = 64

// Subscription is a live registration on one channel. Close is idempotent and
// also happens when the context given to Subscribe ends.
type Subscription struct {
	channel string
	handler Handler
	events  chan Event
	done    chan struct{}
	once    sync.Once
	release func()
}

func newSubscription(channel string, h Handler) *Subscription {
	return &Subscription{
		channel: channel,
		handler: h,
		events:  make(chan Event, subscriptionBuffer),
		done:    make(chan struct{}),
	}
}

// start must be called once the subscription is registered with its transport.
func (s *Subscription) start(ctx context.Context, release func()) {
	s.release = release
	go s.run()
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
}

func (s *Subscription) Channel() string {
	return s.channel
}

// Done is closed once the subscription has been closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.release != nil {
			s.release()
		}
	})
}

// deliver queues ev without blocking. A subscriber whose buffer is full has
// stopped keeping up: it is closed so publishers never wait on it, and the
// client is expected to resubscribe. overflow reports that case.
func (s *Subscription) deliver(ev Event) (delivered, overflow bool) {
	select {
	case <-s.done:
		return false, false
	default:
	}

	select {
	case s.events <- ev:
		return true, false
	default:
		s.Close()
		return false, true
	}
}

func (s *Subscription) run() {
	for {
		select {
		case ev := <-s.events:
			select {
			case <-s.done:
				return
			default:
			}
			s.handler(ev)
		case <-s.done:
			return
		}
	}
}
