package realtime

import (
	"context"
	"fmt"
	"sync"

	"anoa.com/casethreads/pkg/apperror"
)

// MemoryBroker fans events out inside one process. Used when REDIS_URL is unset
// and in tests.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*Subscription]struct{})}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs[channel]))
	for s := range b.subs[channel] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	var dropped int
	for _, s := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, overflow := s.deliver(ev); overflow {
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%w: %d slow subscriber(s) on %s closed", apperror.ErrDeliveryFailed, dropped, channel)
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string, h Handler) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := newSubscription(channel, h)

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*Subscription]struct{})
	}
	b.subs[channel][s] = struct{}{}
	b.mu.Unlock()

	s.start(ctx, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[channel], s)
		if len(b.subs[channel]) == 0 {
			delete(b.subs, channel)
		}
	})
	return s, nil
}

// Subscribers reports how many live subscriptions a channel has.
func (b *MemoryBroker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}
