package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"anoa.com/casethreads/pkg/apperror"
	"github.com/redis/go-redis/v9"
)

// RedisBroker publishes over redis pub/sub so every API instance sees every event.
type RedisBroker struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisBroker(client *redis.Client, logger *slog.Logger) *RedisBroker {
	return &RedisBroker{client: client, logger: logger}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encode event: %v", apperror.ErrDeliveryFailed, err)
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %v", apperror.ErrDeliveryFailed, channel, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string, h Handler) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channel)

	// Wait for confirmation that subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %v", apperror.ErrDeliveryFailed, channel, err)
	}

	s := newSubscription(channel, h)
	s.start(ctx, func() {
		if err := pubsub.Close(); err != nil {
			b.logger.Debug("closing pubsub", "channel", channel, "error", err)
		}
	})

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("dropping malformed event", "channel", channel, "error", err)
					continue
				}
				if ok, overflow := s.deliver(ev); !ok {
					if overflow {
						b.logger.Warn("closed slow subscriber", "channel", channel, "error", apperror.ErrDeliveryFailed)
					}
					return
				}
			case <-s.done:
				return
			}
		}
	}()

	return s, nil
}
