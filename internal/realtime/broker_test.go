package realtime

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"anoa.com/casethreads/pkg/apperror"
	"anoa.com/casethreads/pkg/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newRedisBroker(t *testing.T) *RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBroker(client, logger.Discard())
}

func brokers(t *testing.T) map[string]Broker {
	return map[string]Broker{
		"memory": NewMemoryBroker(),
		"redis":  newRedisBroker(t),
	}
}

func mustEvent(t *testing.T, typ EventType, caseID uuid.UUID, n int) Event {
	t.Helper()
	ev, err := NewEvent(typ, caseID, map[string]int{"n": n})
	require.NoError(t, err)
	return ev
}

func TestBroker_OrderedDeliveryToManySubscribers(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			caseID := uuid.New()

			var r1, r2 recorder
			s1, err := SubscribeCase(ctx, b, caseID, r1.handle)
			require.NoError(t, err)
			defer s1.Close()
			s2, err := SubscribeCase(ctx, b, caseID, r2.handle)
			require.NoError(t, err)
			defer s2.Close()

			for i := 0; i < 20; i++ {
				require.NoError(t, PublishCase(ctx, b, mustEvent(t, EventCommentCreated, caseID, i)))
			}

			for _, r := range []*recorder{&r1, &r2} {
				require.Eventually(t, func() bool { return len(r.snapshot()) == 20 }, 2*time.Second, 10*time.Millisecond)
				for i, ev := range r.snapshot() {
					assert.JSONEq(t, `{"n":`+strconv.Itoa(i)+`}`, string(ev.Payload))
					assert.Equal(t, EventCommentCreated, ev.Type)
				}
			}
		})
	}
}

func TestBroker_ChannelsAreIsolated(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			userA, userB := uuid.New(), uuid.New()

			var ra, rb recorder
			sa, err := SubscribeUser(ctx, b, userA, ra.handle)
			require.NoError(t, err)
			defer sa.Close()
			sb, err := SubscribeUser(ctx, b, userB, rb.handle)
			require.NoError(t, err)
			defer sb.Close()

			require.NoError(t, PublishUser(ctx, b, userA, mustEvent(t, EventNotificationCreated, uuid.New(), 1)))

			require.Eventually(t, func() bool { return len(ra.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
			time.Sleep(50 * time.Millisecond)
			assert.Empty(t, rb.snapshot())
		})
	}
}

func TestSubscription_CloseIsIdempotentAndStopsDelivery(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			caseID := uuid.New()

			var r recorder
			s, err := SubscribeCase(ctx, b, caseID, r.handle)
			require.NoError(t, err)

			s.Close()
			s.Close()

			select {
			case <-s.Done():
			default:
				t.Fatal("subscription not marked done")
			}

			require.NoError(t, PublishCase(ctx, b, mustEvent(t, EventCommentCreated, caseID, 1)))
			time.Sleep(50 * time.Millisecond)
			assert.Empty(t, r.snapshot())
		})
	}
}

func TestSubscription_ClosesWithContext(t *testing.T) {
	b := NewMemoryBroker()
	caseID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	s, err := SubscribeCase(ctx, b, caseID, func(Event) {})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers(CaseChannel(caseID)))

	cancel()
	require.Eventually(t, func() bool { return b.Subscribers(CaseChannel(caseID)) == 0 }, time.Second, 5*time.Millisecond)
	<-s.Done()
}

func TestChannelNames(t *testing.T) {
	id := uuid.MustParse("0190f1a2-3b4c-7d5e-8f60-718293a4b5c6")
	assert.Equal(t, "case:0190f1a2-3b4c-7d5e-8f60-718293a4b5c6", CaseChannel(id))
	assert.Equal(t, "user:0190f1a2-3b4c-7d5e-8f60-718293a4b5c6", UserChannel(id))
}

func TestMemoryBroker_StuckSubscriberNeverBlocksPublish(t *testing.T) {
	b := NewMemoryBroker()
	caseID := uuid.New()

	release := make(chan struct{})
	defer close(release)
	stuck, err := SubscribeCase(context.Background(), b, caseID, func(Event) { <-release })
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	var lastErr error
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			if err := PublishCase(ctx, b, mustEvent(t, EventCommentCreated, caseID, i)); err != nil {
				lastErr = err
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stuck subscriber")
	}

	<-stuck.Done()
	assert.ErrorIs(t, lastErr, apperror.ErrDeliveryFailed)
	assert.Equal(t, 0, b.Subscribers(CaseChannel(caseID)))
}

func TestMemoryBroker_PublishHonoursContext(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := PublishCase(ctx, b, mustEvent(t, EventCommentCreated, uuid.New(), 1))
	assert.ErrorIs(t, err, context.Canceled)
}
