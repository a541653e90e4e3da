package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"anoa.com/casethreads/pkg/apperror"
	"anoa.com/casethreads/pkg/dbretry"
	"anoa.com/casethreads/pkg/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	calls    map[uuid.UUID]int
	failures int
	err      error
}

func (d *fakeDispatcher) DispatchByID(_ context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.calls == nil {
		d.calls = make(map[uuid.UUID]int)
	}
	d.calls[id]++
	if d.err != nil {
		return d.err
	}
	if d.failures > 0 {
		d.failures--
		return apperror.ErrStoreUnavailable
	}
	return nil
}

func (d *fakeDispatcher) count(id uuid.UUID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[id]
}

func newTestWorker(t *testing.T, d *fakeDispatcher) (*DispatchWorker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	w := NewDispatchWorker(d, client, 2, logger.Discard())
	w.policy = dbretry.Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsedTime:  time.Second,
		MaxRetries:      3,
	}
	return w, mr
}

func runWorker(t *testing.T, w *DispatchWorker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestDispatchWorker_ProcessesAndClearsPending(t *testing.T) {
	d := &fakeDispatcher{}
	w, mr := newTestWorker(t, d)
	runWorker(t, w)

	id := uuid.New()
	require.NoError(t, w.Enqueue(context.Background(), id))

	require.Eventually(t, func() bool {
		ok, _ := mr.SIsMember(PendingKey, id.String())
		return d.count(id) == 1 && !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDispatchWorker_RetriesTransientFailures(t *testing.T) {
	d := &fakeDispatcher{failures: 2}
	w, _ := newTestWorker(t, d)
	runWorker(t, w)

	id := uuid.New()
	require.NoError(t, w.Enqueue(context.Background(), id))

	require.Eventually(t, func() bool {
		return d.count(id) == 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDispatchWorker_FailedDispatchStaysPendingForRecovery(t *testing.T) {
	d := &fakeDispatcher{failures: 4}
	w, mr := newTestWorker(t, d)
	runWorker(t, w)

	id := uuid.New()
	require.NoError(t, w.Enqueue(context.Background(), id))

	require.Eventually(t, func() bool {
		return d.count(id) == 4
	}, 2*time.Second, 5*time.Millisecond)

	ok, err := mr.SIsMember(PendingKey, id.String())
	require.NoError(t, err)
	assert.True(t, ok)

	require.Eventually(t, func() bool {
		n, err := w.RecoverPending(context.Background())
		return err == nil && n == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		ok, _ := mr.SIsMember(PendingKey, id.String())
		return d.count(id) == 5 && !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDispatchWorker_RecoversAfterRestart(t *testing.T) {
	d := &fakeDispatcher{}
	w, mr := newTestWorker(t, d)

	id := uuid.New()
	mr.SAdd(PendingKey, id.String(), "not-a-uuid")

	n, err := w.RecoverPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	runWorker(t, w)
	require.Eventually(t, func() bool {
		return d.count(id) == 1
	}, 2*time.Second, 5*time.Millisecond)

	ok, _ := mr.SIsMember(PendingKey, "not-a-uuid")
	assert.False(t, ok)
}

func TestDispatchWorker_WithoutRedis(t *testing.T) {
	d := &fakeDispatcher{}
	w := NewDispatchWorker(d, nil, 1, logger.Discard())
	runWorker(t, w)

	id := uuid.New()
	require.NoError(t, w.Enqueue(context.Background(), id))
	require.Eventually(t, func() bool {
		return d.count(id) == 1
	}, 2*time.Second, 5*time.Millisecond)

	n, err := w.RecoverPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatchWorker_PermanentFailureIsDeadLettered(t *testing.T) {
	d := &fakeDispatcher{err: fmt.Errorf("load comment: %w", apperror.ErrInvalidInput)}
	w, mr := newTestWorker(t, d)
	runWorker(t, w)

	id := uuid.New()
	require.NoError(t, w.Enqueue(context.Background(), id))

	require.Eventually(t, func() bool {
		ok, _ := mr.SIsMember(DeadLetterKey, id.String())
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	pending, err := mr.SIsMember(PendingKey, id.String())
	require.NoError(t, err)
	assert.False(t, pending)

	for range 3 {
		n, err := w.RecoverPending(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	assert.Equal(t, 1, d.count(id))
}
