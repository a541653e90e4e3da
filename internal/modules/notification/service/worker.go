package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"anoa.com/casethreads/pkg/apperror"
	"anoa.com/casethreads/pkg/dbretry"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc/pool"
)

// PendingKey is the redis set holding comment ids whose dispatch has not finished.
const PendingKey = "pending:comment_dispatch"

// DeadLetterKey holds ids whose dispatch failed with an error retrying cannot fix.
const DeadLetterKey = "failed:comment_dispatch"

const queueSize = 256

var dispatchPolicy = dbretry.Policy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     30 * time.Second,
	MaxElapsedTime:  2 * time.Minute,
	MaxRetries:      5,
}

type dispatcher interface {
	DispatchByID(ctx context.Context, commentID uuid.UUID) error
}

// DispatchWorker runs dispatches on a bounded pool. With a redis client the
// pending set survives restarts and RecoverPending re-drives it; without one
// a crash loses whatever was queued.
type DispatchWorker struct {
	dispatcher dispatcher
	redis      *redis.Client
	workers    int
	policy     dbretry.Policy
	logger     *slog.Logger

	queue   chan uuid.UUID
	stopped chan struct{}

	mu      sync.Mutex
	pending map[uuid.UUID]bool
}

func NewDispatchWorker(d dispatcher, redisClient *redis.Client, workers int, logger *slog.Logger) *DispatchWorker {
	if workers < 1 {
		workers = 1
	}
	return &DispatchWorker{
		dispatcher: d,
		redis:      redisClient,
		workers:    workers,
		policy:     dispatchPolicy,
		logger:     logger,
		queue:      make(chan uuid.UUID, queueSize),
		stopped:    make(chan struct{}),
		pending:    make(map[uuid.UUID]bool),
	}
}

// Enqueue records the id as pending and hands it to the pool. It never waits
// for the dispatch itself. An id already queued or running is not queued twice.
func (w *DispatchWorker) Enqueue(ctx context.Context, commentID uuid.UUID) error {
	if w.redis != nil {
		if err := w.redis.SAdd(ctx, PendingKey, commentID.String()).Err(); err != nil {
			// Still dispatch in-process; only crash recovery is lost.
			w.logger.Warn("recording pending dispatch failed", "comment_id", commentID, "error", err)
		}
	}

	w.push(commentID)
	return nil
}

// push reports false when the id is already queued or running.
func (w *DispatchWorker) push(commentID uuid.UUID) bool {
	w.mu.Lock()
	if w.pending[commentID] {
		w.mu.Unlock()
		return false
	}
	w.pending[commentID] = true
	w.mu.Unlock()

	select {
	case w.queue <- commentID:
	default:
		go func() {
			select {
			case w.queue <- commentID:
			case <-w.stopped:
			}
		}()
	}
	return true
}

// Run processes the queue until ctx ends, then waits for running dispatches.
func (w *DispatchWorker) Run(ctx context.Context) {
	defer close(w.stopped)

	p := pool.New().WithMaxGoroutines(w.workers)
	defer p.Wait()

	w.logger.Info("dispatch worker started", "workers", w.workers)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("dispatch worker stopping")
			return
		case id := <-w.queue:
			p.Go(func() {
				w.process(ctx, id)
			})
		}
	}
}

func (w *DispatchWorker) process(ctx context.Context, commentID uuid.UUID) {
	defer func() {
		w.mu.Lock()
		delete(w.pending, commentID)
		w.mu.Unlock()
	}()

	start := time.Now()
	err := dbretry.WithPolicyDo(ctx, w.policy, func(ctx context.Context) error {
		return w.dispatcher.DispatchByID(ctx, commentID)
	})
	switch {
	case err == nil:
		w.clearPending(ctx, commentID, false)
		w.logger.Debug("dispatched", "comment_id", commentID, "took", time.Since(start))
	case ctx.Err() != nil || apperror.IsRetryable(err):
		// Left in the pending set for the recovery loop.
		w.logger.Error("dispatch failed", "comment_id", commentID, "error", err)
	default:
		w.logger.Error("dropping permanently failed dispatch", "comment_id", commentID, "error", err)
		w.clearPending(ctx, commentID, true)
	}
}

// clearPending removes the id from the pending set, moving it to the dead
// letter set when deadLetter is set.
func (w *DispatchWorker) clearPending(ctx context.Context, commentID uuid.UUID, deadLetter bool) {
	if w.redis == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	_, err := w.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, PendingKey, commentID.String())
		if deadLetter {
			pipe.SAdd(ctx, DeadLetterKey, commentID.String())
		}
		return nil
	})
	if err != nil {
		w.logger.Warn("clearing pending dispatch failed", "comment_id", commentID, "error", err)
	}
}

// RecoverPending re-queues the ids left in the pending set that are not already
// queued here and returns how many it queued.
func (w *DispatchWorker) RecoverPending(ctx context.Context) (int, error) {
	if w.redis == nil {
		return 0, nil
	}

	members, err := w.redis.SMembers(ctx, PendingKey).Result()
	if err != nil {
		return 0, err
	}

	n := 0
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			w.logger.Warn("dropping malformed pending id", "value", m)
			w.redis.SRem(ctx, PendingKey, m)
			continue
		}
		if w.push(id) {
			n++
		}
	}
	return n, nil
}

// StartRecoveryLoop calls RecoverPending every interval until ctx ends.
func (w *DispatchWorker) StartRecoveryLoop(ctx context.Context, interval time.Duration) {
	if w.redis == nil || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := w.RecoverPending(ctx)
				if err != nil {
					w.logger.Error("dispatch recovery failed", "error", err)
					continue
				}
				if n > 0 {
					w.logger.Info("re-queued pending dispatches", "count", n)
				}
			}
		}
	}()
}
