package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"preecode/internal/domain/stats"
	"preecode/internal/platform/metrics"
	"preecode/internal/platform/queue"
)

const (
	defaultPollTimeout       = 5 * time.Second
	defaultErrorBackoff      = 5 * time.Second
	defaultContentionBackoff = 500 * time.Millisecond

	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomeContended = "contended"
)

type Queue interface {
	Enqueue(ctx context.Context, userID string) error
	Dequeue(ctx context.Context, timeout time.Duration) (string, error)
}

type Locker interface {
	Acquire(ctx context.Context, name string) (queue.Lock, bool, error)
	Release(ctx context.Context, lock queue.Lock) (bool, error)
}

type Refresher interface {
	Refresh(ctx context.Context, userID string) (*stats.View, error)
}

type Options struct {
	// PollTimeout bounds each blocking pop so shutdown is noticed promptly.
	PollTimeout  time.Duration
	ErrorBackoff time.Duration

	// ContentionBackoff is the pause before a contended user is re-queued,
	// so the worker does not spin on a lock another worker holds.
	ContentionBackoff time.Duration
}

// StatsWorker drains the refresh queue and recomputes cached stats views.
// A per-user lock keeps two workers from computing the same view at once.
type StatsWorker struct {
	queue     Queue
	locker    Locker
	refresher Refresher
	metrics   *metrics.Metrics
	log       *zap.Logger
	opts      Options
}

func NewStatsWorker(q Queue, locker Locker, refresher Refresher, m *metrics.Metrics, log *zap.Logger, opts Options) *StatsWorker {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = defaultErrorBackoff
	}
	if opts.ContentionBackoff <= 0 {
		opts.ContentionBackoff = defaultContentionBackoff
	}
	return &StatsWorker{queue: q, locker: locker, refresher: refresher, metrics: m, log: log, opts: opts}
}

// Start blocks until ctx is cancelled.
func (w *StatsWorker) Start(ctx context.Context) {
	w.log.Info("stats worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("stats worker stopping")
			return
		default:
		}

		userID, err := w.queue.Dequeue(ctx, w.opts.PollTimeout)
		if err != nil {
			switch {
			case errors.Is(err, queue.ErrEmpty):
			case ctx.Err() != nil:
				// shutting down; the loop head returns
			default:
				w.log.Error("stats queue pop failed", zap.Error(err))
				w.sleep(ctx, w.opts.ErrorBackoff)
			}
			continue
		}

		w.processWithLock(ctx, userID)
	}
}

func (w *StatsWorker) processWithLock(ctx context.Context, userID string) {
	lock, ok, err := w.locker.Acquire(ctx, userID)
	if err != nil {
		w.log.Error("stats lock acquisition failed", zap.String("user_id", userID), zap.Error(err))
		w.sleep(ctx, w.opts.ErrorBackoff)
		w.requeue(ctx, userID)
		return
	}
	if !ok {
		// Another worker is mid-refresh and may have read older data, so
		// the user goes back on the queue rather than being dropped.
		w.log.Debug("stats refresh already running, re-queueing", zap.String("user_id", userID))
		w.metrics.ObserveStatsRefresh(outcomeContended)
		w.sleep(ctx, w.opts.ContentionBackoff)
		w.requeue(ctx, userID)
		return
	}
	defer func() {
		released, err := w.locker.Release(context.WithoutCancel(ctx), lock)
		if err != nil {
			w.log.Error("stats lock release failed", zap.String("user_id", userID), zap.Error(err))
		} else if !released {
			w.log.Warn("stats lock expired before release", zap.String("user_id", userID))
		}
	}()

	start := time.Now()
	if _, err := w.refresher.Refresh(ctx, userID); err != nil {
		w.metrics.ObserveStatsRefresh(outcomeError)
		w.log.Error("stats refresh failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	w.metrics.ObserveStatsRefresh(outcomeOK)
	w.log.Debug("stats refreshed", zap.String("user_id", userID), zap.Duration("took", time.Since(start)))
}

// requeue survives shutdown so a pending refresh is not lost.
func (w *StatsWorker) requeue(ctx context.Context, userID string) {
	if err := w.queue.Enqueue(context.WithoutCancel(ctx), userID); err != nil {
		w.log.Error("stats re-queue failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (w *StatsWorker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
