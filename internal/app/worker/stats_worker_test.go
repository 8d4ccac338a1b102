package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"preecode/internal/domain/stats"
	"preecode/internal/platform/metrics"
	"preecode/internal/platform/queue"
)

type memQueue struct {
	mu       sync.Mutex
	items    []string
	requeued []string
	popErr   error
}

func (q *memQueue) Enqueue(_ context.Context, userID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requeued = append(q.requeued, userID)
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	q.mu.Lock()
	if q.popErr != nil {
		err := q.popErr
		q.popErr = nil
		q.mu.Unlock()
		return "", err
	}
	if len(q.items) > 0 {
		id := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		return id, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(timeout):
		return "", queue.ErrEmpty
	}
}

type memLocker struct {
	mu      sync.Mutex
	held    map[string]bool
	err     error
	release int
}

func (l *memLocker) Acquire(_ context.Context, name string) (queue.Lock, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return queue.Lock{}, false, l.err
	}
	if l.held[name] {
		return queue.Lock{}, false, nil
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	l.held[name] = true
	return queue.Lock{Key: name, Value: "v"}, true, nil
}

func (l *memLocker) Release(_ context.Context, lock queue.Lock) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.release++
	delete(l.held, lock.Key)
	return true, nil
}

type recordingRefresher struct {
	mu    sync.Mutex
	users []string
	err   error
	done  chan struct{}
	want  int
}

func (r *recordingRefresher) Refresh(_ context.Context, userID string) (*stats.View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	if r.done != nil && len(r.users) == r.want {
		close(r.done)
	}
	if r.err != nil {
		return nil, r.err
	}
	return &stats.View{}, nil
}

func TestStatsWorkerDrainsQueueUntilCancelled(t *testing.T) {
	q := &memQueue{items: []string{"u1", "u2"}, popErr: errors.New("connection reset")}
	locker := &memLocker{}
	refresher := &recordingRefresher{done: make(chan struct{}), want: 2}
	m := metrics.New()
	w := NewStatsWorker(q, locker, refresher, m, nil, Options{PollTimeout: 10 * time.Millisecond, ErrorBackoff: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(stopped)
	}()

	select {
	case <-refresher.done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not process queued users")
	}
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	assert.Equal(t, []string{"u1", "u2"}, refresher.users)
	assert.Equal(t, 2, locker.release)
	assert.Empty(t, locker.held)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StatsRefreshes.WithLabelValues(outcomeOK)))
}

func TestStatsWorkerRequeuesWhenLockHeld(t *testing.T) {
	q := &memQueue{}
	locker := &memLocker{held: map[string]bool{"u1": true}}
	refresher := &recordingRefresher{}
	m := metrics.New()
	w := NewStatsWorker(q, locker, refresher, m, nil, Options{ContentionBackoff: 50 * time.Millisecond})

	start := time.Now()
	w.processWithLock(context.Background(), "u1")

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Empty(t, refresher.users)
	assert.Equal(t, []string{"u1"}, q.requeued)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatsRefreshes.WithLabelValues(outcomeContended)))
}

func TestStatsWorkerContentionWaitEndsOnShutdown(t *testing.T) {
	q := &memQueue{}
	locker := &memLocker{held: map[string]bool{"u1": true}}
	w := NewStatsWorker(q, locker, &recordingRefresher{}, nil, nil, Options{ContentionBackoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		w.processWithLock(ctx, "u1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("contention wait ignored cancellation")
	}
	assert.Equal(t, []string{"u1"}, q.requeued)
}

func TestStatsWorkerRequeuesOnLockError(t *testing.T) {
	q := &memQueue{}
	w := NewStatsWorker(q, &memLocker{err: errors.New("redis down")}, &recordingRefresher{}, nil, nil, Options{ErrorBackoff: time.Millisecond})

	w.processWithLock(context.Background(), "u1")

	assert.Equal(t, []string{"u1"}, q.requeued)
}

func TestStatsWorkerReleasesLockOnRefreshError(t *testing.T) {
	locker := &memLocker{}
	refresher := &recordingRefresher{err: errors.New("db down")}
	m := metrics.New()
	w := NewStatsWorker(&memQueue{}, locker, refresher, m, nil, Options{})

	w.processWithLock(context.Background(), "u1")

	require.Equal(t, []string{"u1"}, refresher.users)
	assert.Equal(t, 1, locker.release)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatsRefreshes.WithLabelValues(outcomeError)))
}
