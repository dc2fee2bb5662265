package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/you-humble/docsort/internal/domain"
)

// TaskFunc is one unit of asynchronous work. The queue owns retries; the
// function is invoked once per attempt.
type TaskFunc func(ctx context.Context) error

type task struct {
	id      string
	attempt int
	fn      TaskFunc
	ctx     context.Context
}

// latencyWindow is the number of most recent completions kept for the
// rolling average latency.
const latencyWindow = 100

// Queue is a bounded-concurrency FIFO executor with exponential-backoff
// retry. All shared state is guarded by one mutex; tasks run in their own
// goroutines and funnel every mutation back through it.
type Queue struct {
	concurrency int
	maxRetries  int
	baseDelay   time.Duration

	mu        sync.Mutex
	pending   []*task
	scheduled int // retries waiting out their backoff delay
	active    int
	live      map[string]struct{} // ids that are pending, scheduled or active
	paused    bool

	completed int
	failed    int
	latencies []time.Duration
	latNext   int

	drainWaiters []chan struct{}

	onExhausted func(id string, err error)
}

func New(concurrency, maxRetries int, baseDelay time.Duration) *Queue {
	if concurrency <= 0 {
		concurrency = 1
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Queue{
		concurrency: concurrency,
		maxRetries:  maxRetries,
		baseDelay:   baseDelay,
		live:        make(map[string]struct{}),
	}
}

// OnExhausted registers a callback invoked when a retryable task has burned
// through all its attempts. Permanent errors fail on the spot and do not
// trigger it. Must be set before the first Enqueue.
func (q *Queue) OnExhausted(fn func(id string, err error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onExhausted = fn
}

// Enqueue adds a task and returns without waiting for it to run. It reports
// false if a task with the same id is already pending, active or awaiting a
// retry; a retry re-occupies its slot instead of duplicating it.
func (q *Queue) Enqueue(ctx context.Context, id string, fn TaskFunc) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.live[id]; ok {
		return false
	}
	q.live[id] = struct{}{}
	q.pending = append(q.pending, &task{id: id, fn: fn, ctx: ctx})
	q.dispatch()
	return true
}

// dispatch starts pending tasks while capacity allows. Callers must hold mu.
func (q *Queue) dispatch() {
	for !q.paused && q.active < q.concurrency && len(q.pending) > 0 {
		t := q.pending[0]
		q.pending = q.pending[1:]
		q.active++
		go q.run(t)
	}
}

func (q *Queue) run(t *task) {
	start := time.Now()
	err := q.invoke(t)
	elapsed := time.Since(start)

	// The exhaustion callback runs while the task still counts as active so
	// Drain waits for it.
	if err != nil && !domain.IsPermanent(err) && t.attempt >= q.maxRetries {
		q.mu.Lock()
		fn := q.onExhausted
		q.mu.Unlock()
		if fn != nil {
			fn(t.id, err)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.active--

	switch {
	case err == nil:
		q.completed++
		q.recordLatency(elapsed)
		delete(q.live, t.id)
	case domain.IsPermanent(err) || t.attempt >= q.maxRetries:
		q.failed++
		delete(q.live, t.id)
		slog.Error("task failed permanently",
			slog.String("id", t.id),
			slog.Int("attempts", t.attempt+1),
			slog.String("error", err.Error()),
		)
	default:
		delay := q.baseDelay << t.attempt
		t.attempt++
		q.scheduled++
		slog.Warn("task failed, retry scheduled",
			slog.String("id", t.id),
			slog.Int("next_attempt", t.attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		time.AfterFunc(delay, func() { q.requeue(t) })
	}

	q.dispatch()
	q.notifyIfIdle()
}

// invoke runs the task body, converting a panic into an ordinary failure so
// one task can never take down the queue.
func (q *Queue) invoke(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panic",
				slog.String("id", t.id),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t.fn(t.ctx)
}

func (q *Queue) requeue(t *task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.scheduled--
	q.pending = append(q.pending, t)
	q.dispatch()
}

func (q *Queue) recordLatency(d time.Duration) {
	if len(q.latencies) < latencyWindow {
		q.latencies = append(q.latencies, d)
		return
	}
	q.latencies[q.latNext] = d
	q.latNext = (q.latNext + 1) % latencyWindow
}

// Stats returns a snapshot. Retries waiting out their backoff count as
// pending work: they have not reached a terminal state yet.
func (q *Queue) Stats() domain.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var avg time.Duration
	if len(q.latencies) > 0 {
		var sum time.Duration
		for _, d := range q.latencies {
			sum += d
		}
		avg = sum / time.Duration(len(q.latencies))
	}

	return domain.QueueStats{
		Pending:    len(q.pending) + q.scheduled,
		Active:     q.active,
		Completed:  q.completed,
		Failed:     q.failed,
		AvgLatency: avg,
	}
}

// Pause stops dispatching new tasks. Already-active tasks finish normally
// and queued work is kept.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
}

func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = false
	q.dispatch()
}

func (q *Queue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// idle reports whether no work remains. Callers must hold mu.
func (q *Queue) idle() bool {
	return len(q.pending) == 0 && q.active == 0 && q.scheduled == 0
}

// notifyIfIdle wakes drain waiters. Callers must hold mu.
func (q *Queue) notifyIfIdle() {
	if !q.idle() {
		return
	}
	for _, ch := range q.drainWaiters {
		close(ch)
	}
	q.drainWaiters = nil
}

// Drain blocks until no pending, scheduled or active work remains. It
// returns immediately when the queue is already idle.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	if q.idle() {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.drainWaiters = append(q.drainWaiters, ch)
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
