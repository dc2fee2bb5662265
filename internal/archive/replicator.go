package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ObjectStore is the remote side of the archive.
type ObjectStore interface {
	Save(ctx context.Context, reader io.Reader, name string, size int64) (int64, string, error)
}

type job struct {
	path    string
	retries int
}

// Replicator uploads produced files to the object store asynchronously:
// a bounded queue, a small worker pool and per-job retries. Archival is
// best-effort; a full queue drops the job with an error log.
type Replicator struct {
	store ObjectStore

	queue      chan job
	workerNum  int
	maxRetries int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewReplicator(store ObjectStore, queueSize, workerNum, maxRetries int) *Replicator {
	if queueSize <= 0 {
		queueSize = 100
	}
	if workerNum <= 0 {
		workerNum = 1
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Replicator{
		store:      store,
		queue:      make(chan job, queueSize),
		workerNum:  workerNum,
		maxRetries: maxRetries,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the worker pool. Workers run on their own context, not the
// process signal context, so queued uploads keep flowing during shutdown
// until Stop's bound expires.
func (r *Replicator) Start() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	innerCtx, innerCancel := context.WithCancel(context.Background())
	r.ctx = innerCtx
	r.cancel = innerCancel
	r.mu.Unlock()

	r.wg.Add(r.workerNum)
	for i := 0; i < r.workerNum; i++ {
		go r.worker()
	}

	slog.Info("archive replicator running",
		slog.Int("workers", r.workerNum),
		slog.Int("max_retries", r.maxRetries),
	)
}

// Stop drains the remaining queue and waits for the workers, bounded by ctx.
func (r *Replicator) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	case <-done:
	}

	slog.Info("archive replicator stopped")
	return nil
}

// Enqueue offers path for replication without blocking. It reports false
// when the replicator is stopped or the queue is full.
func (r *Replicator) Enqueue(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false
	}

	select {
	case r.queue <- job{path: path}:
		return true
	default:
		return false
	}
}

func (r *Replicator) worker() {
	defer r.wg.Done()

	for j := range r.queue {
		r.handle(j)
	}
}

func (r *Replicator) handle(j job) {
	l := slog.With(
		slog.String("path", j.path),
		slog.Int("retries", j.retries),
	)

	if err := r.replicateOnce(r.ctx, j); err != nil {
		if j.retries >= r.maxRetries {
			l.Error("archive upload failed, max retries exceeded",
				slog.String("error", err.Error()),
			)
			return
		}

		j.retries++
		r.mu.RLock()
		closed := r.closed
		r.mu.RUnlock()
		if closed {
			l.Error("archive upload failed during shutdown, dropping",
				slog.String("error", err.Error()),
			)
			return
		}

		select {
		case r.queue <- j:
			l.Warn("archive upload failed, requeued",
				slog.String("error", err.Error()),
				slog.Int("next_retry", j.retries),
			)
		default:
			l.Error("archive upload failed and queue is full, dropping",
				slog.String("error", err.Error()),
			)
		}
	}
}

func (r *Replicator) replicateOnce(ctx context.Context, j job) error {
	f, err := os.Open(j.path)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat output: %w", err)
	}

	written, _, err := r.store.Save(ctx, f, info.Name(), info.Size())
	if err != nil {
		return fmt.Errorf("save to archive: %w", err)
	}
	if written <= 0 {
		return fmt.Errorf("archive save wrote zero bytes")
	}

	slog.Debug("output archived",
		slog.String("path", j.path),
		slog.Int64("size", written),
	)
	return nil
}
