package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

type State int32

const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type eventSource interface {
	Stop() error
}

type timerCanceler interface {
	CancelAll()
}

type drainer interface {
	Drain(ctx context.Context) error
}

type stopper interface {
	Stop()
}

// Coordinator runs the shutdown sequence exactly once: stop taking new
// events, cancel pending debounce timers, drain in-flight work, then tear
// down the health endpoint.
type Coordinator struct {
	state atomic.Int32

	watcher   eventSource
	debouncer timerCanceler
	queue     drainer
	monitor   stopper
}

func NewCoordinator(watcher eventSource, debouncer timerCanceler, queue drainer, monitor stopper) *Coordinator {
	return &Coordinator{
		watcher:   watcher,
		debouncer: debouncer,
		queue:     queue,
		monitor:   monitor,
	}
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Shutdown is idempotent; repeated calls return nil without re-running
// the sequence.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		return nil
	}

	slog.Info("shutdown: draining")

	if c.watcher != nil {
		if err := c.watcher.Stop(); err != nil {
			slog.Warn("shutdown: stop watcher", slog.String("error", err.Error()))
		}
	}
	if c.debouncer != nil {
		c.debouncer.CancelAll()
	}

	var drainErr error
	if c.queue != nil {
		if err := c.queue.Drain(ctx); err != nil {
			drainErr = fmt.Errorf("drain queue: %w", err)
		}
	}

	if c.monitor != nil {
		c.monitor.Stop()
	}

	c.state.Store(int32(StateStopped))
	slog.Info("shutdown: stopped")

	return drainErr
}
