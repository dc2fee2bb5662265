package health

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/you-humble/docsort/internal/domain"
)

// Monitor serves pull-only health status over a local unix socket: one JSON
// document per connection, then close. It never reads a request.
type Monitor struct {
	socketPath string

	mu          sync.Mutex
	ln          net.Listener
	started     bool
	startedAt   time.Time
	stats       domain.QueueStats
	lastSuccess time.Time
	errCount    int

	wg sync.WaitGroup
}

func NewMonitor(socketPath string) *Monitor {
	return &Monitor{socketPath: socketPath}
}

// Start binds the status socket. Idempotent; a stale socket file from a
// previous run is removed best-effort before binding. A bind failure only
// degrades observability, so callers log it and keep the pipeline running.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}
	if m.socketPath == "" {
		return fmt.Errorf("empty health socket path")
	}

	_ = os.Remove(m.socketPath)

	ln, err := net.Listen("unix", m.socketPath)
	if err != nil {
		return fmt.Errorf("bind %s: %w", m.socketPath, err)
	}

	m.ln = ln
	m.started = true
	m.startedAt = time.Now()
	m.wg.Add(1)
	go m.serve(ln)

	slog.Info("health endpoint listening", slog.String("socket", m.socketPath))
	return nil
}

func (m *Monitor) serve(ln net.Listener) {
	defer m.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("health accept", slog.String("error", err.Error()))
			continue
		}
		m.handle(conn)
	}
}

type statusPayload struct {
	Status          string       `json:"status"`
	Uptime          int64        `json:"uptime"`
	Queue           queuePayload `json:"queue"`
	LastProcessedAt *string      `json:"lastProcessedAt,omitempty"`
	Errors          int          `json:"errors"`
}

type queuePayload struct {
	Pending      int   `json:"pending"`
	Active       int   `json:"active"`
	Completed    int   `json:"completed"`
	Failed       int   `json:"failed"`
	AvgLatencyMs int64 `json:"avgLatencyMs"`
}

func (m *Monitor) handle(conn net.Conn) {
	defer conn.Close()

	st := m.Status()
	payload := statusPayload{
		Status: string(st.Status),
		Uptime: int64(st.Uptime.Seconds()),
		Queue: queuePayload{
			Pending:      st.Queue.Pending,
			Active:       st.Queue.Active,
			Completed:    st.Queue.Completed,
			Failed:       st.Queue.Failed,
			AvgLatencyMs: st.Queue.AvgLatency.Milliseconds(),
		},
		Errors: st.Errors,
	}
	if !st.LastProcessedAt.IsZero() {
		s := st.LastProcessedAt.UTC().Format(time.RFC3339)
		payload.LastProcessedAt = &s
	}

	if err := json.NewEncoder(conn).Encode(payload); err != nil {
		slog.Warn("health response", slog.String("error", err.Error()))
	}
}

func (m *Monitor) UpdateStats(stats domain.QueueStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = stats
}

func (m *Monitor) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSuccess = time.Now()
}

func (m *Monitor) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errCount++
}

// Status derives the current classification from the latest snapshot.
func (m *Monitor) Status() domain.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	var uptime time.Duration
	if !m.startedAt.IsZero() {
		uptime = time.Since(m.startedAt)
	}

	return domain.HealthStatus{
		Status:          deriveState(m.stats),
		Uptime:          uptime,
		Queue:           m.stats,
		LastProcessedAt: m.lastSuccess,
		Errors:          m.errCount,
	}
}

// deriveState classifies queue health: degraded when more than 10% of
// processed tasks failed or the backlog exceeds 100, healthy otherwise.
func deriveState(stats domain.QueueStats) domain.HealthState {
	total := stats.Completed + stats.Failed
	if total > 0 && float64(stats.Failed)/float64(total) > 0.10 {
		return domain.HealthDegraded
	}
	if stats.Pending > 100 {
		return domain.HealthDegraded
	}
	return domain.HealthHealthy
}

// Stop closes the listener, waits for the accept loop and removes the
// socket file. Safe to call without a prior Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	ln := m.ln
	m.ln = nil
	m.mu.Unlock()

	_ = ln.Close()
	m.wg.Wait()
	_ = os.Remove(m.socketPath)

	slog.Info("health endpoint stopped")
}
