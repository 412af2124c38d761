package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/m-tsuru/tenchi-geolocation/internal/queue"
	"github.com/m-tsuru/tenchi-geolocation/internal/storage"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// DefaultFlushInterval is used when Dependencies.FlushInterval is unset.
const DefaultFlushInterval = 5 * time.Second

// MaxQueued bounds each queue while the backend is unreachable.
const MaxQueued = 1_000

// Queues holds history waiting to be written
type Queues struct {
	Snapshots *queue.Queue[core.Snapshot]
	Publishes *queue.Queue[core.StoredGeolocation]
}

// NewQueues creates empty queues
func NewQueues() *Queues {
	return &Queues{
		Snapshots: queue.NewBounded[core.Snapshot](MaxQueued),
		Publishes: queue.NewBounded[core.StoredGeolocation](MaxQueued),
	}
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Logger        *slog.Logger
	Clock         clockwork.Clock
	FlushInterval time.Duration
}

// Manager drains the history queues into the storage backend
type Manager struct {
	deps    Dependencies
	backend storage.Backend
	queues  *Queues

	flushMu           sync.Mutex
	lastWriteDuration atomic.Int64
	written           atomic.Int64
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Manager{
		deps:    deps,
		backend: backend,
		queues:  NewQueues(),
	}
}

// Queues exposes the pending history for monitoring
func (m *Manager) Queues() *Queues {
	return m.queues
}

// EnqueueSnapshot queues an applied snapshot. It matches the sync observer
// signature.
func (m *Manager) EnqueueSnapshot(s core.Snapshot) {
	m.queues.Snapshots.Push(s)
}

// EnqueuePublish queues a confirmed publish.
func (m *Manager) EnqueuePublish(g core.StoredGeolocation) {
	m.queues.Publishes.Push(g)
}

// Flush writes everything queued so far. Failed items are dropped and
// their errors returned joined.
func (m *Manager) Flush() error {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	snapshots := m.queues.Snapshots.GetAndEmpty()
	publishes := m.queues.Publishes.GetAndEmpty()
	if len(snapshots) == 0 && len(publishes) == 0 {
		return nil
	}

	start := m.deps.Clock.Now()
	var errs []error
	for i := range snapshots {
		if err := m.backend.RecordSnapshot(&snapshots[i]); err != nil {
			errs = append(errs, err)
			continue
		}
		m.written.Add(1)
	}
	for i := range publishes {
		if err := m.backend.RecordPublish(&publishes[i]); err != nil {
			errs = append(errs, err)
			continue
		}
		m.written.Add(1)
	}
	m.lastWriteDuration.Store(int64(m.deps.Clock.Since(start)))

	err := errors.Join(errs...)
	if err != nil {
		m.deps.Logger.Error("history write failed",
			"snapshots", len(snapshots), "publishes", len(publishes), "error", err)
	} else {
		m.deps.Logger.Debug("history written",
			"snapshots", len(snapshots), "publishes", len(publishes))
	}
	return err
}

// Run flushes on every tick until ctx is done, then flushes once more.
func (m *Manager) Run(ctx context.Context) {
	ticker := m.deps.Clock.NewTicker(m.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = m.Flush()
			return
		case <-ticker.Chan():
			_ = m.Flush()
		}
	}
}

// GetLastDBWriteDuration returns the duration of the last write cycle.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	return time.Duration(m.lastWriteDuration.Load())
}

// Written returns the number of items written since start.
func (m *Manager) Written() int64 {
	return m.written.Load()
}

// History reads back recorded snapshots if the backend supports it.
func (m *Manager) History(limit int) ([]core.Snapshot, error) {
	if r, ok := m.backend.(storage.HistoryReader); ok {
		return r.Snapshots(limit)
	}
	return nil, storage.ErrNoHistory
}
