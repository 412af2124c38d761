// internal/storage/memory/memory.go
package memory

import (
	"sync"
	"time"

	"github.com/m-tsuru/tenchi-geolocation/internal/config"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// Backend keeps history in memory and exports it to JSON on close
type Backend struct {
	cfg       config.MemoryConfig
	now       func() time.Time
	startedAt time.Time

	snapshots []core.Snapshot
	publishes []core.StoredGeolocation

	exportedPath string
	mu           sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg: cfg,
		now: time.Now,
	}
}

// Init marks the start of the recording session
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.startedAt = b.now()
	b.snapshots = nil
	b.publishes = nil
	b.exportedPath = ""
	return nil
}

// Close exports the recorded history. Nothing is written when nothing was
// recorded.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.snapshots) == 0 && len(b.publishes) == 0 {
		return nil
	}
	return b.exportJSON()
}

// RecordSnapshot stores a copy of the snapshot
func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *s
	cp.Records = append([]core.TeamPositionRecord(nil), s.Records...)
	b.snapshots = append(b.snapshots, cp)
	return nil
}

// RecordPublish stores a confirmed publish
func (b *Backend) RecordPublish(g *core.StoredGeolocation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.publishes = append(b.publishes, *g)
	return nil
}

// Snapshots returns up to limit snapshots, newest first. A limit <= 0
// returns all of them.
func (b *Backend) Snapshots(limit int) ([]core.Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.snapshots)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]core.Snapshot, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, b.snapshots[i])
	}
	return out, nil
}

// Publishes returns all recorded publishes in order
func (b *Backend) Publishes() []core.StoredGeolocation {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.StoredGeolocation(nil), b.publishes...)
}

// GetExportedFilePath returns the path of the last export, if any
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exportedPath
}
