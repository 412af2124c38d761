package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/m-tsuru/tenchi-geolocation/internal/cache"
	"github.com/m-tsuru/tenchi-geolocation/internal/model"
	"github.com/m-tsuru/tenchi-geolocation/internal/render"
	"github.com/m-tsuru/tenchi-geolocation/internal/worker"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// StatusFileName is written into Dependencies.StatusDir.
const StatusFileName = "status.txt"

// IdentitySource reports the last known identity without a network call.
type IdentitySource interface {
	Identity() core.Identity
}

// SyncState is the part of the team sync the monitor reads.
type SyncState interface {
	LastRefreshed() time.Time
	Markers() *cache.MarkerSet
}

// PerfRecorder stores status samples.
type PerfRecorder interface {
	RecordPerformance(p model.SyncPerformance) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Logger        *slog.Logger
	Identity      IdentitySource
	Sync          SyncState
	WorkerManager *worker.Manager
	Perf          PerfRecorder // optional
	StatusDir     string       // no status file when empty
	Clock         clockwork.Clock
	Interval      time.Duration
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current status lines and the matching sample.
// The first line is always the summary.
func (s *Service) GetProgramStatus(writeQueues bool, lastWrite bool) (output []string, perf model.SyncPerformance) {
	id := s.deps.Identity.Identity()
	lastRefreshed := s.deps.Sync.LastRefreshed()

	writeQueuesObj := model.WriteQueueLengths{}
	var lastWriteMs float32
	if w := s.deps.WorkerManager; w != nil {
		writeQueuesObj.Snapshots = uint16(w.Queues().Snapshots.Len())
		writeQueuesObj.Publishes = uint16(w.Queues().Publishes.Len())
		lastWriteMs = float32(w.GetLastDBWriteDuration().Microseconds()) / 1000
	}

	perf = model.SyncPerformance{
		Time:                s.deps.Clock.Now(),
		Authenticated:       id.Authenticated,
		MarkerCount:         s.deps.Sync.Markers().Len(),
		LastRefreshed:       lastRefreshed,
		WriteQueueLengths:   writeQueuesObj,
		LastWriteDurationMs: lastWriteMs,
	}

	team := "-"
	if id.HasTeam() {
		team = string(id.TeamID)
	}
	output = append(output, fmt.Sprintf("authenticated=%t team=%s markers=%d | %s",
		perf.Authenticated, team, perf.MarkerCount, render.LastUpdated(lastRefreshed)))

	if writeQueues {
		writeQueuesStr, err := json.MarshalIndent(writeQueuesObj, "", "  ")
		if err != nil {
			writeQueuesStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
		}
		output = append(output, string(writeQueuesStr))
	}
	if lastWrite {
		output = append(output, fmt.Sprintf("last write: %.3fms", lastWriteMs))
	}

	return output, perf
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	var statusFile *os.File
	if s.deps.StatusDir != "" {
		if err := os.MkdirAll(s.deps.StatusDir, 0755); err != nil {
			s.deps.Logger.Error("Error creating status directory", "error", err)
		} else if f, err := os.Create(filepath.Join(s.deps.StatusDir, StatusFileName)); err != nil {
			s.deps.Logger.Error("Error creating status file", "error", err)
		} else {
			statusFile = f
		}
	}

	ticker := s.deps.Clock.NewTicker(s.deps.Interval)

	go func() {
		defer func() {
			ticker.Stop()
			if statusFile != nil {
				statusFile.Close()
			}
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(done)
		}()

		s.deps.Logger.Debug("Starting status monitor goroutine")

		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				s.sample(statusFile)
			}
		}
	}()

	return nil
}

func (s *Service) sample(statusFile *os.File) {
	statusStr, perfModel := s.GetProgramStatus(true, true)

	if statusFile != nil {
		statusFile.Truncate(0)
		statusFile.Seek(0, 0)
		for _, line := range statusStr {
			statusFile.WriteString(line + "\n")
		}
	}

	if s.deps.Perf != nil {
		if err := s.deps.Perf.RecordPerformance(perfModel); err != nil {
			s.deps.Logger.Error("Error writing status sample", "error", err)
		}
	}
}

// Stop stops the status monitor and waits for it to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.isRunning = false
	s.mu.Unlock()
	<-done
}
