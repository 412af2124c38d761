// internal/storage/storage.go
package storage

import (
	"errors"

	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// Backend is the interface all history storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Recording
	RecordSnapshot(s *core.Snapshot) error
	RecordPublish(g *core.StoredGeolocation) error
}

// Exporter is an optional interface for backends that write a history file
// when closed.
type Exporter interface {
	GetExportedFilePath() string
}

// HistoryReader is an optional interface for backends that can read back
// recorded snapshots, newest first.
type HistoryReader interface {
	Snapshots(limit int) ([]core.Snapshot, error)
}

// Multi fans every call out to all of its backends. Errors are joined; one
// failing backend does not stop the others.
type Multi []Backend

func (m Multi) Init() error {
	var errs []error
	for _, b := range m {
		errs = append(errs, b.Init())
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, b := range m {
		errs = append(errs, b.Close())
	}
	return errors.Join(errs...)
}

func (m Multi) RecordSnapshot(s *core.Snapshot) error {
	var errs []error
	for _, b := range m {
		errs = append(errs, b.RecordSnapshot(s))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordPublish(g *core.StoredGeolocation) error {
	var errs []error
	for _, b := range m {
		errs = append(errs, b.RecordPublish(g))
	}
	return errors.Join(errs...)
}

// GetExportedFilePath returns the first non-empty export path.
func (m Multi) GetExportedFilePath() string {
	for _, b := range m {
		if e, ok := b.(Exporter); ok {
			if p := e.GetExportedFilePath(); p != "" {
				return p
			}
		}
	}
	return ""
}

// Snapshots reads from the first backend that supports history reads.
func (m Multi) Snapshots(limit int) ([]core.Snapshot, error) {
	for _, b := range m {
		if r, ok := b.(HistoryReader); ok {
			return r.Snapshots(limit)
		}
	}
	return nil, ErrNoHistory
}

// ErrNoHistory is returned when no configured backend can read history.
var ErrNoHistory = errors.New("no storage backend supports history reads")
