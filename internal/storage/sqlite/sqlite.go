// Package sqlitestorage records history into a SQLite database. With no
// path configured the database lives in memory and is dumped to disk
// periodically via VACUUM INTO.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/m-tsuru/tenchi-geolocation/internal/config"
	"github.com/m-tsuru/tenchi-geolocation/internal/database"
	gormstorage "github.com/m-tsuru/tenchi-geolocation/internal/storage/gorm"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      config.SQLiteConfig
	log      *slog.Logger
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New opens the SQLite database at cfg.Path, in memory when empty.
func New(cfg config.SQLiteConfig, log *slog.Logger) (*Backend, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	db, err := database.GetSqliteDB(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}

	return &Backend{
		Backend:  gormstorage.New(gormstorage.Dependencies{DB: db, Logger: log}),
		db:       db,
		cfg:      cfg,
		log:      log,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Init migrates the schema and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		go b.dumpLoop()
	} else {
		close(b.done)
	}

	return nil
}

// Close stops the dump goroutine, writes a final dump and closes the
// database.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() { close(b.stopChan) })
	<-b.done

	if b.cfg.DumpPath != "" {
		if err := b.Dump(); err != nil {
			return err
		}
	}

	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Dump writes a point-in-time copy of the database to DumpPath.
func (b *Backend) Dump() error {
	return database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath)
}

// GetExportedFilePath returns the dump path.
func (b *Backend) GetExportedFilePath() string {
	return b.cfg.DumpPath
}

// dumpLoop periodically dumps the database to disk.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Dump(); err != nil {
				b.log.Error("Error dumping to disk", "error", err)
			} else {
				b.log.Debug("Dumped to disk", "duration", time.Since(start))
			}
		}
	}
}
