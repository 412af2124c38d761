// Package gormstorage records sync history into any gorm database
// (Postgres or SQLite).
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/m-tsuru/tenchi-geolocation/internal/database"
	"github.com/m-tsuru/tenchi-geolocation/internal/model"
	"github.com/m-tsuru/tenchi-geolocation/internal/model/convert"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// ErrNoDatabase is returned by writes when the backend has no connection.
var ErrNoDatabase = errors.New("gorm backend has no database")

// Dependencies holds the collaborators of the GORM backend
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

// Backend stores snapshots and publishes as rows.
type Backend struct {
	db  *gorm.DB
	log *slog.Logger
}

// New creates a GORM backend. The caller owns the connection.
func New(deps Dependencies) *Backend {
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Backend{db: deps.DB, log: log}
}

// DB exposes the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.db
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if b.db == nil {
		return ErrNoDatabase
	}
	return database.Migrate(b.db)
}

// Close is a no-op; the connection belongs to the caller.
func (b *Backend) Close() error {
	return nil
}

// RecordSnapshot inserts the snapshot together with its team positions.
func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	if b.db == nil {
		return ErrNoDatabase
	}
	row, err := convert.CoreToSnapshot(*s)
	if err != nil {
		return fmt.Errorf("convert snapshot %s: %w", s.ID, err)
	}
	if err := b.db.Create(&row).Error; err != nil {
		return fmt.Errorf("insert snapshot %s: %w", s.ID, err)
	}
	b.log.Debug("snapshot recorded", "snapshot", s.ID, "teams", len(row.Positions))
	return nil
}

// RecordPublish inserts a confirmed publish.
func (b *Backend) RecordPublish(g *core.StoredGeolocation) error {
	if b.db == nil {
		return ErrNoDatabase
	}
	row, err := convert.CoreToPublished(*g)
	if err != nil {
		return fmt.Errorf("convert publish %d: %w", g.ID, err)
	}
	if err := b.db.Create(&row).Error; err != nil {
		return fmt.Errorf("insert publish %d: %w", g.ID, err)
	}
	return nil
}

// RecordPerformance inserts a status sample.
func (b *Backend) RecordPerformance(p model.SyncPerformance) error {
	if b.db == nil {
		return ErrNoDatabase
	}
	return b.db.Create(&p).Error
}

// Snapshots returns up to limit snapshots, newest first. A limit <= 0
// returns all of them.
func (b *Backend) Snapshots(limit int) ([]core.Snapshot, error) {
	if b.db == nil {
		return nil, ErrNoDatabase
	}
	q := b.db.
		Preload("Positions", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order("time DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []model.Snapshot
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}

	out := make([]core.Snapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.SnapshotToCore(r))
	}
	return out, nil
}

// Publishes returns all recorded publishes in insertion order.
func (b *Backend) Publishes() ([]core.StoredGeolocation, error) {
	if b.db == nil {
		return nil, ErrNoDatabase
	}
	var rows []model.PublishedPosition
	if err := b.db.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query publishes: %w", err)
	}
	out := make([]core.StoredGeolocation, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.PublishedToCore(r))
	}
	return out, nil
}
