// internal/storage/factory.go
package storage

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/m-tsuru/tenchi-geolocation/internal/config"
	"github.com/m-tsuru/tenchi-geolocation/internal/database"
	"github.com/m-tsuru/tenchi-geolocation/internal/influx"
	gormstorage "github.com/m-tsuru/tenchi-geolocation/internal/storage/gorm"
	influxstorage "github.com/m-tsuru/tenchi-geolocation/internal/storage/influx"
	"github.com/m-tsuru/tenchi-geolocation/internal/storage/memory"
	sqlitestorage "github.com/m-tsuru/tenchi-geolocation/internal/storage/sqlite"
)

// postgresBackend ties the GORM backend to the manager that owns its
// connection.
type postgresBackend struct {
	*gormstorage.Backend
	manager *database.Manager
}

func (p *postgresBackend) Close() error {
	return p.manager.Close()
}

// NewBackend creates the history backends selected by configuration. The
// result is never nil; with storage type "none" and influx disabled it
// records nothing.
func NewBackend(s config.Settings, log *slog.Logger, zlog zerolog.Logger) (Multi, error) {
	backends := Multi{}

	switch s.Storage.Type {
	case "none", "":
	case "memory":
		backends = append(backends, memory.New(s.Storage.Memory))
	case "sqlite":
		b, err := sqlitestorage.New(s.Storage.SQLite, log)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	case "postgres":
		m := database.NewManager(database.Config{
			Postgres:     s.Storage.Postgres,
			FallbackPath: s.Storage.SQLite.Path,
		}, zlog)
		if err := m.Connect(); err != nil {
			return nil, fmt.Errorf("postgres backend: %w", err)
		}
		backends = append(backends, &postgresBackend{
			Backend: gormstorage.New(gormstorage.Dependencies{DB: m.DB, Logger: log}),
			manager: m,
		})
	default:
		return nil, fmt.Errorf("unknown storage type: %s", s.Storage.Type)
	}

	if s.Influx.Enabled {
		backends = append(backends, influxstorage.New(influx.NewManager(s.Influx, zlog)))
	}

	return backends, nil
}
