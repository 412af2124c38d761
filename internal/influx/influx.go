package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/m-tsuru/tenchi-geolocation/internal/config"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

const (
	// BucketTeamPositions holds one point per team per applied snapshot.
	BucketTeamPositions = "team_positions"
	// BucketViewerPositions holds the viewer's confirmed publishes.
	BucketViewerPositions = "viewer_positions"

	retention   = 90 * 24 * time.Hour
	pingTimeout = 5 * time.Second
)

// ErrDisabled is returned by Connect when influx output is switched off.
var ErrDisabled = errors.New("influx.enabled is false")

// DefaultBucketNames are the buckets created on connect.
var DefaultBucketNames = []string{
	BucketTeamPositions,
	BucketViewerPositions,
}

// Manager writes points to InfluxDB, or to a gzipped line-protocol backup
// file when the server cannot be reached at connect time.
type Manager struct {
	cfg     config.InfluxConfig
	log     zerolog.Logger
	buckets []string

	mu      sync.Mutex
	client  influxdb2.Client
	writers map[string]influxdb2_api.WriteAPI
	backup  *gzip.Writer
	file    *os.File
	online  bool
}

// NewManager creates a new InfluxDB manager.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		log:     log,
		buckets: DefaultBucketNames,
		writers: make(map[string]influxdb2_api.WriteAPI),
	}
}

// ServerURL is the base URL built from the configured protocol, host and
// port.
func (m *Manager) ServerURL() string {
	return m.cfg.Protocol + "://" + net.JoinHostPort(m.cfg.Host, m.cfg.Port)
}

// Online reports whether points go to the server rather than the backup.
func (m *Manager) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Connect pings the server and prepares the org, buckets and writers. If
// the server is unreachable the backup file is opened instead.
func (m *Manager) Connect() error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.client = influxdb2.NewClientWithOptions(m.ServerURL(), m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	running, err := m.client.Ping(ctx)
	if err != nil || !running {
		m.log.Warn().Err(err).Str("backupPath", m.cfg.BackupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return m.openBackup()
	}

	if err := m.ensureBuckets(context.Background()); err != nil {
		return err
	}
	for _, bucket := range m.buckets {
		m.writers[bucket] = m.newWriter(bucket)
	}
	m.online = true
	m.log.Info().Str("url", m.ServerURL()).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.backup != nil {
		return nil
	}
	if m.cfg.BackupPath == "" {
		return errors.New("influx unreachable and no backup path configured")
	}
	if err := os.MkdirAll(filepath.Dir(m.cfg.BackupPath), 0755); err != nil {
		return fmt.Errorf("error creating backup directory: %w", err)
	}
	file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.file = file
	m.backup = gzip.NewWriter(file)
	return nil
}

func (m *Manager) ensureBuckets(ctx context.Context) error {
	orgs := m.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.log.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		if org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org); err != nil {
			return fmt.Errorf("creating organization %s: %w", m.cfg.Org, err)
		}
	}

	rule := domain.RetentionRuleTypeExpire
	for _, bucket := range m.buckets {
		if _, err := m.client.BucketsAPI().FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.log.Info().Str("bucket", bucket).Msg("Bucket not found, creating")
		_, err := m.client.BucketsAPI().CreateBucketWithName(ctx, org, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: int64(retention / time.Second),
		})
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucket, err)
		}
	}
	return nil
}

func (m *Manager) newWriter(bucket string) influxdb2_api.WriteAPI {
	w := m.client.WriteAPI(m.cfg.Org, bucket)
	go func(errs <-chan error) {
		for err := range errs {
			m.log.Error().Err(err).Str("bucket", bucket).Msg("Error sending data to InfluxDB")
		}
	}(w.Errors())
	return w
}

// WritePoint queues point for bucket on the server, or appends it to the
// backup file.
func (m *Manager) WritePoint(_ context.Context, bucket string, point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online {
		w, ok := m.writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}
	if m.backup == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.backup.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.writers {
		w.Flush()
	}
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	var errs []error
	if m.backup != nil {
		errs = append(errs, m.backup.Close())
		m.backup = nil
	}
	if m.file != nil {
		errs = append(errs, m.file.Close())
		m.file = nil
	}
	m.online = false
	return errors.Join(errs...)
}

// TeamPositionPoint builds the point for one team in a snapshot.
func TeamPositionPoint(snapshotID string, ownTeam bool, r core.TeamPositionRecord, at time.Time) *influxdb2_write.Point {
	return influxdb2.NewPoint(
		"team_position",
		map[string]string{
			"team_id":  string(r.TeamID),
			"own_team": strconv.FormatBool(ownTeam),
		},
		map[string]any{
			"team_name": r.TeamName,
			"latitude":  r.Position.Latitude,
			"longitude": r.Position.Longitude,
			"snapshot":  snapshotID,
		},
		at,
	)
}

// PublishedPositionPoint builds the point for a confirmed publish.
func PublishedPositionPoint(g core.StoredGeolocation) *influxdb2_write.Point {
	return influxdb2.NewPoint(
		"published_position",
		map[string]string{"user_id": g.UserID},
		map[string]any{
			"id":        g.ID,
			"latitude":  g.Position.Latitude,
			"longitude": g.Position.Longitude,
		},
		g.CreatedAt,
	)
}
