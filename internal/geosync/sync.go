// Package geosync redraws the team marker layer from the latest server
// snapshot.
package geosync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/m-tsuru/tenchi-geolocation/internal/api"
	"github.com/m-tsuru/tenchi-geolocation/internal/cache"
	"github.com/m-tsuru/tenchi-geolocation/internal/geo"
	"github.com/m-tsuru/tenchi-geolocation/internal/mapview"
	"github.com/m-tsuru/tenchi-geolocation/internal/render"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// SyncError is returned when the position fetch fails. The marker layer is
// left as it was.
type SyncError struct {
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("team positions unavailable: %v", e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// IdentityResolver resolves the viewer's own team.
type IdentityResolver interface {
	GetIdentity(ctx context.Context) (core.Identity, error)
}

// GeoFetcher returns every team's latest position.
type GeoFetcher interface {
	LatestGeolocations(ctx context.Context) ([]api.GeoEntry, error)
}

// Observer is called with every successfully applied snapshot.
type Observer func(core.Snapshot)

// Option configures a Syncer.
type Option func(*Syncer)

// WithClock sets the clock used to stamp snapshots.
func WithClock(c clockwork.Clock) Option {
	return func(s *Syncer) {
		s.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) {
		s.logger = l
	}
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(s *Syncer) {
		s.observers = append(s.observers, o)
	}
}

// Syncer owns the marker set and is the only thing that mutates it.
type Syncer struct {
	identity  IdentityResolver
	api       GeoFetcher
	surface   mapview.Surface
	markers   *cache.MarkerSet
	clock     clockwork.Clock
	logger    *slog.Logger
	observers []Observer

	// OTEL metrics
	refreshes metric.Int64Counter
	skipped   metric.Int64Counter

	mu   sync.RWMutex
	last core.Snapshot
	ok   bool
}

// New creates a Syncer drawing onto surface.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(identity IdentityResolver, fetcher GeoFetcher, surface mapview.Surface, markers *cache.MarkerSet, opts ...Option) (*Syncer, error) {
	s := &Syncer{
		identity: identity,
		api:      fetcher,
		surface:  surface,
		markers:  markers,
		clock:    clockwork.NewRealClock(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	m := meter()
	var err error

	s.refreshes, err = m.Int64Counter(
		"geosync.refreshes",
		metric.WithDescription("Refresh cycles by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("create refreshes counter: %w", err)
	}

	s.skipped, err = m.Int64Counter(
		"geosync.records.skipped",
		metric.WithDescription("Malformed or duplicate position records skipped"),
	)
	if err != nil {
		return nil, fmt.Errorf("create skipped counter: %w", err)
	}

	return s, nil
}

// Refresh runs one sync cycle. It is not reentrant; callers go through a
// Trigger to keep at most one cycle in flight.
func (s *Syncer) Refresh(ctx context.Context) error {
	ownTeam := s.resolveOwnTeam(ctx)

	entries, err := s.api.LatestGeolocations(ctx)
	if err != nil {
		s.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failure")))
		s.logger.WarnContext(ctx, "team position fetch failed", "error", err)
		return &SyncError{Err: err}
	}

	records, skipped := Reconcile(entries)
	if skipped > 0 {
		s.skipped.Add(ctx, int64(skipped))
		s.logger.DebugContext(ctx, "skipped position records", "count", skipped)
	}

	overlays := make([]cache.Entry, 0, len(records))
	for _, r := range records {
		overlays = append(overlays, cache.Entry{
			TeamID:  r.TeamID,
			Overlay: render.Marker(r, ownTeam != "" && r.TeamID == ownTeam),
		})
	}
	s.markers.Replace(s.surface, overlays)

	if f, ok := s.surface.(mapview.Flusher); ok {
		if err := f.Flush(); err != nil {
			s.logger.WarnContext(ctx, "map surface flush failed", "error", err)
		}
	}

	snap := core.Snapshot{
		ID:      uuid.NewString(),
		TakenAt: s.clock.Now(),
		OwnTeam: ownTeam,
		Records: records,
		Skipped: skipped,
	}

	s.mu.Lock()
	s.last = snap
	s.ok = true
	s.mu.Unlock()

	s.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "success")))
	s.logger.InfoContext(ctx, "map refreshed", "teams", len(records), "skipped", skipped, "ownTeam", string(ownTeam))

	for _, o := range s.observers {
		o(snap)
	}
	return nil
}

func (s *Syncer) resolveOwnTeam(ctx context.Context) core.TeamID {
	id, err := s.identity.GetIdentity(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "identity unavailable, drawing without own team", "error", err)
		return ""
	}
	return id.TeamID
}

// Reconcile turns raw entries into one record per team. Entries without a
// team id or usable coordinates are skipped, as is any repeat of a team
// already seen.
func Reconcile(entries []api.GeoEntry) ([]core.TeamPositionRecord, int) {
	records := make([]core.TeamPositionRecord, 0, len(entries))
	seen := make(map[core.TeamID]struct{}, len(entries))
	skipped := 0

	for _, e := range entries {
		r, ok := e.Record()
		if !ok || geo.Validate(r.Position) != nil {
			skipped++
			continue
		}
		if _, dup := seen[r.TeamID]; dup {
			skipped++
			continue
		}
		seen[r.TeamID] = struct{}{}
		records = append(records, r)
	}
	return records, skipped
}

// LastSnapshot returns the most recently applied snapshot.
func (s *Syncer) LastSnapshot() (core.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.ok
}

// LastRefreshed returns when the map was last redrawn, or the zero time.
func (s *Syncer) LastRefreshed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last.TakenAt
}

// Markers exposes the owned marker set for reading.
func (s *Syncer) Markers() *cache.MarkerSet {
	return s.markers
}
