package geosync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-tsuru/tenchi-geolocation/internal/api"
	"github.com/m-tsuru/tenchi-geolocation/internal/cache"
	"github.com/m-tsuru/tenchi-geolocation/internal/mapview"
	"github.com/m-tsuru/tenchi-geolocation/internal/render"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

type fakeIdentity struct {
	id  core.Identity
	err error
}

func (f *fakeIdentity) GetIdentity(context.Context) (core.Identity, error) {
	return f.id, f.err
}

type fakeFetcher struct {
	mu      sync.Mutex
	entries []api.GeoEntry
	err     error
	calls   int
}

func (f *fakeFetcher) LatestGeolocations(context.Context) ([]api.GeoEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.entries, f.err
}

type flushingLayer struct {
	*mapview.Layer
	flushes int
}

func (l *flushingLayer) Flush() error {
	l.flushes++
	return nil
}

func f64(v float64) *float64 { return &v }

func entry(id core.TeamID, name string, lat, lng float64) api.GeoEntry {
	return api.GeoEntry{TeamID: id, TeamName: name, Latitude: f64(lat), Longitude: f64(lng)}
}

func newSyncer(t *testing.T, id IdentityResolver, fetch GeoFetcher, surface mapview.Surface, opts ...Option) *Syncer {
	t.Helper()
	s, err := New(id, fetch, surface, cache.NewMarkerSet(), opts...)
	require.NoError(t, err)
	return s
}

func TestRefresh_AlphaBeta(t *testing.T) {
	layer := mapview.NewLayer()
	fetch := &fakeFetcher{entries: []api.GeoEntry{
		entry("1", "Alpha", 35.0, 139.0),
		entry("2", "Beta", 35.1, 139.1),
	}}
	s := newSyncer(t, &fakeIdentity{id: core.Identity{Authenticated: true, TeamID: "1"}}, fetch, layer)

	require.NoError(t, s.Refresh(context.Background()))

	markers := s.Markers()
	assert.Equal(t, []core.TeamID{"1", "2"}, markers.Keys())

	alpha, ok := markers.Get("1")
	require.True(t, ok)
	assert.Equal(t, render.SelfColor, alpha.Overlay.Style.Color)
	assert.Equal(t, "<b>Alpha</b><br>(35.00000, 139.00000)", alpha.Overlay.Popup)

	beta, ok := markers.Get("2")
	require.True(t, ok)
	assert.Equal(t, render.OtherColor, beta.Overlay.Style.Color)
	assert.Equal(t, "<b>Beta</b><br>(35.10000, 139.10000)", beta.Overlay.Popup)

	assert.Equal(t, 2, layer.Len())
	drawn, ok := layer.Get(alpha.Handle)
	require.True(t, ok)
	assert.Equal(t, alpha.Overlay, drawn)
}

func TestRefresh_Idempotent(t *testing.T) {
	layer := mapview.NewLayer()
	fetch := &fakeFetcher{entries: []api.GeoEntry{
		entry("1", "Alpha", 35.0, 139.0),
		entry("2", "Beta", 35.1, 139.1),
	}}
	s := newSyncer(t, &fakeIdentity{id: core.Identity{Authenticated: true, TeamID: "2"}}, fetch, layer)

	require.NoError(t, s.Refresh(context.Background()))
	first := s.Markers().Overlays()

	require.NoError(t, s.Refresh(context.Background()))
	second := s.Markers().Overlays()

	assert.Equal(t, first, second)
	assert.Equal(t, 2, layer.Len())
}

func TestRefresh_FullReplace(t *testing.T) {
	layer := mapview.NewLayer()
	fetch := &fakeFetcher{entries: []api.GeoEntry{
		entry("1", "Alpha", 35.0, 139.0),
		entry("2", "Beta", 35.1, 139.1),
		entry("3", "Gamma", 35.2, 139.2),
	}}
	s := newSyncer(t, &fakeIdentity{}, fetch, layer)
	require.NoError(t, s.Refresh(context.Background()))

	fetch.entries = []api.GeoEntry{
		entry("3", "Gamma", 35.3, 139.3),
		entry("4", "Delta", 35.4, 139.4),
	}
	require.NoError(t, s.Refresh(context.Background()))

	assert.Equal(t, []core.TeamID{"3", "4"}, s.Markers().Keys())
	assert.Equal(t, 2, layer.Len())

	gamma, _ := s.Markers().Get("3")
	assert.InDelta(t, 35.3, gamma.Overlay.Position.Latitude, 1e-9)
}

func TestRefresh_SelfColorOnlyForOwnTeam(t *testing.T) {
	fetch := &fakeFetcher{entries: []api.GeoEntry{
		entry("7", "A", 1, 1),
		entry("8", "B", 2, 2),
		entry("9", "C", 3, 3),
	}}
	s := newSyncer(t, &fakeIdentity{id: core.Identity{Authenticated: true, TeamID: "8"}}, fetch, mapview.NewLayer())
	require.NoError(t, s.Refresh(context.Background()))

	for id, o := range s.Markers().Overlays() {
		if id == "8" {
			assert.Equal(t, render.SelfColor, o.Style.Color, "team %s", id)
		} else {
			assert.Equal(t, render.OtherColor, o.Style.Color, "team %s", id)
		}
	}
}

func TestRefresh_MalformedEntriesSkipped(t *testing.T) {
	missingLat := entry("2", "Beta", 0, 139.1)
	missingLat.Latitude = nil

	fetch := &fakeFetcher{entries: []api.GeoEntry{
		entry("1", "Alpha", 35.0, 139.0),
		missingLat,
		{TeamName: "NoTeam", Latitude: f64(1), Longitude: f64(1)},
		entry("4", "OutOfRange", 91, 0),
		entry("5", "Epsilon", 35.5, 139.5),
	}}
	var got core.Snapshot
	s := newSyncer(t, &fakeIdentity{}, fetch, mapview.NewLayer(), WithObserver(func(snap core.Snapshot) { got = snap }))

	require.NoError(t, s.Refresh(context.Background()))

	assert.Equal(t, []core.TeamID{"1", "5"}, s.Markers().Keys())
	assert.Equal(t, 3, got.Skipped)
	assert.Len(t, got.Records, 2)
}

func TestRefresh_DuplicateTeamFirstWins(t *testing.T) {
	fetch := &fakeFetcher{entries: []api.GeoEntry{
		entry("1", "Alpha", 35.0, 139.0),
		entry("1", "Alpha", 36.0, 140.0),
	}}
	s := newSyncer(t, &fakeIdentity{}, fetch, mapview.NewLayer())
	require.NoError(t, s.Refresh(context.Background()))

	m, ok := s.Markers().Get("1")
	require.True(t, ok)
	assert.InDelta(t, 35.0, m.Overlay.Position.Latitude, 1e-9)

	snap, _ := s.LastSnapshot()
	assert.Equal(t, 1, snap.Skipped)
}

func TestRefresh_FetchFailureLeavesMarkers(t *testing.T) {
	layer := mapview.NewLayer()
	fetch := &fakeFetcher{entries: []api.GeoEntry{entry("1", "Alpha", 35.0, 139.0)}}
	s := newSyncer(t, &fakeIdentity{}, fetch, layer)
	require.NoError(t, s.Refresh(context.Background()))
	before := s.Markers().Overlays()
	stamp := s.LastRefreshed()

	cause := errors.New("connection refused")
	fetch.entries = nil
	fetch.err = cause

	err := s.Refresh(context.Background())
	require.Error(t, err)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, before, s.Markers().Overlays())
	assert.Equal(t, 1, layer.Len())
	assert.Equal(t, stamp, s.LastRefreshed())
}

func TestRefresh_IdentityFailureIsDegraded(t *testing.T) {
	fetch := &fakeFetcher{entries: []api.GeoEntry{
		entry("1", "Alpha", 35.0, 139.0),
		entry("2", "Beta", 35.1, 139.1),
	}}
	s := newSyncer(t, &fakeIdentity{err: errors.New("timeout")}, fetch, mapview.NewLayer())

	require.NoError(t, s.Refresh(context.Background()))

	for _, o := range s.Markers().Overlays() {
		assert.Equal(t, render.OtherColor, o.Style.Color)
	}
	snap, ok := s.LastSnapshot()
	require.True(t, ok)
	assert.Equal(t, core.TeamID(""), snap.OwnTeam)
}

func TestRefresh_EmptySnapshotClearsLayer(t *testing.T) {
	layer := mapview.NewLayer()
	fetch := &fakeFetcher{entries: []api.GeoEntry{entry("1", "Alpha", 35.0, 139.0)}}
	s := newSyncer(t, &fakeIdentity{}, fetch, layer)
	require.NoError(t, s.Refresh(context.Background()))

	fetch.entries = []api.GeoEntry{}
	require.NoError(t, s.Refresh(context.Background()))

	assert.Equal(t, 0, s.Markers().Len())
	assert.Equal(t, 0, layer.Len())
}

func TestRefresh_StampsWithClockAndFlushes(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC))
	layer := &flushingLayer{Layer: mapview.NewLayer()}
	fetch := &fakeFetcher{entries: []api.GeoEntry{entry("1", "Alpha", 35.0, 139.0)}}

	var snaps []core.Snapshot
	s := newSyncer(t, &fakeIdentity{}, fetch, layer,
		WithClock(clock),
		WithObserver(func(snap core.Snapshot) { snaps = append(snaps, snap) }),
	)

	assert.True(t, s.LastRefreshed().IsZero())

	require.NoError(t, s.Refresh(context.Background()))
	clock.Advance(time.Minute)
	require.NoError(t, s.Refresh(context.Background()))

	assert.Equal(t, 2, layer.flushes)
	require.Len(t, snaps, 2)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC), snaps[0].TakenAt)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 31, 0, 0, time.UTC), s.LastRefreshed())
	assert.NotEqual(t, snaps[0].ID, snaps[1].ID)
}

func TestReconcile(t *testing.T) {
	records, skipped := Reconcile(nil)
	assert.Empty(t, records)
	assert.Equal(t, 0, skipped)

	records, skipped = Reconcile([]api.GeoEntry{
		entry("2", "B", 1, 1),
		entry("1", "A", 2, 2),
	})
	assert.Equal(t, 0, skipped)
	require.Len(t, records, 2)
	assert.Equal(t, core.TeamID("2"), records[0].TeamID, "server order is kept")
}
