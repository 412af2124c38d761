package gormstorage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-tsuru/tenchi-geolocation/internal/database"
	"github.com/m-tsuru/tenchi-geolocation/internal/model"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.GetSqliteDB(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	b := New(Dependencies{DB: db})
	require.NoError(t, b.Init())
	return b
}

func testSnapshot(id string, at time.Time) *core.Snapshot {
	return &core.Snapshot{
		ID:      id,
		TakenAt: at,
		OwnTeam: "1",
		Skipped: 2,
		Records: []core.TeamPositionRecord{
			{TeamID: "1", TeamName: "Alpha", Position: core.Position{Latitude: 35, Longitude: 139}},
			{TeamID: "2", TeamName: "Beta", Position: core.Position{Latitude: 35.1, Longitude: 139.1}, ObservedAt: at.Add(-time.Minute)},
		},
	}
}

func TestNoDatabase(t *testing.T) {
	b := New(Dependencies{})

	assert.ErrorIs(t, b.Init(), ErrNoDatabase)
	assert.ErrorIs(t, b.RecordSnapshot(testSnapshot("x", time.Now())), ErrNoDatabase)
	assert.ErrorIs(t, b.RecordPublish(&core.StoredGeolocation{}), ErrNoDatabase)
	_, err := b.Snapshots(1)
	assert.ErrorIs(t, err, ErrNoDatabase)
	assert.NoError(t, b.Close())
}

func TestRecordSnapshot_RoundTrip(t *testing.T) {
	b := newTestBackend(t)
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, b.RecordSnapshot(testSnapshot("5f0c6a52-0000-4000-8000-000000000001", at)))

	got, err := b.Snapshots(0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	s := got[0]
	assert.Equal(t, "5f0c6a52-0000-4000-8000-000000000001", s.ID)
	assert.True(t, s.TakenAt.Equal(at))
	assert.Equal(t, core.TeamID("1"), s.OwnTeam)
	assert.Equal(t, 2, s.Skipped)
	require.Len(t, s.Records, 2)
	assert.Equal(t, "Alpha", s.Records[0].TeamName)
	assert.Equal(t, core.TeamID("2"), s.Records[1].TeamID)
	assert.InDelta(t, 35.1, s.Records[1].Position.Latitude, 1e-9)
	assert.InDelta(t, 139.1, s.Records[1].Position.Longitude, 1e-9)
}

func TestSnapshots_NewestFirst(t *testing.T) {
	b := newTestBackend(t)
	base := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, b.RecordSnapshot(testSnapshot("a", base)))
	require.NoError(t, b.RecordSnapshot(testSnapshot("b", base.Add(time.Minute))))
	require.NoError(t, b.RecordSnapshot(testSnapshot("c", base.Add(2*time.Minute))))

	got, err := b.Snapshots(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestRecordSnapshot_Empty(t *testing.T) {
	b := newTestBackend(t)

	require.NoError(t, b.RecordSnapshot(&core.Snapshot{ID: "empty", TakenAt: time.Now()}))

	got, err := b.Snapshots(1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Records)
}

func TestRecordSnapshot_InvalidPosition(t *testing.T) {
	b := newTestBackend(t)
	s := &core.Snapshot{ID: "bad", Records: []core.TeamPositionRecord{
		{TeamID: "9", Position: core.Position{Latitude: 95, Longitude: 0}},
	}}

	assert.Error(t, b.RecordSnapshot(s))
}

func TestRecordPublish(t *testing.T) {
	b := newTestBackend(t)
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, b.RecordPublish(&core.StoredGeolocation{
		ID: 11, UserID: "u1", Position: core.Position{Latitude: 35.5, Longitude: 139.5}, CreatedAt: at,
	}))

	got, err := b.Publishes()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 11, got[0].ID)
	assert.Equal(t, "u1", got[0].UserID)
	assert.True(t, got[0].CreatedAt.Equal(at))
}

func TestRecordPerformance(t *testing.T) {
	b := newTestBackend(t)

	require.NoError(t, b.RecordPerformance(model.SyncPerformance{
		Time:              time.Now(),
		Authenticated:     true,
		MarkerCount:       4,
		WriteQueueLengths: model.WriteQueueLengths{Snapshots: 1},
	}))

	var count int64
	require.NoError(t, b.DB().Model(&model.SyncPerformance{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
