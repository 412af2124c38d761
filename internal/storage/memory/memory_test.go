// internal/storage/memory/memory_test.go
package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-tsuru/tenchi-geolocation/internal/config"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

func snapshot(id string, at time.Time) *core.Snapshot {
	return &core.Snapshot{
		ID:      id,
		TakenAt: at,
		OwnTeam: "1",
		Records: []core.TeamPositionRecord{
			{TeamID: "1", TeamName: "Alpha", Position: core.Position{Latitude: 35, Longitude: 139}},
		},
	}
}

func TestRecordSnapshot_CopiesRecords(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init())

	s := snapshot("a", time.Now())
	require.NoError(t, b.RecordSnapshot(s))
	s.Records[0].TeamName = "changed"

	got, err := b.Snapshots(0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alpha", got[0].Records[0].TeamName)
}

func TestSnapshots_NewestFirstWithLimit(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init())

	base := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, b.RecordSnapshot(snapshot(id, base.Add(time.Duration(i)*time.Minute))))
	}

	got, err := b.Snapshots(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	all, err := b.Snapshots(10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRecordPublish(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init())

	g := &core.StoredGeolocation{ID: 7, UserID: "u1", Position: core.Position{Latitude: 1, Longitude: 2}}
	require.NoError(t, b.RecordPublish(g))

	assert.Equal(t, []core.StoredGeolocation{*g}, b.Publishes())
}

func TestInit_ResetsHistory(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.Init())
	require.NoError(t, b.RecordSnapshot(snapshot("a", time.Now())))

	require.NoError(t, b.Init())
	got, err := b.Snapshots(0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClose_NothingRecorded(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())

	assert.Empty(t, b.GetExportedFilePath())
}
