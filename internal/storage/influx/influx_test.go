package influxstorage

import (
	"context"
	"errors"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-tsuru/tenchi-geolocation/internal/influx"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

type written struct {
	bucket string
	point  *influxdb2_write.Point
}

type fakeWriter struct {
	connected bool
	closed    bool
	writes    []written
	err       error
}

func (f *fakeWriter) Connect() error { f.connected = true; return nil }
func (f *fakeWriter) Close() error   { f.closed = true; return nil }
func (f *fakeWriter) WritePoint(_ context.Context, bucket string, p *influxdb2_write.Point) error {
	f.writes = append(f.writes, written{bucket, p})
	return f.err
}

func tagValue(p *influxdb2_write.Point, key string) string {
	for _, t := range p.TagList() {
		if t.Key == key {
			return t.Value
		}
	}
	return ""
}

func TestLifecycle(t *testing.T) {
	w := &fakeWriter{}
	b := New(w)

	require.NoError(t, b.Init())
	require.NoError(t, b.Close())
	assert.True(t, w.connected)
	assert.True(t, w.closed)
}

func TestRecordSnapshot_PointPerTeam(t *testing.T) {
	w := &fakeWriter{}
	b := New(w)
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, b.RecordSnapshot(&core.Snapshot{
		ID: "s1", TakenAt: at, OwnTeam: "2",
		Records: []core.TeamPositionRecord{
			{TeamID: "1", TeamName: "Alpha"},
			{TeamID: "2", TeamName: "Beta"},
		},
	}))

	require.Len(t, w.writes, 2)
	for _, wr := range w.writes {
		assert.Equal(t, influx.BucketTeamPositions, wr.bucket)
		assert.Equal(t, at, wr.point.Time())
	}
	assert.Equal(t, "false", tagValue(w.writes[0].point, "own_team"))
	assert.Equal(t, "true", tagValue(w.writes[1].point, "own_team"))
}

func TestRecordSnapshot_NoOwnTeam(t *testing.T) {
	w := &fakeWriter{}
	b := New(w)

	require.NoError(t, b.RecordSnapshot(&core.Snapshot{ID: "s", Records: []core.TeamPositionRecord{{TeamID: ""}}}))
	assert.Equal(t, "false", tagValue(w.writes[0].point, "own_team"))
}

func TestRecordPublish(t *testing.T) {
	w := &fakeWriter{err: errors.New("full")}
	b := New(w)

	err := b.RecordPublish(&core.StoredGeolocation{ID: 1, UserID: "u"})
	assert.EqualError(t, err, "full")
	require.Len(t, w.writes, 1)
	assert.Equal(t, influx.BucketViewerPositions, w.writes[0].bucket)
}
