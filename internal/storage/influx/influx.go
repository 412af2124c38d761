// Package influxstorage writes history as InfluxDB points.
package influxstorage

import (
	"context"
	"errors"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/m-tsuru/tenchi-geolocation/internal/influx"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// PointWriter is the part of influx.Manager the backend uses.
type PointWriter interface {
	Connect() error
	Close() error
	WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error
}

var _ PointWriter = (*influx.Manager)(nil)

// Backend records one point per team per snapshot and one per publish.
type Backend struct {
	w PointWriter
}

// New wraps a connected or connectable point writer.
func New(w PointWriter) *Backend {
	return &Backend{w: w}
}

func (b *Backend) Init() error {
	return b.w.Connect()
}

func (b *Backend) Close() error {
	return b.w.Close()
}

// RecordSnapshot writes every record at the snapshot time.
func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	var errs []error
	for _, r := range s.Records {
		own := s.OwnTeam != "" && r.TeamID == s.OwnTeam
		p := influx.TeamPositionPoint(s.ID, own, r, s.TakenAt)
		errs = append(errs, b.w.WritePoint(context.Background(), influx.BucketTeamPositions, p))
	}
	return errors.Join(errs...)
}

func (b *Backend) RecordPublish(g *core.StoredGeolocation) error {
	return b.w.WritePoint(context.Background(), influx.BucketViewerPositions, influx.PublishedPositionPoint(*g))
}
