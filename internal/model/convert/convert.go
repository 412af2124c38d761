// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/m-tsuru/tenchi-geolocation/internal/geo"
	"github.com/m-tsuru/tenchi-geolocation/internal/model"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// recordToJSON keeps the record as received for later inspection.
func recordToJSON(r core.TeamPositionRecord) datatypes.JSON {
	data, err := json.Marshal(r)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

// CoreToSnapshot converts a core.Snapshot to a GORM model.Snapshot with its
// team positions. Locations are projected to EPSG:3857.
func CoreToSnapshot(s core.Snapshot) (model.Snapshot, error) {
	out := model.Snapshot{
		UUID:      s.ID,
		Time:      s.TakenAt,
		OwnTeam:   string(s.OwnTeam),
		TeamCount: len(s.Records),
		Skipped:   s.Skipped,
		Positions: make([]model.TeamPosition, 0, len(s.Records)),
	}
	for _, r := range s.Records {
		loc, err := geo.Point3857(r.Position)
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("team %s: %w", r.TeamID, err)
		}
		out.Positions = append(out.Positions, model.TeamPosition{
			TeamID:     string(r.TeamID),
			TeamName:   r.TeamName,
			Latitude:   r.Position.Latitude,
			Longitude:  r.Position.Longitude,
			Location:   loc,
			ObservedAt: r.ObservedAt,
			Record:     recordToJSON(r),
		})
	}
	return out, nil
}

// SnapshotToCore converts a stored snapshot back. Positions come from the
// EPSG:4326 columns.
func SnapshotToCore(s model.Snapshot) core.Snapshot {
	out := core.Snapshot{
		ID:      s.UUID,
		TakenAt: s.Time,
		OwnTeam: core.TeamID(s.OwnTeam),
		Skipped: s.Skipped,
		Records: make([]core.TeamPositionRecord, 0, len(s.Positions)),
	}
	for _, p := range s.Positions {
		out.Records = append(out.Records, core.TeamPositionRecord{
			TeamID:     core.TeamID(p.TeamID),
			TeamName:   p.TeamName,
			Position:   core.Position{Latitude: p.Latitude, Longitude: p.Longitude},
			ObservedAt: p.ObservedAt,
		})
	}
	return out
}

// CoreToPublished converts a confirmed publish to a GORM model.
func CoreToPublished(g core.StoredGeolocation) (model.PublishedPosition, error) {
	loc, err := geo.Point3857(g.Position)
	if err != nil {
		return model.PublishedPosition{}, err
	}
	return model.PublishedPosition{
		ServerID:  g.ID,
		UserID:    g.UserID,
		Latitude:  g.Position.Latitude,
		Longitude: g.Position.Longitude,
		Location:  loc,
		CreatedAt: g.CreatedAt,
	}, nil
}

// PublishedToCore converts a stored publish back.
func PublishedToCore(p model.PublishedPosition) core.StoredGeolocation {
	return core.StoredGeolocation{
		ID:        p.ServerID,
		UserID:    p.UserID,
		Position:  core.Position{Latitude: p.Latitude, Longitude: p.Longitude},
		CreatedAt: p.CreatedAt,
	}
}
