// pkg/core/geolocation.go
package core

import (
	"time"
)

// TeamID is the opaque identifier of a team. The API emits it as a number
// today; it is kept as its decimal string form.
type TeamID string

// Identity is the caller's authentication state for the current session.
// An unauthenticated identity is a normal state, not an error.
type Identity struct {
	Authenticated bool
	TeamID        TeamID // empty when absent
}

// HasTeam reports whether the identity carries a team id.
func (i Identity) HasTeam() bool {
	return i.TeamID != ""
}

// Position is a WGS84 latitude/longitude pair.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TeamPositionRecord is one team's last published position.
type TeamPositionRecord struct {
	TeamID     TeamID    `json:"teamId"`
	TeamName   string    `json:"teamName"`
	Position   Position  `json:"position"`
	ObservedAt time.Time `json:"observedAt"` // zero when the API did not report it
}

// StoredGeolocation is the record returned by the storage API after a publish.
type StoredGeolocation struct {
	ID        int       `json:"id"`
	UserID    string    `json:"userId"`
	Position  Position  `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is the result of one successful team sync cycle.
type Snapshot struct {
	ID      string               `json:"id"`
	TakenAt time.Time            `json:"takenAt"`
	OwnTeam TeamID               `json:"ownTeam,omitempty"`
	Records []TeamPositionRecord `json:"records"`
	Skipped int                  `json:"skipped"`
}
