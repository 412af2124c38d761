package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Snapshot{},
	&TeamPosition{},
	&PublishedPosition{},
	&SyncPerformance{},
}

// Snapshot is one applied refresh: the full team position set the map was
// redrawn from.
type Snapshot struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	UUID      string         `json:"uuid" gorm:"size:36;uniqueIndex"`
	Time      time.Time      `json:"time" gorm:"index:idx_snapshot_time"`
	OwnTeam   string         `json:"ownTeam" gorm:"size:64"`
	TeamCount int            `json:"teamCount"`
	Skipped   int            `json:"skipped"`
	Positions []TeamPosition `json:"positions" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*Snapshot) TableName() string {
	return "snapshots"
}

// TeamPosition is one team's position inside a snapshot.
// Location is EPSG:3857; Latitude/Longitude keep the EPSG:4326 reading.
type TeamPosition struct {
	ID         uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	SnapshotID uint           `json:"snapshotId" gorm:"index:idx_teamposition_snapshot_id"`
	TeamID     string         `json:"teamId" gorm:"size:64;index:idx_teamposition_team_id"`
	TeamName   string         `json:"teamName" gorm:"size:127"`
	Latitude   float64        `json:"latitude"`
	Longitude  float64        `json:"longitude"`
	Location   geom.Point     `json:"location"`
	ObservedAt time.Time      `json:"observedAt"`
	Record     datatypes.JSON `json:"record"` // the record as received
}

func (*TeamPosition) TableName() string {
	return "team_positions"
}

// PublishedPosition is a position this viewer published and the server
// confirmed.
type PublishedPosition struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	ServerID  int        `json:"serverId" gorm:"index:idx_published_server_id"`
	UserID    string     `json:"userId" gorm:"size:64"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Location  geom.Point `json:"location"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (*PublishedPosition) TableName() string {
	return "published_positions"
}

// SyncPerformance is the model for periodic status samples
type SyncPerformance struct {
	Time                time.Time         `json:"time" gorm:"index:idx_time"`
	Authenticated       bool              `json:"authenticated"`
	MarkerCount         int               `json:"markerCount"`
	LastRefreshed       time.Time         `json:"lastRefreshed"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*SyncPerformance) TableName() string {
	return "sync_performances"
}

// WriteQueueLengths is the model for the history write queue lengths
type WriteQueueLengths struct {
	Snapshots uint16 `json:"snapshots"`
	Publishes uint16 `json:"publishes"`
}
