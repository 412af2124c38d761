package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Positions travel through the API as EPSG:4326 latitude/longitude. Points
// handed to map surfaces stay in 4326 (GeoJSON requires it); points written
// to history tables are projected to 3857 so they line up with web map tiles.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Validate checks that a position is a finite WGS84 coordinate.
func Validate(p core.Position) error {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) ||
		math.IsInf(p.Latitude, 0) || math.IsInf(p.Longitude, 0) {
		return ErrInvalidCoordinates
	}
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// PositionFromString parses a "lat,lng" string, the order map UIs display.
func PositionFromString(coords string) (core.Position, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) != 2 {
		return core.Position{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil {
		return core.Position{}, ErrInvalidCoordinates
	}
	long, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil {
		return core.Position{}, ErrInvalidCoordinates
	}
	p := core.Position{Latitude: lat, Longitude: long}
	if err := Validate(p); err != nil {
		return core.Position{}, err
	}
	return p, nil
}

// Point4326 returns the position as a lon/lat point.
func Point4326(p core.Position) (geom.Point, error) {
	if err := Validate(p); err != nil {
		return geom.NewEmptyPoint(geom.DimXY), err
	}
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: p.Longitude, Y: p.Latitude},
			Type: geom.DimXY,
		},
	)
}

// Point3857 projects the position to web mercator.
func Point3857(p core.Position) (geom.Point, error) {
	if err := Validate(p); err != nil {
		return geom.NewEmptyPoint(geom.DimXY), err
	}
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(p.Longitude, p.Latitude, 0)
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Type: geom.DimXY,
		},
	)
}

// PositionFromPoint4326 reads a lon/lat point back into a position.
func PositionFromPoint4326(pt geom.Point) (core.Position, bool) {
	c, ok := pt.Coordinates()
	if !ok {
		return core.Position{}, false
	}
	return core.Position{Latitude: c.Y, Longitude: c.X}, true
}
