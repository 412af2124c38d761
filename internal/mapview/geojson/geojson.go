// Package geojson is a map surface that writes its markers to a GeoJSON
// FeatureCollection file on every flush.
package geojson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/m-tsuru/tenchi-geolocation/internal/geo"
	"github.com/m-tsuru/tenchi-geolocation/internal/mapview"
)

// Surface keeps markers in memory and writes them to Path on Flush.
type Surface struct {
	*mapview.Layer
	Path string
}

// New creates a surface writing to path.
func New(path string) *Surface {
	return &Surface{
		Layer: mapview.NewLayer(),
		Path:  path,
	}
}

// FeatureCollection builds the collection for the current markers, in the
// order they were added. Coordinates are EPSG:4326 (lng, lat).
func (s *Surface) FeatureCollection() (geom.GeoJSONFeatureCollection, error) {
	overlays := s.Layer.Overlays()
	fc := make(geom.GeoJSONFeatureCollection, 0, len(overlays))
	for _, o := range overlays {
		pt, err := geo.Point4326(o.Position)
		if err != nil {
			return nil, fmt.Errorf("marker at %v: %w", o.Position, err)
		}
		fc = append(fc, geom.GeoJSONFeature{
			Geometry: pt.AsGeometry(),
			Properties: map[string]interface{}{
				"color":       o.Style.Color,
				"size":        o.Style.Size,
				"borderColor": o.Style.BorderColor,
				"popup":       o.Popup,
			},
		})
	}
	return fc, nil
}

// Flush writes the collection, replacing the file atomically.
func (s *Surface) Flush() error {
	fc, err := s.FeatureCollection()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode feature collection: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".markers-*.geojson")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write feature collection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.Path, err)
	}
	return nil
}
