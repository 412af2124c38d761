// Package render turns team positions into map overlays.
package render

import (
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/m-tsuru/tenchi-geolocation/internal/mapview"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

const (
	SelfColor       = "#3498db"
	OtherColor      = "#27ae60"
	BorderColor     = "#fff"
	MarkerSize      = 22
	PlaceholderName = "Team"

	// TimestampLayout is used for every time shown to the user.
	TimestampLayout = "2006/01/02 15:04:05"
)

// Marker builds the overlay for one team. Own team gets SelfColor, every
// other team shares OtherColor. The result depends only on the arguments.
func Marker(r core.TeamPositionRecord, isOwnTeam bool) mapview.Overlay {
	color := OtherColor
	if isOwnTeam {
		color = SelfColor
	}
	return mapview.Overlay{
		Position: r.Position,
		Style: mapview.Style{
			Color:       color,
			Size:        MarkerSize,
			BorderColor: BorderColor,
		},
		Popup: Popup(r),
	}
}

// Popup renders the popup HTML: team name, coordinates, and the observation
// time when known.
func Popup(r core.TeamPositionRecord) string {
	name := r.TeamName
	if name == "" {
		name = PlaceholderName
	}

	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(name))
	b.WriteString("</b><br>(")
	b.WriteString(Coordinate(r.Position.Latitude))
	b.WriteString(", ")
	b.WriteString(Coordinate(r.Position.Longitude))
	b.WriteString(")")
	if !r.ObservedAt.IsZero() {
		b.WriteString("<br>Updated: ")
		b.WriteString(r.ObservedAt.Format(TimestampLayout))
	}
	return b.String()
}

// Coordinate formats a latitude or longitude to 5 decimal places.
func Coordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', 5, 64)
}

// LastUpdated is the map's "last refreshed" caption.
func LastUpdated(t time.Time) string {
	if t.IsZero() {
		return "Map not updated yet"
	}
	return "Map last updated: " + t.Format(TimestampLayout)
}
