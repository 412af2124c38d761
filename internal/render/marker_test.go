package render

import (
	"testing"
	"time"

	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestMarker_SelfAndOtherColors(t *testing.T) {
	r := core.TeamPositionRecord{TeamID: "1", TeamName: "Alpha", Position: core.Position{Latitude: 35, Longitude: 139}}

	assert.Equal(t, SelfColor, Marker(r, true).Style.Color)
	assert.Equal(t, OtherColor, Marker(r, false).Style.Color)
	assert.Equal(t, MarkerSize, Marker(r, false).Style.Size)
}

func TestMarker_IsPure(t *testing.T) {
	r := core.TeamPositionRecord{TeamID: "2", TeamName: "Beta", Position: core.Position{Latitude: 35.1, Longitude: 139.1}}
	assert.Equal(t, Marker(r, false), Marker(r, false))
}

func TestPopup_FixedPrecision(t *testing.T) {
	r := core.TeamPositionRecord{TeamName: "Alpha", Position: core.Position{Latitude: 35, Longitude: 139.1234567}}
	assert.Equal(t, "<b>Alpha</b><br>(35.00000, 139.12346)", Popup(r))
}

func TestPopup_TimestampWhenPresent(t *testing.T) {
	r := core.TeamPositionRecord{
		TeamName:   "Alpha",
		Position:   core.Position{Latitude: 1, Longitude: 2},
		ObservedAt: time.Date(2025, 6, 1, 9, 5, 7, 0, time.UTC),
	}
	assert.Equal(t, "<b>Alpha</b><br>(1.00000, 2.00000)<br>Updated: 2025/06/01 09:05:07", Popup(r))
}

func TestPopup_PlaceholderName(t *testing.T) {
	r := core.TeamPositionRecord{Position: core.Position{Latitude: 1, Longitude: 2}}
	assert.Equal(t, "<b>Team</b><br>(1.00000, 2.00000)", Popup(r))
}

func TestPopup_EscapesName(t *testing.T) {
	r := core.TeamPositionRecord{TeamName: "<script>x</script>"}
	assert.Contains(t, Popup(r), "&lt;script&gt;x&lt;/script&gt;")
}

func TestLastUpdated(t *testing.T) {
	assert.Equal(t, "Map not updated yet", LastUpdated(time.Time{}))
	assert.Equal(t, "Map last updated: 2025/01/02 03:04:05",
		LastUpdated(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)))
}
