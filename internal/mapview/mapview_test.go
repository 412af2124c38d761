package mapview

import (
	"testing"

	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayer_PlaceAndRemove(t *testing.T) {
	l := NewLayer()

	h := Place(l, Overlay{
		Position: core.Position{Latitude: 1, Longitude: 2},
		Style:    Style{Color: "#fff"},
		Popup:    "<b>A</b>",
	})

	o, ok := l.Get(h)
	require.True(t, ok)
	assert.Equal(t, "<b>A</b>", o.Popup)
	assert.Equal(t, "#fff", o.Style.Color)
	assert.Equal(t, 1, l.Len())

	l.RemoveMarker(h)
	_, ok = l.Get(h)
	assert.False(t, ok)
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Overlays())
}

func TestLayer_UnknownHandleIgnored(t *testing.T) {
	l := NewLayer()
	l.BindPopup("missing", "x")
	l.RemoveMarker("missing")
	assert.Equal(t, 0, l.Len())
}

func TestLayer_OverlaysKeepInsertionOrder(t *testing.T) {
	l := NewLayer()
	first := l.AddMarker(core.Position{Latitude: 1}, Style{})
	l.AddMarker(core.Position{Latitude: 2}, Style{})
	l.AddMarker(core.Position{Latitude: 3}, Style{})
	l.RemoveMarker(first)

	got := l.Overlays()
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Position.Latitude)
	assert.Equal(t, 3.0, got[1].Position.Latitude)
	assert.Len(t, l.Handles(), 2)
}

func TestPlace_EmptyPopupNotBound(t *testing.T) {
	l := NewLayer()
	h := Place(l, Overlay{})
	o, _ := l.Get(h)
	assert.Equal(t, "", o.Popup)
}
