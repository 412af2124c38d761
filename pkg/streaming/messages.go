// Package streaming defines the live map relay protocol.
package streaming

import (
	"encoding/json"

	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeHello        = "hello"
	TypeAddMarker    = "add_marker"
	TypeBindPopup    = "bind_popup"
	TypeRemoveMarker = "remove_marker"
	TypeFlush        = "flush"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the relay's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// HelloPayload opens a stream. It is replayed after every reconnect, followed
// by the markers currently on the layer.
type HelloPayload struct {
	Viewer string        `json:"viewer"`
	Center core.Position `json:"center"`
	Zoom   int           `json:"zoom"`
}

// MarkerStyle mirrors the circle marker look.
type MarkerStyle struct {
	Color       string `json:"color"`
	Size        int    `json:"size"`
	BorderColor string `json:"borderColor"`
}

// AddMarkerPayload draws a marker under the given handle.
type AddMarkerPayload struct {
	Handle   string        `json:"handle"`
	Position core.Position `json:"position"`
	Style    MarkerStyle   `json:"style"`
}

// BindPopupPayload attaches popup HTML to a marker.
type BindPopupPayload struct {
	Handle string `json:"handle"`
	Popup  string `json:"popup"`
}

// RemoveMarkerPayload deletes a marker.
type RemoveMarkerPayload struct {
	Handle string `json:"handle"`
}

// FlushPayload marks the end of a redraw batch.
type FlushPayload struct {
	Markers int `json:"markers"`
}
