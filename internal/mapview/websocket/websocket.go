// Package websocket streams marker changes to a live map relay.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/m-tsuru/tenchi-geolocation/internal/mapview"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
	"github.com/m-tsuru/tenchi-geolocation/pkg/streaming"
)

// Config holds the relay connection settings.
type Config struct {
	URL    string
	Secret string
	Hello  streaming.HelloPayload
}

// Surface is a mapview.Surface whose changes are mirrored to the relay.
// The local layer is authoritative; the relay is rebuilt from it after a
// reconnect.
type Surface struct {
	*mapview.Layer

	conn   *connection
	cfg    Config
	logger *slog.Logger
}

// New creates a relay surface. Call Connect before use.
func New(cfg Config, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Surface{
		Layer:  mapview.NewLayer(),
		cfg:    cfg,
		logger: logger,
	}
	s.conn = newConnection(logger, s.replay)
	return s
}

// Connect dials the relay and waits for the hello to be acknowledged.
func (s *Surface) Connect() error {
	if err := s.conn.dial(s.cfg.URL, s.cfg.Secret); err != nil {
		return err
	}
	data, err := marshalEnvelope(streaming.TypeHello, s.cfg.Hello)
	if err != nil {
		return err
	}
	return s.conn.sendAndWait(data, streaming.TypeHello, ackTimeout)
}

// Close disconnects from the relay.
func (s *Surface) Close() error {
	return s.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload and pushes it to the write loop.
// Marshal failures are logged; Surface methods have no error return.
func (s *Surface) sendEnvelope(msgType string, payload any) {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		s.logger.Error("Failed to encode relay message", "type", msgType, "error", err)
		return
	}
	s.conn.send(data)
}

func addMarkerPayload(h mapview.Handle, o mapview.Overlay) streaming.AddMarkerPayload {
	return streaming.AddMarkerPayload{
		Handle:   string(h),
		Position: o.Position,
		Style: streaming.MarkerStyle{
			Color:       o.Style.Color,
			Size:        o.Style.Size,
			BorderColor: o.Style.BorderColor,
		},
	}
}

// AddMarker draws on the local layer and forwards the marker.
func (s *Surface) AddMarker(pos core.Position, style mapview.Style) mapview.Handle {
	h := s.Layer.AddMarker(pos, style)
	s.sendEnvelope(streaming.TypeAddMarker, addMarkerPayload(h, mapview.Overlay{Position: pos, Style: style}))
	return h
}

// BindPopup sets the popup locally and forwards it.
func (s *Surface) BindPopup(h mapview.Handle, content string) {
	if _, ok := s.Layer.Get(h); !ok {
		return
	}
	s.Layer.BindPopup(h, content)
	s.sendEnvelope(streaming.TypeBindPopup, streaming.BindPopupPayload{Handle: string(h), Popup: content})
}

// RemoveMarker removes the marker locally and forwards the removal.
func (s *Surface) RemoveMarker(h mapview.Handle) {
	if _, ok := s.Layer.Get(h); !ok {
		return
	}
	s.Layer.RemoveMarker(h)
	s.sendEnvelope(streaming.TypeRemoveMarker, streaming.RemoveMarkerPayload{Handle: string(h)})
}

// Flush tells the relay a redraw batch is complete.
func (s *Surface) Flush() error {
	data, err := marshalEnvelope(streaming.TypeFlush, streaming.FlushPayload{Markers: s.Layer.Len()})
	if err != nil {
		return err
	}
	s.conn.send(data)
	return nil
}

// replay rebuilds the relay's view: hello, then every marker and popup on the
// local layer.
func (s *Surface) replay() [][]byte {
	var out [][]byte
	add := func(msgType string, payload any) {
		data, err := marshalEnvelope(msgType, payload)
		if err != nil {
			s.logger.Error("Failed to encode replay message", "type", msgType, "error", err)
			return
		}
		out = append(out, data)
	}

	add(streaming.TypeHello, s.cfg.Hello)
	for _, h := range s.Layer.Handles() {
		o, ok := s.Layer.Get(h)
		if !ok {
			continue
		}
		add(streaming.TypeAddMarker, addMarkerPayload(h, o))
		if o.Popup != "" {
			add(streaming.TypeBindPopup, streaming.BindPopupPayload{Handle: string(h), Popup: o.Popup})
		}
	}
	return out
}
