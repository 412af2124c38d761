// Package mapview defines the map surface the marker layer is drawn on.
// Tiles and the base map belong to the surface; this module only adds,
// removes and annotates markers.
package mapview

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// Handle is an opaque reference to a marker on a surface, used only to
// remove it later.
type Handle string

// Style is the look of a circular marker.
type Style struct {
	Color       string `json:"color"`
	Size        int    `json:"size"`
	BorderColor string `json:"borderColor"`
}

// Overlay is a marker plus its popup, ready to place on a surface.
type Overlay struct {
	Position core.Position `json:"position"`
	Style    Style         `json:"style"`
	Popup    string        `json:"popup"`
}

// Surface is the map widget's marker primitives.
type Surface interface {
	AddMarker(pos core.Position, style Style) Handle
	BindPopup(h Handle, content string)
	RemoveMarker(h Handle)
}

// Flusher is implemented by surfaces that buffer changes and need to be told
// when a batch of changes is complete.
type Flusher interface {
	Flush() error
}

// Place draws o on s and returns the marker handle.
func Place(s Surface, o Overlay) Handle {
	h := s.AddMarker(o.Position, o.Style)
	if o.Popup != "" {
		s.BindPopup(h, o.Popup)
	}
	return h
}

// Layer is an in-memory surface.
type Layer struct {
	mu      sync.RWMutex
	markers map[Handle]Overlay
	order   []Handle
}

// NewLayer creates an empty Layer.
func NewLayer() *Layer {
	return &Layer{
		markers: make(map[Handle]Overlay),
	}
}

// AddMarker stores a new marker.
func (l *Layer) AddMarker(pos core.Position, style Style) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := Handle(uuid.NewString())
	l.markers[h] = Overlay{Position: pos, Style: style}
	l.order = append(l.order, h)
	return h
}

// BindPopup sets the popup of an existing marker. Unknown handles are ignored.
func (l *Layer) BindPopup(h Handle, content string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.markers[h]
	if !ok {
		return
	}
	o.Popup = content
	l.markers[h] = o
}

// RemoveMarker deletes a marker. Unknown handles are ignored.
func (l *Layer) RemoveMarker(h Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.markers[h]; !ok {
		return
	}
	delete(l.markers, h)
	for i, cur := range l.order {
		if cur == h {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Get returns the marker for h.
func (l *Layer) Get(h Handle) (Overlay, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.markers[h]
	return o, ok
}

// Len returns the number of markers on the layer.
func (l *Layer) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.markers)
}

// Overlays returns the markers in insertion order.
func (l *Layer) Overlays() []Overlay {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Overlay, 0, len(l.order))
	for _, h := range l.order {
		out = append(out, l.markers[h])
	}
	return out
}

// Handles returns all marker handles, sorted.
func (l *Layer) Handles() []Handle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Handle, 0, len(l.markers))
	for h := range l.markers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
