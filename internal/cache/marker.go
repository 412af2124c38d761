package cache

import (
	"sort"
	"sync"

	"github.com/m-tsuru/tenchi-geolocation/internal/mapview"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// Marker is one team's overlay as drawn on the surface.
type Marker struct {
	Handle  mapview.Handle
	Overlay mapview.Overlay
}

// Entry is an overlay waiting to be drawn for a team.
type Entry struct {
	TeamID  core.TeamID
	Overlay mapview.Overlay
}

// MarkerSet maps team ids to the overlays currently on the map.
// The drawn overlays are always exactly the last set passed to Replace.
type MarkerSet struct {
	mu      sync.RWMutex
	markers map[core.TeamID]Marker
}

// NewMarkerSet creates an empty MarkerSet
func NewMarkerSet() *MarkerSet {
	return &MarkerSet{
		markers: make(map[core.TeamID]Marker),
	}
}

// Get retrieves a team's marker
func (c *MarkerSet) Get(id core.TeamID) (Marker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markers[id]
	return m, ok
}

// Len returns the number of drawn markers
func (c *MarkerSet) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.markers)
}

// Keys returns the team ids with a drawn marker, sorted
func (c *MarkerSet) Keys() []core.TeamID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]core.TeamID, 0, len(c.markers))
	for id := range c.markers {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Overlays returns a copy of the drawn overlays keyed by team id
func (c *MarkerSet) Overlays() map[core.TeamID]mapview.Overlay {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[core.TeamID]mapview.Overlay, len(c.markers))
	for id, m := range c.markers {
		out[id] = m.Overlay
	}
	return out
}

// Replace removes every drawn overlay from the surface, then draws entries
// in order. The previous set is discarded, never merged.
func (c *MarkerSet) Replace(s mapview.Surface, entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.markers {
		s.RemoveMarker(m.Handle)
	}

	next := make(map[core.TeamID]Marker, len(entries))
	for _, e := range entries {
		next[e.TeamID] = Marker{
			Handle:  mapview.Place(s, e.Overlay),
			Overlay: e.Overlay,
		}
	}
	c.markers = next
}

// Reset removes every drawn overlay from the surface
func (c *MarkerSet) Reset(s mapview.Surface) {
	c.Replace(s, nil)
}
