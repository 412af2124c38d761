// Package position obtains the viewer's current coordinates.
package position

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/m-tsuru/tenchi-geolocation/internal/geo"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// Errors follow the platform geolocation taxonomy. None are retried.
var (
	ErrUnavailable      = errors.New("location capability unavailable")
	ErrPermissionDenied = errors.New("location permission denied")
	ErrTimeout          = errors.New("location request timed out")
)

// Locator is a platform location capability.
type Locator interface {
	Locate(ctx context.Context) (core.Position, error)
}

// Func adapts a function to a Locator.
type Func func(ctx context.Context) (core.Position, error)

// Locate calls f.
func (f Func) Locate(ctx context.Context) (core.Position, error) {
	return f(ctx)
}

// Static is a fixed location, e.g. from configuration.
type Static core.Position

// Locate returns the fixed position.
func (s Static) Locate(ctx context.Context) (core.Position, error) {
	if err := ctx.Err(); err != nil {
		return core.Position{}, err
	}
	return core.Position(s), nil
}

// Source performs one-shot reads and remembers the last successful one as
// the viewer location.
type Source struct {
	locator Locator

	mu      sync.RWMutex
	current core.Position
	has     bool
}

// NewSource creates a Source. A nil locator means the platform has no
// location capability.
func NewSource(locator Locator) *Source {
	return &Source{locator: locator}
}

// GetCurrentPosition reads the device location once. On success the reading
// replaces the viewer location outright.
func (s *Source) GetCurrentPosition(ctx context.Context) (core.Position, error) {
	if s.locator == nil {
		return core.Position{}, ErrUnavailable
	}

	pos, err := s.locator.Locate(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
			return core.Position{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return core.Position{}, err
	}
	if err := geo.Validate(pos); err != nil {
		return core.Position{}, fmt.Errorf("locator returned %v: %w", pos, err)
	}

	s.mu.Lock()
	s.current = pos
	s.has = true
	s.mu.Unlock()
	return pos, nil
}

// Current returns the last successful reading.
func (s *Source) Current() (core.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.has
}

// Set replaces the viewer location with a manually entered one.
func (s *Source) Set(pos core.Position) error {
	if err := geo.Validate(pos); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = pos
	s.has = true
	s.mu.Unlock()
	return nil
}
