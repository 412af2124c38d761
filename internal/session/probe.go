// Package session resolves the caller's authentication state and team.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/m-tsuru/tenchi-geolocation/internal/api"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// ProfileFetcher is the part of the API client the probe needs.
type ProfileFetcher interface {
	Me(ctx context.Context) (core.Profile, error)
}

// Probe queries the identity endpoint. It holds no state.
type Probe struct {
	api ProfileFetcher
}

// NewProbe creates a Probe backed by the given API.
func NewProbe(fetcher ProfileFetcher) *Probe {
	return &Probe{api: fetcher}
}

// GetIdentity performs exactly one identity request.
// A 401 or 403 yields an unauthenticated identity and a nil error; any other
// failure is returned so callers can tell "no answer" from "not signed in".
func (p *Probe) GetIdentity(ctx context.Context) (core.Identity, error) {
	profile, err := p.api.Me(ctx)
	if err != nil {
		if api.IsUnauthenticated(err) {
			return core.Identity{Authenticated: false}, nil
		}
		return core.Identity{}, fmt.Errorf("identity request failed: %w", err)
	}

	id := core.Identity{Authenticated: true}
	if profile.Team != nil {
		id.TeamID = profile.Team.ID
	}
	return id, nil
}

// Profile returns the full identity payload. Unlike GetIdentity it treats an
// unauthenticated response as an error.
func (p *Probe) Profile(ctx context.Context) (core.Profile, error) {
	return p.api.Me(ctx)
}

// Cache keeps the most recent identity for gating UI actions between probes.
type Cache struct {
	probe *Probe

	mu       sync.RWMutex
	identity core.Identity
	known    bool
}

// NewCache creates an empty identity cache.
func NewCache(probe *Probe) *Cache {
	return &Cache{probe: probe}
}

// Refresh probes the identity endpoint and stores the result. On error the
// previous value is kept.
func (c *Cache) Refresh(ctx context.Context) (core.Identity, error) {
	id, err := c.probe.GetIdentity(ctx)
	if err != nil {
		return c.Identity(), err
	}
	c.Set(id)
	return id, nil
}

// Set overwrites the cached identity.
func (c *Cache) Set(id core.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = id
	c.known = true
}

// Identity returns the cached identity. It is unauthenticated until the
// first successful probe.
func (c *Cache) Identity() core.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// Known reports whether a probe has ever succeeded.
func (c *Cache) Known() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.known
}

// GetIdentity refreshes the cache. It lets the cache stand in for the probe
// wherever an identity resolver is needed, keeping the cached value current.
func (c *Cache) GetIdentity(ctx context.Context) (core.Identity, error) {
	return c.Refresh(ctx)
}
