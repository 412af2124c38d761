// Package publish submits the viewer's position to the storage API.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/m-tsuru/tenchi-geolocation/internal/api"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// WindowClosedMarker is the text the server puts in a 403 body when the
// request falls outside the allowed publish window. The server offers no
// error code for this, so the match is on the message.
const WindowClosedMarker = "Request not allowed at this time"

var (
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrNoPosition           = errors.New("current position is not known")
	ErrOutsideAllowedWindow = errors.New("publishing is not allowed at this time")
	ErrUnconfirmed          = errors.New("server did not confirm the stored position")
	ErrNetwork              = errors.New("network failure")
)

// RejectedError is any other non-success response.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server rejected the position (status %d)", e.Status)
	}
	return fmt.Sprintf("server rejected the position: %s", e.Message)
}

// GeoPoster is the part of the API client the publisher needs.
type GeoPoster interface {
	PostGeolocation(ctx context.Context, pos core.Position) (core.StoredGeolocation, error)
}

// IdentitySource provides the cached session identity.
type IdentitySource interface {
	Identity() core.Identity
}

// Publisher submits positions, one attempt per call.
type Publisher struct {
	api      GeoPoster
	identity IdentitySource
	logger   *slog.Logger
}

// New creates a Publisher.
func New(poster GeoPoster, identity IdentitySource, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		api:      poster,
		identity: identity,
		logger:   logger,
	}
}

// Publish stores pos as the caller's current position. Authentication and
// the presence of a position are checked before any request is made.
func (p *Publisher) Publish(ctx context.Context, pos *core.Position) (core.StoredGeolocation, error) {
	if !p.identity.Identity().Authenticated {
		return core.StoredGeolocation{}, ErrNotAuthenticated
	}
	if pos == nil {
		return core.StoredGeolocation{}, ErrNoPosition
	}

	stored, err := p.api.PostGeolocation(ctx, *pos)
	if err != nil {
		err = classify(err)
		p.logger.WarnContext(ctx, "Publish failed", "latitude", pos.Latitude, "longitude", pos.Longitude, "error", err)
		return core.StoredGeolocation{}, err
	}

	p.logger.InfoContext(ctx, "Position published", "id", stored.ID, "latitude", stored.Position.Latitude, "longitude", stored.Position.Longitude)
	return stored, nil
}

func classify(err error) error {
	var se *api.StatusError
	switch {
	case errors.As(err, &se):
		switch {
		case se.StatusCode == http.StatusUnauthorized:
			return ErrNotAuthenticated
		case se.StatusCode == http.StatusForbidden && strings.Contains(se.Body, WindowClosedMarker):
			return ErrOutsideAllowedWindow
		default:
			return &RejectedError{Status: se.StatusCode, Message: se.Body}
		}
	case errors.Is(err, api.ErrMalformedPayload):
		return fmt.Errorf("%w: %w", ErrUnconfirmed, err)
	default:
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
}
