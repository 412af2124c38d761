// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// SessionCookie is the cookie the API server reads the session JWT from.
const SessionCookie = "jwt"

// ErrMalformedPayload is returned when a 2xx response body cannot be decoded.
var ErrMalformedPayload = errors.New("malformed payload")

// StatusError is returned for any non-2xx response. Body holds the plain-text
// reason the server sent, if any.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("api returned status %d: %s", e.StatusCode, e.Body)
}

// IsUnauthenticated reports whether err is a 401 or 403 response.
func IsUnauthenticated(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden
}

// Client handles communication with the tenchi-geolocation API server.
type Client struct {
	baseURL      string
	sessionToken string
	httpClient   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSessionToken attaches the session JWT to every request.
func WithSessionToken(token string) Option {
	return func(c *Client) {
		c.sessionToken = token
	}
}

// New creates a new API client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoginURL is where an unauthenticated user has to go to sign in.
func (c *Client) LoginURL() string {
	return c.baseURL + "/api/login"
}

// Me fetches the caller's profile from /api/user/me.
func (c *Client) Me(ctx context.Context) (core.Profile, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/user/me", nil)
	if err != nil {
		return core.Profile{}, err
	}
	return decodeProfile(body)
}

// LatestGeolocations fetches every team's last published position from /api/geo.
// Entries come back normalized but unvalidated; fields the server left out
// stay empty.
func (c *Client) LatestGeolocations(ctx context.Context) ([]GeoEntry, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/geo", nil)
	if err != nil {
		return nil, err
	}
	return decodeGeoEntries(body)
}

// PostGeolocation stores the caller's position via POST /api/geo.
func (c *Client) PostGeolocation(ctx context.Context, pos core.Position) (core.StoredGeolocation, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/geo", pos)
	if err != nil {
		return core.StoredGeolocation{}, err
	}
	return decodeStoredGeolocation(body)
}

// RenameTeam changes a team's display name.
func (c *Client) RenameTeam(ctx context.Context, id core.TeamID, name string) (core.Team, error) {
	path := "/api/team/" + url.PathEscape(string(id))
	body, err := c.do(ctx, http.MethodPost, path, nameRequest{Name: name})
	if err != nil {
		return core.Team{}, err
	}
	return decodeTeam(body)
}

// RenameUser changes the caller's user name.
func (c *Client) RenameUser(ctx context.Context, name string) (core.UserProfile, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/user/me/name", nameRequest{Name: name})
	if err != nil {
		return core.UserProfile{}, err
	}
	return decodeUserProfile(body)
}

type nameRequest struct {
	Name string `json:"name"`
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: c.sessionToken})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s request failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}
