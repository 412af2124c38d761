// internal/api/decode.go
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// The server serializes some structs through json tags and others by Go field
// name, so one field can arrive as "created_at" or "CreatedAt". All payloads
// are normalized here: every lookup tries the snake_case key first and falls
// back to the Go field name.

// GeoEntry is one element of the /api/geo response after normalization.
// Nothing is validated yet; missing values stay empty.
type GeoEntry struct {
	TeamID     core.TeamID
	TeamName   string
	Latitude   *float64
	Longitude  *float64
	ObservedAt time.Time
}

// Record converts the entry into a TeamPositionRecord. ok is false when the
// team id or either coordinate is missing.
func (e GeoEntry) Record() (core.TeamPositionRecord, bool) {
	if e.TeamID == "" || e.Latitude == nil || e.Longitude == nil {
		return core.TeamPositionRecord{}, false
	}
	return core.TeamPositionRecord{
		TeamID:     e.TeamID,
		TeamName:   e.TeamName,
		Position:   core.Position{Latitude: *e.Latitude, Longitude: *e.Longitude},
		ObservedAt: e.ObservedAt,
	}, true
}

type object map[string]json.RawMessage

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func asObject(raw json.RawMessage) (object, bool) {
	if isNull(raw) {
		return nil, false
	}
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, false
	}
	return o, true
}

func (o object) field(canonical, alternate string) (json.RawMessage, bool) {
	for _, key := range [2]string{canonical, alternate} {
		if raw, ok := o[key]; ok && !isNull(raw) {
			return raw, true
		}
	}
	return nil, false
}

func (o object) object(canonical, alternate string) (object, bool) {
	raw, ok := o.field(canonical, alternate)
	if !ok {
		return nil, false
	}
	return asObject(raw)
}

func (o object) float(canonical, alternate string) (float64, bool) {
	raw, ok := o.field(canonical, alternate)
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

func (o object) str(canonical, alternate string) string {
	raw, ok := o.field(canonical, alternate)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// id accepts a JSON number or string. Zero is what the server emits for an
// unset struct, so it counts as absent.
func (o object) id(canonical, alternate string) string {
	raw, ok := o.field(canonical, alternate)
	if !ok {
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if n.String() == "0" {
			return ""
		}
		return n.String()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func (o object) time(canonical, alternate string) time.Time {
	s := o.str(canonical, alternate)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func decodeGeoEntries(body []byte) ([]GeoEntry, error) {
	// An empty table is serialized as null.
	if isNull(body) {
		return []GeoEntry{}, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("%w: expected an array of geolocations: %v", ErrMalformedPayload, err)
	}
	entries := make([]GeoEntry, 0, len(raws))
	for _, raw := range raws {
		entries = append(entries, decodeGeoEntry(raw))
	}
	return entries, nil
}

func decodeGeoEntry(raw json.RawMessage) GeoEntry {
	var e GeoEntry
	detail, ok := asObject(raw)
	if !ok {
		return e
	}

	if geo, ok := detail.object("geolocation", "Geolocation"); ok {
		if lat, ok := geo.float("latitude", "Latitude"); ok {
			e.Latitude = &lat
		}
		if lng, ok := geo.float("longitude", "Longitude"); ok {
			e.Longitude = &lng
		}
		e.ObservedAt = geo.time("created_at", "CreatedAt")
	}

	// The team sits under team_detail.team on the current server and
	// directly under team on older ones.
	teamParent := detail
	if td, ok := detail.object("team_detail", "TeamDetail"); ok {
		teamParent = td
	}
	team, ok := teamParent.object("team", "Team")
	if !ok {
		team, ok = detail.object("team", "Team")
	}
	if ok {
		e.TeamID = core.TeamID(team.id("id", "ID"))
		e.TeamName = team.str("name", "Name")
	}
	return e
}

func decodeTeamObject(o object) core.Team {
	return core.Team{
		ID:   core.TeamID(o.id("id", "ID")),
		Name: o.str("name", "Name"),
	}
}

func decodeUserProfileObject(o object) core.UserProfile {
	return core.UserProfile{
		ID:        o.id("id", "ID"),
		UserName:  o.str("user_name", "UserName"),
		TeamID:    core.TeamID(o.id("team_id", "TeamID")),
		AvatarURL: o.str("avatar_url", "AvatarURL"),
	}
}

func decodeProfile(body []byte) (core.Profile, error) {
	o, ok := asObject(body)
	if !ok {
		return core.Profile{}, fmt.Errorf("%w: expected a user object", ErrMalformedPayload)
	}

	var p core.Profile
	if team, ok := o.object("team", "Team"); ok {
		t := decodeTeamObject(team)
		p.Team = &t
	}
	if user, ok := o.object("user_profile", "UserProfile"); ok {
		p.User = decodeUserProfileObject(user)
	}
	if raw, ok := o.field("team_members", "TeamMembers"); ok {
		var members []json.RawMessage
		if err := json.Unmarshal(raw, &members); err != nil {
			return core.Profile{}, fmt.Errorf("%w: team_members: %v", ErrMalformedPayload, err)
		}
		for _, m := range members {
			if mo, ok := asObject(m); ok {
				p.TeamMembers = append(p.TeamMembers, decodeUserProfileObject(mo))
			}
		}
	}
	return p, nil
}

func decodeTeam(body []byte) (core.Team, error) {
	o, ok := asObject(body)
	if !ok {
		return core.Team{}, fmt.Errorf("%w: expected a team object", ErrMalformedPayload)
	}
	return decodeTeamObject(o), nil
}

func decodeUserProfile(body []byte) (core.UserProfile, error) {
	o, ok := asObject(body)
	if !ok {
		return core.UserProfile{}, fmt.Errorf("%w: expected a user profile object", ErrMalformedPayload)
	}
	return decodeUserProfileObject(o), nil
}

func decodeStoredGeolocation(body []byte) (core.StoredGeolocation, error) {
	o, ok := asObject(body)
	if !ok {
		return core.StoredGeolocation{}, fmt.Errorf("%w: expected a geolocation object", ErrMalformedPayload)
	}
	lat, ok := o.float("latitude", "Latitude")
	if !ok {
		return core.StoredGeolocation{}, fmt.Errorf("%w: stored geolocation has no latitude", ErrMalformedPayload)
	}
	lng, _ := o.float("longitude", "Longitude")

	var id int
	if raw, ok := o.field("id", "ID"); ok {
		_ = json.Unmarshal(raw, &id)
	}
	return core.StoredGeolocation{
		ID:        id,
		UserID:    o.str("user_id", "UserID"),
		Position:  core.Position{Latitude: lat, Longitude: lng},
		CreatedAt: o.time("created_at", "CreatedAt"),
	}, nil
}
