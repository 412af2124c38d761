package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/m-tsuru/tenchi-geolocation/internal/api"
	"github.com/m-tsuru/tenchi-geolocation/internal/dispatcher"
	"github.com/m-tsuru/tenchi-geolocation/internal/geo"
	"github.com/m-tsuru/tenchi-geolocation/internal/geosync"
	"github.com/m-tsuru/tenchi-geolocation/internal/model"
	"github.com/m-tsuru/tenchi-geolocation/internal/position"
	"github.com/m-tsuru/tenchi-geolocation/internal/publish"
	"github.com/m-tsuru/tenchi-geolocation/internal/render"
	"github.com/m-tsuru/tenchi-geolocation/internal/session"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
)

// AccountAPI is the part of the API client used for account commands.
type AccountAPI interface {
	RenameTeam(ctx context.Context, id core.TeamID, name string) (core.Team, error)
	RenameUser(ctx context.Context, name string) (core.UserProfile, error)
	LoginURL() string
}

// StatusReporter renders the status report.
type StatusReporter interface {
	GetProgramStatus(writeQueues bool, lastWrite bool) ([]string, model.SyncPerformance)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	API       AccountAPI
	Probe     *session.Probe
	Session   *session.Cache
	Position  *position.Source
	Publisher *publish.Publisher
	Trigger   *geosync.Trigger
	Status    StatusReporter // optional
	OnPublish func(core.StoredGeolocation)
	Notifier  Notifier
	Window    publish.Window
	Clock     clockwork.Clock
}

// Service turns commands into calls on the core modules and reports
// user-visible failures through the notifier.
type Service struct {
	deps Dependencies
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Window == (publish.Window{}) {
		deps.Window = publish.DefaultWindow
	}
	return &Service{deps: deps}
}

// RegisterHandlers registers every user command with the dispatcher.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	// one refresh may wait behind the running one; more are dropped
	d.Register("refresh", s.handleRefresh, dispatcher.Buffered(1), dispatcher.Logged())

	d.Register("publish", s.handlePublish, dispatcher.Logged())
	d.Register("locate", s.handleLocate, dispatcher.Logged())
	d.Register("whoami", s.handleWhoami, dispatcher.Logged())
	d.Register("status", s.handleStatus)
	d.Register("rename-team", s.handleRenameTeam, dispatcher.Logged())
	d.Register("rename-user", s.handleRenameUser, dispatcher.Logged())
	d.Register("login-url", s.handleLoginURL)
}

func (s *Service) notify(ctx context.Context, level Level, title, message string) {
	if s.deps.Notifier == nil {
		return
	}
	if err := s.deps.Notifier.Notify(ctx, Notification{Level: level, Title: title, Message: message}); err != nil {
		s.deps.Logger.WarnContext(ctx, "notification not delivered", "title", title, "error", err)
	}
}

func (s *Service) signInMessage() string {
	return "Sign in at " + s.deps.API.LoginURL()
}

// Refresh runs one team sync unless one is already running.
func (s *Service) Refresh(ctx context.Context) (string, error) {
	ran, err := s.deps.Trigger.Fire(ctx)
	if !ran {
		return "refresh already running", nil
	}
	if err != nil {
		s.notify(ctx, LevelError, "Failed to load team locations", err.Error())
		return "", err
	}
	return "team locations refreshed", nil
}

func (s *Service) handleRefresh(ctx context.Context, _ dispatcher.Event) (any, error) {
	return s.Refresh(ctx)
}

// Publish submits the viewer location, locating once if none is known yet.
func (s *Service) Publish(ctx context.Context) (core.StoredGeolocation, error) {
	if !s.deps.Session.Known() {
		if _, err := s.deps.Session.Refresh(ctx); err != nil {
			s.deps.Logger.DebugContext(ctx, "identity unknown before publish", "error", err)
		}
	}

	var pos *core.Position
	if p, ok := s.deps.Position.Current(); ok {
		pos = &p
	} else if p, err := s.deps.Position.GetCurrentPosition(ctx); err == nil {
		pos = &p
	} else {
		s.deps.Logger.DebugContext(ctx, "no position for publish", "error", err)
	}

	stored, err := s.deps.Publisher.Publish(ctx, pos)
	if err != nil {
		title, message := s.describePublishError(err)
		s.notify(ctx, LevelError, title, message)
		return core.StoredGeolocation{}, err
	}

	if s.deps.OnPublish != nil {
		s.deps.OnPublish(stored)
	}
	s.notify(ctx, LevelInfo, "Position published",
		fmt.Sprintf("(%s, %s)", render.Coordinate(stored.Position.Latitude), render.Coordinate(stored.Position.Longitude)))

	// the own marker moved
	if _, err := s.Refresh(ctx); err != nil {
		s.deps.Logger.WarnContext(ctx, "refresh after publish failed", "error", err)
	}
	return stored, nil
}

func (s *Service) describePublishError(err error) (string, string) {
	var rejected *publish.RejectedError
	switch {
	case errors.Is(err, publish.ErrNotAuthenticated):
		return "You are not signed in", s.signInMessage()
	case errors.Is(err, publish.ErrNoPosition):
		return "Current position is not known", "Run locate first or configure a viewer position"
	case errors.Is(err, publish.ErrOutsideAllowedWindow):
		next := s.deps.Window.Next(s.deps.Clock.Now())
		return "Publishing is not allowed at this time",
			"Positions can be shared around every :00 and :30. Next window opens at " + next.Format("15:04")
	case errors.As(err, &rejected):
		return "Server rejected the position", rejected.Message
	case errors.Is(err, publish.ErrNetwork):
		return "Network error while publishing", err.Error()
	default:
		return "Publish failed", err.Error()
	}
}

func (s *Service) handlePublish(ctx context.Context, _ dispatcher.Event) (any, error) {
	stored, err := s.Publish(ctx)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("published #%d at (%s, %s)", stored.ID,
		render.Coordinate(stored.Position.Latitude), render.Coordinate(stored.Position.Longitude)), nil
}

// handleLocate reads the device position, or takes "lat,lng" as a manual
// position.
func (s *Service) handleLocate(ctx context.Context, e dispatcher.Event) (any, error) {
	var (
		pos core.Position
		err error
	)
	if len(e.Args) > 0 {
		pos, err = geo.PositionFromString(strings.Join(e.Args, ""))
		if err == nil {
			err = s.deps.Position.Set(pos)
		}
	} else {
		pos, err = s.deps.Position.GetCurrentPosition(ctx)
	}
	if err != nil {
		s.notify(ctx, LevelError, "Could not get current position", err.Error())
		return nil, err
	}
	return fmt.Sprintf("current position (%s, %s)", render.Coordinate(pos.Latitude), render.Coordinate(pos.Longitude)), nil
}

func (s *Service) handleWhoami(ctx context.Context, _ dispatcher.Event) (any, error) {
	profile, err := s.deps.Probe.Profile(ctx)
	if err != nil {
		if api.IsUnauthenticated(err) {
			s.deps.Session.Set(core.Identity{})
			s.notify(ctx, LevelWarn, "You are not signed in", s.signInMessage())
			return "not signed in", nil
		}
		s.notify(ctx, LevelError, "Failed to load profile", err.Error())
		return nil, err
	}

	id := core.Identity{Authenticated: true}
	if profile.Team != nil {
		id.TeamID = profile.Team.ID
	}
	s.deps.Session.Set(id)

	return FormatProfile(profile), nil
}

// FormatProfile renders a profile for the terminal.
func FormatProfile(p core.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User: %s (%s)\n", p.User.UserName, p.User.ID)
	if p.Team == nil {
		b.WriteString("Team: none\n")
		return b.String()
	}
	name := p.Team.Name
	if name == "" {
		name = render.PlaceholderName
	}
	fmt.Fprintf(&b, "Team: %s (%s)\n", name, p.Team.ID)
	for _, m := range p.TeamMembers {
		fmt.Fprintf(&b, "  - %s (%s)\n", m.UserName, m.ID)
	}
	return b.String()
}

func (s *Service) handleStatus(_ context.Context, _ dispatcher.Event) (any, error) {
	if s.deps.Status == nil {
		return "status unavailable", nil
	}
	lines, _ := s.deps.Status.GetProgramStatus(true, true)
	return strings.Join(lines, "\n"), nil
}

func (s *Service) handleRenameTeam(ctx context.Context, e dispatcher.Event) (any, error) {
	name := strings.TrimSpace(strings.Join(e.Args, " "))
	if name == "" {
		return nil, errors.New("usage: rename-team <name>")
	}

	id, err := s.deps.Session.Refresh(ctx)
	if err != nil {
		s.notify(ctx, LevelError, "Failed to load profile", err.Error())
		return nil, err
	}
	if !id.Authenticated {
		s.notify(ctx, LevelWarn, "You are not signed in", s.signInMessage())
		return nil, publish.ErrNotAuthenticated
	}
	if !id.HasTeam() {
		s.notify(ctx, LevelWarn, "You are not in a team", "")
		return nil, errors.New("no team to rename")
	}

	team, err := s.deps.API.RenameTeam(ctx, id.TeamID, name)
	if err != nil {
		s.notify(ctx, LevelError, "Failed to rename team", err.Error())
		return nil, err
	}

	// popups carry the team name
	if _, err := s.Refresh(ctx); err != nil {
		s.deps.Logger.WarnContext(ctx, "refresh after rename failed", "error", err)
	}
	return fmt.Sprintf("team %s renamed to %s", team.ID, team.Name), nil
}

func (s *Service) handleRenameUser(ctx context.Context, e dispatcher.Event) (any, error) {
	name := strings.TrimSpace(strings.Join(e.Args, " "))
	if name == "" {
		return nil, errors.New("usage: rename-user <name>")
	}

	user, err := s.deps.API.RenameUser(ctx, name)
	if err != nil {
		if api.IsUnauthenticated(err) {
			s.notify(ctx, LevelWarn, "You are not signed in", s.signInMessage())
		} else {
			s.notify(ctx, LevelError, "Failed to rename user", err.Error())
		}
		return nil, err
	}
	return fmt.Sprintf("user renamed to %s", user.UserName), nil
}

func (s *Service) handleLoginURL(_ context.Context, _ dispatcher.Event) (any, error) {
	return s.deps.API.LoginURL(), nil
}
