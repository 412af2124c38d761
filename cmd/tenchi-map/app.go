package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/m-tsuru/tenchi-geolocation/internal/api"
	"github.com/m-tsuru/tenchi-geolocation/internal/cache"
	"github.com/m-tsuru/tenchi-geolocation/internal/config"
	"github.com/m-tsuru/tenchi-geolocation/internal/dispatcher"
	"github.com/m-tsuru/tenchi-geolocation/internal/geosync"
	"github.com/m-tsuru/tenchi-geolocation/internal/handlers"
	"github.com/m-tsuru/tenchi-geolocation/internal/logging"
	"github.com/m-tsuru/tenchi-geolocation/internal/mapview"
	"github.com/m-tsuru/tenchi-geolocation/internal/mapview/geojson"
	wsmap "github.com/m-tsuru/tenchi-geolocation/internal/mapview/websocket"
	"github.com/m-tsuru/tenchi-geolocation/internal/monitor"
	intOtel "github.com/m-tsuru/tenchi-geolocation/internal/otel"
	"github.com/m-tsuru/tenchi-geolocation/internal/position"
	"github.com/m-tsuru/tenchi-geolocation/internal/publish"
	"github.com/m-tsuru/tenchi-geolocation/internal/session"
	"github.com/m-tsuru/tenchi-geolocation/internal/storage"
	"github.com/m-tsuru/tenchi-geolocation/internal/worker"
	"github.com/m-tsuru/tenchi-geolocation/pkg/core"
	"github.com/m-tsuru/tenchi-geolocation/pkg/streaming"
)

// app is the wired process.
type app struct {
	settings config.Settings
	stdout   io.Writer

	logFile      *os.File
	slogManager  *logging.SlogManager
	logger       *slog.Logger
	otelProvider *intOtel.Provider

	session   *session.Cache
	surface   mapview.Surface
	syncer    *geosync.Syncer
	backend   storage.Multi
	worker    *worker.Manager
	stopWrite context.CancelFunc
	writeDone chan struct{}
	monitor   *monitor.Service
	dispatch  *dispatcher.Dispatcher
	clock     clockwork.Clock
}

func newApp(s config.Settings, stdout, stderr io.Writer) (*app, error) {
	a := &app{settings: s, stdout: stdout, clock: clockwork.NewRealClock()}
	if err := a.setupLogging(); err != nil {
		return nil, err
	}
	if err := a.wire(stderr); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) setupLogging() error {
	s := a.settings
	sessionStart := time.Now()

	if err := os.MkdirAll(s.LogsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}
	logPath := logging.LogFilePath(s.LogsDir, ProgramName, sessionStart)
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}
	a.logFile = f

	host, _ := os.Hostname()
	a.otelProvider, err = intOtel.New(intOtel.Config{
		Enabled:        s.OTel.Enabled,
		ServiceName:    s.OTel.ServiceName,
		ServiceVersion: CurrentVersion,
		HostName:       host,
		BatchTimeout:   s.OTel.BatchTimeout,
		LogWriter:      f,
		Endpoint:       s.OTel.Endpoint,
		Insecure:       s.OTel.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}

	var opts []logging.Option
	if s.Graylog.Enabled {
		gelfHandler, err := logging.NewGelfHandler(s.Graylog.Address, s.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to connect to graylog: %w", err)
		}
		opts = append(opts, logging.WithHandler(gelfHandler))
	}
	// team is resolved later; the provider reads it per record
	opts = append(opts, logging.WithContext(func() []slog.Attr {
		if a.session == nil {
			return nil
		}
		id := a.session.Identity()
		if !id.HasTeam() {
			return nil
		}
		return []slog.Attr{slog.String("team", string(id.TeamID))}
	}))

	a.slogManager = logging.NewSlogManager()
	a.slogManager.Setup(f, s.LogLevel, a.otelProvider.LoggerProvider(), opts...)
	a.logger = a.slogManager.Logger()
	a.logger.Info("Starting", "program", ProgramName, "version", CurrentVersion, "build", BuildDate)
	return nil
}

func (a *app) zerologger() zerolog.Logger {
	lvl, err := zerolog.ParseLevel(a.settings.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(a.logFile).Level(lvl).With().Timestamp().Logger()
}

func (a *app) openSurface() (mapview.Surface, error) {
	m := a.settings.Map
	switch {
	case m.RelayURL != "":
		host, _ := os.Hostname()
		s := wsmap.New(wsmap.Config{
			URL:    m.RelayURL,
			Secret: m.RelaySecret,
			Hello: streaming.HelloPayload{
				Viewer: host,
				Center: core.Position{Latitude: m.CenterLatitude, Longitude: m.CenterLongitude},
				Zoom:   m.Zoom,
			},
		}, a.logger.With("component", "relay"))
		if err := s.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to map relay: %w", err)
		}
		return s, nil
	case m.GeoJSONPath != "":
		return geojson.New(m.GeoJSONPath), nil
	default:
		return mapview.NewLayer(), nil
	}
}

func (a *app) wire(stderr io.Writer) error {
	s := a.settings
	zlog := a.zerologger()

	client := api.New(s.API.ServerURL,
		api.WithSessionToken(s.API.SessionToken),
		api.WithHTTPClient(&http.Client{Timeout: s.API.Timeout}),
	)
	probe := session.NewProbe(client)
	a.session = session.NewCache(probe)

	var locator position.Locator
	if s.Viewer.Known {
		locator = position.Static{Latitude: s.Viewer.Latitude, Longitude: s.Viewer.Longitude}
	}
	source := position.NewSource(locator)
	publisher := publish.New(client, a.session, a.logger.With("component", "publish"))

	surface, err := a.openSurface()
	if err != nil {
		return err
	}
	a.surface = surface

	a.backend, err = storage.NewBackend(s, a.logger.With("component", "storage"), zlog)
	if err != nil {
		return err
	}
	if err := a.backend.Init(); err != nil {
		// partial history is better than none
		a.logger.Warn("storage init reported errors", "error", err)
	}

	a.worker = worker.NewManager(worker.Dependencies{
		Logger:        a.logger.With("component", "worker"),
		Clock:         a.clock,
		FlushInterval: s.Storage.FlushInterval,
	}, a.backend)
	writeCtx, stopWrite := context.WithCancel(context.Background())
	a.stopWrite = stopWrite
	a.writeDone = make(chan struct{})
	go func() {
		a.worker.Run(writeCtx)
		close(a.writeDone)
	}()

	a.syncer, err = geosync.New(a.session, client, surface, cache.NewMarkerSet(),
		geosync.WithClock(a.clock),
		geosync.WithLogger(a.logger.With("component", "geosync")),
		geosync.WithObserver(a.worker.EnqueueSnapshot),
	)
	if err != nil {
		return err
	}

	monitorDeps := monitor.Dependencies{
		Logger:        a.logger.With("component", "monitor"),
		Identity:      a.session,
		Sync:          a.syncer,
		WorkerManager: a.worker,
		StatusDir:     s.LogsDir,
		Clock:         a.clock,
	}
	if p := a.perfRecorder(); p != nil {
		monitorDeps.Perf = p
	}
	a.monitor = monitor.NewService(monitorDeps)

	a.dispatch, err = dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		return err
	}
	handlers.NewService(handlers.Dependencies{
		Logger:    a.logger.With("component", "handlers"),
		API:       client,
		Probe:     probe,
		Session:   a.session,
		Position:  source,
		Publisher: publisher,
		Trigger:   geosync.NewTrigger(a.syncer.Refresh),
		Status:    a.monitor,
		OnPublish: a.worker.EnqueuePublish,
		Notifier:  handlers.NewWriterNotifier(stderr, nil),
		Window:    publish.DefaultWindow,
		Clock:     a.clock,
	}).RegisterHandlers(a.dispatch)
	a.worker.RegisterHandlers(a.dispatch)

	return nil
}

// perfRecorder returns the first backend that stores status samples.
func (a *app) perfRecorder() monitor.PerfRecorder {
	for _, b := range a.backend {
		if p, ok := b.(monitor.PerfRecorder); ok {
			return p
		}
	}
	return nil
}

// close shuts everything down in reverse order of startup.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.dispatch != nil {
		if err := a.dispatch.Shutdown(ctx); err != nil {
			a.logger.Warn("queued commands cancelled", "error", err)
		}
	}
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.stopWrite != nil {
		a.stopWrite()
		<-a.writeDone
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error("storage close failed", "error", err)
		}
		if path := a.backend.GetExportedFilePath(); path != "" {
			a.logger.Info("History written", "path", path)
		}
	}
	if c, ok := a.surface.(io.Closer); ok {
		_ = c.Close()
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.logFile != nil {
		a.logger.Info("Stopped")
		_ = a.logFile.Close()
	}
}
