// Package server mirrors a running dashboard to browsers over HTTP.
//
// It serves the current marker GeoJSON, layer specs and dashboard state,
// accepts filter, window and style changes, and pushes surface data and
// status changes to SSE and WebSocket clients through the event broker.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/safemelbourne/livemap"
	"github.com/safemelbourne/livemap/internal/server/cache"
	"github.com/safemelbourne/livemap/internal/server/events"
	"github.com/safemelbourne/livemap/internal/server/events/adapters"
	"github.com/safemelbourne/livemap/internal/server/handlers"
	"github.com/safemelbourne/livemap/internal/server/sse"
	ws "github.com/safemelbourne/livemap/internal/server/websocket"
	"github.com/safemelbourne/livemap/pkg/constants"
	"github.com/safemelbourne/livemap/pkg/errors"
	pkgevents "github.com/safemelbourne/livemap/pkg/events"
	"github.com/safemelbourne/livemap/pkg/loop"
	"github.com/safemelbourne/livemap/pkg/status"
	"github.com/safemelbourne/livemap/pkg/surface"
)

// Surface is what the server needs from the rendering surface: the read
// accessors the handlers serve plus lifecycle subscription.
type Surface interface {
	handlers.Surface
	On(evt surface.Event, fn surface.Handler) loop.Disposer
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	dashboard      livemap.Dashboard
	surface        Surface
	handlers       *handlers.Handlers
	cache          *cache.Cache
	broker         *events.Broker
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	upgrader       websocket.Upgrader
	disposers      []loop.Disposer
	logger         *zerolog.Logger
	config         Config
	ctx            context.Context
	cancel         context.CancelFunc
	startTime      time.Time
}

// New creates a new server mirroring dashboard and surf.
func New(dashboard livemap.Dashboard, surf Surface, cfg Config, logger *zerolog.Logger) (*Server, error) {
	if dashboard == nil || surf == nil {
		return nil, errors.NewConfigError("server", "dashboard and surface are required", nil)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = constants.DefaultCacheTTL
	}

	logger.Debug().Msg("Creating server instance")

	broker := events.NewBroker(logger)
	wsHub := ws.NewHub(logger)
	sseBroadcaster := sse.NewBroadcaster(logger)

	broker.Subscribe(adapters.NewWebSocketSubscriber(wsHub))
	broker.Subscribe(adapters.NewSSESubscriber(sseBroadcaster))

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		dashboard:      dashboard,
		surface:        surf,
		cache:          cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		broker:         broker,
		wsHub:          wsHub,
		sseBroadcaster: sseBroadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		logger:    logger,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	s.handlers = handlers.New(dashboard, surf, s.cache, wsHub, sseBroadcaster, s.upgrader, logger)
	sseBroadcaster.SetSnapshot(s.handlers.SSESnapshot)

	s.connectHooks()
	logger.Debug().Msg("Server instance created")
	return s, nil
}

// connectHooks publishes dashboard and surface activity to the broker.
func (s *Server) connectHooks() {
	s.dashboard.OnEventsChanged(func(view []pkgevents.Event) {
		s.broker.Publish(events.EventsChanged, map[string]any{
			"count":  len(view),
			"events": view,
		})
	})

	s.dashboard.OnRendered(func(n int) {
		s.broker.Publish(events.Rendered, map[string]any{"count": n})
	})

	s.dashboard.OnStatusChanged(func(st status.Status) {
		s.broker.Publish(events.StatusChanged, map[string]any{
			"status": st,
			"text":   st.Text(),
			"color":  st.Color(),
		})
		s.logger.Debug().Str("status", st.String()).Msg("Status change published")
	})

	s.dashboard.OnFetchError(func(err error) {
		s.broker.Publish(events.FetchFailed, map[string]any{"error": err.Error()})
	})

	s.disposers = append(s.disposers, s.surface.On(surface.SourceData, func() {
		if data := s.handlers.Snapshot(); data != nil {
			s.broker.Publish(events.SurfaceData, data)
		}
	}))

	s.logger.Info().Msg("Dashboard hooks connected to event broker")
}

// Start starts background services (broker, WebSocket hub, SSE broadcaster).
func (s *Server) Start() {
	s.logger.Debug().Msg("Starting background services")
	go s.broker.Run(s.ctx)
	go s.wsHub.Run(s.ctx)
	go s.sseBroadcaster.Run(s.ctx)
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// Shutdown stops the background services and detaches from the surface.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server background services")

	for _, dispose := range s.disposers {
		dispose()
	}
	s.disposers = nil
	s.cancel()

	select {
	case <-ctx.Done():
		s.logger.Warn().Msg("Background services shutdown timed out")
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		s.logger.Info().Msg("Background services shut down")
	}
	return nil
}

// Cache returns the server's cache instance.
func (s *Server) Cache() *cache.Cache {
	return s.cache
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *ws.Hub {
	return s.wsHub
}

// SSEBroadcaster returns the SSE broadcaster.
func (s *Server) SSEBroadcaster() *sse.Broadcaster {
	return s.sseBroadcaster
}

// Broker returns the event broker for publishing events.
func (s *Server) Broker() *events.Broker {
	return s.broker
}

// StartTime returns the server start time for uptime calculations.
func (s *Server) StartTime() time.Time {
	return s.startTime
}
