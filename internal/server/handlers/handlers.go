// Package handlers provides the HTTP handlers of the live map mirror.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/safemelbourne/livemap"
	"github.com/safemelbourne/livemap/internal/server/cache"
	"github.com/safemelbourne/livemap/internal/server/sse"
	ws "github.com/safemelbourne/livemap/internal/server/websocket"
	"github.com/safemelbourne/livemap/pkg/errors"
	"github.com/safemelbourne/livemap/pkg/logging"
	"github.com/safemelbourne/livemap/pkg/surface"
	"github.com/safemelbourne/livemap/pkg/surface/headless"
)

// Surface is the read side of the rendering surface the mirror exposes.
type Surface interface {
	Data(id string) (*geojson.FeatureCollection, bool)
	Layers() []surface.LayerSpec
	Snapshot() headless.State
}

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	dashboard      livemap.Dashboard
	surface        Surface
	cache          *cache.Cache
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	upgrader       websocket.Upgrader
	logger         *zerolog.Logger
}

// New creates a new Handlers instance.
func New(
	dashboard livemap.Dashboard,
	surf Surface,
	cache *cache.Cache,
	wsHub *ws.Hub,
	sseBroadcaster *sse.Broadcaster,
	upgrader websocket.Upgrader,
	logger *zerolog.Logger,
) *Handlers {
	return &Handlers{
		dashboard:      dashboard,
		surface:        surf,
		cache:          cache,
		wsHub:          wsHub,
		sseBroadcaster: sseBroadcaster,
		upgrader:       upgrader,
		logger:         logger,
	}
}

// log returns the request-scoped logger set by the logging middleware, or
// the server logger for requests that did not pass through it.
func (h *Handlers) log(r *http.Request) *zerolog.Logger {
	if logging.RequestID(r.Context()) != "" {
		return logging.FromContext(r.Context())
	}
	return h.logger
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.NewParseError("json", "invalid request body", err)
	}
	return nil
}
