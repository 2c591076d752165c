package server

import (
	"net/http"

	"github.com/safemelbourne/livemap/internal/server/middleware"
	"github.com/safemelbourne/livemap/internal/server/response"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return s.applyMiddleware(mux)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	h := s.handlers
	prefix := s.config.PathPrefix

	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc(prefix+"/health", h.HandleHealth)
	mux.HandleFunc(prefix+"/ready", h.HandleReady)

	// Views
	mux.HandleFunc(prefix+"/geojson", method(http.MethodGet, h.HandleGeoJSON))
	mux.HandleFunc(prefix+"/events", method(http.MethodGet, h.HandleEvents))
	mux.HandleFunc(prefix+"/surface/data", method(http.MethodGet, h.HandleSurface))
	mux.HandleFunc(prefix+"/layers", method(http.MethodGet, h.HandleLayers))
	mux.HandleFunc(prefix+"/styles", method(http.MethodGet, h.HandleStyles))
	mux.HandleFunc(prefix+"/state", method(http.MethodGet, h.HandleState))

	// Controls
	mux.HandleFunc(prefix+"/filter", method(http.MethodPost, h.HandleSetFilter))
	mux.HandleFunc(prefix+"/window", method(http.MethodPost, h.HandleSetWindow))
	mux.HandleFunc(prefix+"/style", method(http.MethodPost, h.HandleSetStyle))
	mux.HandleFunc(prefix+"/refresh", method(http.MethodPost, h.HandleRefresh))

	// Real-time endpoints
	mux.HandleFunc(prefix+"/updates/ws", h.HandleWebSocket)
	mux.HandleFunc(prefix+"/updates/stream", h.HandleSSE)
}

// method restricts a handler to a single HTTP method.
func method(m string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			response.MethodNotAllowed(w, r.Method)
			return
		}
		next(w, r)
	}
}

// applyMiddleware wraps handler with logging and recovery.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	return middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.Logger(s.logger),
	)(handler)
}
