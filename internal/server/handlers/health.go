package handlers

import (
	"net/http"

	"github.com/safemelbourne/livemap/internal/server/response"
)

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "livemap",
		"version": "v1",
	})
}

// HandleReady handles GET /api/v1/ready. The mirror is ready once a bulk
// snapshot has been loaded.
func (h *Handlers) HandleReady(w http.ResponseWriter, _ *http.Request) {
	st := h.dashboard.State()
	if !st.Readiness.DataLoaded {
		msg := "No event data loaded yet"
		if st.Error != "" {
			msg = st.Error
		}
		response.ServiceUnavailable(w, msg)
		return
	}

	response.OK(w, map[string]any{
		"status":            "ready",
		"phase":             st.Phase,
		"events":            st.Events,
		"cache":             h.cache.GetStats(),
		"websocket_clients": h.wsHub.ClientCount(),
		"sse_clients":       h.sseBroadcaster.ClientCount(),
	})
}
