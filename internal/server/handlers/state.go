package handlers

import (
	"net/http"
	"time"

	"github.com/safemelbourne/livemap/internal/server/response"
	"github.com/safemelbourne/livemap/pkg/events"
	"github.com/safemelbourne/livemap/pkg/status"
)

// HandleState handles GET /api/v1/state.
func (h *Handlers) HandleState(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, h.stateView())
}

func (h *Handlers) stateView() map[string]any {
	st := h.dashboard.State()
	return map[string]any{
		"dashboard": st,
		"surface":   h.surface.Snapshot(),
		"status":    statusView(st.Status, time.Now()),
	}
}

func statusView(st status.Status, now time.Time) map[string]any {
	return map[string]any{
		"status":     st,
		"text":       st.Text(),
		"color":      st.Color(),
		"peak":       status.IsPeak(now),
		"nextUpdate": status.NextUpdate(now),
	}
}

type filterRequest struct {
	Filter string `json:"filter"`
}

// HandleSetFilter handles POST /api/v1/filter with {"filter": "warnings"}.
func (h *Handlers) HandleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := decodeBody(r, &req); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	if err := h.dashboard.SetFilter(r.Context(), events.Filter(req.Filter)); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, h.stateView())
}

type windowRequest struct {
	Hours int `json:"hours"`
}

// HandleSetWindow handles POST /api/v1/window with {"hours": 6}. The
// snapshot is refetched before responding; zero hours removes the window.
func (h *Handlers) HandleSetWindow(w http.ResponseWriter, r *http.Request) {
	var req windowRequest
	if err := decodeBody(r, &req); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	if err := h.dashboard.SetTimeWindow(r.Context(), req.Hours); err != nil {
		h.log(r).Warn().Err(err).Int("hours", req.Hours).Msg("Time window change failed")
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, h.stateView())
}

type styleRequest struct {
	Style string `json:"style"`
}

// HandleSetStyle handles POST /api/v1/style with a style id or URL.
func (h *Handlers) HandleSetStyle(w http.ResponseWriter, r *http.Request) {
	var req styleRequest
	if err := decodeBody(r, &req); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	if err := h.dashboard.ChangeStyle(r.Context(), req.Style); err != nil {
		h.log(r).Warn().Err(err).Str("style", req.Style).Msg("Style change rejected")
		response.ErrorFromType(w, err)
		return
	}
	response.Accepted(w, h.stateView())
}

// HandleRefresh handles POST /api/v1/refresh.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.dashboard.Refresh(r.Context()); err != nil {
		h.log(r).Warn().Err(err).Msg("Manual refresh failed")
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, h.stateView())
}
