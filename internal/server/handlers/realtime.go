package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/safemelbourne/livemap/internal/server/sse"
	ws "github.com/safemelbourne/livemap/internal/server/websocket"
	"github.com/safemelbourne/livemap/pkg/constants"
)

// Snapshot returns the surface data a newly connected client starts from,
// or nil before the marker source exists.
func (h *Handlers) Snapshot() any {
	fc, ok := h.surface.Data(constants.SourceID)
	if !ok {
		return nil
	}
	return fc
}

// SSESnapshot primes SSE clients with the current surface data.
func (h *Handlers) SSESnapshot() []sse.Event {
	data := h.Snapshot()
	if data == nil {
		return nil
	}
	return []sse.Event{{Event: "surface.data", Data: data}}
}

// HandleWebSocket handles WebSocket connections at /api/v1/updates/ws.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log(r).Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	clientID := fmt.Sprintf("%s-%d", r.RemoteAddr, time.Now().UnixNano())
	client := ws.NewClient(clientID, h.wsHub, conn)

	now := time.Now()
	client.Queue(ws.Message{
		Type:      "client.connected",
		Timestamp: now,
		Data:      map[string]any{"message": "Connected to live map updates"},
	})
	if data := h.Snapshot(); data != nil {
		client.Queue(ws.Message{Type: "surface.data", Timestamp: now, Data: data})
	}
	h.wsHub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// HandleSSE handles Server-Sent Events at /api/v1/updates/stream.
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sseBroadcaster.ServeHTTP(w, r)
}
