// Package sse streams mirror events to browsers as Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/safemelbourne/livemap/pkg/constants"
)

// SnapshotFunc returns the events a new client receives before live updates.
type SnapshotFunc func() []Event

// Broadcaster manages Server-Sent Events connections.
type Broadcaster struct {
	clients    map[chan Event]bool
	newClients chan chan Event
	closed     chan chan Event
	events     chan Event
	snapshot   SnapshotFunc
	mu         sync.RWMutex
	logger     *zerolog.Logger
}

// NewBroadcaster creates a new SSE broadcaster.
func NewBroadcaster(logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients:    make(map[chan Event]bool),
		newClients: make(chan chan Event, 10), // clients may connect before Run starts
		closed:     make(chan chan Event, 10),
		events:     make(chan Event, constants.ChannelBufferSize),
		logger:     logger,
	}
}

// SetSnapshot installs the function used to prime newly connected clients.
func (b *Broadcaster) SetSnapshot(fn SnapshotFunc) {
	b.mu.Lock()
	b.snapshot = fn
	b.mu.Unlock()
}

// Run starts the broadcaster's main loop and blocks until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for client := range b.clients {
				close(client)
			}
			b.clients = make(map[chan Event]bool)
			b.mu.Unlock()
			b.logger.Info().Msg("SSE broadcaster shut down")
			return

		case client := <-b.newClients:
			b.mu.Lock()
			b.clients[client] = true
			n := len(b.clients)
			b.mu.Unlock()
			b.logger.Info().Int("total_clients", n).Msg("SSE client connected")

		case client := <-b.closed:
			b.mu.Lock()
			if b.clients[client] {
				delete(b.clients, client)
				close(client)
			}
			n := len(b.clients)
			b.mu.Unlock()
			b.logger.Info().Int("total_clients", n).Msg("SSE client disconnected")

		case event := <-b.events:
			b.mu.RLock()
			for client := range b.clients {
				select {
				case client <- event:
				default:
					b.logger.Warn().Str("event", event.Event).Msg("SSE client buffer full, event skipped")
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Broadcast sends an event to all connected SSE clients.
func (b *Broadcaster) Broadcast(event Event) {
	select {
	case b.events <- event:
	default:
		b.logger.Warn().Str("event", event.Event).Msg("SSE broadcast channel full, event dropped")
	}
}

// ClientCount returns the number of connected SSE clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ServeHTTP handles SSE connections.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := make(chan Event, constants.ChannelBufferSize)
	b.newClients <- client
	defer func() {
		select {
		case b.closed <- client:
		default:
		}
	}()

	b.writeEvent(w, flusher, Event{
		Event: "connected",
		Data: map[string]any{
			"message":   "Connected to live map updates",
			"timestamp": time.Now(),
		},
	})

	b.mu.RLock()
	snapshot := b.snapshot
	b.mu.RUnlock()
	if snapshot != nil {
		for _, e := range snapshot() {
			b.writeEvent(w, flusher, e)
		}
	}

	for {
		select {
		case event, ok := <-client:
			if !ok {
				return
			}
			b.writeEvent(w, flusher, event)

		case <-r.Context().Done():
			return
		}
	}
}

// writeEvent writes an SSE event to the response writer.
func (b *Broadcaster) writeEvent(w http.ResponseWriter, flusher http.Flusher, event Event) {
	if event.Event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event.Event)
	}
	if event.ID != "" {
		_, _ = fmt.Fprintf(w, "id: %s\n", event.ID)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		b.logger.Error().Err(err).Str("event", event.Event).Msg("Failed to marshal SSE event data")
		return
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// Event represents an SSE event.
type Event struct {
	Event string `json:"event,omitempty"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data"`
}
