// Package events fans dashboard and surface activity out to the realtime
// transports.
//
// Dashboard hooks and surface listeners publish into a single Broker, which
// forwards each event to every registered Subscriber (WebSocket, SSE) so the
// transports never talk to the dashboard directly.
package events

import "time"

// EventType names a mirror event.
type EventType string

// Event types published by the server.
const (
	// SurfaceData carries the GeoJSON the surface now holds for the events source.
	SurfaceData EventType = "surface.data"

	// EventsChanged carries the filtered event view after a load, merge or filter change.
	EventsChanged EventType = "events.changed"

	// Rendered reports how many events were pushed to the surface.
	Rendered EventType = "markers.rendered"

	// StatusChanged carries the new scraping status.
	StatusChanged EventType = "status.changed"

	// FetchFailed reports a failed bulk fetch.
	FetchFailed EventType = "fetch.failed"

	// ClientConnected is sent to a transport client when it connects.
	ClientConnected EventType = "client.connected"
)

// Event is a typed, timestamped payload.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
