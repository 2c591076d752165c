// Package constants provides shared constants used throughout the livemap codebase.
// This includes store limits, timing for the readiness gate and the stream,
// and the cluster settings the marker layers are built with.
package constants

import "time"

// Store limits
const (
	// StoreCap is the maximum number of events retained after a stream merge
	StoreCap = 200
)

// Network timing
const (
	// DefaultHTTPTimeout is the standard timeout for bulk fetch and status requests
	DefaultHTTPTimeout = 30 * time.Second

	// StreamReconnectDelay is the fixed wait before reopening a dropped stream
	StreamReconnectDelay = 5 * time.Second

	// StatusPollInterval is how often the scraping status endpoint is polled
	StatusPollInterval = 30 * time.Second

	// ShutdownTimeout bounds graceful server shutdown
	ShutdownTimeout = 10 * time.Second
)

// Readiness gate timing
const (
	// RenderFallbackDesktop fires a render attempt if no lifecycle signal arrives
	RenderFallbackDesktop = 1500 * time.Millisecond

	// RenderFallbackMobile is the fallback on slower mobile surfaces
	RenderFallbackMobile = 3000 * time.Millisecond

	// RenderSettleDesktop is the pause between a lifecycle signal and the render
	RenderSettleDesktop = 50 * time.Millisecond

	// RenderSettleMobile is the settle pause on mobile surfaces
	RenderSettleMobile = 150 * time.Millisecond

	// SweepInterval spaces the periodic layer-presence checks
	SweepInterval = 2 * time.Second

	// SweepChecks is how many layer-presence checks a sweep performs
	SweepChecks = 5
)

// Map layer settings
const (
	// SourceID names the clustered GeoJSON source holding all markers
	SourceID = "events"

	// ClusterRadius is the pixel radius points are clustered within
	ClusterRadius = 50

	// ClusterMaxZoom is the highest zoom at which points are still clustered
	ClusterMaxZoom = 14

	// FocusZoom is the zoom the view flies to when an event is clicked
	FocusZoom = 15
)

// Bulk fetch defaults
const (
	// DefaultMinConfidence is the lowest warning confidence requested
	DefaultMinConfidence = 0.4

	// DefaultWarningLimit caps the warning markers requested
	DefaultWarningLimit = 50

	// DefaultTimeWindowHours is the initial bulk fetch window; zero means unbounded
	DefaultTimeWindowHours = 24
)

// Server defaults
const (
	// DefaultHost is the address the mirror server binds to
	DefaultHost = "localhost"

	// DefaultPort is the port the mirror server listens on
	DefaultPort = 8080

	// DefaultCacheTTL is how long rendered GeoJSON views are cached
	DefaultCacheTTL = 5 * time.Minute

	// ChannelBufferSize sizes subscriber and broadcast channels
	ChannelBufferSize = 256
)
