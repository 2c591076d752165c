// Package surface describes the map rendering engine as a capability: it
// loads a style, holds GeoJSON sources and layers, fires lifecycle signals
// and reports feature interaction. The engine itself lives elsewhere.
package surface

import (
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/safemelbourne/livemap/pkg/loop"
)

// Event is a surface lifecycle signal.
type Event string

// Lifecycle signals.
const (
	Load       Event = "load"
	Idle       Event = "idle"
	SourceData Event = "sourcedata"
	StyleData  Event = "styledata"
)

// LayerEvent is a feature interaction on a specific layer.
type LayerEvent string

// Layer interactions.
const (
	Click      LayerEvent = "click"
	MouseEnter LayerEvent = "mouseenter"
	MouseLeave LayerEvent = "mouseleave"
)

// Handler reacts to a lifecycle signal.
type Handler func()

// LayerHandler reacts to an interaction with a feature. The feature is nil
// for hover events.
type LayerHandler func(f *geojson.Feature)

// Surface is the rendering engine as seen by the marker pipeline.
type Surface interface {
	// IsLoaded reports whether the initial load signal has fired.
	IsLoaded() bool

	// IsStyleLoaded reports whether the current style is fully initialised.
	IsStyleLoaded() bool

	// On subscribes to every occurrence of a lifecycle signal.
	On(evt Event, h Handler) loop.Disposer

	// Once subscribes to the next occurrence of a lifecycle signal.
	Once(evt Event, h Handler) loop.Disposer

	// OnLayer subscribes to interactions with features of a layer.
	OnLayer(evt LayerEvent, layerID string, h LayerHandler) loop.Disposer

	// Source returns an existing data source.
	Source(id string) (Source, bool)

	// AddSource creates a data source.
	AddSource(id string, spec SourceSpec) error

	// AddLayer creates a layer on top of the existing ones.
	AddLayer(spec LayerSpec) error

	// HasLayer reports whether a layer exists in the current style.
	HasLayer(id string) bool

	// SetStyle switches styles, discarding all sources and layers.
	SetStyle(url string)

	// EaseTo animates the camera with an ease curve.
	EaseTo(c Camera)

	// FlyTo animates the camera along a flight path.
	FlyTo(c Camera)

	// SetCursor sets the pointer cursor; empty restores the default.
	SetCursor(cursor string)

	// OpenPopup shows a detail popup for a feature.
	OpenPopup(at orb.Point, f *geojson.Feature)
}

// Source is a GeoJSON data source.
type Source interface {
	// SetData replaces the source data wholesale.
	SetData(fc *geojson.FeatureCollection) error

	// ClusterExpansionZoom returns the zoom at which a cluster breaks apart.
	ClusterExpansionZoom(clusterID int) (float64, error)
}

// SourceSpec describes a GeoJSON source.
type SourceSpec struct {
	Type           string                     `json:"type"`
	Data           *geojson.FeatureCollection `json:"data"`
	Cluster        bool                       `json:"cluster"`
	ClusterMaxZoom int                        `json:"clusterMaxZoom,omitempty"`
	ClusterRadius  int                        `json:"clusterRadius,omitempty"`
}

// LayerSpec describes a style layer. Filter, Layout and Paint hold style
// expressions in the engine's JSON form.
type LayerSpec struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Source string         `json:"source"`
	Filter any            `json:"filter,omitempty"`
	Layout map[string]any `json:"layout,omitempty"`
	Paint  map[string]any `json:"paint,omitempty"`
}

// Camera is a camera animation target.
type Camera struct {
	Center    orb.Point `json:"center"`
	Zoom      float64   `json:"zoom"`
	Speed     float64   `json:"speed,omitempty"`
	Curve     float64   `json:"curve,omitempty"`
	Essential bool      `json:"essential,omitempty"`
}

// Popup is an open detail popup.
type Popup struct {
	At      orb.Point        `json:"at"`
	Feature *geojson.Feature `json:"feature"`
}

// Style identifies a base map style.
type Style struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Custom bool   `json:"custom"`
}

// URL returns the style URL the engine loads.
func (s Style) URL() string {
	if s.Custom {
		return "mapbox://styles/" + s.ID
	}
	return "mapbox://styles/mapbox/" + s.ID
}

// Styles are the base map styles offered to users.
var Styles = []Style{
	{ID: "dark-v11", Name: "Dark"},
	{ID: "edwardtanoto12/cmf13yyv601kp01pj9fkbgd1g", Name: "Night City", Custom: true},
}

// DefaultCenter is the initial map center, Melbourne CBD.
var DefaultCenter = orb.Point{144.9631, -37.8136}

// DefaultZoom is the initial map zoom.
const DefaultZoom = 11

// LookupStyle returns the style with the given id.
func LookupStyle(id string) (Style, bool) {
	for _, s := range Styles {
		if s.ID == id {
			return s, true
		}
	}
	return Style{}, false
}

// IsStyleURL reports whether s looks like a loadable style URL rather than
// a style id.
func IsStyleURL(s string) bool {
	for _, prefix := range []string{"mapbox://styles/", "https://", "http://"} {
		if strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
			return true
		}
	}
	return false
}
