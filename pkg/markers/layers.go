package markers

import (
	"github.com/paulmach/orb/geojson"

	"github.com/safemelbourne/livemap/pkg/constants"
	"github.com/safemelbourne/livemap/pkg/surface"
)

// Layer IDs in creation order.
const (
	LayerClusters     = "clusters"
	LayerClusterCount = "cluster-count"
	LayerProtests     = "protest-circles"
	LayerRoadClosures = "road-closure-circles"
	LayerWarnings     = "warning-circles"
	LayerEmoji        = "event-emoji"
)

// LayerIDs lists every marker layer in creation order.
var LayerIDs = []string{
	LayerClusters,
	LayerClusterCount,
	LayerProtests,
	LayerRoadClosures,
	LayerWarnings,
	LayerEmoji,
}

// EventLayerIDs are the layers whose features are individual events.
var EventLayerIDs = []string{LayerProtests, LayerRoadClosures, LayerWarnings, LayerEmoji}

// SourceSpec returns the clustered source definition holding fc.
func SourceSpec(fc *geojson.FeatureCollection) surface.SourceSpec {
	return surface.SourceSpec{
		Type:           "geojson",
		Data:           fc,
		Cluster:        true,
		ClusterMaxZoom: constants.ClusterMaxZoom,
		ClusterRadius:  constants.ClusterRadius,
	}
}

var (
	isCluster  = []any{"has", "point_count"}
	notCluster = []any{"!", isCluster}
)

func typeIs(category string) []any {
	return []any{"all", []any{"==", []any{"get", "type"}, category}, notCluster}
}

// Layers returns the marker layer definitions in creation order.
func Layers() []surface.LayerSpec {
	src := constants.SourceID
	return []surface.LayerSpec{
		{
			ID:     LayerClusters,
			Type:   "circle",
			Source: src,
			Filter: isCluster,
			Paint: map[string]any{
				"circle-color": []any{
					"step", []any{"get", "point_count"},
					"#51bbd6",
					5, "#f1f075",
					15, "#f28cb1",
				},
				"circle-radius": []any{
					"step", []any{"get", "point_count"},
					20,
					5, 30,
					15, 40,
				},
				"circle-stroke-color": "#ffffff",
				"circle-stroke-width": 2,
			},
		},
		{
			ID:     LayerClusterCount,
			Type:   "symbol",
			Source: src,
			Filter: isCluster,
			Layout: map[string]any{
				"text-field":  "{point_count_abbreviated}",
				"text-font":   []any{"DIN Offc Pro Medium", "Arial Unicode MS Bold"},
				"text-size":   12,
				"text-anchor": "center",
			},
			Paint: map[string]any{
				"text-color": "#000000",
			},
		},
		{
			ID:     LayerProtests,
			Type:   "circle",
			Source: src,
			Filter: typeIs("protest"),
			Paint: map[string]any{
				"circle-radius":       18,
				"circle-color":        "#ff4444",
				"circle-stroke-color": "#ffffff",
				"circle-stroke-width": 2,
				"circle-opacity":      0.8,
			},
		},
		{
			ID:     LayerRoadClosures,
			Type:   "circle",
			Source: src,
			Filter: typeIs("road_closure"),
			Paint: map[string]any{
				"circle-radius": []any{
					"match", []any{"get", "severity"},
					"low", 16,
					"medium", 20,
					"high", 24,
					"critical", 28,
					20,
				},
				"circle-color": []any{
					"match", []any{"get", "severity"},
					"low", "#ffaa00",
					"medium", "#ff6600",
					"high", "#ff0000",
					"critical", "#990000",
					"#ff0000",
				},
				"circle-stroke-color": "#ffffff",
				"circle-stroke-width": 3,
				"circle-opacity":      0.9,
			},
		},
		{
			// Warnings draw larger and fully opaque so they stand out.
			ID:     LayerWarnings,
			Type:   "circle",
			Source: src,
			Filter: typeIs("warning"),
			Paint: map[string]any{
				"circle-radius":       28,
				"circle-color":        "#FFD700",
				"circle-stroke-color": "#FF4500",
				"circle-stroke-width": 4,
				"circle-opacity":      1.0,
			},
		},
		{
			ID:     LayerEmoji,
			Type:   "symbol",
			Source: src,
			Filter: notCluster,
			Layout: map[string]any{
				"text-field": []any{"get", "emoji"},
				"text-size": []any{
					"case",
					[]any{"==", []any{"get", "type"}, "warning"}, 28,
					20,
				},
				"text-anchor":        "center",
				"text-justify":       "center",
				"text-allow-overlap": true,
			},
			Paint: map[string]any{
				"text-color":      "#ffffff",
				"text-halo-color": "#000000",
				"text-halo-width": 2,
			},
		},
	}
}
