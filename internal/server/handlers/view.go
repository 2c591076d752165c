package handlers

import (
	"net/http"

	"github.com/safemelbourne/livemap/internal/server/cache"
	"github.com/safemelbourne/livemap/internal/server/filter"
	"github.com/safemelbourne/livemap/internal/server/response"
	"github.com/safemelbourne/livemap/pkg/constants"
	"github.com/safemelbourne/livemap/pkg/events"
	"github.com/safemelbourne/livemap/pkg/markers"
	"github.com/safemelbourne/livemap/pkg/surface"
)

// geoJSONContentType is the media type of GeoJSON bodies.
const geoJSONContentType = "application/geo+json"

// HandleGeoJSON handles GET /api/v1/geojson. It returns the marker
// FeatureCollection for the requested filter, or the dashboard's filter
// when none is given. Results are cached per filter and store version.
func (h *Handlers) HandleGeoJSON(w http.ResponseWriter, r *http.Request) {
	st := h.dashboard.State()
	f := st.Filter
	if raw := r.URL.Query().Get("filter"); raw != "" {
		parsed, err := events.ParseFilter(raw)
		if err != nil {
			response.ErrorFromType(w, err)
			return
		}
		f = parsed
	}

	fc, err := h.cache.GetOrCompute(cache.Key("geojson", string(f), st.Version), func() (any, error) {
		return markers.Project(h.dashboard.ViewOf(f), h.log(r)), nil
	})
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.Raw(w, geoJSONContentType, fc)
}

// HandleEvents handles GET /api/v1/events with filter, bbox, severity,
// verified, q, limit and offset query parameters.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	q, err := filter.ParseEventQuery(r)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	version := h.dashboard.State().Version
	result, err := h.cache.GetOrCompute(cache.Key("events", r.URL.RawQuery, version), func() (any, error) {
		page, total := q.Apply(h.dashboard.ViewOf(q.Filter))
		return map[string]any{
			"events": page,
			"filter": map[string]string{"id": string(q.Filter), "label": q.Filter.Label()},
			"pagination": map[string]int{
				"total":  total,
				"limit":  q.Limit,
				"offset": q.Offset,
			},
		}, nil
	})
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.OK(w, result)
}

// HandleSurface handles GET /api/v1/surface/data. It returns exactly what
// the surface currently holds for the events source, which lags the store
// while a render is deferred.
func (h *Handlers) HandleSurface(w http.ResponseWriter, _ *http.Request) {
	fc, ok := h.surface.Data(constants.SourceID)
	if !ok {
		response.NotFound(w, "Marker source not created yet", "")
		return
	}
	response.Raw(w, geoJSONContentType, fc)
}

// HandleLayers handles GET /api/v1/layers.
func (h *Handlers) HandleLayers(w http.ResponseWriter, _ *http.Request) {
	active := h.surface.Layers()
	ids := make([]string, len(active))
	for i, l := range active {
		ids[i] = l.ID
	}
	response.OK(w, map[string]any{
		"source": constants.SourceID,
		"layers": markers.Layers(),
		"active": ids,
	})
}

// HandleStyles handles GET /api/v1/styles.
func (h *Handlers) HandleStyles(w http.ResponseWriter, _ *http.Request) {
	styles := make([]map[string]string, len(surface.Styles))
	for i, s := range surface.Styles {
		styles[i] = map[string]string{"id": s.ID, "name": s.Name, "url": s.URL()}
	}
	response.OK(w, map[string]any{
		"styles":  styles,
		"current": h.dashboard.State().Style,
	})
}
