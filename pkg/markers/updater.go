package markers

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/safemelbourne/livemap/pkg/constants"
	"github.com/safemelbourne/livemap/pkg/events"
	"github.com/safemelbourne/livemap/pkg/loop"
	"github.com/safemelbourne/livemap/pkg/surface"
)

// State records what the updater has built on the surface.
type State struct {
	// SourceCreated is set once the source and layers were first created.
	SourceCreated bool `json:"sourceCreated"`

	// HandlersInstalled is set once interaction handlers are registered.
	HandlersInstalled bool `json:"handlersInstalled"`

	// Creations counts source builds; style switches force a rebuild.
	Creations int `json:"creations"`

	// Updates counts completed data pushes, creations included.
	Updates int `json:"updates"`

	// Deferred counts calls postponed because the style was loading.
	Deferred int `json:"deferred"`
}

// Updater pushes event views into the surface. It must only be used from
// the loop that owns the surface.
type Updater struct {
	surface surface.Surface
	state   *State
	retry   *loop.Guard
	pending []events.Event
	logger  *zerolog.Logger
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// WithState makes the updater record into a caller-owned state.
func WithState(s *State) UpdaterOption {
	return func(u *Updater) {
		u.state = s
	}
}

// WithRetryGuard shares the deferred-retry guard with other components so
// only one retry is outstanding across all of them.
func WithRetryGuard(g *loop.Guard) UpdaterOption {
	return func(u *Updater) {
		u.retry = g
	}
}

// WithLogger sets the updater logger.
func WithLogger(logger *zerolog.Logger) UpdaterOption {
	return func(u *Updater) {
		u.logger = logger
	}
}

// NewUpdater creates an Updater for s.
func NewUpdater(s surface.Surface, opts ...UpdaterOption) *Updater {
	nop := zerolog.Nop()
	u := &Updater{
		surface: s,
		state:   &State{},
		retry:   &loop.Guard{},
		logger:  &nop,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// State returns the updater state.
func (u *Updater) State() State {
	return *u.state
}

// Update projects evs and pushes them to the surface. On first use it
// creates the source and layers and installs interaction handlers; after
// that it only replaces data. When the style is still loading it schedules
// a single retry on the next idle signal using the most recent view.
func (u *Updater) Update(evs []events.Event) error {
	if !u.surface.IsStyleLoaded() {
		u.pending = evs
		u.state.Deferred++
		if u.retry.TryAcquire() {
			u.logger.Debug().Int("count", len(evs)).Msg("Style loading, retrying on idle")
			u.surface.Once(surface.Idle, func() {
				u.retry.Release()
				pending := u.pending
				u.pending = nil
				if err := u.Update(pending); err != nil {
					u.logger.Error().Err(err).Msg("Deferred marker update failed")
				}
			})
		}
		return nil
	}
	u.pending = nil

	fc := Project(evs, u.logger)
	if src, ok := u.surface.Source(constants.SourceID); ok {
		if err := src.SetData(fc); err != nil {
			return fmt.Errorf("replacing marker data: %w", err)
		}
		u.state.Updates++
		u.logger.Debug().Int("features", len(fc.Features)).Msg("Replaced marker data")
		return nil
	}

	if err := u.create(fc); err != nil {
		return err
	}
	u.state.Updates++
	return nil
}

func (u *Updater) create(fc *geojson.FeatureCollection) error {
	if err := u.surface.AddSource(constants.SourceID, SourceSpec(fc)); err != nil {
		return fmt.Errorf("creating marker source: %w", err)
	}
	for _, spec := range Layers() {
		if u.surface.HasLayer(spec.ID) {
			continue
		}
		if err := u.surface.AddLayer(spec); err != nil {
			return fmt.Errorf("creating layer %s: %w", spec.ID, err)
		}
	}
	u.state.SourceCreated = true
	u.state.Creations++
	u.logger.Info().
		Int("features", len(fc.Features)).
		Int("creations", u.state.Creations).
		Msg("Created marker source and layers")

	if !u.state.HandlersInstalled {
		u.installHandlers()
		u.state.HandlersInstalled = true
	}
	return nil
}

func (u *Updater) installHandlers() {
	s := u.surface

	s.OnLayer(surface.Click, LayerClusters, u.expandCluster)
	for _, id := range EventLayerIDs {
		s.OnLayer(surface.Click, id, u.focusEvent)
	}

	pointer := func(*geojson.Feature) { s.SetCursor("pointer") }
	reset := func(*geojson.Feature) { s.SetCursor("") }
	for _, id := range append([]string{LayerClusters}, EventLayerIDs...) {
		s.OnLayer(surface.MouseEnter, id, pointer)
		s.OnLayer(surface.MouseLeave, id, reset)
	}
}

// expandCluster zooms to the level at which the clicked cluster splits.
func (u *Updater) expandCluster(f *geojson.Feature) {
	if f == nil {
		return
	}
	center, ok := f.Geometry.(orb.Point)
	if !ok {
		return
	}
	clusterID, ok := intProperty(f.Properties, "cluster_id")
	if !ok {
		return
	}
	src, ok := u.surface.Source(constants.SourceID)
	if !ok {
		return
	}
	zoom, err := src.ClusterExpansionZoom(clusterID)
	if err != nil {
		u.logger.Warn().Err(err).Int("cluster_id", clusterID).Msg("Cluster expansion zoom unavailable")
		return
	}
	u.surface.EaseTo(surface.Camera{Center: center, Zoom: zoom})
}

// focusEvent opens the detail popup and flies to the clicked event.
func (u *Updater) focusEvent(f *geojson.Feature) {
	if f == nil {
		return
	}
	center, ok := f.Geometry.(orb.Point)
	if !ok {
		return
	}
	u.surface.OpenPopup(center, f)
	u.surface.FlyTo(surface.Camera{
		Center:    center,
		Zoom:      constants.FocusZoom,
		Speed:     1.2,
		Curve:     1,
		Essential: true,
	})
}

func intProperty(p geojson.Properties, key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}
