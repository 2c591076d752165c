// Package headless implements an in-memory rendering surface. It keeps
// sources, layers and camera state without drawing anything, fires the same
// lifecycle signals as a browser map engine and can simulate style loads and
// feature interaction. The server mirrors its state to browsers.
package headless

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/safemelbourne/livemap/pkg/errors"
	"github.com/safemelbourne/livemap/pkg/loop"
	"github.com/safemelbourne/livemap/pkg/surface"
)

type listener struct {
	id   int
	once bool
	h    surface.Handler
}

type layerListener struct {
	id int
	h  surface.LayerHandler
}

// Surface is a headless rendering surface. It is safe for concurrent use;
// handlers always run outside its lock.
type Surface struct {
	mu          sync.RWMutex
	loaded      bool
	styleLoaded bool
	style       string
	sources     map[string]*source
	layers      []surface.LayerSpec
	camera      surface.Camera
	cursor      string
	popup       *surface.Popup

	nextID         int
	listeners      map[surface.Event][]*listener
	layerListeners map[string][]*layerListener
	registrations  map[surface.Event]int

	sched     loop.Scheduler
	loadDelay time.Duration
	logger    *zerolog.Logger
}

// Option configures a headless Surface.
type Option func(*Surface)

// WithScheduler makes Boot and SetStyle complete asynchronously on s after
// the load delay, the way a real engine fetches its style.
func WithScheduler(s loop.Scheduler) Option {
	return func(h *Surface) {
		h.sched = s
	}
}

// WithLoadDelay sets the simulated style load latency.
func WithLoadDelay(d time.Duration) Option {
	return func(h *Surface) {
		h.loadDelay = d
	}
}

// WithStyle sets the initial style URL.
func WithStyle(url string) Option {
	return func(h *Surface) {
		h.style = url
	}
}

// WithLogger sets the surface logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(h *Surface) {
		h.logger = logger
	}
}

// New creates an unloaded surface centred on the default view.
func New(opts ...Option) *Surface {
	nop := zerolog.Nop()
	h := &Surface{
		style:          surface.Styles[0].URL(),
		sources:        make(map[string]*source),
		camera:         surface.Camera{Center: surface.DefaultCenter, Zoom: surface.DefaultZoom},
		listeners:      make(map[surface.Event][]*listener),
		layerListeners: make(map[string][]*layerListener),
		registrations:  make(map[surface.Event]int),
		loadDelay:      200 * time.Millisecond,
		logger:         &nop,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Boot schedules the initial load on the configured scheduler. Without a
// scheduler it loads immediately.
func (h *Surface) Boot() {
	if h.sched == nil {
		h.Load()
		return
	}
	h.sched.AfterFunc(h.loadDelay, h.Load)
}

// Load marks the surface and its style loaded and fires load, styledata and
// idle in that order.
func (h *Surface) Load() {
	h.mu.Lock()
	h.loaded = true
	h.styleLoaded = true
	h.mu.Unlock()

	h.logger.Debug().Str("style", h.Style()).Msg("Surface loaded")
	h.Emit(surface.Load)
	h.Emit(surface.StyleData)
	h.Emit(surface.Idle)
}

// SetStyle switches to a new style. All sources and layers are discarded and
// the style stays unloaded until CompleteStyle runs.
func (h *Surface) SetStyle(url string) {
	h.mu.Lock()
	h.style = url
	h.styleLoaded = false
	h.sources = make(map[string]*source)
	h.layers = nil
	h.mu.Unlock()

	h.logger.Info().Str("style", url).Msg("Switching style")
	if h.sched != nil {
		h.sched.AfterFunc(h.loadDelay, h.CompleteStyle)
	}
}

// CompleteStyle finishes a style switch and fires styledata then idle.
func (h *Surface) CompleteStyle() {
	h.mu.Lock()
	h.styleLoaded = true
	h.mu.Unlock()

	h.Emit(surface.StyleData)
	h.Emit(surface.Idle)
}

// IsLoaded reports whether Load has run.
func (h *Surface) IsLoaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loaded
}

// IsStyleLoaded reports whether the current style is ready.
func (h *Surface) IsStyleLoaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.styleLoaded
}

// On subscribes to every occurrence of evt.
func (h *Surface) On(evt surface.Event, fn surface.Handler) loop.Disposer {
	return h.subscribe(evt, fn, false)
}

// Once subscribes to the next occurrence of evt.
func (h *Surface) Once(evt surface.Event, fn surface.Handler) loop.Disposer {
	return h.subscribe(evt, fn, true)
}

func (h *Surface) subscribe(evt surface.Event, fn surface.Handler, once bool) loop.Disposer {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.listeners[evt] = append(h.listeners[evt], &listener{id: id, once: once, h: fn})
	h.registrations[evt]++
	return func() { h.unsubscribe(evt, id) }
}

func (h *Surface) unsubscribe(evt surface.Event, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ls := h.listeners[evt]
	for i, l := range ls {
		if l.id == id {
			h.listeners[evt] = append(ls[:i:i], ls[i+1:]...)
			return
		}
	}
}

// Emit fires a lifecycle signal. Once-listeners are removed before any
// handler runs.
func (h *Surface) Emit(evt surface.Event) {
	h.mu.Lock()
	ls := h.listeners[evt]
	var keep []*listener
	for _, l := range ls {
		if !l.once {
			keep = append(keep, l)
		}
	}
	h.listeners[evt] = keep
	fire := append([]*listener(nil), ls...)
	h.mu.Unlock()

	for _, l := range fire {
		l.h()
	}
}

// OnLayer subscribes to interactions on a layer. Layer subscriptions survive
// style switches.
func (h *Surface) OnLayer(evt surface.LayerEvent, layerID string, fn surface.LayerHandler) loop.Disposer {
	key := layerKey(evt, layerID)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.layerListeners[key] = append(h.layerListeners[key], &layerListener{id: id, h: fn})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		ls := h.layerListeners[key]
		for i, l := range ls {
			if l.id == id {
				h.layerListeners[key] = append(ls[:i:i], ls[i+1:]...)
				return
			}
		}
	}
}

func layerKey(evt surface.LayerEvent, layerID string) string {
	return string(evt) + "/" + layerID
}

// Click simulates a click on a feature of layerID. It reports false when the
// layer does not exist.
func (h *Surface) Click(layerID string, f *geojson.Feature) bool {
	return h.fireLayer(surface.Click, layerID, f)
}

// Hover simulates the pointer entering then optionally leaving a layer.
func (h *Surface) Hover(layerID string, leave bool) bool {
	if !h.fireLayer(surface.MouseEnter, layerID, nil) {
		return false
	}
	if leave {
		h.fireLayer(surface.MouseLeave, layerID, nil)
	}
	return true
}

func (h *Surface) fireLayer(evt surface.LayerEvent, layerID string, f *geojson.Feature) bool {
	if !h.HasLayer(layerID) {
		return false
	}
	h.mu.RLock()
	fire := append([]*layerListener(nil), h.layerListeners[layerKey(evt, layerID)]...)
	h.mu.RUnlock()
	for _, l := range fire {
		l.h(f)
	}
	return true
}

// Source returns an existing source.
func (h *Surface) Source(id string) (surface.Source, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sources[id]
	if !ok {
		return nil, false
	}
	return s, true
}

// AddSource creates a source. It fails if the style is not loaded or the
// source already exists.
func (h *Surface) AddSource(id string, spec surface.SourceSpec) error {
	h.mu.Lock()
	if !h.styleLoaded {
		h.mu.Unlock()
		return errors.NewValidationError("style", h.style, "style is not done loading")
	}
	if _, ok := h.sources[id]; ok {
		h.mu.Unlock()
		return errors.NewValidationError("source", id, "there is already a source with this ID")
	}
	h.sources[id] = &source{id: id, spec: spec, data: spec.Data, owner: h}
	h.mu.Unlock()

	h.Emit(surface.SourceData)
	return nil
}

// AddLayer appends a layer. Its source must exist.
func (h *Surface) AddLayer(spec surface.LayerSpec) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sources[spec.Source]; !ok {
		return errors.NewNotFoundError("source", spec.Source)
	}
	for _, l := range h.layers {
		if l.ID == spec.ID {
			return errors.NewValidationError("layer", spec.ID, "layer already exists")
		}
	}
	h.layers = append(h.layers, spec)
	return nil
}

// HasLayer reports whether a layer exists.
func (h *Surface) HasLayer(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, l := range h.layers {
		if l.ID == id {
			return true
		}
	}
	return false
}

// EaseTo moves the camera.
func (h *Surface) EaseTo(c surface.Camera) {
	h.moveCamera(c)
}

// FlyTo moves the camera.
func (h *Surface) FlyTo(c surface.Camera) {
	h.moveCamera(c)
}

func (h *Surface) moveCamera(c surface.Camera) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.camera = c
}

// SetCursor sets the pointer cursor.
func (h *Surface) SetCursor(cursor string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cursor = cursor
}

// OpenPopup records the open popup, replacing any previous one.
func (h *Surface) OpenPopup(at orb.Point, f *geojson.Feature) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.popup = &surface.Popup{At: at, Feature: f}
}

// Style returns the current style URL.
func (h *Surface) Style() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.style
}

// Camera returns the current camera.
func (h *Surface) Camera() surface.Camera {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.camera
}

// Cursor returns the current cursor.
func (h *Surface) Cursor() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cursor
}

// Popup returns the open popup, if any.
func (h *Surface) Popup() *surface.Popup {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.popup
}

// Data returns the current data of a source.
func (h *Surface) Data(id string) (*geojson.FeatureCollection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sources[id]
	if !ok {
		return nil, false
	}
	return s.data, true
}

// Layers returns the layers in draw order.
func (h *Surface) Layers() []surface.LayerSpec {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]surface.LayerSpec(nil), h.layers...)
}

// Listeners returns the number of active listeners for evt.
func (h *Surface) Listeners(evt surface.Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[evt])
}

// Registrations returns how many listeners were ever registered for evt.
func (h *Surface) Registrations(evt surface.Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registrations[evt]
}

// State is a point-in-time view of the surface for serialization.
type State struct {
	Loaded      bool           `json:"loaded"`
	StyleLoaded bool           `json:"styleLoaded"`
	Style       string         `json:"style"`
	Sources     []string       `json:"sources"`
	Layers      []string       `json:"layers"`
	Camera      surface.Camera `json:"camera"`
	Cursor      string         `json:"cursor,omitempty"`
	Popup       *surface.Popup `json:"popup,omitempty"`
	Listeners   map[string]int `json:"listeners"`
}

// Snapshot returns the current State.
func (h *Surface) Snapshot() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := State{
		Loaded:      h.loaded,
		StyleLoaded: h.styleLoaded,
		Style:       h.style,
		Camera:      h.camera,
		Cursor:      h.cursor,
		Popup:       h.popup,
		Listeners:   make(map[string]int, len(h.listeners)),
	}
	for id := range h.sources {
		st.Sources = append(st.Sources, id)
	}
	for _, l := range h.layers {
		st.Layers = append(st.Layers, l.ID)
	}
	for evt, ls := range h.listeners {
		st.Listeners[string(evt)] = len(ls)
	}
	return st
}

type source struct {
	id    string
	spec  surface.SourceSpec
	data  *geojson.FeatureCollection
	owner *Surface
}

// SetData replaces the source data and fires sourcedata.
func (s *source) SetData(fc *geojson.FeatureCollection) error {
	s.owner.mu.Lock()
	if cur, ok := s.owner.sources[s.id]; !ok || cur != s {
		s.owner.mu.Unlock()
		return errors.NewNotFoundError("source", s.id)
	}
	s.data = fc
	s.owner.mu.Unlock()

	s.owner.Emit(surface.SourceData)
	return nil
}

// ClusterExpansionZoom approximates the zoom at which a cluster splits: two
// levels past the current zoom, capped one past the last clustered zoom.
func (s *source) ClusterExpansionZoom(clusterID int) (float64, error) {
	if !s.spec.Cluster {
		return 0, errors.NewValidationError("source", s.id, "source is not clustered")
	}
	if clusterID < 0 {
		return 0, errors.NewNotFoundError("cluster", fmt.Sprint(clusterID))
	}
	s.owner.mu.RLock()
	zoom := s.owner.camera.Zoom
	s.owner.mu.RUnlock()
	return math.Min(math.Floor(zoom)+2, float64(s.spec.ClusterMaxZoom+1)), nil
}
