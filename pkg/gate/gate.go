// Package gate defers marker rendering until both the rendering surface and
// the event data are ready. The two become ready independently and in either
// order, so readiness is re-checked on both triggers and a style that is
// still loading is waited out with lifecycle listeners and a fallback timer.
package gate

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/safemelbourne/livemap/pkg/constants"
	"github.com/safemelbourne/livemap/pkg/events"
	"github.com/safemelbourne/livemap/pkg/loop"
	"github.com/safemelbourne/livemap/pkg/markers"
	"github.com/safemelbourne/livemap/pkg/surface"
)

// Phase is the gate's position in its state machine.
type Phase int

// Gate phases.
const (
	WaitingForBoth Phase = iota
	Rendering
	Rendered
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Rendering:
		return "rendering"
	case Rendered:
		return "rendered"
	default:
		return "waiting"
	}
}

// ReadinessState is the pair of independent readiness signals plus the
// bookkeeping that prevents missed or duplicate renders.
type ReadinessState struct {
	SurfaceLoaded     bool `json:"surfaceLoaded"`
	DataLoaded        bool `json:"dataLoaded"`
	InitialRenderDone bool `json:"initialRenderDone"`

	retry *loop.Guard
}

// RetryInFlight reports whether a deferred render is waiting on the surface.
func (r *ReadinessState) RetryInFlight() bool {
	return r.retry != nil && r.retry.Held()
}

// Guard returns the retry guard, creating it on first use. The marker
// updater shares it so only one deferred retry exists at a time.
func (r *ReadinessState) Guard() *loop.Guard {
	if r.retry == nil {
		r.retry = &loop.Guard{}
	}
	return r.retry
}

// Renderer pushes a view to the surface.
type Renderer interface {
	Update(evs []events.Event) error
}

// View supplies the data the gate renders. Count is the unfiltered event
// count that readiness is judged on; Events is the current filtered view.
type View interface {
	Count() int
	Events() []events.Event
}

// Gate coordinates rendering. All methods must run on the loop that owns
// the surface.
type Gate struct {
	surface  surface.Surface
	sched    loop.Scheduler
	renderer Renderer
	view     View
	state    *ReadinessState

	phase      Phase
	fallback   time.Duration
	settle     time.Duration
	sweepEvery time.Duration
	sweepLeft  int
	sweeping   bool
	attempts   int
	onRendered func(n int)
	logger     *zerolog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithMobile selects the slower mobile fallback and settle delays.
func WithMobile(mobile bool) Option {
	return func(g *Gate) {
		if mobile {
			g.fallback = constants.RenderFallbackMobile
			g.settle = constants.RenderSettleMobile
		} else {
			g.fallback = constants.RenderFallbackDesktop
			g.settle = constants.RenderSettleDesktop
		}
	}
}

// WithState makes the gate record into a caller-owned state.
func WithState(s *ReadinessState) Option {
	return func(g *Gate) {
		g.state = s
	}
}

// WithOnRendered registers a callback run after each render with the number
// of events pushed.
func WithOnRendered(fn func(n int)) Option {
	return func(g *Gate) {
		g.onRendered = fn
	}
}

// WithLogger sets the gate logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// New creates a Gate in the WaitingForBoth phase.
func New(s surface.Surface, sched loop.Scheduler, r Renderer, v View, opts ...Option) *Gate {
	nop := zerolog.Nop()
	g := &Gate{
		surface:    s,
		sched:      sched,
		renderer:   r,
		view:       v,
		state:      &ReadinessState{},
		fallback:   constants.RenderFallbackDesktop,
		settle:     constants.RenderSettleDesktop,
		sweepEvery: constants.SweepInterval,
		logger:     &nop,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the readiness state.
func (g *Gate) State() *ReadinessState {
	return g.state
}

// Phase returns the current phase.
func (g *Gate) Phase() Phase {
	return g.phase
}

// Attempts returns how many renders have been performed.
func (g *Gate) Attempts() int {
	return g.attempts
}

// SurfaceLoaded records that the surface fired its load signal.
func (g *Gate) SurfaceLoaded() {
	if g.state.SurfaceLoaded {
		return
	}
	g.state.SurfaceLoaded = true
	g.logger.Debug().Msg("Surface loaded")
	g.Evaluate()
}

// SetDataLoaded records whether a bulk snapshot has been applied.
func (g *Gate) SetDataLoaded(loaded bool) {
	g.state.DataLoaded = loaded
	g.Evaluate()
}

// Evaluate re-checks readiness. Call it on every event-set or filter change.
// Once the first render has happened it pushes the view straight to the
// renderer.
func (g *Gate) Evaluate() {
	if !g.ready() {
		return
	}
	if g.state.InitialRenderDone {
		g.render("update")
		return
	}
	g.attempt()
}

// ready reports whether a render may run. The first render also needs at
// least one event; after that an empty view must still reach the surface
// so markers for removed events are cleared.
func (g *Gate) ready() bool {
	if !g.state.SurfaceLoaded || !g.state.DataLoaded {
		return false
	}
	return g.state.InitialRenderDone || g.view.Count() > 0
}

// attempt renders now if the style is loaded, otherwise waits for the first
// of idle, sourcedata, styledata or the fallback timer.
func (g *Gate) attempt() {
	g.phase = Rendering
	if g.surface.IsStyleLoaded() {
		g.render("immediate")
		return
	}

	guard := g.state.Guard()
	if !guard.TryAcquire() {
		g.logger.Debug().Msg("Render retry already scheduled")
		return
	}
	g.logger.Debug().Dur("fallback", g.fallback).Msg("Style loading, waiting for surface signal")

	fired := false
	var disposers []loop.Disposer
	cleanup := func() {
		for _, dispose := range disposers {
			dispose()
		}
		guard.Release()
	}

	onSignal := func(evt surface.Event) surface.Handler {
		return func() {
			if fired || !g.surface.IsStyleLoaded() {
				return
			}
			fired = true
			cleanup()
			g.logger.Debug().Str("signal", string(evt)).Msg("Surface signal fired")
			g.sched.AfterFunc(g.settle, func() {
				if g.view.Count() > 0 {
					g.render(string(evt))
				}
			})
		}
	}
	for _, evt := range []surface.Event{surface.Idle, surface.SourceData, surface.StyleData} {
		disposers = append(disposers, g.surface.On(evt, onSignal(evt)))
	}

	disposers = append(disposers, g.sched.AfterFunc(g.fallback, func() {
		if fired {
			return
		}
		fired = true
		cleanup()
		g.logger.Debug().Msg("Render fallback timer fired")
		if g.view.Count() > 0 {
			g.render("fallback")
		}
	}))
}

func (g *Gate) render(trigger string) {
	evs := g.view.Events()
	if err := g.renderer.Update(evs); err != nil {
		g.logger.Error().Err(err).Str("trigger", trigger).Msg("Marker render failed")
		return
	}
	g.attempts++
	g.phase = Rendered
	if !g.state.InitialRenderDone {
		g.state.InitialRenderDone = true
		g.logger.Info().Int("count", len(evs)).Str("trigger", trigger).Msg("Initial markers rendered")
	}
	if g.onRendered != nil {
		g.onRendered(len(evs))
	}
}

// StartSweep begins a bounded series of layer-presence checks that force a
// render attempt if a lifecycle signal was missed. It does nothing while a
// sweep is running or no events are present.
func (g *Gate) StartSweep() {
	if g.sweeping || g.view.Count() == 0 {
		return
	}
	g.sweeping = true
	g.sweepLeft = constants.SweepChecks
	g.sched.AfterFunc(g.sweepEvery, g.sweep)
}

func (g *Gate) sweep() {
	g.sweepLeft--
	if g.view.Count() == 0 {
		g.sweeping = false
		return
	}
	if !g.state.SurfaceLoaded && g.surface.IsLoaded() {
		g.logger.Warn().Msg("Surface load signal was missed")
		g.state.SurfaceLoaded = true
	}
	if !g.layersPresent() && !g.state.InitialRenderDone && g.ready() {
		g.logger.Warn().Int("checks_left", g.sweepLeft).Msg("Marker layers missing, forcing render attempt")
		g.attempt()
	}
	if g.sweepLeft <= 0 {
		g.sweeping = false
		return
	}
	g.sched.AfterFunc(g.sweepEvery, g.sweep)
}

func (g *Gate) layersPresent() bool {
	for _, id := range markers.LayerIDs {
		if !g.surface.HasLayer(id) {
			return false
		}
	}
	return true
}
