package gate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safemelbourne/livemap/pkg/constants"
	"github.com/safemelbourne/livemap/pkg/events"
	"github.com/safemelbourne/livemap/pkg/gate"
	"github.com/safemelbourne/livemap/pkg/loop"
	"github.com/safemelbourne/livemap/pkg/markers"
	"github.com/safemelbourne/livemap/pkg/surface"
	"github.com/safemelbourne/livemap/pkg/surface/headless"
)

// fakeView is a fixed event list.
type fakeView struct {
	evs []events.Event
}

func (v *fakeView) Count() int             { return len(v.evs) }
func (v *fakeView) Events() []events.Event { return v.evs }

// countingRenderer wraps a real updater and counts calls.
type countingRenderer struct {
	inner *markers.Updater
	calls int
	last  []events.Event
}

func (r *countingRenderer) Update(evs []events.Event) error {
	r.calls++
	r.last = evs
	return r.inner.Update(evs)
}

type fixture struct {
	sched    *loop.Manual
	surface  *headless.Surface
	view     *fakeView
	renderer *countingRenderer
	gate     *gate.Gate
	state    *gate.ReadinessState
}

func newFixture(t *testing.T, opts ...gate.Option) *fixture {
	t.Helper()
	f := &fixture{
		sched:   loop.NewManual(),
		surface: headless.New(),
		view:    &fakeView{},
		state:   &gate.ReadinessState{},
	}
	f.renderer = &countingRenderer{
		inner: markers.NewUpdater(f.surface, markers.WithRetryGuard(f.state.Guard())),
	}
	opts = append([]gate.Option{gate.WithState(f.state)}, opts...)
	f.gate = gate.New(f.surface, f.sched, f.renderer, f.view, opts...)
	return f
}

func oneEvent() []events.Event {
	return []events.Event{{ID: 1, Type: events.CategoryProtest, Lat: -37.8, Lng: 144.9}}
}

func TestNoRenderUntilSurfaceLoaded(t *testing.T) {
	f := newFixture(t)
	f.view.evs = oneEvent()
	f.gate.SetDataLoaded(true)

	assert.Zero(t, f.renderer.calls)
	assert.Equal(t, gate.WaitingForBoth, f.gate.Phase())

	f.surface.Load()
	f.gate.SurfaceLoaded()
	f.gate.SurfaceLoaded()

	assert.Equal(t, 1, f.renderer.calls, "exactly one render attempt")
	assert.True(t, f.state.InitialRenderDone)
	assert.Equal(t, gate.Rendered, f.gate.Phase())
}

func TestNoRenderUntilDataLoaded(t *testing.T) {
	f := newFixture(t)
	f.surface.Load()
	f.gate.SurfaceLoaded()
	assert.Zero(t, f.renderer.calls)

	f.gate.SetDataLoaded(true)
	assert.Zero(t, f.renderer.calls, "no events yet")

	f.view.evs = oneEvent()
	f.gate.Evaluate()
	assert.Equal(t, 1, f.renderer.calls)
}

func TestRenderedPathCallsRendererDirectly(t *testing.T) {
	f := newFixture(t)
	f.surface.Load()
	f.view.evs = oneEvent()
	f.gate.SurfaceLoaded()
	f.gate.SetDataLoaded(true)
	require.Equal(t, 1, f.renderer.calls)

	f.view.evs = append(f.view.evs, events.Event{ID: 2, Type: events.CategoryWarning, Lat: -37.7, Lng: 145})
	f.gate.Evaluate()
	assert.Equal(t, 2, f.renderer.calls)
	assert.Zero(t, f.surface.Registrations(surface.Idle), "no waiting logic after first render")

	data, _ := f.surface.Data(constants.SourceID)
	assert.Len(t, data.Features, 2)
}

func TestEmptyViewAfterFirstRenderStillRenders(t *testing.T) {
	f := newFixture(t)
	f.surface.Load()
	f.view.evs = oneEvent()
	f.gate.SurfaceLoaded()
	f.gate.SetDataLoaded(true)
	require.Equal(t, 1, f.renderer.calls)

	f.view.evs = nil
	f.gate.Evaluate()
	assert.Equal(t, 2, f.renderer.calls)

	data, _ := f.surface.Data(constants.SourceID)
	assert.Empty(t, data.Features)
}

func TestWaitsForSignalWhenStyleLoading(t *testing.T) {
	f := newFixture(t)
	f.view.evs = oneEvent()
	f.gate.SurfaceLoaded()
	f.gate.SetDataLoaded(true)

	assert.Zero(t, f.renderer.calls)
	assert.True(t, f.state.RetryInFlight())
	assert.Equal(t, gate.Rendering, f.gate.Phase())
	assert.Equal(t, 1, f.surface.Listeners(surface.Idle))
	assert.Equal(t, 1, f.surface.Listeners(surface.SourceData))
	assert.Equal(t, 1, f.surface.Listeners(surface.StyleData))

	f.surface.Load()
	assert.False(t, f.state.RetryInFlight())
	assert.Zero(t, f.surface.Listeners(surface.Idle), "losing listeners are removed")
	assert.Zero(t, f.surface.Listeners(surface.SourceData))
	assert.Zero(t, f.surface.Listeners(surface.StyleData))
	assert.Zero(t, f.renderer.calls, "render waits for the settle delay")

	f.sched.Advance(constants.RenderSettleDesktop)
	assert.Equal(t, 1, f.renderer.calls)
	assert.True(t, f.state.InitialRenderDone)

	f.sched.Advance(constants.RenderFallbackDesktop)
	assert.Equal(t, 1, f.renderer.calls, "fallback timer was disposed")
}

func TestSignalWhileStyleStillLoadingIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.view.evs = oneEvent()
	f.gate.SurfaceLoaded()
	f.gate.SetDataLoaded(true)

	f.surface.Emit(surface.SourceData)
	assert.True(t, f.state.RetryInFlight())
	assert.Equal(t, 1, f.surface.Listeners(surface.SourceData))
}

func TestRetrySingleton(t *testing.T) {
	f := newFixture(t)
	f.view.evs = oneEvent()
	f.gate.SurfaceLoaded()
	f.gate.SetDataLoaded(true)

	for i := 0; i < 5; i++ {
		f.gate.Evaluate()
	}
	// The updater shares the guard, so calling it directly adds nothing either.
	require.NoError(t, f.renderer.inner.Update(f.view.evs))

	assert.Equal(t, 1, f.surface.Registrations(surface.Idle))
	assert.Equal(t, 1, f.surface.Registrations(surface.SourceData))
	assert.Equal(t, 1, f.surface.Registrations(surface.StyleData))
}

func TestFallbackTimer(t *testing.T) {
	tests := []struct {
		name     string
		mobile   bool
		fallback time.Duration
	}{
		{"desktop", false, constants.RenderFallbackDesktop},
		{"mobile", true, constants.RenderFallbackMobile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, gate.WithMobile(tt.mobile))
			f.view.evs = oneEvent()
			f.gate.SurfaceLoaded()
			f.gate.SetDataLoaded(true)

			f.sched.Advance(tt.fallback - time.Millisecond)
			assert.Zero(t, f.renderer.calls)

			f.sched.Advance(time.Millisecond)
			assert.Equal(t, 1, f.renderer.calls)
			assert.True(t, f.state.InitialRenderDone)
			assert.Zero(t, f.surface.Listeners(surface.SourceData), "gate listeners disposed")
			assert.Zero(t, f.surface.Listeners(surface.StyleData))

			// The style never loaded, so the updater deferred to idle itself
			// and now holds the shared guard.
			assert.Equal(t, 1, f.surface.Listeners(surface.Idle))
			assert.True(t, f.state.RetryInFlight())

			f.surface.Load()
			data, ok := f.surface.Data(constants.SourceID)
			require.True(t, ok)
			assert.Len(t, data.Features, 1)
			assert.False(t, f.state.RetryInFlight())
		})
	}
}

func TestMobileSettleDelay(t *testing.T) {
	f := newFixture(t, gate.WithMobile(true))
	f.view.evs = oneEvent()
	f.gate.SurfaceLoaded()
	f.gate.SetDataLoaded(true)

	f.surface.Load()
	f.sched.Advance(constants.RenderSettleDesktop)
	assert.Zero(t, f.renderer.calls)
	f.sched.Advance(constants.RenderSettleMobile - constants.RenderSettleDesktop)
	assert.Equal(t, 1, f.renderer.calls)
}

func TestSettleSkippedWhenEventsVanish(t *testing.T) {
	f := newFixture(t)
	f.view.evs = oneEvent()
	f.gate.SurfaceLoaded()
	f.gate.SetDataLoaded(true)

	f.surface.Load()
	f.view.evs = nil
	f.sched.Advance(time.Second)
	assert.Zero(t, f.renderer.calls)
	assert.False(t, f.state.InitialRenderDone)
}

func TestSweepForcesRenderWhenLayersMissing(t *testing.T) {
	f := newFixture(t)
	f.view.evs = oneEvent()
	f.gate.SetDataLoaded(true)
	f.surface.Load() // load signal never reached the gate

	f.gate.StartSweep()
	f.gate.StartSweep()
	assert.Zero(t, f.renderer.calls)

	f.sched.Advance(constants.SweepInterval)
	assert.Equal(t, 1, f.renderer.calls)
	assert.True(t, f.state.SurfaceLoaded)

	f.sched.Advance(constants.SweepInterval * constants.SweepChecks)
	assert.Equal(t, 1, f.renderer.calls, "sweep is a no-op once layers exist")
	assert.Zero(t, f.sched.Pending())
}

func TestSweepStopsAfterFiveChecks(t *testing.T) {
	f := newFixture(t)
	f.view.evs = oneEvent()
	f.gate.StartSweep()

	for i := 0; i < constants.SweepChecks; i++ {
		assert.Equal(t, 1, f.sched.Pending(), "check %d", i)
		f.sched.Advance(constants.SweepInterval)
	}
	assert.Zero(t, f.sched.Pending())
	assert.Zero(t, f.renderer.calls, "surface never loaded")
}

func TestSweepNeedsEvents(t *testing.T) {
	f := newFixture(t)
	f.gate.StartSweep()
	assert.Zero(t, f.sched.Pending())
}

func TestOnRenderedHook(t *testing.T) {
	var counts []int
	f := newFixture(t, gate.WithOnRendered(func(n int) { counts = append(counts, n) }))
	f.surface.Load()
	f.view.evs = oneEvent()
	f.gate.SurfaceLoaded()
	f.gate.SetDataLoaded(true)
	f.gate.Evaluate()
	assert.Equal(t, []int{1, 1}, counts)
	assert.Equal(t, 2, f.gate.Attempts())
}
