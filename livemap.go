// Package livemap keeps a rendering surface in step with the live civic-safety
// event feed. A Dashboard owns the event store, the readiness gate and the
// marker updater, and feeds them from a bulk fetcher, the update stream and
// the scraping status poller.
package livemap

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/safemelbourne/livemap/pkg/errors"
	"github.com/safemelbourne/livemap/pkg/events"
	"github.com/safemelbourne/livemap/pkg/fetch"
	"github.com/safemelbourne/livemap/pkg/gate"
	"github.com/safemelbourne/livemap/pkg/logging"
	"github.com/safemelbourne/livemap/pkg/loop"
	"github.com/safemelbourne/livemap/pkg/markers"
	"github.com/safemelbourne/livemap/pkg/status"
	"github.com/safemelbourne/livemap/pkg/store"
	"github.com/safemelbourne/livemap/pkg/stream"
	"github.com/safemelbourne/livemap/pkg/surface"
)

// Fetcher loads a bulk snapshot covering the last hours hours.
type Fetcher interface {
	Fetch(ctx context.Context, hours int) (*fetch.Result, error)
}

// StreamClient delivers live deltas until ctx is done.
type StreamClient interface {
	Run(ctx context.Context, handle stream.Handler) error
}

// StatusPoller reports scraping status changes until ctx is done.
type StatusPoller interface {
	Run(ctx context.Context, onChange func(status.Status)) error
	Current() status.Status
}

// Dashboard keeps a surface rendering the current event view.
type Dashboard interface {
	// Run drives the dashboard until ctx is done.
	Run(ctx context.Context) error

	// Refresh performs a bulk fetch for the current time window.
	Refresh(ctx context.Context) error

	// SetTimeWindow changes the time window and refetches. Zero means no window.
	SetTimeWindow(ctx context.Context, hours int) error

	// SetFilter changes the category filter and re-renders.
	SetFilter(ctx context.Context, f events.Filter) error

	// ChangeStyle switches the surface style by id or style URL.
	ChangeStyle(ctx context.Context, style string) error

	// View returns the events visible under the current filter.
	View() []events.Event

	// ViewOf returns the events visible under f.
	ViewOf(f events.Filter) []events.Event

	// State returns a snapshot of the dashboard.
	State() State

	// Err returns the last bulk fetch error, or nil.
	Err() error

	// Status returns the last known scraping status.
	Status() status.Status

	OnEventsChanged(EventsChangedHook)
	OnRendered(RenderedHook)
	OnStatusChanged(StatusChangedHook)
	OnFetchError(FetchErrorHook)
}

// State is a point-in-time view of the dashboard.
type State struct {
	Readiness     gate.ReadinessState `json:"readiness"`
	RetryInFlight bool                `json:"retryInFlight"`
	Phase         string              `json:"phase"`
	Markers       markers.State       `json:"markers"`
	Filter        events.Filter       `json:"filter"`
	Hours         int                 `json:"hours"`
	Style         string              `json:"style,omitempty"`
	Events        int                 `json:"events"`
	Visible       int                 `json:"visible"`
	Loading       bool                `json:"loading"`
	Error         string              `json:"error,omitempty"`
	Status        status.Status       `json:"status"`
	Version       uint64              `json:"version"`
}

// Compile-time check that the dashboard can serve as the gate's view.
var _ gate.View = (*dashboard)(nil)

type dashboard struct {
	cfg     *config
	surface surface.Surface
	sched   loop.Scheduler
	store   *store.Store
	gate    *gate.Gate
	updater *markers.Updater
	hooks   *hooks
	logger  *zerolog.Logger

	readiness gate.ReadinessState
	layers    markers.State

	mu        sync.RWMutex
	filter    events.Filter
	hours     int
	style     string
	current   status.Status
	published State

	loading atomic.Int32
	running atomic.Bool
}

// New creates a Dashboard rendering into s.
func New(s surface.Surface, opts ...Option) (Dashboard, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if s == nil {
		return nil, errors.NewConfigError("dashboard", "surface is required", nil)
	}
	if cfg.fetcher == nil {
		return nil, errors.NewConfigError("dashboard", "a fetcher or backend URL is required", nil)
	}

	logger := cfg.logger
	if cfg.scheduler == nil {
		cfg.scheduler = loop.New(loop.WithLogger(logging.Component(logger, "loop")))
		cfg.ownsLoop = true
	}

	d := &dashboard{
		cfg:     cfg,
		surface: s,
		sched:   cfg.scheduler,
		store:   store.New(store.WithCapacity(cfg.storeCap), store.WithLogger(logging.Component(logger, "store"))),
		hooks:   newHooks(),
		logger:  logger,
		filter:  cfg.filter,
		hours:   cfg.hours,
		style:   cfg.style,
		current: status.Idle,
	}
	if cfg.poller != nil {
		d.current = cfg.poller.Current()
	}

	d.updater = markers.NewUpdater(s,
		markers.WithState(&d.layers),
		markers.WithRetryGuard(d.readiness.Guard()),
		markers.WithLogger(logging.Component(logger, "markers")),
	)
	d.gate = gate.New(s, d.sched, d.updater, d,
		gate.WithState(&d.readiness),
		gate.WithMobile(cfg.mobile),
		gate.WithOnRendered(d.rendered),
		gate.WithLogger(logging.Component(logger, "gate")),
	)
	d.publish()
	return d, nil
}

// Count implements gate.View with the unfiltered event count.
func (d *dashboard) Count() int {
	return d.store.Len()
}

// Events implements gate.View with the filtered view.
func (d *dashboard) Events() []events.Event {
	return d.View()
}

func (d *dashboard) View() []events.Event {
	return d.store.CurrentView(d.currentFilter())
}

func (d *dashboard) ViewOf(f events.Filter) []events.Event {
	return d.store.CurrentView(f)
}

func (d *dashboard) currentFilter() events.Filter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter
}

func (d *dashboard) timeWindow() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.hours
}

func (d *dashboard) Err() error {
	return d.store.Err()
}

func (d *dashboard) Status() status.Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

func (d *dashboard) State() State {
	d.mu.RLock()
	st := d.published
	st.Filter = d.filter
	st.Hours = d.hours
	st.Style = d.style
	st.Status = d.current
	d.mu.RUnlock()

	st.Events = d.store.Len()
	st.Visible = len(d.store.CurrentView(st.Filter))
	st.Loading = d.loading.Load() > 0
	st.Version = d.store.Version()
	if err := d.store.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// publish copies the loop-owned state for readers on other goroutines. It
// must run on the loop.
func (d *dashboard) publish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.published.Readiness = d.readiness
	d.published.RetryInFlight = d.readiness.RetryInFlight()
	d.published.Phase = d.gate.Phase().String()
	d.published.Markers = d.updater.State()
}

// onLoop runs fn on the loop and republishes state afterwards.
func (d *dashboard) onLoop(ctx context.Context, fn func()) error {
	return d.sched.Call(ctx, func() {
		fn()
		d.publish()
	})
}

func (d *dashboard) rendered(n int) {
	d.publish()
	d.hooks.triggerRendered(n)
}

func (d *dashboard) SetFilter(ctx context.Context, f events.Filter) error {
	f, err := events.ParseFilter(string(f))
	if err != nil {
		return err
	}
	d.mu.Lock()
	changed := d.filter != f
	d.filter = f
	d.mu.Unlock()
	if !changed {
		return nil
	}

	d.logger.Info().Str("filter", string(f)).Msg("Filter changed")
	if err := d.onLoop(ctx, d.gate.Evaluate); err != nil {
		return err
	}
	d.hooks.triggerEventsChanged(d.View())
	return nil
}

func (d *dashboard) ChangeStyle(ctx context.Context, style string) error {
	url := style
	if st, ok := surface.LookupStyle(style); ok {
		url = st.URL()
	} else if !surface.IsStyleURL(style) {
		return errors.NewValidationError("style", style, "unknown style")
	}

	d.mu.Lock()
	d.style = url
	d.mu.Unlock()

	d.logger.Info().Str("style", url).Msg("Switching map style")
	return d.onLoop(ctx, func() {
		d.surface.SetStyle(url)
		d.gate.Evaluate()
	})
}
