package livemap

import (
	"sync"

	"github.com/safemelbourne/livemap/pkg/events"
	"github.com/safemelbourne/livemap/pkg/status"
)

// Hook function types for dashboard events
type (
	// EventsChangedHook is called with the filtered view after a bulk load,
	// a live merge or a filter change.
	EventsChangedHook func(view []events.Event)

	// RenderedHook is called after markers are pushed to the surface.
	RenderedHook func(count int)

	// StatusChangedHook is called when the scraping status changes.
	StatusChangedHook func(st status.Status)

	// FetchErrorHook is called when a bulk fetch fails.
	FetchErrorHook func(err error)
)

// hooks manages dashboard callbacks
type hooks struct {
	mu              sync.RWMutex
	onEventsChanged []EventsChangedHook
	onRendered      []RenderedHook
	onStatusChanged []StatusChangedHook
	onFetchError    []FetchErrorHook
}

func newHooks() *hooks {
	return &hooks{}
}

func (d *dashboard) OnEventsChanged(fn EventsChangedHook) {
	d.hooks.mu.Lock()
	defer d.hooks.mu.Unlock()
	d.hooks.onEventsChanged = append(d.hooks.onEventsChanged, fn)
}

func (d *dashboard) OnRendered(fn RenderedHook) {
	d.hooks.mu.Lock()
	defer d.hooks.mu.Unlock()
	d.hooks.onRendered = append(d.hooks.onRendered, fn)
}

func (d *dashboard) OnStatusChanged(fn StatusChangedHook) {
	d.hooks.mu.Lock()
	defer d.hooks.mu.Unlock()
	d.hooks.onStatusChanged = append(d.hooks.onStatusChanged, fn)
}

func (d *dashboard) OnFetchError(fn FetchErrorHook) {
	d.hooks.mu.Lock()
	defer d.hooks.mu.Unlock()
	d.hooks.onFetchError = append(d.hooks.onFetchError, fn)
}

func (h *hooks) triggerEventsChanged(view []events.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.onEventsChanged {
		hook(view)
	}
}

func (h *hooks) triggerRendered(n int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.onRendered {
		hook(n)
	}
}

func (h *hooks) triggerStatusChanged(st status.Status) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.onStatusChanged {
		hook(st)
	}
}

func (h *hooks) triggerFetchError(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.onFetchError {
		hook(err)
	}
}
