package livemap

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/safemelbourne/livemap/pkg/errors"
	"github.com/safemelbourne/livemap/pkg/loop"
	"github.com/safemelbourne/livemap/pkg/status"
	"github.com/safemelbourne/livemap/pkg/stream"
	"github.com/safemelbourne/livemap/pkg/surface"
)

// Run attaches to the surface, starts the stream and status poller, performs
// the initial bulk fetch and then blocks until ctx is done. A failed initial
// fetch is reported through OnFetchError and does not stop the dashboard.
func (d *dashboard) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.NewConfigError("dashboard", "already running", nil)
	}
	defer d.running.Store(false)

	var wg conc.WaitGroup
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		wg.Wait()
	}()

	if l, ok := d.sched.(*loop.Loop); ok && d.cfg.ownsLoop {
		wg.Go(func() {
			_ = l.Run(ctx)
		})
	}

	if err := d.onLoop(ctx, d.attach); err != nil {
		if isDone(err) {
			return nil
		}
		return err
	}

	if d.cfg.stream != nil {
		wg.Go(func() {
			if err := d.cfg.stream.Run(ctx, d.applyDelta); err != nil && !isDone(err) {
				d.logger.Error().Err(err).Msg("Live stream stopped")
			}
		})
	}
	if d.cfg.poller != nil {
		wg.Go(func() {
			if err := d.cfg.poller.Run(ctx, d.statusChanged); err != nil && !isDone(err) {
				d.logger.Error().Err(err).Msg("Status poller stopped")
			}
		})
	}
	if d.cfg.autoRefresh > 0 {
		wg.Go(func() {
			d.autoRefreshLoop(ctx, d.cfg.autoRefresh)
		})
	}

	wg.Go(func() {
		if err := d.Refresh(ctx); err != nil && !isDone(err) {
			d.logger.Warn().Err(err).Msg("Initial fetch failed")
		}
	})

	d.logger.Info().
		Int("hours", d.timeWindow()).
		Str("filter", string(d.currentFilter())).
		Bool("stream", d.cfg.stream != nil).
		Bool("status", d.cfg.poller != nil).
		Msg("Dashboard running")

	<-ctx.Done()
	d.logger.Info().Msg("Dashboard stopping")
	return nil
}

// attach subscribes to the surface load signal. A surface that already
// loaded is recorded straight away.
func (d *dashboard) attach() {
	d.surface.On(surface.Load, func() {
		d.gate.SurfaceLoaded()
		d.publish()
	})
	d.surface.On(surface.Idle, func() {
		// Deferred marker updates also run on idle; publish after them.
		d.sched.Post(d.publish)
	})
	if d.surface.IsLoaded() {
		d.gate.SurfaceLoaded()
	}
}

// Refresh fetches a bulk snapshot for the current time window. Each request
// is tagged with a sequence number so a slow response cannot overwrite a
// newer one. On failure the previous events are kept and the error is
// recorded for Err and reported through OnFetchError.
func (d *dashboard) Refresh(ctx context.Context) error {
	hours := d.timeWindow()
	seq := d.store.NextSequence()

	d.loading.Add(1)
	res, err := d.cfg.fetcher.Fetch(ctx, hours)
	d.loading.Add(-1)

	if err != nil {
		if d.store.Fail(seq, err) {
			d.hooks.triggerFetchError(err)
		}
		return err
	}

	if !d.store.LoadSnapshot(seq, res.Events) {
		d.logger.Debug().Uint64("sequence", seq).Msg("Newer snapshot already applied")
		return nil
	}
	for _, degraded := range res.Degraded {
		d.logger.Warn().Err(degraded).Msg("Loaded snapshot without a source")
	}

	if err := d.onLoop(ctx, func() {
		d.gate.SetDataLoaded(true)
		d.gate.StartSweep()
	}); err != nil {
		return err
	}
	d.hooks.triggerEventsChanged(d.View())
	return nil
}

func (d *dashboard) SetTimeWindow(ctx context.Context, hours int) error {
	if hours < 0 {
		return errors.NewValidationError("hours", hours, "must not be negative")
	}
	d.mu.Lock()
	d.hours = hours
	d.mu.Unlock()

	d.logger.Info().Int("hours", hours).Msg("Time window changed")
	return d.Refresh(ctx)
}

// applyDelta merges a live update. Deltas arrive in stream order on the
// stream goroutine; the store serializes them.
func (d *dashboard) applyDelta(delta stream.Delta) {
	n := d.store.ApplyDelta(delta.Events, delta.Warnings)
	if n == 0 {
		return
	}
	d.sched.Post(func() {
		d.gate.Evaluate()
		d.publish()
	})
	d.hooks.triggerEventsChanged(d.View())
}

func (d *dashboard) statusChanged(st status.Status) {
	d.mu.Lock()
	d.current = st
	d.mu.Unlock()
	d.hooks.triggerStatusChanged(st)
}

func (d *dashboard) autoRefreshLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Refresh(ctx); err != nil && !isDone(err) {
				d.logger.Warn().Err(err).Msg("Scheduled refresh failed")
			}
		}
	}
}

func isDone(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
