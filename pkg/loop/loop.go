// Package loop provides the single goroutine that owns all dashboard state.
// Network callbacks, surface lifecycle signals and timers are all funnelled
// onto it, so the state they touch needs no further locking.
package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Disposer removes a subscription or cancels a timer. Calling it more than
// once is harmless.
type Disposer func()

// Scheduler runs closures one at a time on a single logical thread.
type Scheduler interface {
	// Post queues fn to run after everything already queued.
	Post(fn func())

	// AfterFunc runs fn on the loop once d has elapsed, unless disposed first.
	AfterFunc(d time.Duration, fn func()) Disposer

	// Call runs fn on the loop and waits for it to finish.
	Call(ctx context.Context, fn func()) error
}

// Loop is a Scheduler backed by one goroutine started with Run.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	logger *zerolog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used to report recovered panics.
func WithLogger(logger *zerolog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates a Loop. Nothing runs until Run is called.
func New(opts ...Option) *Loop {
	nop := zerolog.Nop()
	l := &Loop{
		wake:   make(chan struct{}, 1),
		logger: &nop,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes queued closures until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug().Msg("Event loop started")
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug().Msg("Event loop stopped")
			return ctx.Err()
		case <-l.wake:
			for {
				fn, ok := l.next()
				if !ok {
					break
				}
				l.run(fn)
				if ctx.Err() != nil {
					break
				}
			}
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("Recovered panic in event loop")
		}
	}()
	fn()
}

// Post queues fn. It never blocks.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc schedules fn on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Disposer {
	var canceled atomic.Bool
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if !canceled.Load() {
				fn()
			}
		})
	})
	return func() {
		canceled.Store(true)
		t.Stop()
	}
}

// Call runs fn on the loop and blocks until it returns or ctx is done.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Guard is a single-flight flag. It marks that a deferred retry is already
// pending so a second caller does not schedule another one. It is only
// touched from the loop goroutine.
type Guard struct {
	held bool
}

// TryAcquire takes the guard, reporting false if it was already held.
func (g *Guard) TryAcquire() bool {
	if g.held {
		return false
	}
	g.held = true
	return true
}

// Release frees the guard.
func (g *Guard) Release() {
	g.held = false
}

// Held reports whether a retry is pending.
func (g *Guard) Held() bool {
	return g.held
}
