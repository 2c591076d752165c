// Package app provides the application context and dependency management
// for the livemap CLI. It centralizes configuration, logging and the
// lifecycle of the dashboard a command builds.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/safemelbourne/livemap"
	"github.com/safemelbourne/livemap/pkg/errors"
	"github.com/safemelbourne/livemap/pkg/events"
	"github.com/safemelbourne/livemap/pkg/fetch"
	"github.com/safemelbourne/livemap/pkg/loop"
	"github.com/safemelbourne/livemap/pkg/status"
	"github.com/safemelbourne/livemap/pkg/stream"
	"github.com/safemelbourne/livemap/pkg/surface"
)

// App represents the livemap application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger

	// Shutdown hooks registered by running commands
	mu       sync.Mutex
	shutdown []func(context.Context) error
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig("")
	if err != nil {
		return nil, err
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// Fetcher builds a bulk fetch client for the configured backend.
func (a *App) Fetcher() *fetch.Client {
	return fetch.New(a.config.BaseURL,
		fetch.WithMinConfidence(a.config.MinConfidence),
		fetch.WithWarningLimit(a.config.WarningLimit),
		fetch.WithLogger(a.logger),
	)
}

// Dashboard builds a dashboard rendering into s on sched, wired to the
// configured backend's fetch, stream and status endpoints.
func (a *App) Dashboard(s surface.Surface, sched loop.Scheduler) (livemap.Dashboard, error) {
	cfg := a.config
	style, err := cfg.StyleURL()
	if err != nil {
		return nil, err
	}

	d, err := livemap.New(s,
		livemap.WithLogger(a.logger),
		livemap.WithFetcher(a.Fetcher()),
		livemap.WithStreamClient(stream.New(cfg.BaseURL,
			stream.WithPath(cfg.StreamPath),
			stream.WithLogger(a.logger),
		)),
		livemap.WithStatusPoller(status.NewPoller(cfg.BaseURL,
			status.WithPath(cfg.StatusPath),
			status.WithLogger(a.logger),
		)),
		livemap.WithScheduler(sched),
		livemap.WithMobile(cfg.Mobile),
		livemap.WithTimeWindow(cfg.Hours),
		livemap.WithFilter(events.Filter(cfg.Filter)),
		livemap.WithStyle(style),
		livemap.WithStoreCap(cfg.StoreCap),
		livemap.WithAutoRefresh(cfg.AutoRefresh),
	)
	if err != nil {
		return nil, errors.NewConfigError("dashboard", "creating dashboard", err)
	}
	return d, nil
}

// OnShutdown registers fn to run during Shutdown.
func (a *App) OnShutdown(fn func(context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdown = append(a.shutdown, fn)
}

// Shutdown runs the registered shutdown hooks in reverse order and returns
// the first error.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	hooks := a.shutdown
	a.shutdown = nil
	a.mu.Unlock()

	var first error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			a.logger.Error().Err(err).Msg("Shutdown hook failed")
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}
