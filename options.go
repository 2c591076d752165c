package livemap

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/safemelbourne/livemap/pkg/constants"
	"github.com/safemelbourne/livemap/pkg/errors"
	"github.com/safemelbourne/livemap/pkg/events"
	"github.com/safemelbourne/livemap/pkg/fetch"
	"github.com/safemelbourne/livemap/pkg/logging"
	"github.com/safemelbourne/livemap/pkg/loop"
	"github.com/safemelbourne/livemap/pkg/status"
	"github.com/safemelbourne/livemap/pkg/stream"
	"github.com/safemelbourne/livemap/pkg/surface"
)

// Option is a function that configures a Dashboard.
type Option func(*config) error

type config struct {
	fetcher     Fetcher
	stream      StreamClient
	poller      StatusPoller
	scheduler   loop.Scheduler
	ownsLoop    bool
	mobile      bool
	hours       int
	filter      events.Filter
	style       string
	storeCap    int
	autoRefresh time.Duration
	logger      *zerolog.Logger
}

func defaultConfig() *config {
	nop := zerolog.Nop()
	return &config{
		hours:    constants.DefaultTimeWindowHours,
		filter:   events.FilterAll,
		style:    surface.Styles[0].URL(),
		storeCap: constants.StoreCap,
		logger:   &nop,
	}
}

// WithBackend configures the fetcher, stream client and status poller for
// the backend at baseURL. Options given later override individual pieces.
func WithBackend(baseURL string) Option {
	return func(c *config) error {
		if baseURL == "" {
			return errors.NewValidationError("baseURL", baseURL, "must not be empty")
		}
		c.fetcher = fetch.New(baseURL, fetch.WithLogger(logging.Component(c.logger, "fetch")))
		c.stream = stream.New(baseURL, stream.WithLogger(logging.Component(c.logger, "stream")))
		c.poller = status.NewPoller(baseURL, status.WithLogger(logging.Component(c.logger, "status")))
		return nil
	}
}

// WithFetcher sets the bulk fetcher.
func WithFetcher(f Fetcher) Option {
	return func(c *config) error {
		c.fetcher = f
		return nil
	}
}

// WithStreamClient sets the live update source. Nil disables streaming.
func WithStreamClient(s StreamClient) Option {
	return func(c *config) error {
		c.stream = s
		return nil
	}
}

// WithStatusPoller sets the scraping status poller. Nil disables polling.
func WithStatusPoller(p StatusPoller) Option {
	return func(c *config) error {
		c.poller = p
		return nil
	}
}

// WithScheduler sets the loop that owns the surface. A *loop.Loop passed
// here is run by Dashboard.Run; any other scheduler is driven by the caller.
func WithScheduler(s loop.Scheduler) Option {
	return func(c *config) error {
		c.scheduler = s
		_, c.ownsLoop = s.(*loop.Loop)
		return nil
	}
}

// WithMobile selects the slower mobile render timings.
func WithMobile(mobile bool) Option {
	return func(c *config) error {
		c.mobile = mobile
		return nil
	}
}

// WithTimeWindow sets the initial time window in hours. Zero means no window.
func WithTimeWindow(hours int) Option {
	return func(c *config) error {
		if hours < 0 {
			return errors.NewValidationError("hours", hours, "must not be negative")
		}
		c.hours = hours
		return nil
	}
}

// WithFilter sets the initial category filter.
func WithFilter(f events.Filter) Option {
	return func(c *config) error {
		parsed, err := events.ParseFilter(string(f))
		if err != nil {
			return err
		}
		c.filter = parsed
		return nil
	}
}

// WithStyle records the style the surface was created with.
func WithStyle(url string) Option {
	return func(c *config) error {
		c.style = url
		return nil
	}
}

// WithStoreCap sets how many events the store retains after a live merge.
func WithStoreCap(n int) Option {
	return func(c *config) error {
		if n <= 0 {
			return errors.NewValidationError("storeCap", n, "must be positive")
		}
		c.storeCap = n
		return nil
	}
}

// WithAutoRefresh refetches the bulk snapshot on a fixed interval while the
// dashboard runs. Zero disables it.
func WithAutoRefresh(interval time.Duration) Option {
	return func(c *config) error {
		if interval < 0 {
			return errors.NewValidationError("autoRefresh", interval, "must not be negative")
		}
		c.autoRefresh = interval
		return nil
	}
}

// WithLogger sets the logger used by the dashboard and its components.
// Pass it before WithBackend so the backend clients share it.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *config) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}
