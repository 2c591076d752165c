package status

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/safemelbourne/livemap/pkg/constants"
	"github.com/safemelbourne/livemap/pkg/errors"
)

// DefaultPath is the backend status endpoint.
const DefaultPath = "/api/scrape/status"

type response struct {
	Success bool `json:"success"`
	Data    *struct {
		Status string `json:"status"`
	} `json:"data"`
	Status string `json:"status"`
}

// Poller checks the status endpoint on a fixed interval. Failures of any kind
// leave the last known status in place.
type Poller struct {
	http     *resty.Client
	path     string
	interval time.Duration
	logger   *zerolog.Logger

	mu      sync.RWMutex
	current Status
	checked time.Time
}

// Option configures a Poller.
type Option func(*Poller)

// WithPath overrides the status endpoint path.
func WithPath(path string) Option {
	return func(p *Poller) {
		p.path = path
	}
}

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLogger sets the poller logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// NewPoller creates a Poller for the backend at baseURL. The initial status
// is Idle.
func NewPoller(baseURL string, opts ...Option) *Poller {
	nop := zerolog.Nop()
	p := &Poller{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(constants.DefaultHTTPTimeout).
			SetHeader("Accept", "application/json"),
		path:     DefaultPath,
		interval: constants.StatusPollInterval,
		logger:   &nop,
		current:  Idle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Current returns the last known status.
func (p *Poller) Current() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// LastChecked returns when the status was last read successfully.
func (p *Poller) LastChecked() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.checked
}

// Check performs one request. It returns the resulting status and whether it
// differs from the previous one. On error the status is unchanged.
func (p *Poller) Check(ctx context.Context) (Status, bool, error) {
	resp, err := p.http.R().
		SetContext(ctx).
		SetResult(&response{}).
		ForceContentType("application/json").
		Get(p.path)
	if err != nil {
		return p.Current(), false, errors.NewFetchError("status", 0, "request failed", err)
	}
	if resp.StatusCode() != 200 {
		return p.Current(), false, errors.NewFetchError("status", resp.StatusCode(), resp.Status(), nil)
	}
	body, ok := resp.Result().(*response)
	if !ok || body == nil {
		return p.Current(), false, errors.NewParseError("json", "unexpected status body", nil)
	}

	raw := body.Status
	if body.Data != nil {
		raw = body.Data.Status
	}
	next := Parse(raw)

	p.mu.Lock()
	defer p.mu.Unlock()
	changed := next != p.current
	p.current = next
	p.checked = time.Now()
	return next, changed, nil
}

// Run checks immediately and then on every interval until ctx is done.
// onChange is called from the polling goroutine whenever the status changes.
func (p *Poller) Run(ctx context.Context, onChange func(Status)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx, onChange)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx, onChange)
		}
	}
}

func (p *Poller) poll(ctx context.Context, onChange func(Status)) {
	st, changed, err := p.Check(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Debug().Err(err).Msg("Status check failed")
		}
		return
	}
	if changed {
		p.logger.Info().Str("status", string(st)).Msg("Scraping status changed")
		if onChange != nil {
			onChange(st)
		}
	}
}
