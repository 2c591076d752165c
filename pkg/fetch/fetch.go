// Package fetch performs the bulk load of events from the backend. Protest
// events, road closures and warning markers are requested in parallel and
// combined into one snapshot.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/safemelbourne/livemap/pkg/constants"
	"github.com/safemelbourne/livemap/pkg/errors"
	"github.com/safemelbourne/livemap/pkg/events"
)

// Backend endpoint paths.
const (
	EventsPath         = "/api/events"
	RoadClosuresPath   = "/api/road-closures"
	WarningMarkersPath = "/api/warning-markers"
)

// Source names used in errors and logs.
const (
	SourceEvents       = "events"
	SourceRoadClosures = "road-closures"
	SourceWarnings     = "warning-markers"
)

// envelope is the shared response shape of the three endpoints. Only one
// of the list fields is populated per endpoint.
type envelope struct {
	Success      bool            `json:"success"`
	Events       json.RawMessage `json:"events"`
	RoadClosures json.RawMessage `json:"roadClosures"`
	Warnings     json.RawMessage `json:"warnings"`
	Error        string          `json:"error"`
}

// Result is a combined bulk snapshot.
type Result struct {
	// Events holds protests, then road closures, then warnings.
	Events []events.Event

	Protests     int
	RoadClosures int
	Warnings     int

	// Degraded lists secondary sources that failed and were treated as empty.
	Degraded []error

	FetchedAt time.Time
}

// Client fetches bulk snapshots.
type Client struct {
	http          *resty.Client
	minConfidence float64
	warningLimit  int
	logger        *zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithMinConfidence sets the lowest warning confidence requested.
func WithMinConfidence(v float64) Option {
	return func(c *Client) {
		c.minConfidence = v
	}
}

// WithWarningLimit caps how many warning markers are requested.
func WithWarningLimit(n int) Option {
	return func(c *Client) {
		c.warningLimit = n
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// WithRetries enables resty retries on transport errors.
func WithRetries(count int, wait time.Duration) Option {
	return func(c *Client) {
		c.http.SetRetryCount(count).SetRetryWaitTime(wait)
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	nop := zerolog.Nop()
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(constants.DefaultHTTPTimeout).
			SetHeader("Accept", "application/json"),
		minConfidence: constants.DefaultMinConfidence,
		warningLimit:  constants.DefaultWarningLimit,
		logger:        &nop,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch loads a snapshot covering the last hours hours; zero means no window.
// A failure of the protest events request fails the whole fetch. Failures of
// the road closure or warning requests degrade that source to empty.
func (c *Client) Fetch(ctx context.Context, hours int) (*Result, error) {
	var (
		protests, closures, warnings       []events.Event
		protestErr, closureErr, warningErr error
	)

	var wg conc.WaitGroup
	wg.Go(func() {
		protests, protestErr = c.get(ctx, EventsPath, SourceEvents, eventsQuery(hours), events.CategoryProtest, "")
	})
	wg.Go(func() {
		closures, closureErr = c.get(ctx, RoadClosuresPath, SourceRoadClosures, windowQuery(hours), "", events.CategoryRoadClosure)
	})
	wg.Go(func() {
		warnings, warningErr = c.get(ctx, WarningMarkersPath, SourceWarnings, c.warningsQuery(hours), "", events.CategoryWarning)
	})
	wg.Wait()

	if protestErr != nil {
		return nil, protestErr
	}

	res := &Result{FetchedAt: time.Now()}
	if closureErr != nil {
		res.Degraded = append(res.Degraded, errors.NewSourceError(SourceRoadClosures, closureErr))
		closures = nil
	}
	if warningErr != nil {
		res.Degraded = append(res.Degraded, errors.NewSourceError(SourceWarnings, warningErr))
		warnings = nil
	}
	for _, err := range res.Degraded {
		c.logger.Warn().Err(err).Msg("Continuing without source")
	}

	res.Protests, res.RoadClosures, res.Warnings = len(protests), len(closures), len(warnings)
	res.Events = make([]events.Event, 0, len(protests)+len(closures)+len(warnings))
	res.Events = append(res.Events, protests...)
	res.Events = append(res.Events, closures...)
	res.Events = append(res.Events, warnings...)

	c.logger.Info().
		Int("hours", hours).
		Int("protests", res.Protests).
		Int("road_closures", res.RoadClosures).
		Int("warnings", res.Warnings).
		Msg("Fetched bulk snapshot")
	return res, nil
}

func (c *Client) get(ctx context.Context, path, source string, query map[string]string, defaultType, forceType events.Category) ([]events.Event, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(&envelope{}).
		ForceContentType("application/json").
		Get(path)
	if err != nil {
		return nil, errors.NewFetchError(source, 0, "request failed", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, errors.NewFetchError(source, resp.StatusCode(), statusMessage(resp), nil)
	}

	env, ok := resp.Result().(*envelope)
	if !ok || env == nil {
		return nil, errors.NewFetchError(source, resp.StatusCode(), "unexpected response body", nil)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "backend reported failure"
		}
		return nil, errors.NewFetchError(source, 0, msg, nil)
	}

	raw := env.Events
	switch source {
	case SourceRoadClosures:
		raw = env.RoadClosures
	case SourceWarnings:
		raw = env.Warnings
	}

	evs, decodeErr := events.DecodeList(raw, defaultType, forceType)
	if decodeErr != nil {
		if evs == nil && errors.IsMalformed(decodeErr) {
			return nil, errors.NewFetchError(source, 0, "malformed list", decodeErr)
		}
		c.logger.Warn().Err(decodeErr).Str("source", source).Msg("Skipped unusable records")
	}
	return evs, nil
}

func statusMessage(resp *resty.Response) string {
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err == nil && env.Error != "" {
		return env.Error
	}
	return resp.Status()
}

func eventsQuery(hours int) map[string]string {
	q := map[string]string{"type": string(events.CategoryProtest)}
	if hours > 0 {
		q["hours"] = strconv.Itoa(hours)
	}
	return q
}

func windowQuery(hours int) map[string]string {
	q := map[string]string{}
	if hours > 0 {
		q["hours"] = strconv.Itoa(hours)
	}
	return q
}

func (c *Client) warningsQuery(hours int) map[string]string {
	q := windowQuery(hours)
	q["minConfidence"] = strconv.FormatFloat(c.minConfidence, 'f', -1, 64)
	q["limit"] = fmt.Sprint(c.warningLimit)
	return q
}
