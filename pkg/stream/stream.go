// Package stream consumes the backend's live update stream. The connection
// is held open indefinitely and re-established after a fixed delay whenever
// it drops.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/safemelbourne/livemap/pkg/constants"
	"github.com/safemelbourne/livemap/pkg/errors"
)

// DefaultPath is the backend stream endpoint.
const DefaultPath = "/api/events/stream"

const maxLine = 1 << 20

// Handler receives each non-empty update delta in arrival order.
type Handler func(Delta)

// Client maintains the stream connection.
type Client struct {
	http   *resty.Client
	path   string
	delay  time.Duration
	logger *zerolog.Logger

	onConnect func()
}

// Option configures a Client.
type Option func(*Client)

// WithPath overrides the stream endpoint path.
func WithPath(path string) Option {
	return func(c *Client) {
		c.path = path
	}
}

// WithReconnectDelay sets the fixed delay between connection attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.delay = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithOnConnect registers a callback run each time a connection is accepted.
func WithOnConnect(fn func()) Option {
	return func(c *Client) {
		c.onConnect = fn
	}
}

// New creates a Client for the backend at baseURL. The HTTP client has no
// overall timeout since the response body never ends on its own.
func New(baseURL string, opts ...Option) *Client {
	nop := zerolog.Nop()
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Accept", "text/event-stream").
			SetHeader("Cache-Control", "no-cache"),
		path:   DefaultPath,
		delay:  constants.StreamReconnectDelay,
		logger: &nop,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the full stream URL.
func (c *Client) URL() string {
	return c.http.BaseURL + c.path
}

// Run connects and dispatches deltas to handle until ctx is done. Every
// failure is retried after the fixed delay with no attempt limit, so Run
// only returns the context's error.
func (c *Client) Run(ctx context.Context, handle Handler) error {
	policy := backoff.WithContext(backoff.NewConstantBackOff(c.delay), ctx)

	op := func() error {
		err := c.connect(ctx, handle)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			err = errors.NewStreamError(c.URL(), 0, io.EOF)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Dur("retry_in", wait).Msg("Stream disconnected, reconnecting")
	}

	return backoff.RetryNotify(op, policy, notify)
}

// connect holds one connection open until it ends. A nil return means the
// server closed the body cleanly.
func (c *Client) connect(ctx context.Context, handle Handler) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(c.path)
	if err != nil {
		return errors.NewStreamError(c.URL(), 0, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != 200 {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
		return errors.NewStreamError(c.URL(), resp.StatusCode(), nil)
	}

	c.logger.Info().Str("url", c.URL()).Msg("Connected to live event stream")
	if c.onConnect != nil {
		c.onConnect()
	}

	if err := c.read(body, handle); err != nil {
		return errors.NewStreamError(c.URL(), 0, err)
	}
	return nil
}

// read parses server-sent event framing: data lines accumulate until a blank
// line dispatches them. A bare JSON line is dispatched on its own so
// newline-delimited streams work too.
func (c *Client) read(r io.Reader, handle Handler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	var data bytes.Buffer
	flush := func() {
		if data.Len() == 0 {
			return
		}
		c.HandleMessage(data.Bytes(), handle)
		data.Reset()
	}

	for scanner.Scan() {
		line := bytes.TrimRight(scanner.Bytes(), "\r")
		switch {
		case len(line) == 0:
			flush()
		case line[0] == ':':
			// Comment line, used by servers as a keepalive.
		case bytes.HasPrefix(line, []byte("data:")):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.Write(bytes.TrimPrefix(bytes.TrimPrefix(line, []byte("data:")), []byte(" ")))
		case line[0] == '{':
			flush()
			c.HandleMessage(line, handle)
		default:
			// event:, id: and retry: fields carry nothing we use.
		}
	}
	flush()
	return scanner.Err()
}

// HandleMessage decodes one raw message and dispatches it. Malformed
// messages are logged and dropped; the connection is unaffected.
func (c *Client) HandleMessage(raw []byte, handle Handler) {
	msg, delta, skipped, err := Decode(raw)
	if err != nil {
		c.logger.Error().Err(err).Msg("Dropped malformed stream message")
		return
	}
	if skipped != nil {
		c.logger.Warn().Err(skipped).Msg("Dropped records from stream update")
	}

	switch msg.Type {
	case TypeInitial:
		c.logger.Debug().Msg("Ignoring initial stream snapshot")
	case TypeHeartbeat:
	case TypeUpdate:
		if delta.Empty() {
			return
		}
		c.logger.Info().
			Int("events", len(delta.Events)).
			Int("warnings", len(delta.Warnings)).
			Msg("Live update received")
		handle(delta)
	default:
		c.logger.Warn().Str("type", string(msg.Type)).Msg("Unknown stream message type")
	}
}
