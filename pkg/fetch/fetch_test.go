package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safemelbourne/livemap/pkg/errors"
	"github.com/safemelbourne/livemap/pkg/events"
	"github.com/safemelbourne/livemap/pkg/fetch"
)

type backend struct {
	mu      sync.Mutex
	queries map[string]url.Values
	bodies  map[string]string
	status  map[string]int
}

func newBackend() *backend {
	return &backend{
		queries: make(map[string]url.Values),
		bodies: map[string]string{
			fetch.EventsPath:         `{"success":true,"events":[{"id":1,"type":"protest","title":"Rally","lat":-37.8,"lng":144.9}]}`,
			fetch.RoadClosuresPath:   `{"success":true,"roadClosures":[{"id":1,"lat":-37.81,"lng":144.95,"severity":"High"}]}`,
			fetch.WarningMarkersPath: `{"success":true,"warnings":[{"id":1,"text":"Smoke","lat":-37.82,"lng":144.96,"confidenceScore":0.9}]}`,
		},
		status: make(map[string]int),
	}
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.queries[r.URL.Path] = r.URL.Query()
	body, ok := b.bodies[r.URL.Path]
	status := b.status[r.URL.Path]
	b.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (b *backend) query(path string) url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queries[path]
}

func serve(t *testing.T, b *backend) *fetch.Client {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	return fetch.New(srv.URL)
}

func TestFetchCombinesSources(t *testing.T) {
	b := newBackend()
	res, err := serve(t, b).Fetch(context.Background(), 24)
	require.NoError(t, err)

	require.Len(t, res.Events, 3)
	assert.Equal(t, events.CategoryProtest, res.Events[0].Type)
	assert.Equal(t, events.CategoryRoadClosure, res.Events[1].Type)
	assert.Equal(t, events.SeverityHigh, res.Events[1].Severity)
	assert.Equal(t, events.CategoryWarning, res.Events[2].Type)
	assert.Equal(t, "Smoke", res.Events[2].Title)
	assert.Empty(t, res.Degraded)
	assert.Equal(t, 1, res.Warnings)
}

func TestFetchQueryParameters(t *testing.T) {
	b := newBackend()
	c := serve(t, b)

	_, err := c.Fetch(context.Background(), 6)
	require.NoError(t, err)
	assert.Equal(t, "protest", b.query(fetch.EventsPath).Get("type"))
	assert.Equal(t, "6", b.query(fetch.EventsPath).Get("hours"))
	assert.Equal(t, "6", b.query(fetch.RoadClosuresPath).Get("hours"))
	w := b.query(fetch.WarningMarkersPath)
	assert.Equal(t, "6", w.Get("hours"))
	assert.Equal(t, "0.4", w.Get("minConfidence"))
	assert.Equal(t, "50", w.Get("limit"))

	_, err = c.Fetch(context.Background(), 0)
	require.NoError(t, err)
	for _, path := range []string{fetch.EventsPath, fetch.RoadClosuresPath, fetch.WarningMarkersPath} {
		assert.False(t, b.query(path).Has("hours"), "zero window omits hours on %s", path)
	}
	assert.Equal(t, "0.4", b.query(fetch.WarningMarkersPath).Get("minConfidence"))
}

func TestFetchCustomWarningParameters(t *testing.T) {
	b := newBackend()
	srv := httptest.NewServer(b)
	defer srv.Close()

	c := fetch.New(srv.URL, fetch.WithMinConfidence(0.75), fetch.WithWarningLimit(10))
	_, err := c.Fetch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "0.75", b.query(fetch.WarningMarkersPath).Get("minConfidence"))
	assert.Equal(t, "10", b.query(fetch.WarningMarkersPath).Get("limit"))
}

func TestFetchWarningsFailureDegrades(t *testing.T) {
	b := newBackend()
	b.bodies[fetch.RoadClosuresPath] = `{"success":true,"roadClosures":[]}`
	b.status[fetch.WarningMarkersPath] = http.StatusInternalServerError
	b.bodies[fetch.WarningMarkersPath] = `{"success":false,"error":"db down"}`

	res, err := serve(t, b).Fetch(context.Background(), 24)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, int64(1), res.Events[0].ID)
	assert.Equal(t, events.CategoryProtest, res.Events[0].Type)

	require.Len(t, res.Degraded, 1)
	assert.True(t, errors.IsPartialSource(res.Degraded[0]))
	assert.Contains(t, res.Degraded[0].Error(), "db down")
}

func TestFetchRoadClosureMalformedDegrades(t *testing.T) {
	b := newBackend()
	b.bodies[fetch.RoadClosuresPath] = `{"success":true,"roadClosures":`

	res, err := serve(t, b).Fetch(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, res.RoadClosures)
	require.Len(t, res.Degraded, 1)
	assert.True(t, errors.IsPartialSource(res.Degraded[0]))
}

func TestFetchPrimaryFailureFails(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, `{"success":false}`},
		{"success false", http.StatusOK, `{"success":false,"error":"query timeout"}`},
		{"malformed", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend()
			b.status[fetch.EventsPath] = tt.status
			b.bodies[fetch.EventsPath] = tt.body

			res, err := serve(t, b).Fetch(context.Background(), 24)
			assert.Nil(t, res)
			assert.True(t, errors.IsFetchFailure(err))
			assert.False(t, errors.IsPartialSource(err))
		})
	}
}

func TestFetchSkipsRecordsWithoutCoordinates(t *testing.T) {
	b := newBackend()
	b.bodies[fetch.WarningMarkersPath] = `{"success":true,"warnings":[
		{"id":1,"lat":null,"lng":null},
		{"id":2,"lat":-37.8,"lng":144.9,"socialMetrics":"{\"views\":\"12K\"}"}
	]}`

	res, err := serve(t, b).Fetch(context.Background(), 24)
	require.NoError(t, err)
	require.Equal(t, 1, res.Warnings)
	w := res.Events[len(res.Events)-1]
	assert.Equal(t, int64(2), w.ID)
	require.NotNil(t, w.SocialMetrics)
	assert.Equal(t, "12K", w.SocialMetrics.Views)
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := fetch.New(srv.URL).Fetch(context.Background(), 24)
	assert.True(t, errors.IsFetchFailure(err))
}
