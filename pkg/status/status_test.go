package status_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safemelbourne/livemap/pkg/errors"
	"github.com/safemelbourne/livemap/pkg/status"
)

func TestParse(t *testing.T) {
	tests := map[string]status.Status{
		"scraping":   status.Scraping,
		"COMPLETED":  status.Completed,
		" error ":    status.Error,
		"idle":       status.Idle,
		"":           status.Idle,
		"rebuilding": status.Idle,
	}
	for in, want := range tests {
		assert.Equal(t, want, status.Parse(in), in)
	}
}

func TestIndicator(t *testing.T) {
	assert.Equal(t, "#3b82f6", status.Scraping.Color())
	assert.Equal(t, "Scraping...", status.Scraping.Text())
	assert.Equal(t, "#10b981", status.Completed.Color())
	assert.Equal(t, "Updated", status.Completed.Text())
	assert.Equal(t, "#ef4444", status.Error.Color())
	assert.Equal(t, "Error", status.Error.Text())
	assert.Equal(t, "#6b7280", status.Idle.Color())
	assert.Equal(t, "Idle", status.Idle.Text())
}

func TestNextUpdate(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"peak afternoon", time.Date(2025, 9, 1, 14, 37, 12, 0, loc), time.Date(2025, 9, 1, 15, 0, 0, 0, loc)},
		{"peak after midnight", time.Date(2025, 9, 2, 1, 5, 0, 0, loc), time.Date(2025, 9, 2, 2, 0, 0, 0, loc)},
		{"peak late night", time.Date(2025, 9, 1, 23, 30, 0, 0, loc), time.Date(2025, 9, 2, 0, 0, 0, 0, loc)},
		{"off peak morning", time.Date(2025, 9, 1, 8, 15, 0, 0, loc), time.Date(2025, 9, 1, 10, 0, 0, 0, loc)},
		{"off peak boundary", time.Date(2025, 9, 1, 2, 0, 0, 0, loc), time.Date(2025, 9, 1, 4, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.NextUpdate(tt.now))
		})
	}
}

type statusServer struct {
	mu     sync.Mutex
	code   int
	body   string
	hits   atomic.Int32
	server *httptest.Server
}

func newStatusServer(t *testing.T, body string) *statusServer {
	t.Helper()
	s := &statusServer{code: http.StatusOK, body: body}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		assert.Equal(t, status.DefaultPath, r.URL.Path)
		s.mu.Lock()
		code, body := s.code, s.body
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *statusServer) set(code int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code, s.body = code, body
}

func TestCheck(t *testing.T) {
	srv := newStatusServer(t, `{"success":true,"data":{"status":"scraping"}}`)
	p := status.NewPoller(srv.server.URL)
	assert.Equal(t, status.Idle, p.Current())

	st, changed, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.Scraping, st)
	assert.True(t, changed)
	assert.False(t, p.LastChecked().IsZero())

	_, changed, err = p.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestCheckMissingStatusIsIdle(t *testing.T) {
	srv := newStatusServer(t, `{"success":true,"data":{"status":"completed"}}`)
	p := status.NewPoller(srv.server.URL)
	_, _, err := p.Check(context.Background())
	require.NoError(t, err)

	srv.set(http.StatusOK, `{"success":true,"data":{}}`)
	st, changed, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.Idle, st)
	assert.True(t, changed)
}

func TestCheckFailureKeepsStatus(t *testing.T) {
	srv := newStatusServer(t, `{"data":{"status":"completed"}}`)
	p := status.NewPoller(srv.server.URL)
	_, _, err := p.Check(context.Background())
	require.NoError(t, err)

	srv.set(http.StatusNotFound, `{"error":"not found"}`)
	st, changed, err := p.Check(context.Background())
	assert.True(t, errors.IsFetchFailure(err))
	assert.False(t, changed)
	assert.Equal(t, status.Completed, st)

	srv.set(http.StatusOK, `{"data":`)
	_, _, err = p.Check(context.Background())
	assert.Error(t, err)
	assert.Equal(t, status.Completed, p.Current())
}

func TestRunPollsImmediatelyAndOnInterval(t *testing.T) {
	srv := newStatusServer(t, `{"data":{"status":"scraping"}}`)
	p := status.NewPoller(srv.server.URL, status.WithInterval(20*time.Millisecond))

	changes := make(chan status.Status, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, func(s status.Status) { changes <- s }) }()

	select {
	case st := <-changes:
		assert.Equal(t, status.Scraping, st)
	case <-time.After(time.Second):
		t.Fatal("no immediate status check")
	}

	srv.set(http.StatusOK, `{"data":{"status":"completed"}}`)
	select {
	case st := <-changes:
		assert.Equal(t, status.Completed, st)
	case <-time.After(time.Second):
		t.Fatal("no interval status check")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.GreaterOrEqual(t, srv.hits.Load(), int32(2))
}
