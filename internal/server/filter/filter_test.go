package filter

import (
	"net/http/httptest"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safemelbourne/livemap/pkg/errors"
	"github.com/safemelbourne/livemap/pkg/events"
)

func sample() []events.Event {
	return []events.Event{
		{ID: 1, Type: events.CategoryProtest, Title: "Rally at Parliament", Lat: -37.811, Lng: 144.973, Verified: true},
		{ID: 2, Type: events.CategoryRoadClosure, Title: "Flinders St closed", Lat: -37.818, Lng: 144.967, Severity: events.SeverityHigh},
		{ID: 3, Type: events.CategoryWarning, Title: "Crowd building", Description: "Near the station", Lat: -37.818, Lng: 144.966},
		{ID: 4, Type: events.CategoryProtest, Title: "Geelong march", Lat: -38.149, Lng: 144.361},
	}
}

func ids(evs []events.Event) []int64 {
	out := make([]int64, len(evs))
	for i, e := range evs {
		out[i] = e.ID
	}
	return out
}

func TestParseEventQuery_Defaults(t *testing.T) {
	q, err := ParseEventQuery(httptest.NewRequest("GET", "/api/v1/events", nil))
	require.NoError(t, err)

	assert.Equal(t, events.FilterAll, q.Filter)
	assert.Equal(t, defaultLimit, q.Limit)
	assert.Zero(t, q.Offset)
	assert.Nil(t, q.Bounds)
	assert.Nil(t, q.Verified)
}

func TestParseEventQuery_Errors(t *testing.T) {
	for _, raw := range []string{
		"filter=cats",
		"verified=maybe",
		"bbox=1,2,3",
		"bbox=a,b,c,d",
		"bbox=145,-37,144,-38",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseEventQuery(httptest.NewRequest("GET", "/api/v1/events?"+raw, nil))
			assert.True(t, errors.IsValidationError(err), "got %v", err)
		})
	}
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("144.9, -37.9, 145.0, -37.7")
	require.NoError(t, err)
	assert.Equal(t, orb.Point{144.9, -37.9}, b.Min)
	assert.Equal(t, orb.Point{145.0, -37.7}, b.Max)
}

func TestEventQuery_Apply(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []int64
		total int
	}{
		{"all", "", []int64{1, 2, 3, 4}, 4},
		{"protests", "filter=protests", []int64{1, 4}, 2},
		{"bbox melbourne cbd", "bbox=144.95,-37.83,144.99,-37.80", []int64{1, 2, 3}, 3},
		{"severity", "severity=HIGH", []int64{2}, 1},
		{"verified", "verified=true", []int64{1}, 1},
		{"search description", "q=station", []int64{3}, 1},
		{"page", "limit=2&offset=1", []int64{2, 3}, 4},
		{"offset past end", "offset=10", []int64{}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseEventQuery(httptest.NewRequest("GET", "/api/v1/events?"+tt.query, nil))
			require.NoError(t, err)
			got, total := q.Apply(sample())
			assert.Equal(t, tt.want, ids(got))
			assert.Equal(t, tt.total, total)
		})
	}
}
