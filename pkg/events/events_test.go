package events_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safemelbourne/livemap/pkg/errors"
	"github.com/safemelbourne/livemap/pkg/events"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    events.Filter
		wantErr bool
	}{
		{"all", events.FilterAll, false},
		{"", events.FilterAll, false},
		{" Warnings ", events.FilterWarnings, false},
		{"road_closures", events.FilterRoadClosures, false},
		{"protests", events.FilterProtests, false},
		{"protest", events.FilterAll, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := events.ParseFilter(tt.in)
			if tt.wantErr {
				assert.True(t, errors.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterApply(t *testing.T) {
	evs := []events.Event{
		{ID: 1, Type: events.CategoryProtest},
		{ID: 2, Type: events.CategoryWarning},
		{ID: 3, Type: events.CategoryRoadClosure},
		{ID: 4, Type: "fire"},
	}

	assert.Len(t, events.FilterAll.Apply(evs), 4)
	assert.Equal(t, int64(2), events.FilterWarnings.Apply(evs)[0].ID)
	assert.Equal(t, int64(3), events.FilterRoadClosures.Apply(evs)[0].ID)
	assert.Len(t, events.FilterProtests.Apply(evs), 1)

	view := events.FilterAll.Apply(evs)
	view[0].Title = "changed"
	assert.Empty(t, evs[0].Title, "Apply must not alias its input")
}

func TestFilterLabel(t *testing.T) {
	assert.Equal(t, "Road Closures", events.FilterRoadClosures.Label())
	assert.Equal(t, "All", events.FilterAll.Label())
}

func TestCategoryGlyph(t *testing.T) {
	assert.Equal(t, "🔥", events.CategoryProtest.Glyph())
	assert.Equal(t, "🚧", events.CategoryRoadClosure.Glyph())
	assert.Equal(t, "⚠️", events.CategoryWarning.Glyph())
	assert.Equal(t, "📍", events.Category("fire").Glyph())
}

func TestKey(t *testing.T) {
	a := events.Event{ID: 5, Type: events.CategoryWarning}
	b := events.Event{ID: 5, Type: events.CategoryProtest}
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, "warning:5", a.Key().String())
}

func TestValidate(t *testing.T) {
	score := 1.5
	tests := []struct {
		name string
		ev   events.Event
		ok   bool
	}{
		{"melbourne", events.Event{Lat: -37.8, Lng: 144.9}, true},
		{"lat out of range", events.Event{Lat: -91, Lng: 0}, false},
		{"lng out of range", events.Event{Lat: 0, Lng: 181}, false},
		{"bad confidence", events.Event{Lat: 0, Lng: 0, ConfidenceScore: &score}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ev.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.IsValidationError(err))
			}
		})
	}
}

func TestUnmarshalWarningWithEncodedMetrics(t *testing.T) {
	raw := `{
		"id": 9,
		"text": "Crowd gathering near Flinders St",
		"lat": -37.818,
		"lng": 144.967,
		"verified": false,
		"createdAt": "2025-09-01T10:00:00.000Z",
		"tweetId": "1234",
		"extractedLocation": null,
		"confidenceScore": 0.72,
		"socialMetrics": "{\"bookmarks\":1,\"favorites\":2,\"retweets\":3,\"views\":4500,\"quotes\":0,\"replies\":1}",
		"userInfo": {"created_at":"2019-01-01","followers_count":10,"friends_count":5,"favourites_count":2,"verified":true}
	}`

	var e events.Event
	require.NoError(t, json.Unmarshal([]byte(raw), &e))

	assert.Equal(t, int64(9), e.ID)
	assert.Equal(t, "Crowd gathering near Flinders St", e.Title)
	assert.Equal(t, 2025, e.CreatedAt.Year())
	require.NotNil(t, e.SocialMetrics)
	assert.Equal(t, "4500", e.SocialMetrics.Views)
	assert.Equal(t, 3, e.SocialMetrics.Retweets)
	require.NotNil(t, e.UserInfo)
	assert.True(t, e.UserInfo.Verified)
	require.NotNil(t, e.ConfidenceScore)
	assert.InDelta(t, 0.72, *e.ConfidenceScore, 1e-9)
	assert.Empty(t, e.ExtractedLocation)
}

func TestUnmarshalRejectsMissingCoordinates(t *testing.T) {
	var e events.Event
	err := json.Unmarshal([]byte(`{"id":1,"lat":null,"lng":144.9}`), &e)
	assert.True(t, errors.IsValidationError(err))
}

func TestUnmarshalStringID(t *testing.T) {
	var e events.Event
	require.NoError(t, json.Unmarshal([]byte(`{"id":"42","lat":1,"lng":2}`), &e))
	assert.Equal(t, int64(42), e.ID)
}

func TestRoundTripThroughMarshal(t *testing.T) {
	in := events.Event{ID: 3, Type: events.CategoryRoadClosure, Lat: -37.8, Lng: 144.9, Severity: events.SeverityHigh}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out events.Event
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.Key(), out.Key())
	assert.Equal(t, events.SeverityHigh, out.Severity)
}

func TestDecodeList(t *testing.T) {
	t.Run("defaults empty type and skips bad records", func(t *testing.T) {
		raw := json.RawMessage(`[
			{"id":1,"lat":-37.8,"lng":144.9},
			{"id":2,"type":"road_closure","lat":-37.8,"lng":144.9},
			{"id":3,"lat":null,"lng":null}
		]`)
		evs, err := events.DecodeList(raw, events.CategoryProtest, "")
		require.Error(t, err)
		require.Len(t, evs, 2)
		assert.Equal(t, events.CategoryProtest, evs[0].Type)
		assert.Equal(t, events.CategoryRoadClosure, evs[1].Type)
	})

	t.Run("force type", func(t *testing.T) {
		raw := json.RawMessage(`[{"id":1,"type":"protest","lat":0,"lng":0}]`)
		evs, err := events.DecodeList(raw, events.CategoryProtest, events.CategoryWarning)
		require.NoError(t, err)
		assert.Equal(t, events.CategoryWarning, evs[0].Type)
	})

	t.Run("null and empty", func(t *testing.T) {
		evs, err := events.DecodeList(json.RawMessage(`null`), events.CategoryProtest, "")
		assert.NoError(t, err)
		assert.Empty(t, evs)
		evs, err = events.DecodeList(nil, events.CategoryProtest, "")
		assert.NoError(t, err)
		assert.Empty(t, evs)
	})

	t.Run("not an array", func(t *testing.T) {
		_, err := events.DecodeList(json.RawMessage(`{"id":1}`), events.CategoryProtest, "")
		assert.True(t, errors.IsMalformed(err))
	})
}
