package events

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/safemelbourne/livemap/pkg/errors"
)

// wireEvent mirrors the backend payload. Coordinates may be null on warnings,
// and the nested metrics objects are sometimes sent as JSON-encoded strings.
type wireEvent struct {
	ID                json.Number     `json:"id"`
	Type              string          `json:"type"`
	Title             string          `json:"title"`
	Text              string          `json:"text"`
	Description       string          `json:"description"`
	Lat               *float64        `json:"lat"`
	Lng               *float64        `json:"lng"`
	Source            string          `json:"source"`
	URL               string          `json:"url"`
	Verified          bool            `json:"verified"`
	CreatedAt         string          `json:"createdAt"`
	OriginalCreatedAt string          `json:"originalCreatedAt"`
	ClosureType       string          `json:"closureType"`
	Reason            string          `json:"reason"`
	Severity          string          `json:"severity"`
	AffectedRoutes    []string        `json:"affectedRoutes"`
	AlternativeRoutes []string        `json:"alternativeRoutes"`
	TweetID           string          `json:"tweetId"`
	ExtractedLocation *string         `json:"extractedLocation"`
	ConfidenceScore   *float64        `json:"confidenceScore"`
	SocialMetrics     json.RawMessage `json:"socialMetrics"`
	UserInfo          json.RawMessage `json:"userInfo"`
}

// wireMetrics accepts views as either a string or a number.
type wireMetrics struct {
	Bookmarks int             `json:"bookmarks"`
	Favorites int             `json:"favorites"`
	Retweets  int             `json:"retweets"`
	Views     json.RawMessage `json:"views"`
	Quotes    int             `json:"quotes"`
	Replies   int             `json:"replies"`
}

// UnmarshalJSON decodes a backend record, rejecting records that cannot be
// placed on the map.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return errors.WrapParse("json", "event", err)
	}

	id, err := parseID(w.ID)
	if err != nil {
		return err
	}
	if w.Lat == nil || w.Lng == nil {
		return errors.NewValidationError("lat/lng", nil, fmt.Sprintf("event %d has no coordinates", id))
	}

	out := Event{
		ID:                id,
		Type:              Category(w.Type),
		Title:             w.Title,
		Description:       w.Description,
		Lat:               *w.Lat,
		Lng:               *w.Lng,
		Source:            w.Source,
		URL:               w.URL,
		Verified:          w.Verified,
		CreatedAt:         parseTime(w.CreatedAt),
		ClosureType:       w.ClosureType,
		Reason:            w.Reason,
		Severity:          Severity(strings.ToLower(w.Severity)),
		AffectedRoutes:    w.AffectedRoutes,
		AlternativeRoutes: w.AlternativeRoutes,
		TweetID:           w.TweetID,
		ConfidenceScore:   w.ConfidenceScore,
	}
	if out.Title == "" {
		out.Title = w.Text
	}
	if w.ExtractedLocation != nil {
		out.ExtractedLocation = *w.ExtractedLocation
	}
	if t := parseTime(w.OriginalCreatedAt); !t.IsZero() {
		out.OriginalCreatedAt = &t
	}

	if m, err := decodeMetrics(w.SocialMetrics); err != nil {
		return err
	} else if m != nil {
		out.SocialMetrics = m
	}

	var info UserInfo
	if ok, err := decodeNested(w.UserInfo, &info); err != nil {
		return errors.WrapParse("json", "userInfo", err)
	} else if ok {
		out.UserInfo = &info
	}

	if err := out.Validate(); err != nil {
		return err
	}
	*e = out
	return nil
}

// DecodeList decodes a JSON array of events. Records that fail to decode are
// skipped and reported together in the returned error; the valid remainder
// is always returned. An empty type is replaced by defaultType, and a
// non-empty forceType overrides whatever type the record carried.
func DecodeList(raw json.RawMessage, defaultType, forceType Category) ([]Event, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.WrapParse("json", "event list", err)
	}

	out := make([]Event, 0, len(items))
	var errs []error
	for i, item := range items {
		var e Event
		if err := json.Unmarshal(item, &e); err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		out = append(out, Normalize(e, defaultType, forceType))
	}
	return out, stderrors.Join(errs...)
}

// Normalize applies the default and forced category rules to e.
func Normalize(e Event, defaultType, forceType Category) Event {
	switch {
	case forceType != "":
		e.Type = forceType
	case e.Type == "":
		e.Type = defaultType
	}
	return e
}

func parseID(n json.Number) (int64, error) {
	s := strings.Trim(string(n), `"`)
	if s == "" {
		return 0, errors.NewValidationError("id", nil, "event id is required")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.NewValidationError("id", s, "event id must be an integer")
	}
	return id, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// decodeNested decodes raw into v, unwrapping one level of string encoding.
// It reports false when raw is absent or null.
func decodeNested(raw json.RawMessage, v any) (bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return false, err
		}
		if strings.TrimSpace(inner) == "" {
			return false, nil
		}
		raw = json.RawMessage(inner)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

func decodeMetrics(raw json.RawMessage) (*SocialMetrics, error) {
	var w wireMetrics
	ok, err := decodeNested(raw, &w)
	if err != nil {
		return nil, errors.WrapParse("json", "socialMetrics", err)
	}
	if !ok {
		return nil, nil
	}
	m := &SocialMetrics{
		Bookmarks: w.Bookmarks,
		Favorites: w.Favorites,
		Retweets:  w.Retweets,
		Quotes:    w.Quotes,
		Replies:   w.Replies,
	}
	if v := bytes.TrimSpace(w.Views); len(v) > 0 && !bytes.Equal(v, []byte("null")) {
		m.Views = strings.Trim(string(v), `"`)
	}
	return m, nil
}
