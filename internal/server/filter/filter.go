// Package filter parses query parameters for the mirror's event endpoints.
package filter

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/safemelbourne/livemap/pkg/errors"
	"github.com/safemelbourne/livemap/pkg/events"
)

// EventQuery narrows the dashboard view for a single request.
type EventQuery struct {
	Filter   events.Filter
	Bounds   *orb.Bound
	Severity events.Severity
	Verified *bool
	Search   string

	Limit  int
	Offset int
}

const (
	defaultLimit = 200
	maxLimit     = 1000
)

// ParseEventQuery extracts query parameters from the request. An unknown
// filter or a malformed bbox is a ValidationError.
func ParseEventQuery(r *http.Request) (EventQuery, error) {
	q := r.URL.Query()

	f, err := events.ParseFilter(q.Get("filter"))
	if err != nil {
		return EventQuery{}, err
	}

	query := EventQuery{
		Filter:   f,
		Severity: events.Severity(strings.ToLower(q.Get("severity"))),
		Search:   strings.ToLower(strings.TrimSpace(q.Get("q"))),
		Limit:    parseIntOrDefault(q.Get("limit"), defaultLimit),
		Offset:   parseIntOrDefault(q.Get("offset"), 0),
	}
	if query.Limit <= 0 || query.Limit > maxLimit {
		query.Limit = maxLimit
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	if val := q.Get("verified"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return EventQuery{}, errors.NewValidationError("verified", val, "must be a boolean")
		}
		query.Verified = &b
	}

	if val := q.Get("bbox"); val != "" {
		bound, err := ParseBBox(val)
		if err != nil {
			return EventQuery{}, err
		}
		query.Bounds = &bound
	}

	return query, nil
}

// ParseBBox parses "minLng,minLat,maxLng,maxLat".
func ParseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, errors.NewValidationError("bbox", s, "must be minLng,minLat,maxLng,maxLat")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, errors.NewValidationError("bbox", s, "coordinates must be numbers")
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, errors.NewValidationError("bbox", s, "min corner must not exceed max corner")
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

// Matches reports whether e satisfies every criterion except pagination.
func (q EventQuery) Matches(e events.Event) bool {
	if !q.Filter.Matches(e) {
		return false
	}
	if q.Bounds != nil && !q.Bounds.Contains(e.Point()) {
		return false
	}
	if q.Severity != "" && e.Severity != q.Severity {
		return false
	}
	if q.Verified != nil && e.Verified != *q.Verified {
		return false
	}
	if q.Search != "" &&
		!strings.Contains(strings.ToLower(e.Title), q.Search) &&
		!strings.Contains(strings.ToLower(e.Description), q.Search) {
		return false
	}
	return true
}

// Apply filters evs and returns the requested page with the total match count.
func (q EventQuery) Apply(evs []events.Event) ([]events.Event, int) {
	matched := make([]events.Event, 0, len(evs))
	for _, e := range evs {
		if q.Matches(e) {
			matched = append(matched, e)
		}
	}

	total := len(matched)
	if q.Offset >= total {
		return []events.Event{}, total
	}
	end := q.Offset + q.Limit
	if end > total {
		end = total
	}
	return matched[q.Offset:end], total
}

// parseIntOrDefault parses an int or returns the default value.
func parseIntOrDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}
