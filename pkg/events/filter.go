package events

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/safemelbourne/livemap/pkg/errors"
)

// Filter selects a view over the stored events. It is never stored per event.
type Filter string

// Available filters.
const (
	FilterAll          Filter = "all"
	FilterWarnings     Filter = "warnings"
	FilterRoadClosures Filter = "road_closures"
	FilterProtests     Filter = "protests"
)

// Filters lists every filter in display order.
var Filters = []Filter{FilterAll, FilterWarnings, FilterRoadClosures, FilterProtests}

var titleCaser = cases.Title(language.English)

// ParseFilter parses a filter name. An empty name selects all events.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterWarnings, FilterRoadClosures, FilterProtests:
		return f, nil
	default:
		return FilterAll, errors.NewValidationError("filter", s, "must be one of all, warnings, road_closures, protests")
	}
}

// Category returns the single category the filter selects, or false for all.
func (f Filter) Category() (Category, bool) {
	switch f {
	case FilterWarnings:
		return CategoryWarning, true
	case FilterRoadClosures:
		return CategoryRoadClosure, true
	case FilterProtests:
		return CategoryProtest, true
	default:
		return "", false
	}
}

// Matches reports whether e belongs in the filter's view.
func (f Filter) Matches(e Event) bool {
	c, ok := f.Category()
	return !ok || e.Type == c
}

// Apply returns the events matching f in their original order. The input is
// never modified and the result never aliases it.
func (f Filter) Apply(evs []Event) []Event {
	out := make([]Event, 0, len(evs))
	for _, e := range evs {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Label returns a human readable name such as "Road Closures".
func (f Filter) Label() string {
	return titleCaser.String(strings.ReplaceAll(string(f), "_", " "))
}

// String returns the wire value of the filter.
func (f Filter) String() string {
	return string(f)
}
