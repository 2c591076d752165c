// Package status tracks the backend's coarse scraping status.
package status

import (
	"strings"
	"time"
)

// Status is the scraper state reported by the backend.
type Status string

// Known statuses.
const (
	Idle      Status = "idle"
	Scraping  Status = "scraping"
	Completed Status = "completed"
	Error     Status = "error"
)

// Parse maps a reported status onto a known value. Anything unrecognized,
// including the empty string, is Idle.
func Parse(s string) Status {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case Scraping, Completed, Error:
		return st
	default:
		return Idle
	}
}

// Color returns the indicator color for the status.
func (s Status) Color() string {
	switch s {
	case Scraping:
		return "#3b82f6"
	case Completed:
		return "#10b981"
	case Error:
		return "#ef4444"
	default:
		return "#6b7280"
	}
}

// Text returns the indicator label for the status.
func (s Status) Text() string {
	switch s {
	case Scraping:
		return "Scraping..."
	case Completed:
		return "Updated"
	case Error:
		return "Error"
	default:
		return "Idle"
	}
}

func (s Status) String() string {
	return string(s)
}

// NextUpdate estimates when the backend will next refresh. Between 12:00 and
// 01:59 local time it refreshes hourly, otherwise every two hours. The result
// is truncated to the hour.
func NextUpdate(now time.Time) time.Time {
	step := 2 * time.Hour
	if IsPeak(now) {
		step = time.Hour
	}
	next := now.Add(step)
	return time.Date(next.Year(), next.Month(), next.Day(), next.Hour(), 0, 0, 0, next.Location())
}

// IsPeak reports whether t falls in the hourly refresh window.
func IsPeak(t time.Time) bool {
	h := t.Hour()
	return h >= 12 || h <= 1
}
