// Package table converts dashboard data into rows for CLI tables.
package table

import (
	"fmt"
	"strings"
	"time"

	"github.com/safemelbourne/livemap/pkg/events"
)

// Align represents column alignment in tables.
type Align int

const (
	// AlignDefault uses the default alignment (skip).
	AlignDefault Align = iota
	// AlignLeft aligns content to the left.
	AlignLeft
	// AlignCenter centers content.
	AlignCenter
	// AlignRight aligns content to the right.
	AlignRight
)

// Data represents table formatting data to avoid import cycles.
type Data struct {
	Headers         []string
	Rows            [][]string
	ColumnAlignment []Align
}

// EventsToTableData converts events to table format. Wide adds the
// coordinates, source and road closure severity.
func EventsToTableData(evs []events.Event, wide bool, now time.Time) Data {
	headers := []string{"", "Type", "ID", "Title", "Age"}
	align := []Align{AlignCenter, AlignLeft, AlignRight, AlignLeft, AlignRight}
	if wide {
		headers = append(headers, "Lat", "Lng", "Source", "Severity")
		align = append(align, AlignRight, AlignRight, AlignLeft, AlignLeft)
	}

	rows := make([][]string, 0, len(evs))
	for _, e := range evs {
		row := []string{
			e.Type.Glyph(),
			string(e.Type),
			fmt.Sprint(e.ID),
			Truncate(e.Title, 60),
			FormatAge(e.CreatedAt, now),
		}
		if wide {
			row = append(row,
				fmt.Sprintf("%.4f", e.Lat),
				fmt.Sprintf("%.4f", e.Lng),
				dash(e.Source),
				dash(string(e.Severity)),
			)
		}
		rows = append(rows, row)
	}

	return Data{Headers: headers, Rows: rows, ColumnAlignment: align}
}

// FormatAge renders how long ago t was, e.g. "5m" or "3h". Zero times
// render as a dash.
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// Truncate shortens s to at most n runes, ending with an ellipsis.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
