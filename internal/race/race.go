// Package race models the races listed by the Ponyracer API and formats
// their start instants for display.
package race

import (
	"fmt"
	"math"
	"time"
)

// StatusPending selects races that have not started yet.
const StatusPending = "PENDING"

// Pony is one runner.
type Pony struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Race is one race with its runners.
type Race struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Ponies       []Pony    `json:"ponies"`
	StartInstant time.Time `json:"startInstant"`
}

const (
	minutesInDay   = 24 * 60
	minutesInMonth = 30 * minutesInDay
	minutesInYear  = 365 * minutesInDay
)

// FromNow describes t relative to now using a single unit, e.g.
// “in 5 minutes” or “3 years ago”.  The unit is the largest one the
// distance fills: seconds below a minute, then minutes, hours, days (below
// 30 days), months (below a year), and years.  Counts are rounded half up.
func FromNow(t, now time.Time) string {
	d := t.Sub(now)
	seconds := math.Abs(d.Seconds())
	minutes := seconds / 60

	var n float64
	var unit string
	switch {
	case minutes < 1:
		n, unit = seconds, "second"
	case minutes < 60:
		n, unit = minutes, "minute"
	case minutes < minutesInDay:
		n, unit = minutes/60, "hour"
	case minutes < minutesInMonth:
		n, unit = minutes/minutesInDay, "day"
	case minutes < minutesInYear:
		n, unit = minutes/minutesInMonth, "month"
	default:
		n, unit = minutes/minutesInYear, "year"
	}

	count := int(math.Floor(n + 0.5))
	text := fmt.Sprintf("%d %s", count, unit)
	if count != 1 {
		text += "s"
	}
	if d > 0 {
		return "in " + text
	}
	return text + " ago"
}
