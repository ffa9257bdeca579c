// Package report renders worker snapshots, digests and alerts as chat text.
// All functions are pure: time and zone are passed in by the caller.
package report

import (
	"math"
	"strconv"
	"time"

	"github.com/hako/durafmt"
)

// NotAvailable marks a missing timestamp.
const NotAvailable = "N/A"

var magnitudes = []struct {
	unit  string
	scale float64
}{
	{"P", 1e15},
	{"T", 1e12},
	{"G", 1e9},
	{"M", 1e6},
	{"K", 1e3},
}

// FormatMagnitude renders v with the largest K/M/G/T/P unit it reaches,
// e.g. 1500000 -> "1.50 M". Values below 1000 are printed as-is, zero as "0".
func FormatMagnitude(v float64) string {
	if v == 0 || math.IsNaN(v) {
		return "0"
	}
	for _, m := range magnitudes {
		if v >= m.scale {
			return strconv.FormatFloat(v/m.scale, 'f', 2, 64) + " " + m.unit
		}
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatProgress returns best/difficulty as a percentage rounded to four
// decimals, or "0%" when either side is unknown.
func FormatProgress(best, difficulty float64) string {
	if best <= 0 || difficulty <= 0 {
		return "0%"
	}
	p := math.Round(best/difficulty*100*1e4) / 1e4
	return strconv.FormatFloat(p, 'f', -1, 64) + "%"
}

// FormatTimestamp renders t in loc as "2006-01-02 15:04:05 MST".
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if t.IsZero() || t.Unix() == 0 {
		return NotAvailable
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04:05 MST")
}

// FormatAgo renders the time between t and now, e.g. "3 minutes 12 seconds ago".
// Empty when t is unknown or in the future.
func FormatAgo(t, now time.Time) string {
	if t.IsZero() || t.Unix() == 0 {
		return ""
	}
	d := now.Sub(t).Truncate(time.Second)
	if d < 0 {
		return ""
	}
	if d < time.Second {
		return "just now"
	}
	return durafmt.Parse(d).LimitFirstN(2).String() + " ago"
}
