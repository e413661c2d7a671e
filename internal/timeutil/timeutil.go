// Package timeutil provides IANA timezone arithmetic and a helper for the
// sample-column naming convention (sample_001 ...); the store codecs and
// the schema validator generate the same names on their own.
//
// This package is intentionally built on the standard library's time
// package alone: a minimal clock+timer core rather than a third-party
// scheduling or calendar library, since nothing in the retrieved example
// corpus wraps IANA zone handling in a dependency worth adopting.
package timeutil

import (
	"fmt"
	"time"
)

// ChicagoZone is the IANA timezone in which the daily forecast cycle fires
// and in which all upstream feed timestamps are normalized.
const ChicagoZone = "America/Chicago"

// MustLoadLocation loads an IANA timezone by name, panicking if the
// timezone database entry is missing. Intended for use with compile-time
// constant zone names during process startup only.
func MustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("timeutil: failed to load location %q: %v", name, err))
	}
	return loc
}

// NowIn returns the current wall-clock time in the given location.
func NowIn(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// Localize attaches a zone to a naive (zone-less) timestamp by
// reinterpreting its wall-clock fields in the given location.
func Localize(naive time.Time, loc *time.Location) time.Time {
	return time.Date(
		naive.Year(), naive.Month(), naive.Day(),
		naive.Hour(), naive.Minute(), naive.Second(), naive.Nanosecond(),
		loc,
	)
}

// MidnightOf returns midnight (00:00:00) of the given date in loc.
func MidnightOf(date time.Time, loc *time.Location) time.Time {
	d := date.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

// SampleColumnNames returns the zero-padded sample column names
// sample_001 .. sample_NNN for the configured sample count n.
func SampleColumnNames(n int) []string {
	names := make([]string, n)
	width := len(fmt.Sprintf("%d", n))
	for i := 0; i < n; i++ {
		names[i] = fmt.Sprintf("sample_%0*d", width, i+1)
	}
	return names
}

// HourRange returns the n consecutive hourly timestamps starting at start,
// inclusive of start.
func HourRange(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := 0; i < n; i++ {
		out[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return out
}
