// Package ingest turns raw inference output into stored nutrition records.
//
// PIPELINE:
//
//	raw completion text
//	  → Extract          (find a JSON candidate)
//	  → ValidateFragment (typed decode into a model.Fragment)
//	  → Merge            (append-and-dedupe against the stored ledger)
//	  → Resummarize      (recompute every day's summary)
//
// Everything in this package is pure: no I/O, no clocks, no logging. The
// service layer owns the store, the inference client and the time source.
package ingest

import (
	"fmt"
	"time"
)

// Layouts accepted for date-keys, most specific first. The inference service
// usually emits RFC 3339 with a zone; the rest cover what it emits when it
// forgets the zone or the time.
var dateKeyLayouts = []struct {
	layout  string
	hasZone bool
	hasTime bool
}{
	{time.RFC3339Nano, true, true},
	{"2006-01-02T15:04:05.999999999", false, true},
	{"2006-01-02T15:04", false, true},
	{"2006-01-02 15:04:05", false, true},
	{"2006-01-02", false, false},
}

// DateKey is a parsed ledger key.
type DateKey struct {
	Raw     string
	Instant time.Time // absolute instant; zone-less keys are read in the target zone
	HasTime bool      // false for date-only keys such as "2024-05-06"
}

// ParseDateKey parses an ISO-8601 date or date-time.
//
// Keys without a zone are local times in loc. Date-only keys are midnight in
// loc. A nil loc means UTC.
func ParseDateKey(raw string, loc *time.Location) (DateKey, error) {
	if loc == nil {
		loc = time.UTC
	}
	for _, l := range dateKeyLayouts {
		var (
			t   time.Time
			err error
		)
		if l.hasZone {
			t, err = time.Parse(l.layout, raw)
		} else {
			t, err = time.ParseInLocation(l.layout, raw, loc)
		}
		if err == nil {
			return DateKey{Raw: raw, Instant: t, HasTime: l.hasTime}, nil
		}
	}
	return DateKey{}, fmt.Errorf("date-key %q is not an ISO-8601 date or date-time", raw)
}

// In returns the key as wall-clock time in loc.
//
// A date-only key has no instant worth converting: it names a calendar day.
// Keeping its year/month/day as written stops "2024-05-06" from becoming
// the 5th in a zone west of the one it was parsed in.
func (k DateKey) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if !k.HasTime {
		y, m, d := k.Instant.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	return k.Instant.In(loc)
}

// IsDateOnly reports whether the key carries no real time-of-day: either it
// was written without one, or the time is exactly midnight in loc.
func (k DateKey) IsDateOnly(loc *time.Location) bool {
	if !k.HasTime {
		return true
	}
	t := k.In(loc)
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}
