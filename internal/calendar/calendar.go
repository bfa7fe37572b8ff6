// Package calendar maps instants onto local calendar dates (YYYY-MM-DD).
//
// Dates are always rendered with the zone the Calendar was built with, so a
// change of zone reinterprets every past instant at read time.
package calendar

import (
	"math"
	"time"
)

// DateLayout is the wire format of a calendar date.
const DateLayout = "2006-01-02"

// Calendar renders instants in a fixed location.
type Calendar struct {
	loc *time.Location
}

// New returns a Calendar for loc; a nil loc means the process local zone.
func New(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.Local
	}
	return Calendar{loc: loc}
}

// Load builds a Calendar from an IANA zone name. "" and "Local" select the process zone.
func Load(name string) (Calendar, error) {
	if name == "" || name == "Local" {
		return New(time.Local), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Calendar{}, err
	}
	return New(loc), nil
}

// Location returns the zone dates are rendered in.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// LocalDate renders t as a calendar date. The zero instant maps to "".
func (c Calendar) LocalDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(c.Location()).Format(DateLayout)
}

// Today is LocalDate(now).
func (c Calendar) Today(now time.Time) string {
	return c.LocalDate(now)
}

// Yesterday returns the date before the local date of now.
func (c Calendar) Yesterday(now time.Time) string {
	y, m, d := now.In(c.Location()).Date()
	return time.Date(y, m, d-1, 0, 0, 0, 0, c.Location()).Format(DateLayout)
}

// Midnight parses date as local midnight.
func (c Calendar) Midnight(date string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, date, c.Location())
}

// DaysBetween returns the number of whole calendar days from a to b.
// Midnights are compared as instants and rounded so that 23h and 25h days
// across daylight-saving transitions still count as one day.
func (c Calendar) DaysBetween(a, b string) (int, bool) {
	if a == "" || b == "" {
		return 0, false
	}
	start, err := c.Midnight(a)
	if err != nil {
		return 0, false
	}
	end, err := c.Midnight(b)
	if err != nil {
		return 0, false
	}
	return int(math.Round(end.Sub(start).Hours() / 24)), true
}

// AreConsecutive reports whether b is exactly one calendar day after a.
// Empty or malformed dates are never consecutive.
func (c Calendar) AreConsecutive(a, b string) bool {
	days, ok := c.DaysBetween(a, b)
	return ok && days == 1
}

// DayBounds returns the first and last instant of the local day. An empty date
// means today relative to now.
func (c Calendar) DayBounds(date string, now time.Time) (time.Time, time.Time, error) {
	if date == "" {
		date = c.Today(now)
	}
	start, err := c.Midnight(date)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, d := start.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, c.Location())
	return start, next.Add(-time.Nanosecond), nil
}

// EndOfYesterday is the latest millisecond that still maps to yesterday's date.
func (c Calendar) EndOfYesterday(now time.Time) time.Time {
	y, m, d := now.In(c.Location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.Location()).Add(-time.Millisecond)
}

// LaterMonth reports whether now falls in a later calendar month than then.
// A zero then is never earlier.
func (c Calendar) LaterMonth(then, now time.Time) bool {
	if then.IsZero() {
		return false
	}
	ty, tm, _ := then.In(c.Location()).Date()
	ny, nm, _ := now.In(c.Location()).Date()
	return ny > ty || (ny == ty && nm > tm)
}
