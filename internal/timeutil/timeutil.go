package timeutil

import (
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date format used for reference and event dates.
const DateLayout = "2006-01-02"

// Clock returns the current instant. Production code uses time.Now.
type Clock func() time.Time

// ResolveLocation returns the configured location, falling back to the
// server's local zone. The bool reports whether the fallback was used.
func ResolveLocation(timezone string) (*time.Location, bool) {
	if timezone == "" {
		return time.Local, true
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Local, true
	}
	return loc, false
}

// Today formats the clock's current date in loc as YYYY-MM-DD.
func Today(clock Clock, loc *time.Location) string {
	if clock == nil {
		clock = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return clock().In(loc).Format(DateLayout)
}

// ParseDate parses a strict YYYY-MM-DD date at midnight UTC.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("date value is required")
	}

	d, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse date: %s", value)
	}
	return d, nil
}
