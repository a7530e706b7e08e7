// Package session models the exchange trading day: its time zone, the
// opening high-volatility window, the close cutoff and the profit thresholds
// that depend on time of day.
package session

import (
	"fmt"
	"time"
)

// Clock is a wall-clock time of day in minutes after midnight.
type Clock int

// ParseClock parses "HH:MM".
func ParseClock(value string) (Clock, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", value, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func ClockAt(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Calendar holds the session boundaries and thresholds.
type Calendar struct {
	Location         *time.Location
	Open             Clock
	OpeningWindowEnd Clock
	Close            Clock
	OpeningThreshold float64
	RegularThreshold float64
}

// In converts t into the session time zone.
func (c Calendar) In(t time.Time) time.Time {
	if c.Location == nil {
		return t
	}
	return t.In(c.Location)
}

func (c Calendar) clockOf(t time.Time) time.Duration {
	local := c.In(t)
	return time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
}

func (c Clock) duration() time.Duration {
	return time.Duration(c) * time.Minute
}

// AfterClose reports whether t is at or past the close cutoff of its day.
func (c Calendar) AfterClose(t time.Time) bool {
	return c.clockOf(t) >= c.Close.duration()
}

// InOpeningWindow reports whether t falls between the open and the end of
// the opening window, both inclusive.
func (c Calendar) InOpeningWindow(t time.Time) bool {
	tod := c.clockOf(t)
	return tod >= c.Open.duration() && tod <= c.OpeningWindowEnd.duration()
}

// ProfitThreshold returns the percent gain required to exit at time t.
func (c Calendar) ProfitThreshold(t time.Time) float64 {
	if c.InOpeningWindow(t) {
		return c.OpeningThreshold
	}
	return c.RegularThreshold
}

// Day returns the trading day of t as YYYY-MM-DD in the session zone.
func (c Calendar) Day(t time.Time) string {
	return c.In(t).Format("2006-01-02")
}
