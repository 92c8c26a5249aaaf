package utils

import (
	"fmt"
	"time"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// ClockTime is a time of day with minute resolution.
type ClockTime struct {
	Hour   int
	Minute int
}

// NSE session defaults.
var (
	MarketOpen     = ClockTime{9, 15}
	MarketClose    = ClockTime{15, 30}
	EntryCutoff    = ClockTime{15, 10}
	ForceSquareOff = ClockTime{15, 20}
)

// ParseClock parses "HH:MM".
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// MustParseClock is ParseClock for constants; it panics on bad input.
func MustParseClock(s string) ClockTime {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Minutes returns minutes since midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// Before reports whether c is strictly earlier than o.
func (c ClockTime) Before(o ClockTime) bool {
	return c.Minutes() < o.Minutes()
}

// On returns the instant on t's date (in t's location) at this time of day.
func (c ClockTime) On(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, t.Location())
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// TimeOfDayBefore reports whether ts's time of day is strictly before c.
// Seconds count, so 15:09:59 is before 15:10 and 15:10:00 is not.
func TimeOfDayBefore(ts time.Time, c ClockTime) bool {
	return ts.Before(c.On(ts))
}

// Session holds the intraday schedule used by strategies and the engine.
type Session struct {
	Open           ClockTime
	Close          ClockTime
	EntryCutoff    ClockTime
	ForceSquareOff ClockTime
	Location       *time.Location
}

// DefaultSession returns the NSE cash-market session.
func DefaultSession() Session {
	return Session{
		Open:           MarketOpen,
		Close:          MarketClose,
		EntryCutoff:    EntryCutoff,
		ForceSquareOff: ForceSquareOff,
		Location:       IndiaLocation,
	}
}
