package utils

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:15")
	if err != nil || c != (ClockTime{9, 15}) {
		t.Errorf("ParseClock = %v, %v", c, err)
	}
	for _, bad := range []string{"", "9.15", "25:00", "3pm"} {
		if _, err := ParseClock(bad); err == nil {
			t.Errorf("ParseClock(%q) succeeded", bad)
		}
	}
	if EntryCutoff.String() != "15:10" {
		t.Errorf("String = %s", EntryCutoff)
	}
}

func TestTimeOfDayBefore(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, IndiaLocation)
	tests := []struct {
		ts   time.Time
		want bool
	}{
		{day.Add(15*time.Hour + 9*time.Minute + 59*time.Second), true},
		{day.Add(15*time.Hour + 10*time.Minute), false},
		{day.Add(15*time.Hour + 10*time.Minute + time.Second), false},
		{day.Add(9*time.Hour + 15*time.Minute), true},
	}
	for _, tt := range tests {
		if got := TimeOfDayBefore(tt.ts, EntryCutoff); got != tt.want {
			t.Errorf("TimeOfDayBefore(%s) = %v, want %v", tt.ts.Format("15:04:05"), got, tt.want)
		}
	}
}

func TestClockOn(t *testing.T) {
	ts := time.Date(2026, 3, 2, 11, 42, 7, 0, IndiaLocation)
	got := ForceSquareOff.On(ts)
	want := time.Date(2026, 3, 2, 15, 20, 0, 0, IndiaLocation)
	if !got.Equal(want) {
		t.Errorf("On = %v, want %v", got, want)
	}
	if m := (ClockTime{11, 42}).Minutes(); m != 702 {
		t.Errorf("Minutes = %d, want 702", m)
	}
}

func TestDefaultSessionOrdering(t *testing.T) {
	s := DefaultSession()
	if !s.Open.Before(s.EntryCutoff) || !s.EntryCutoff.Before(s.ForceSquareOff) || !s.ForceSquareOff.Before(s.Close) {
		t.Errorf("session out of order: %+v", s)
	}
	if _, off := time.Date(2026, 1, 1, 0, 0, 0, 0, s.Location).Zone(); off != 5*3600+1800 {
		t.Errorf("offset = %d", off)
	}
}
