package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers session questions for one exchange using
// scmhub/calendar, or a fixed weekday session when the MIC is unknown.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location

	// fallback session, minutes after local midnight
	openMinute  int
	closeMinute int
}

// -----------------------------------------------------------------------------

// GetCalendar loads the calendar for mic. When the library has none, the
// returned calendar uses tz and the open/close times ("HH:MM") instead.
func GetCalendar(mic, tz, openTime, closeTime string) (*TradingCalendar, error) {
	openMin, err := parseClock(openTime)
	if err != nil {
		return nil, err
	}
	closeMin, err := parseClock(closeTime)
	if err != nil {
		return nil, err
	}

	cal := calendar.GetCalendar(strings.ToLower(mic))
	if cal != nil {
		return &TradingCalendar{Calendar: cal, Timezone: cal.Loc, openMinute: openMin, closeMinute: closeMin}, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return &TradingCalendar{Fallback: true, Timezone: loc, openMinute: openMin, closeMinute: closeMin}, nil
}

// -----------------------------------------------------------------------------

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid session time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	// Normalize to timezone if available
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		// Simple fallback: Mon-Fri
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	// Library handles IsHoliday / IsBusinessDay
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at a specific minute.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if !tc.Fallback {
		return tc.Calendar.IsOpen(t)
	}

	if !tc.IsTradingDay(t) {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	return minute >= tc.openMinute && minute < tc.closeMinute
}
