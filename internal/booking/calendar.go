package booking

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the wire form of visit dates.
	DateLayout = "2006-01-02"

	// CandidateDays is the size of the offered date window, today included.
	CandidateDays = 7
)

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// CandidateDates offers today and the following six days.
func CandidateDates(today time.Time) []Option {
	today = StartOfDay(today)
	out := make([]Option, 0, CandidateDays)
	for i := 0; i < CandidateDays; i++ {
		day := today.AddDate(0, 0, i)
		out = append(out, Option{Value: day.Format(DateLayout), Label: dayLabel(i, day)})
	}
	return out
}

func dayLabel(offset int, day time.Time) string {
	switch offset {
	case 0:
		return "Today"
	case 1:
		return "Tomorrow"
	}
	return day.Weekday().String()
}

// ParseDate parses a YYYY-MM-DD date in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return d, nil
}

// ParseClock validates an HH:MM 24-hour time and returns it unchanged.
func ParseClock(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) != 5 || raw[2] != ':' || !isDigits(raw[:2]) || !isDigits(raw[3:]) {
		return "", false
	}
	hour, err := strconv.Atoi(raw[:2])
	if err != nil || hour < 0 || hour > 23 {
		return "", false
	}
	minute, err := strconv.Atoi(raw[3:])
	if err != nil || minute < 0 || minute > 59 {
		return "", false
	}
	return raw, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
