package clinic

import (
	"fmt"
	"time"

	"github.com/hackgods/pediatric-clinic-booking/internal/config"
)

// Schedule is the clinic's working-hours grid.
type Schedule struct {
	Location   *time.Location
	Open       time.Duration
	Close      time.Duration
	Interval   time.Duration
	ClosedDays []time.Weekday
}

func ScheduleFromConfig(c config.Clinic) Schedule {
	return Schedule{
		Location:   c.Location,
		Open:       c.Open,
		Close:      c.Close,
		Interval:   c.SlotInterval,
		ClosedDays: c.ClosedDays,
	}
}

func (s Schedule) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// IsClosed reports whether nothing is bookable on the given day.
func (s Schedule) IsClosed(day time.Time) bool {
	wd := day.In(s.location()).Weekday()
	for _, d := range s.ClosedDays {
		if d == wd {
			return true
		}
	}
	return false
}

// Grid lists every slot start on the day as HH:MM, closing time excluded.
func (s Schedule) Grid(day time.Time) []string {
	if s.IsClosed(day) || s.Interval <= 0 {
		return nil
	}
	var out []string
	for off := s.Open; off < s.Close; off += s.Interval {
		out = append(out, formatOffset(off))
	}
	return out
}

// Free removes booked times from the grid. On the current day, slots that
// have already started are dropped too.
func (s Schedule) Free(day time.Time, booked []string, now time.Time) []string {
	loc := s.location()
	day = day.In(loc)
	now = now.In(loc)

	taken := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}

	y, m, d := day.Date()
	ny, nm, nd := now.Date()
	isToday := y == ny && m == nm && d == nd

	out := []string{}
	for _, at := range s.Grid(day) {
		if _, ok := taken[at]; ok {
			continue
		}
		if isToday {
			start, err := s.Starts(day, at)
			if err != nil || !start.After(now) {
				continue
			}
		}
		out = append(out, at)
	}
	return out
}

// Starts returns the wall-clock instant of a slot.
func (s Schedule) Starts(day time.Time, at string) (time.Time, error) {
	clock, err := time.Parse("15:04", at)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot time %q: %w", at, err)
	}
	loc := s.location()
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

// WithinHours reports whether an appointment may start at t. Manually
// entered times need not sit on the grid.
func (s Schedule) WithinHours(t time.Time) bool {
	t = t.In(s.location())
	if s.IsClosed(t) {
		return false
	}
	off := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	return off >= s.Open && off < s.Close
}

func formatOffset(off time.Duration) string {
	h := int(off / time.Hour)
	m := int((off % time.Hour) / time.Minute)
	return fmt.Sprintf("%02d:%02d", h, m)
}
