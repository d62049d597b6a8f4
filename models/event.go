package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	ID                 string          `db:"id" json:"id"`
	Title              string          `db:"title" json:"title"`
	UserID             string          `db:"user_id" json:"user_id"` // organizer
	EventCapacity      int             `db:"event_capacity" json:"event_capacity"`
	TotalEventCapacity int             `db:"total_event_capacity" json:"total_event_capacity"`
	HoldAmount         decimal.Decimal `db:"hold_amount" json:"hold_amount"`
	IsTemp             bool            `db:"is_temp" json:"is_temp"`
	IsLive             bool            `db:"is_live" json:"is_live"`
	EventDate          time.Time       `db:"event_date" json:"event_date"`
	EventTime          string          `db:"event_time" json:"event_time"` // e.g. "06:00 PM - 11:30 PM"
	Image              string          `db:"image" json:"image"`
}

var clockLayouts = []string{"3:04 PM", "3:04PM", "15:04"}

func parseClock(s string) (time.Time, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// ParseTimeRange splits "start - end" into the two wall clock times.
func ParseTimeRange(s string) (start, end time.Time, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("time range %q: expected \"start - end\"", s)
	}
	if start, err = parseClock(parts[0]); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end, err = parseClock(parts[1]); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// Schedule computes the start and end instants of the event in loc.
// An event starting in the PM period and ending in the AM period ends on the next day.
func (e *Event) Schedule(loc *time.Location) (start, end time.Time, err error) {
	if e.EventDate.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("event %s: missing event date", e.ID)
	}
	startClock, endClock, err := ParseTimeRange(e.EventTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("event %s: %w", e.ID, err)
	}

	y, m, d := e.EventDate.In(loc).Date()
	start = time.Date(y, m, d, startClock.Hour(), startClock.Minute(), 0, 0, loc)
	end = time.Date(y, m, d, endClock.Hour(), endClock.Minute(), 0, 0, loc)

	if startClock.Hour() >= 12 && endClock.Hour() < 12 {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
