// Package ical handles the calendar side of the pipeline: fetching a
// feed, parsing VEVENTs and expanding recurrences into occurrences.
package ical

import "time"

// RRule is the parsed recurrence rule. Only DAILY and WEEKLY expand;
// other frequencies are carried through so the expander can drop the
// series explicitly.
type RRule struct {
	Freq     string
	Interval int
	ByDay    []time.Weekday
	Until    *time.Time
	Count    int
}

type Event struct {
	UID         string
	Summary     string
	Description string

	Start    time.Time
	End      time.Time
	IsAllDay bool

	RRule   *RRule
	ExDates []time.Time

	// IsOverride marks a RECURRENCE-ID instance replacing one
	// occurrence of the base series.
	IsOverride   bool
	RecurrenceID *time.Time
}

// Duration is the event length; generated occurrences inherit it.
func (e *Event) Duration() time.Duration {
	if e.End.After(e.Start) {
		return e.End.Sub(e.Start)
	}
	return 0
}
