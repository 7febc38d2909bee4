package ical

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrUnsupportedFreq is returned for RRULE frequencies the expander
// does not generate (anything but DAILY/WEEKLY); the series is dropped.
var ErrUnsupportedFreq = errors.New("unsupported recurrence frequency")

// Occurrence is one concrete run of a series inside the horizon.
type Occurrence struct {
	Start      time.Time
	End        time.Time
	IsOverride bool
	Event      *Event // base for generated occurrences, the override otherwise
}

// Key identifies an occurrence instant for EXDATE and override
// matching: local wall clock, second precision.
func Key(t time.Time) string {
	return t.Format("20060102T150405")
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// Expand produces the occurrences of a base event and its overrides in
// [hStart, hEnd]. Overrides keep their own DTSTART/DTEND; generated
// occurrences inherit the base duration. Occurrences whose key is in
// EXDATE or replaced by an override are skipped.
func Expand(base *Event, overrides map[string]*Event, hStart, hEnd time.Time) ([]Occurrence, error) {
	var out []Occurrence

	overridden := make(map[string]bool, len(overrides))
	for key, ov := range overrides {
		overridden[key] = true
		if !ov.Start.Before(hStart) && !ov.Start.After(hEnd) {
			out = append(out, Occurrence{Start: ov.Start, End: ov.End, IsOverride: true, Event: ov})
		}
	}

	if base.RRule == nil {
		if !base.Start.Before(hStart) && !base.Start.After(hEnd) && !overridden[Key(base.Start)] {
			out = append(out, Occurrence{Start: base.Start, End: base.Start.Add(base.Duration()), Event: base})
		}
		sortOccurrences(out)
		return out, nil
	}

	var freq rrule.Frequency
	switch base.RRule.Freq {
	case "DAILY":
		freq = rrule.DAILY
	case "WEEKLY":
		freq = rrule.WEEKLY
	default:
		return nil, ErrUnsupportedFreq
	}

	opt := rrule.ROption{
		Freq:     freq,
		Interval: base.RRule.Interval,
		Dtstart:  base.Start,
	}
	if opt.Interval < 1 {
		opt.Interval = 1
	}
	if base.RRule.Until != nil {
		opt.Until = *base.RRule.Until
	}
	if base.RRule.Count > 0 {
		opt.Count = base.RRule.Count
	}
	if freq == rrule.WEEKLY && len(base.RRule.ByDay) > 0 {
		// WEEKLY without BYDAY falls back to DTSTART's weekday, which
		// is rrule's native default.
		for _, wd := range base.RRule.ByDay {
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[wd])
		}
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, err
	}

	exKeys := make(map[string]bool, len(base.ExDates))
	for _, ex := range base.ExDates {
		exKeys[Key(ex)] = true
	}

	dur := base.Duration()
	for _, t := range rule.Between(hStart, hEnd, true) {
		k := Key(t)
		if exKeys[k] || overridden[k] {
			continue
		}
		out = append(out, Occurrence{Start: t, End: t.Add(dur), Event: base})
	}

	sortOccurrences(out)
	return out, nil
}

func sortOccurrences(occ []Occurrence) {
	sort.Slice(occ, func(i, j int) bool { return occ[i].Start.Before(occ[j].Start) })
}
