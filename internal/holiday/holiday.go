// Package holiday resolves host-locale holiday short-names to concrete
// dates and back. Identity keys prefer the symbolic form, so the mapping
// has to be total in both directions for the covered set.
package holiday

import (
	"sort"
	"time"

	"github.com/robbiet76/fpp-calendar-sync/internal/cache"
)

type ruleKind int

const (
	ruleFixed ruleKind = iota
	ruleEasterOffset
	ruleNthWeekday
	ruleLastWeekday
)

type rule struct {
	kind    ruleKind
	month   time.Month
	day     int
	weekday time.Weekday
	nth     int
	offset  int // days relative to Easter
}

// The host locale set. Short names match what the scheduler UI shows.
var rules = map[string]rule{
	"NewYearsDay":   {kind: ruleFixed, month: time.January, day: 1},
	"MLKDay":        {kind: ruleNthWeekday, month: time.January, weekday: time.Monday, nth: 3},
	"Valentines":    {kind: ruleFixed, month: time.February, day: 14},
	"PresidentsDay": {kind: ruleNthWeekday, month: time.February, weekday: time.Monday, nth: 3},
	"StPatricksDay": {kind: ruleFixed, month: time.March, day: 17},
	"GoodFriday":    {kind: ruleEasterOffset, offset: -2},
	"Easter":        {kind: ruleEasterOffset, offset: 0},
	"MothersDay":    {kind: ruleNthWeekday, month: time.May, weekday: time.Sunday, nth: 2},
	"MemorialDay":   {kind: ruleLastWeekday, month: time.May, weekday: time.Monday},
	"FathersDay":    {kind: ruleNthWeekday, month: time.June, weekday: time.Sunday, nth: 3},
	"July4":         {kind: ruleFixed, month: time.July, day: 4},
	"LaborDay":      {kind: ruleNthWeekday, month: time.September, weekday: time.Monday, nth: 1},
	"ColumbusDay":   {kind: ruleNthWeekday, month: time.October, weekday: time.Monday, nth: 2},
	"Halloween":     {kind: ruleFixed, month: time.October, day: 31},
	"Veterans":      {kind: ruleFixed, month: time.November, day: 11},
	"Thanksgiving":  {kind: ruleNthWeekday, month: time.November, weekday: time.Thursday, nth: 4},
	"ChristmasEve":  {kind: ruleFixed, month: time.December, day: 24},
	"Christmas":     {kind: ruleFixed, month: time.December, day: 25},
	"NewYearsEve":   {kind: ruleFixed, month: time.December, day: 31},
}

// Resolver computes per-year holiday tables lazily and caches them. It
// is a plain injected value, not a global.
type Resolver struct {
	loc   *time.Location
	years *cache.Cache[int, map[string]time.Time]
}

func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{
		loc:   loc,
		years: cache.New[int, map[string]time.Time](24 * time.Hour),
	}
}

// Known reports whether name is a holiday short-name.
func Known(name string) bool {
	_, ok := rules[name]
	return ok
}

// Names returns the covered short-names, sorted.
func Names() []string {
	out := make([]string, 0, len(rules))
	for n := range rules {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Table returns the name→date table for a year.
func (r *Resolver) Table(year int) map[string]time.Time {
	if t, ok := r.years.Get(year); ok {
		return t
	}
	t := make(map[string]time.Time, len(rules))
	for name, ru := range rules {
		t[name] = r.resolve(ru, year)
	}
	r.years.Set(year, t)
	return t
}

// HolidayToDate resolves a short-name for a year.
func (r *Resolver) HolidayToDate(name string, year int) (time.Time, bool) {
	d, ok := r.Table(year)[name]
	return d, ok
}

// DateToHoliday returns the short-name falling on the given date, if
// any. Ties resolve to the alphabetically first name so identity stays
// deterministic.
func (r *Resolver) DateToHoliday(t time.Time) (string, bool) {
	table := r.Table(t.Year())
	var names []string
	for name, d := range table {
		if d.Month() == t.Month() && d.Day() == t.Day() {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)
	return names[0], true
}

func (r *Resolver) resolve(ru rule, year int) time.Time {
	switch ru.kind {
	case ruleFixed:
		return time.Date(year, ru.month, ru.day, 0, 0, 0, 0, r.loc)
	case ruleEasterOffset:
		return r.easter(year).AddDate(0, 0, ru.offset)
	case ruleNthWeekday:
		first := time.Date(year, ru.month, 1, 0, 0, 0, 0, r.loc)
		delta := (int(ru.weekday) - int(first.Weekday()) + 7) % 7
		return first.AddDate(0, 0, delta+(ru.nth-1)*7)
	case ruleLastWeekday:
		last := time.Date(year, ru.month+1, 1, 0, 0, 0, 0, r.loc).AddDate(0, 0, -1)
		delta := (int(last.Weekday()) - int(ru.weekday) + 7) % 7
		return last.AddDate(0, 0, -delta)
	}
	return time.Time{}
}

// easter computes Gregorian Easter Sunday (anonymous computus).
func (r *Resolver) easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, r.loc)
}
