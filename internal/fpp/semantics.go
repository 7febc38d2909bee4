// Package fpp is the single source of truth for Falcon Player scheduler
// semantics: target kinds, stop types, repeat encoding, the day selector
// enum, sentinel dates, the 24:00:00 rollover and the guard date.
package fpp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type TargetKind string

const (
	TargetPlaylist TargetKind = "playlist"
	TargetSequence TargetKind = "sequence"
	TargetCommand  TargetKind = "command"
)

// NormalizeType maps free-form type spellings to a TargetKind.
// The empty result means the type is not a scheduler target.
func NormalizeType(s string) TargetKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "playlist", "playlists":
		return TargetPlaylist
	case "sequence", "sequences", "fseq":
		return TargetSequence
	case "command", "cmd":
		return TargetCommand
	}
	return ""
}

type StopType int

const (
	StopGraceful     StopType = 0
	StopHard         StopType = 1
	StopGracefulLoop StopType = 2
)

// ParseStopType accepts the symbolic names (case-insensitive) or an
// integer, clamping integers into the host range [0,2].
func ParseStopType(v any) StopType {
	switch t := v.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "graceful", "":
			return StopGraceful
		case "hard":
			return StopHard
		case "graceful_loop", "gracefulloop":
			return StopGracefulLoop
		}
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return clampStop(n)
		}
		return StopGraceful
	case int:
		return clampStop(t)
	case int64:
		return clampStop(int(t))
	case float64:
		return clampStop(int(t))
	}
	return StopGraceful
}

func clampStop(n int) StopType {
	if n < 0 {
		return StopGraceful
	}
	if n > 2 {
		return StopGracefulLoop
	}
	return StopType(n)
}

const RepeatNone = 0
const RepeatImmediate = 1

// EncodeRepeat maps the calendar-facing repeat vocabulary onto the host
// encoding: none=0, immediate=1, a positive minute count becomes
// minutes*100, and values >=100 are treated as already encoded.
func EncodeRepeat(v any) int {
	switch t := v.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "none", "":
			return RepeatNone
		case "immediate":
			return RepeatImmediate
		}
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return EncodeRepeat(n)
		}
		return RepeatNone
	case int:
		return encodeRepeatInt(t)
	case int64:
		return encodeRepeatInt(int(t))
	case float64:
		return encodeRepeatInt(int(t))
	case bool:
		if t {
			return RepeatImmediate
		}
		return RepeatNone
	}
	return RepeatNone
}

func encodeRepeatInt(n int) int {
	switch {
	case n <= 0:
		return RepeatNone
	case n == 1:
		return RepeatImmediate
	case n >= 100:
		return n
	default:
		return n * 100
	}
}

// Day selector enum of the host scheduler. Values 0..6 name a single
// weekday; 7..13 are preset combinations.
const (
	DaySunday    = 0
	DayMonday    = 1
	DayTuesday   = 2
	DayWednesday = 3
	DayThursday  = 4
	DayFriday    = 5
	DaySaturday  = 6
	DayEveryday  = 7
	DayWeekdays  = 8
	DayWeekends  = 9
	DayMonWedFri = 10
	DayTueThu    = 11
	DaySunToThu  = 12
	DayFriSat    = 13
)

var weekdayTokens = [7]string{"Su", "Mo", "Tu", "We", "Th", "Fr", "Sa"}

// DaysEveryday is the seven-day sentinel token string.
const DaysEveryday = "SuMoTuWeThFrSa"

var dayCombos = map[string]int{
	DaysEveryday: DayEveryday,
	"MoTuWeThFr": DayWeekdays,
	"SuSa":       DayWeekends,
	"MoWeFr":     DayMonWedFri,
	"TuTh":       DayTueThu,
	"SuMoTuWeTh": DaySunToThu,
	"FrSa":       DayFriSat,
}

var dayTokensByEnum = map[int]string{
	DayEveryday:  DaysEveryday,
	DayWeekdays:  "MoTuWeThFr",
	DayWeekends:  "SuSa",
	DayMonWedFri: "MoWeFr",
	DayTueThu:    "TuTh",
	DaySunToThu:  "SuMoTuWeTh",
	DayFriSat:    "FrSa",
}

// WeekdayToken returns the two-letter token for a weekday.
func WeekdayToken(w time.Weekday) string {
	return weekdayTokens[int(w)]
}

// TokensFromWeekdays concatenates tokens in Su..Sa order.
func TokensFromWeekdays(days []time.Weekday) string {
	seen := [7]bool{}
	for _, d := range days {
		seen[int(d)] = true
	}
	var b strings.Builder
	for i := 0; i < 7; i++ {
		if seen[i] {
			b.WriteString(weekdayTokens[i])
		}
	}
	return b.String()
}

// DayFromTokens maps a compact token concatenation onto the host day
// enum. Unrecognized combinations fall back to the given weekday.
func DayFromTokens(days string, fallback time.Weekday) int {
	if n, ok := dayCombos[days]; ok {
		return n
	}
	for i, tok := range weekdayTokens {
		if days == tok {
			return i
		}
	}
	return int(fallback)
}

// TokensFromDay is the inverse mapping, used when deriving identity from
// raw host entries. Unknown values fall back to the supplied token.
func TokensFromDay(day int, fallback string) string {
	if day >= DaySunday && day <= DaySaturday {
		return weekdayTokens[day]
	}
	if tok, ok := dayTokensByEnum[day]; ok {
		return tok
	}
	return fallback
}

// DayWeekdaySet expands a day enum into the set of active weekdays.
func DayWeekdaySet(day int) []time.Weekday {
	tok, ok := dayTokensByEnum[day]
	if !ok {
		if day >= DaySunday && day <= DaySaturday {
			return []time.Weekday{time.Weekday(day)}
		}
		return nil
	}
	return WeekdaysFromTokens(tok)
}

// WeekdaysFromTokens parses a token concatenation back into weekdays.
func WeekdaysFromTokens(days string) []time.Weekday {
	var out []time.Weekday
	for i := 0; i+2 <= len(days); i += 2 {
		tok := days[i : i+2]
		for w, t := range weekdayTokens {
			if tok == t {
				out = append(out, time.Weekday(w))
			}
		}
	}
	return out
}

const dateLayout = "2006-01-02"

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// IsDateString reports whether s is a YYYY-MM-DD date token, sentinel
// form included.
func IsDateString(s string) bool {
	return datePattern.MatchString(s)
}

// IsSentinelDate reports whether s uses the 0000 year sentinel meaning
// "this month/day in the current year".
func IsSentinelDate(s string) bool {
	return strings.HasPrefix(s, "0000-") && IsDateString(s)
}

// ResolveDate parses a date token, substituting the current year for the
// 0000 sentinel.
func ResolveDate(s string, now time.Time) (time.Time, bool) {
	if !IsDateString(s) {
		return time.Time{}, false
	}
	if IsSentinelDate(s) {
		s = fmt.Sprintf("%04d%s", now.Year(), s[4:])
	}
	t, err := time.ParseInLocation(dateLayout, s, now.Location())
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatDate renders a date in the host token form.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

const clockLayout = "15:04:05"

// MidnightEnd is the host spelling of an end-of-day boundary.
const MidnightEnd = "24:00:00"

// EndClock renders an end timestamp as a host clock string. An end that
// falls exactly on midnight after start rolls over to 24:00:00 so the
// window stays within the start date.
func EndClock(start, end time.Time) string {
	if end.After(start) && end.Hour() == 0 && end.Minute() == 0 && end.Second() == 0 {
		return MidnightEnd
	}
	return end.Format(clockLayout)
}

// Clock renders a wall-clock time string.
func Clock(t time.Time) string {
	return t.Format(clockLayout)
}

// GuardYears is the horizon the planner is allowed to schedule into.
const GuardYears = 5

// GuardDate is Dec 31 of the current year plus GuardYears; no emitted
// schedule may start on or after it, and end dates clamp to it.
func GuardDate(now time.Time) time.Time {
	return time.Date(now.Year()+GuardYears, time.December, 31, 0, 0, 0, 0, now.Location())
}

// Symbolic time tokens resolved through the sun-time estimator.
var symbolicTimes = map[string]string{
	"dawn":    "Dawn",
	"sunrise": "SunRise",
	"sunset":  "SunSet",
	"dusk":    "Dusk",
}

// SymbolicTimeToken canonicalizes a symbolic time name; ok is false for
// anything that is not one of {Dawn, SunRise, SunSet, Dusk}.
func SymbolicTimeToken(s string) (string, bool) {
	tok, ok := symbolicTimes[strings.ToLower(strings.TrimSpace(s))]
	return tok, ok
}

// IsSymbolicTime reports whether a host startTime/endTime field holds a
// symbolic token rather than a clock string.
func IsSymbolicTime(s string) bool {
	_, ok := SymbolicTimeToken(s)
	return ok
}
