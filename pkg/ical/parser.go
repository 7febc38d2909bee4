package ical

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	goical "github.com/emersion/go-ical"
)

// Parse decodes ICS text into events, all times rendered as wall clock
// in loc. Malformed VEVENTs are skipped; only an undecodable calendar
// is an error.
func Parse(data []byte, loc *time.Location) ([]*Event, error) {
	if loc == nil {
		loc = time.Local
	}
	cal, err := goical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}

	var events []*Event
	for _, comp := range cal.Children {
		if comp.Name != goical.CompEvent {
			continue
		}
		ev, err := parseEvent(comp, loc)
		if err != nil {
			continue // skip malformed VEVENT, keep the rest
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseEvent(comp *goical.Component, loc *time.Location) (*Event, error) {
	event := &Event{}

	uid := comp.Props.Get(goical.PropUID)
	if uid == nil || uid.Value == "" {
		return nil, fmt.Errorf("missing UID")
	}
	event.UID = uid.Value

	if summary := comp.Props.Get(goical.PropSummary); summary != nil {
		event.Summary = summary.Value
	}
	if desc := comp.Props.Get(goical.PropDescription); desc != nil {
		event.Description = desc.Value
	}

	dtstart := comp.Props.Get(goical.PropDateTimeStart)
	if dtstart == nil {
		return nil, fmt.Errorf("missing DTSTART")
	}
	start, allDay, err := parsePropTime(dtstart, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid DTSTART: %w", err)
	}
	event.Start = start
	event.IsAllDay = allDay

	if dtend := comp.Props.Get(goical.PropDateTimeEnd); dtend != nil {
		end, _, err := parsePropTime(dtend, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid DTEND: %w", err)
		}
		event.End = end
	} else if dur := comp.Props.Get(goical.PropDuration); dur != nil {
		d, err := parseDuration(dur.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid DURATION: %w", err)
		}
		event.End = start.Add(d)
	} else if allDay {
		event.End = start.AddDate(0, 0, 1)
	} else {
		event.End = start
	}

	if rr := comp.Props.Get(goical.PropRecurrenceRule); rr != nil {
		rule, err := parseRRule(rr.Value, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid RRULE: %w", err)
		}
		event.RRule = rule
	}

	for _, exProp := range comp.Props.Values(goical.PropExceptionDates) {
		for _, part := range strings.Split(exProp.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, _, err := parseTimeValue(part, tzidOf(&exProp), loc)
			if err != nil {
				continue
			}
			event.ExDates = append(event.ExDates, t)
		}
	}

	if recID := comp.Props.Get(goical.PropRecurrenceID); recID != nil {
		t, _, err := parsePropTime(recID, loc)
		if err == nil {
			event.IsOverride = true
			event.RecurrenceID = &t
		}
	}

	return event, nil
}

func tzidOf(prop *goical.Prop) string {
	return prop.Params.Get(goical.ParamTimezoneID)
}

func parsePropTime(prop *goical.Prop, loc *time.Location) (time.Time, bool, error) {
	return parseTimeValue(prop.Value, tzidOf(prop), loc)
}

// parseTimeValue handles the three shapes the feed uses: DATE-only,
// floating local time (optionally TZID-qualified) and UTC. The result
// is always converted into loc wall clock.
func parseTimeValue(value, tzid string, loc *time.Location) (time.Time, bool, error) {
	value = strings.TrimSpace(value)

	if len(value) == 8 {
		t, err := time.ParseInLocation("20060102", value, loc)
		return t, true, err
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse("20060102T150405Z", value)
		if err != nil {
			return time.Time{}, false, err
		}
		return t.In(loc), false, nil
	}

	parseLoc := loc
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			parseLoc = l
		}
	}
	t, err := time.ParseInLocation("20060102T150405", value, parseLoc)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.In(loc), false, nil
}

var byDayTokens = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

func parseRRule(value string, loc *time.Location) (*RRule, error) {
	rule := &RRule{Interval: 1}
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed RRULE part %q", part)
		}
		switch strings.ToUpper(kv[0]) {
		case "FREQ":
			rule.Freq = strings.ToUpper(kv[1])
		case "INTERVAL":
			n, err := strconv.Atoi(kv[1])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("bad INTERVAL %q", kv[1])
			}
			rule.Interval = n
		case "BYDAY":
			for _, tok := range strings.Split(kv[1], ",") {
				wd, ok := byDayTokens[strings.ToUpper(strings.TrimSpace(tok))]
				if !ok {
					return nil, fmt.Errorf("bad BYDAY token %q", tok)
				}
				rule.ByDay = append(rule.ByDay, wd)
			}
		case "UNTIL":
			t, err := parseUntil(kv[1], loc)
			if err != nil {
				return nil, err
			}
			rule.Until = &t
		case "COUNT":
			n, err := strconv.Atoi(kv[1])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("bad COUNT %q", kv[1])
			}
			rule.Count = n
		}
	}
	if rule.Freq == "" {
		return nil, fmt.Errorf("RRULE without FREQ")
	}
	return rule, nil
}

// parseUntil accepts the three UNTIL forms: date-only, UTC and floating.
func parseUntil(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	switch {
	case len(value) == 8:
		t, err := time.ParseInLocation("20060102", value, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad UNTIL %q", value)
		}
		// Date-only UNTIL covers the whole final day.
		return t.Add(24*time.Hour - time.Second), nil
	case strings.HasSuffix(value, "Z"):
		t, err := time.Parse("20060102T150405Z", value)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad UNTIL %q", value)
		}
		return t, nil
	default:
		t, err := time.ParseInLocation("20060102T150405", value, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad UNTIL %q", value)
		}
		return t, nil
	}
}

// parseDuration handles the ISO 8601 subset calendars emit (PnDTnHnMnS).
func parseDuration(durStr string) (time.Duration, error) {
	durStr = strings.TrimSpace(durStr)
	if !strings.HasPrefix(durStr, "P") {
		return 0, fmt.Errorf("invalid duration format")
	}

	var days, hours, minutes, seconds int
	var inTime bool
	var current strings.Builder

	for _, r := range durStr[1:] {
		switch r {
		case 'D':
			if n, err := strconv.Atoi(current.String()); err == nil {
				days = n
			}
			current.Reset()
		case 'T':
			inTime = true
			current.Reset()
		case 'H':
			if inTime {
				if n, err := strconv.Atoi(current.String()); err == nil {
					hours = n
				}
			}
			current.Reset()
		case 'M':
			if inTime {
				if n, err := strconv.Atoi(current.String()); err == nil {
					minutes = n
				}
			}
			current.Reset()
		case 'S':
			if inTime {
				if n, err := strconv.Atoi(current.String()); err == nil {
					seconds = n
				}
			}
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}

	return time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second, nil
}
