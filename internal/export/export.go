// Package export renders the unmanaged schedule entries as an RFC 5545
// calendar so operators can see hand-added entries alongside the feed
// in any calendar client.
package export

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
	"github.com/robbiet76/fpp-calendar-sync/internal/holiday"
	"github.com/robbiet76/fpp-calendar-sync/internal/metadata"
	"github.com/robbiet76/fpp-calendar-sync/internal/suntime"
)

const prodID = "-//FPP//fpp-calendar-sync 1.0//EN"

// exportHorizon bounds repeating exports; clients choke on open-ended
// rules spanning years.
const exportHorizon = 366 * 24 * time.Hour

// uidNamespace seeds deterministic event UIDs so re-exports are stable.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("fpp-calendar-sync/export"))

// Exporter turns schedule entries into a VCALENDAR document.
type Exporter struct {
	loc      *time.Location
	sun      *suntime.Estimator
	holidays *holiday.Resolver
	logger   zerolog.Logger
}

func NewExporter(loc *time.Location, sun *suntime.Estimator, holidays *holiday.Resolver, logger zerolog.Logger) *Exporter {
	if loc == nil {
		loc = time.Local
	}
	return &Exporter{
		loc:      loc,
		sun:      sun,
		holidays: holidays,
		logger:   logger.With().Str("component", "export").Logger(),
	}
}

// window is one entry resolved to concrete local times.
type window struct {
	entry     fpp.Entry
	start     time.Time // first occurrence start
	end       time.Time // first occurrence end
	rangeEnd  time.Time // last active date, midnight local
	days      []time.Weekday
	everyday  bool
	repeating bool
}

// Export renders the unmanaged subset of entries. Managed entries are
// the feed's own reflection and are skipped.
func (x *Exporter) Export(entries []fpp.Entry, now time.Time) ([]byte, error) {
	now = now.In(x.loc)

	cal := &goical.Calendar{
		Component: &goical.Component{
			Name:  goical.CompCalendar,
			Props: make(goical.Props),
		},
	}
	cal.Props.SetText(goical.PropProductID, prodID)
	cal.Props.SetText(goical.PropVersion, "2.0")
	cal.Props.SetText(goical.PropCalendarScale, "GREGORIAN")
	cal.Props.SetText(goical.PropMethod, "PUBLISH")
	cal.Props.Set(&goical.Prop{Name: "X-WR-TIMEZONE", Value: x.loc.String()})

	if tz := x.timezone(now); tz != nil {
		cal.Children = append(cal.Children, tz)
	}

	var windows []*window
	for i, e := range entries {
		if e.Managed() {
			continue
		}
		w, err := x.resolve(e, now)
		if err != nil {
			x.logger.Debug().Int("index", i).Err(err).Msg("entry not exportable, skipping")
			continue
		}
		windows = append(windows, w)
	}

	for i, w := range windows {
		ev := x.event(w, windows[:i], now)
		cal.Children = append(cal.Children, ev)
	}

	var buf bytes.Buffer
	if err := goical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

// resolve maps one entry's dates, times and day mask to local times.
func (x *Exporter) resolve(e fpp.Entry, now time.Time) (*window, error) {
	if e.Target() == "" {
		return nil, fmt.Errorf("entry has no target")
	}

	startDate, ok := x.resolveDate(e.Str("startDate"), now)
	if !ok {
		return nil, fmt.Errorf("unresolvable startDate %q", e.Str("startDate"))
	}
	endDate, ok := x.resolveDate(e.Str("endDate"), now)
	if !ok {
		endDate = startDate
	}
	if endDate.Before(startDate) {
		endDate = startDate
	}

	startTod, err := x.resolveTime(e.Str("startTime"), e.Int("startTimeOffset"), startDate)
	if err != nil {
		return nil, err
	}
	endTod, err := x.resolveTime(e.Str("endTime"), e.Int("endTimeOffset"), startDate)
	if err != nil {
		return nil, err
	}

	start := startDate.Add(startTod)
	end := startDate.Add(endTod)
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}

	day := e.Int("day")
	return &window{
		entry:     e,
		start:     start,
		end:       end,
		rangeEnd:  endDate,
		days:      fpp.DayWeekdaySet(day),
		everyday:  day == fpp.DayEveryday,
		repeating: endDate.After(startDate),
	}, nil
}

func (x *Exporter) resolveDate(s string, now time.Time) (time.Time, bool) {
	if t, ok := fpp.ResolveDate(s, now); ok {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, x.loc), true
	}
	if t, ok := x.holidays.HolidayToDate(s, now.Year()); ok {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, x.loc), true
	}
	return time.Time{}, false
}

// resolveTime maps a clock or symbolic time to a duration past
// midnight. Symbolic times are approximated for the given date; the
// host recomputes them daily, the export shows one representative.
func (x *Exporter) resolveTime(s string, offset int, date time.Time) (time.Duration, error) {
	if fpp.IsSymbolicTime(s) {
		t := x.sun.Resolve(s, offset, date)
		return t.Sub(date), nil
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("bad time %q", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, fmt.Errorf("bad time %q", s)
	}
	sec := 0
	if len(parts) > 2 {
		sec, _ = strconv.Atoi(parts[2])
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

// event renders one window, excluding dates where an earlier entry for
// the same playlist wins.
func (x *Exporter) event(w *window, above []*window, now time.Time) *goical.Component {
	ev := &goical.Component{
		Name:  goical.CompEvent,
		Props: make(goical.Props),
	}

	uid := uuid.NewSHA1(uidNamespace, []byte(identityKey(w))).String()
	ev.Props.SetText(goical.PropUID, uid)
	ev.Props.Set(&goical.Prop{
		Name:  goical.PropDateTimeStamp,
		Value: now.UTC().Format("20060102T150405Z"),
	})

	tzid := x.loc.String()
	setLocal := func(name string, t time.Time) {
		p := &goical.Prop{Name: name, Value: t.Format("20060102T150405"), Params: make(goical.Params)}
		p.Params.Set(goical.ParamTimezoneID, tzid)
		ev.Props.Set(p)
	}
	setLocal(goical.PropDateTimeStart, w.start)
	setLocal(goical.PropDateTimeEnd, w.end)

	ev.Props.SetText(goical.PropSummary, w.entry.Target())
	if desc := x.description(w.entry); desc != "" {
		ev.Props.SetText(goical.PropDescription, desc)
	}

	if w.repeating {
		ev.Props.Set(&goical.Prop{Name: goical.PropRecurrenceRule, Value: x.rrule(w, now)})
	}

	for _, d := range x.exdates(w, above, now) {
		p := &goical.Prop{Name: goical.PropExceptionDates, Value: d.Format("20060102T150405"), Params: make(goical.Params)}
		p.Params.Set(goical.ParamTimezoneID, tzid)
		ev.Props.Add(p)
	}
	return ev
}

// rrule builds the repetition rule: DAILY for everyday entries, WEEKLY
// with BYDAY otherwise. UNTIL is clamped to the export horizon and,
// for windows crossing midnight, pinned to the DTSTART wall clock so
// the final day is not lost.
func (x *Exporter) rrule(w *window, now time.Time) string {
	until := w.rangeEnd
	if max := now.Add(exportHorizon); until.After(max) {
		until = time.Date(max.Year(), max.Month(), max.Day(), 0, 0, 0, 0, x.loc)
	}
	untilInstant := until.Add(w.start.Sub(dateOf(w.start)))

	var b strings.Builder
	if w.everyday {
		b.WriteString("FREQ=DAILY")
	} else {
		b.WriteString("FREQ=WEEKLY;BYDAY=")
		b.WriteString(byDay(w.days))
	}
	fmt.Fprintf(&b, ";UNTIL=%s", untilInstant.UTC().Format("20060102T150405Z"))
	return b.String()
}

var icalDayNames = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

func byDay(days []time.Weekday) string {
	sorted := append([]time.Weekday{}, days...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, 0, len(sorted))
	for _, d := range sorted {
		parts = append(parts, icalDayNames[d])
	}
	return strings.Join(parts, ",")
}

// exdates walks the window's active dates and excludes any date where
// an entry higher in the file targets the same playlist. The host
// evaluates top-down, so the higher entry owns those dates.
func (x *Exporter) exdates(w *window, above []*window, now time.Time) []time.Time {
	if !w.repeating || w.entry.Kind() == fpp.TargetCommand {
		return nil
	}
	var higher []*window
	for _, h := range above {
		if h.entry.Kind() != fpp.TargetCommand && h.entry.Target() == w.entry.Target() {
			higher = append(higher, h)
		}
	}
	if len(higher) == 0 {
		return nil
	}

	end := w.rangeEnd
	if max := now.Add(exportHorizon); end.After(max) {
		end = max
	}

	tod := w.start.Sub(dateOf(w.start))
	var out []time.Time
	for d := dateOf(w.start); !d.After(end); d = d.AddDate(0, 0, 1) {
		if !activeOn(w, d) {
			continue
		}
		for _, h := range higher {
			if activeOn(h, d) {
				out = append(out, d.Add(tod))
				break
			}
		}
	}
	return out
}

func activeOn(w *window, d time.Time) bool {
	start := dateOf(w.start)
	if d.Before(start) || d.After(w.rangeEnd) {
		return false
	}
	if w.everyday {
		return true
	}
	for _, wd := range w.days {
		if wd == d.Weekday() {
			return true
		}
	}
	return false
}

// description serializes the behavioral fields so a re-import would
// round-trip them through the metadata block.
func (x *Exporter) description(e fpp.Entry) string {
	meta := map[string]any{}
	if e.Int("enabled") == 0 {
		meta["enabled"] = false
	}
	if st := e.Int("stopType"); st != int(fpp.StopGraceful) {
		meta["stopType"] = st
	}
	if rp := e.Int("repeat"); rp != fpp.RepeatImmediate && e.Kind() != fpp.TargetCommand {
		meta["repeat"] = rp
	}
	if e.Kind() == fpp.TargetCommand {
		cmd := map[string]any{"name": e.Target()}
		if args := e.Args(); len(args) > 0 {
			cmd["args"] = strings.Join(args, " ")
		}
		meta["command"] = cmd
	}
	if len(meta) == 0 {
		return ""
	}
	return metadata.Serialize(meta)
}

// identityKey is the stable seed for an unmanaged entry's export UID.
func identityKey(w *window) string {
	e := w.entry
	return strings.Join([]string{
		string(e.Kind()),
		e.Target(),
		e.Str("startDate"),
		e.Str("endDate"),
		strconv.Itoa(e.Int("day")),
		e.Str("startTime"),
		e.Str("endTime"),
	}, "|")
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
