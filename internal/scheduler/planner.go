package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
	"github.com/robbiet76/fpp-calendar-sync/internal/manifest"
	"github.com/robbiet76/fpp-calendar-sync/internal/metadata"
	"github.com/robbiet76/fpp-calendar-sync/pkg/ical"
)

// Planner projects series into bundles, enforces the guard date and the
// entry cap, orders bundles by host precedence and flattens them into
// the desired entry list.
type Planner struct {
	identity *manifest.Builder
	now      time.Time
	guard    time.Time
	logger   zerolog.Logger
}

func NewPlanner(identity *manifest.Builder, now time.Time, logger zerolog.Logger) *Planner {
	return &Planner{
		identity: identity,
		now:      now,
		guard:    fpp.GuardDate(now),
		logger:   logger.With().Str("component", "planner").Logger(),
	}
}

// Plan is the projection pipeline. The returned error is only ever a
// *LimitError; everything else degrades to warnings.
func (p *Planner) Plan(series []Series) ([]Desired, []string, error) {
	var warnings []string

	var bundles []*Bundle
	for i := range series {
		b := p.project(&series[i])
		if b == nil {
			continue
		}
		bundles = append(bundles, b)
	}

	attempted := 0
	for _, b := range bundles {
		attempted += 1 + len(b.Overrides)
	}
	if attempted > EntryLimit {
		return nil, warnings, &LimitError{Limit: EntryLimit, Attempted: attempted}
	}

	p.order(bundles)

	var desired []Desired
	for _, b := range bundles {
		intents := append(append([]Intent{}, b.Overrides...), b.Base)
		for _, in := range intents {
			entry, err := IntentToEntry(in)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("uid %s: %v", in.UID, err))
				continue
			}
			sc, err := p.identity.Sidecar(entry)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("uid %s: identity incomplete: %v", in.UID, err))
				continue
			}
			entry["_manifest"] = sc.AsMap()
			desired = append(desired, Desired{UID: in.UID, Entry: entry})
		}
	}
	return desired, warnings, nil
}

// project maps one series to a bundle, applying the guard date. A nil
// result means the whole bundle fell outside the horizon.
func (p *Planner) project(s *Series) *Bundle {
	base := s.Event

	tpl := p.template(s, base, s.YAMLBase, false)
	rng := Range{Start: dateOf(base.Start)}

	if rr := base.RRule; rr != nil {
		switch {
		case rr.Until != nil:
			rng.End = untilRangeEnd(base.Start, *rr.Until)
		case rr.Count > 0:
			rng.End = lastGeneratedDate(s.Occurrences, rng.Start)
		default:
			rng.End = p.guard
		}
		switch {
		case rr.Freq == "DAILY":
			rng.Days = fpp.DaysEveryday
		case rr.Freq == "WEEKLY" && len(rr.ByDay) > 0:
			rng.Days = fpp.TokensFromWeekdays(rr.ByDay)
		default:
			rng.Days = fpp.WeekdayToken(base.Start.Weekday())
		}
	} else {
		rng.End = rng.Start
		rng.Days = fpp.WeekdayToken(base.Start.Weekday())
	}

	// Guard: bundles starting at or past the guard date are dropped,
	// ends are clamped to it.
	if !rng.Start.Before(p.guard) {
		p.logger.Debug().Str("uid", s.UID).Msg("bundle starts past guard date, dropped")
		return nil
	}
	if rng.End.After(p.guard) {
		rng.End = p.guard
	}
	if rng.End.Before(rng.Start) {
		rng.End = rng.Start
	}

	b := &Bundle{Base: Intent{UID: s.UID, Template: tpl, Range: rng}}

	for _, occ := range s.Occurrences {
		if !occ.IsOverride {
			continue
		}
		day := dateOf(occ.Start)
		if !day.Before(p.guard) {
			continue
		}
		yaml := mergeMeta(s.YAMLBase, metadata.Parse(occ.Event.Description))
		otpl := p.template(s, occ.Event, yaml, true)
		b.Overrides = append(b.Overrides, Intent{
			UID:      s.UID,
			Template: otpl,
			Range:    Range{Start: day, End: day, Days: fpp.WeekdayToken(day.Weekday())},
		})
	}
	return b
}

// template builds the run description for an event, folding in the
// recognized metadata keys.
func (p *Planner) template(s *Series, ev *ical.Event, yaml map[string]any, isOverride bool) Template {
	tpl := Template{
		Summary:    ev.Summary,
		Kind:       s.Kind,
		Target:     s.Target,
		Start:      ev.Start,
		End:        ev.End,
		Enabled:    true,
		IsOverride: isOverride,
	}
	if !tpl.End.After(tpl.Start) {
		tpl.End = tpl.Start
	}

	if v, ok := yaml["enabled"]; ok {
		switch t := v.(type) {
		case bool:
			tpl.Enabled = t
		case string:
			tpl.Enabled = t != "false" && t != "0"
		case int:
			tpl.Enabled = t != 0
		}
	}
	tpl.StopType = fpp.ParseStopType(yaml["stopType"])

	// Playlists and sequences loop for the whole window by default;
	// commands fire once.
	if tpl.Kind == fpp.TargetCommand {
		tpl.Repeat = fpp.RepeatNone
	} else {
		tpl.Repeat = fpp.RepeatImmediate
	}
	if v, ok := yaml["repeat"]; ok {
		tpl.Repeat = fpp.EncodeRepeat(v)
	}

	if d, ok := clockFrom(yaml["start"]); ok {
		tpl.Start = withClock(tpl.Start, d)
	}
	if d, ok := clockFrom(yaml["end"]); ok {
		tpl.End = withClock(tpl.End, d)
	}

	tpl.StartSym = symbolicFrom(yaml["start"])
	tpl.EndSym = symbolicFrom(yaml["end"])

	if cmd, ok := yaml["command"].(map[string]any); ok && tpl.Kind == fpp.TargetCommand {
		if name, ok := cmd["name"].(string); ok && name != "" {
			tpl.Target = name
		}
		if args, ok := cmd["args"].(string); ok && args != "" {
			tpl.CommandArgs = []string{args}
		}
	}
	return tpl
}

// clockFrom reads a nested {time} descriptor with an explicit clock,
// overriding the event's own time of day.
func clockFrom(v any) (time.Duration, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return 0, false
	}
	raw, _ := m["time"].(string)
	parts := strings.Split(raw, ":")
	if len(parts) < 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	mi, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, false
	}
	sec := 0
	if len(parts) > 2 {
		sec, _ = strconv.Atoi(parts[2])
	}
	return time.Duration(h)*time.Hour + time.Duration(mi)*time.Minute + time.Duration(sec)*time.Second, true
}

func withClock(t time.Time, d time.Duration) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).Add(d)
}

// symbolicFrom reads a nested {symbolic, offset} descriptor.
func symbolicFrom(v any) *SymbolicTime {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	name, _ := m["symbolic"].(string)
	tok, ok := fpp.SymbolicTimeToken(name)
	if !ok {
		return nil
	}
	offset := 0
	if n, ok := m["offset"].(int); ok {
		offset = n
	}
	return &SymbolicTime{Token: tok, Offset: offset}
}

// untilRangeEnd converts an RRULE UNTIL into the last active date. The
// UNTIL instant is aligned to DTSTART's zone, and when its time of day
// is strictly earlier than DTSTART's the date rolls back a day so the
// final occurrence stays included.
func untilRangeEnd(dtstart, until time.Time) time.Time {
	u := until.In(dtstart.Location())
	if clockSeconds(u) < clockSeconds(dtstart) {
		u = u.AddDate(0, 0, -1)
	}
	return dateOf(u)
}

// lastGeneratedDate finds the date of the last non-override occurrence
// for COUNT-bounded rules.
func lastGeneratedDate(occs []ical.Occurrence, fallback time.Time) time.Time {
	last := fallback
	for _, occ := range occs {
		if occ.IsOverride {
			continue
		}
		if d := dateOf(occ.Start); d.After(last) {
			last = d
		}
	}
	return last
}

func mergeMeta(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func clockSeconds(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// order arranges bundles so the host's top-down evaluation picks the
// intended winner for every overlapping minute: contained date ranges
// first, then narrower daily windows, then later daily starts. Seeded
// chronologically, settled by bounded bubble passes; bundles move as a
// whole.
func (p *Planner) order(bundles []*Bundle) {
	sort.SliceStable(bundles, func(i, j int) bool {
		a, b := bundles[i], bundles[j]
		if !a.Range().Start.Equal(b.Range().Start) {
			return a.Range().Start.Before(b.Range().Start)
		}
		return a.dailyStart() < b.dailyStart()
	})

	for pass := 0; pass < maxOrderPasses; pass++ {
		moved := false
		for i := 0; i < len(bundles); i++ {
			for j := i + 1; j < len(bundles); j++ {
				if overlaps(bundles[i], bundles[j]) && mustBeAbove(bundles[j], bundles[i]) {
					b := bundles[j]
					copy(bundles[i+1:j+1], bundles[i:j])
					bundles[i] = b
					moved = true
				}
			}
		}
		if !moved {
			break
		}
	}
}

// Range returns the bundle's governing range (the base intent's).
func (b *Bundle) Range() Range { return b.Base.Range }

// dailyStart is the base window's start, minutes after midnight.
func (b *Bundle) dailyStart() int {
	t := b.Base.Template.Start
	return t.Hour()*60 + t.Minute()
}

// dailyDuration is the base window's length in minutes, wrapping
// windows that cross midnight.
func (b *Bundle) dailyDuration() int {
	s := b.dailyStart()
	t := b.Base.Template.End
	e := t.Hour()*60 + t.Minute()
	d := e - s
	if d <= 0 {
		d += 24 * 60
	}
	return d
}

// overlaps reports whether two bundles can compete for a minute: date
// ranges intersect, day masks intersect and daily windows intersect
// (overnight wrap included).
func overlaps(a, b *Bundle) bool {
	ar, br := a.Range(), b.Range()
	if ar.Start.After(br.End) || br.Start.After(ar.End) {
		return false
	}
	if !daysIntersect(ar.Days, br.Days) {
		return false
	}
	return windowsIntersect(a.dailyStart(), a.dailyDuration(), b.dailyStart(), b.dailyDuration())
}

func daysIntersect(a, b string) bool {
	set := map[time.Weekday]bool{}
	for _, d := range fpp.WeekdaysFromTokens(a) {
		set[d] = true
	}
	for _, d := range fpp.WeekdaysFromTokens(b) {
		if set[d] {
			return true
		}
	}
	return false
}

// windowsIntersect treats the day as circular: windows are [s, s+d)
// segments modulo 24h.
func windowsIntersect(sa, da, sb, db int) bool {
	const day = 24 * 60
	for _, shift := range []int{-day, 0, day} {
		if sa < sb+db+shift && sb+shift < sa+da {
			return true
		}
	}
	return false
}

// mustBeAbove decides whether b has to sit above a in the file.
func mustBeAbove(b, a *Bundle) bool {
	if strictlyContains(a.Range(), b.Range()) {
		return true
	}
	if strictlyContains(b.Range(), a.Range()) {
		return false
	}
	db, da := b.dailyDuration(), a.dailyDuration()
	if db != da {
		return db < da
	}
	return b.dailyStart() > a.dailyStart()
}

// strictlyContains reports a ⊃ b over date ranges (not equal).
func strictlyContains(a, b Range) bool {
	if a.Start.After(b.Start) || a.End.Before(b.End) {
		return false
	}
	return !(a.Start.Equal(b.Start) && a.End.Equal(b.End))
}
