package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
	"github.com/robbiet76/fpp-calendar-sync/internal/holiday"
	"github.com/robbiet76/fpp-calendar-sync/internal/manifest"
	"github.com/robbiet76/fpp-calendar-sync/pkg/ical"
)

var plannerNow = time.Date(2026, time.August, 24, 12, 0, 0, 0, time.UTC)

func newTestPlanner(t *testing.T) *Planner {
	t.Helper()
	b := manifest.NewBuilder(holiday.NewResolver(time.UTC), plannerNow)
	return NewPlanner(b, plannerNow, zerolog.Nop())
}

func playlistSeries(uid string, start time.Time, dur time.Duration, rr *ical.RRule) Series {
	base := &ical.Event{
		UID:     uid,
		Summary: "MainShow-" + uid,
		Start:   start,
		End:     start.Add(dur),
		RRule:   rr,
	}
	return Series{
		UID:         uid,
		Event:       base,
		Kind:        fpp.TargetPlaylist,
		Target:      "MainShow-" + uid,
		YAMLBase:    map[string]any{},
		Occurrences: []ical.Occurrence{{Start: start, End: start.Add(dur), Event: base}},
	}
}

func TestPlanSingleEventDefaults(t *testing.T) {
	p := newTestPlanner(t)
	start := time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC)

	desired, warnings, err := p.Plan([]Series{playlistSeries("u1", start, 4*time.Hour, nil)})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, desired, 1)

	e := desired[0].Entry
	assert.Equal(t, 1, e.Int("enabled"))
	// Playlists loop for the whole window unless told otherwise.
	assert.Equal(t, fpp.RepeatImmediate, e.Int("repeat"))
	assert.Equal(t, 0, e.Int("stopType"))
	assert.Equal(t, "2026-12-01", e.Str("startDate"))
	assert.Equal(t, "2026-12-01", e.Str("endDate"))
	// Single events pin to their weekday (Dec 1 2026 is a Tuesday).
	assert.Equal(t, fpp.DayTuesday, e.Int("day"))
	assert.NotEmpty(t, e.ManifestID())
}

func TestPlanDailySeriesOpenEndedClampsToGuard(t *testing.T) {
	p := newTestPlanner(t)
	start := time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC)

	desired, _, err := p.Plan([]Series{
		playlistSeries("u1", start, 2*time.Hour, &ical.RRule{Freq: "DAILY", Interval: 1}),
	})
	require.NoError(t, err)
	require.Len(t, desired, 1)

	e := desired[0].Entry
	assert.Equal(t, fpp.DayEveryday, e.Int("day"))
	assert.Equal(t, "2031-12-31", e.Str("endDate"))
}

func TestPlanWeeklyByDay(t *testing.T) {
	p := newTestPlanner(t)
	start := time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC)
	until := time.Date(2026, time.December, 31, 23, 59, 59, 0, time.UTC)

	desired, _, err := p.Plan([]Series{
		playlistSeries("u1", start, 2*time.Hour, &ical.RRule{
			Freq:     "WEEKLY",
			Interval: 1,
			ByDay:    []time.Weekday{time.Friday, time.Saturday},
			Until:    &until,
		}),
	})
	require.NoError(t, err)
	require.Len(t, desired, 1)

	e := desired[0].Entry
	assert.Equal(t, fpp.DayFriSat, e.Int("day"))
	assert.Equal(t, "2026-12-31", e.Str("endDate"))
}

func TestPlanUntilRollsBackEarlierClock(t *testing.T) {
	p := newTestPlanner(t)
	start := time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC)
	// UNTIL time of day earlier than DTSTART's: the last day has no
	// occurrence, so the range ends one day sooner.
	until := time.Date(2026, time.December, 10, 12, 0, 0, 0, time.UTC)

	desired, _, err := p.Plan([]Series{
		playlistSeries("u1", start, 2*time.Hour, &ical.RRule{Freq: "DAILY", Interval: 1, Until: &until}),
	})
	require.NoError(t, err)
	require.Len(t, desired, 1)
	assert.Equal(t, "2026-12-09", desired[0].Entry.Str("endDate"))
}

func TestPlanGuardDrops(t *testing.T) {
	p := newTestPlanner(t)
	farFuture := time.Date(2032, time.June, 1, 18, 0, 0, 0, time.UTC)

	desired, _, err := p.Plan([]Series{playlistSeries("u1", farFuture, time.Hour, nil)})
	require.NoError(t, err)
	assert.Empty(t, desired)
}

func TestPlanYAMLOverridesDefaults(t *testing.T) {
	p := newTestPlanner(t)
	start := time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC)

	s := playlistSeries("u1", start, 4*time.Hour, nil)
	s.YAMLBase = map[string]any{
		"enabled":  false,
		"repeat":   "none",
		"stopType": "hard",
		"start":    map[string]any{"symbolic": "sunset", "offset": -15},
	}

	desired, _, err := p.Plan([]Series{s})
	require.NoError(t, err)
	require.Len(t, desired, 1)

	e := desired[0].Entry
	assert.Equal(t, 0, e.Int("enabled"))
	assert.Equal(t, fpp.RepeatNone, e.Int("repeat"))
	assert.Equal(t, int(fpp.StopHard), e.Int("stopType"))
	assert.Equal(t, "SunSet", e.Str("startTime"))
	assert.Equal(t, -15, e.Int("startTimeOffset"))
}

func TestPlanExplicitClockOverride(t *testing.T) {
	p := newTestPlanner(t)
	start := time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC)

	s := playlistSeries("u1", start, 4*time.Hour, nil)
	s.YAMLBase = map[string]any{
		"start": map[string]any{"time": "19:30"},
		"end":   map[string]any{"time": "23:15:30"},
	}

	desired, _, err := p.Plan([]Series{s})
	require.NoError(t, err)
	require.Len(t, desired, 1)

	e := desired[0].Entry
	assert.Equal(t, "19:30:00", e.Str("startTime"))
	assert.Equal(t, "23:15:30", e.Str("endTime"))
}

func TestPlanEntryLimit(t *testing.T) {
	p := newTestPlanner(t)
	start := time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC)

	var series []Series
	for i := 0; i < EntryLimit+1; i++ {
		series = append(series, playlistSeries(fmt.Sprintf("u%d", i), start, time.Hour, nil))
	}

	_, _, err := p.Plan(series)
	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, EntryLimit, le.Limit)
	assert.Equal(t, EntryLimit+1, le.Attempted)
}

func TestPlanOverridePrecedesBase(t *testing.T) {
	p := newTestPlanner(t)
	start := time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC)
	until := time.Date(2026, time.December, 20, 23, 59, 59, 0, time.UTC)

	s := playlistSeries("u1", start, 2*time.Hour, &ical.RRule{Freq: "DAILY", Interval: 1, Until: &until})
	ovStart := time.Date(2026, time.December, 5, 19, 0, 0, 0, time.UTC)
	s.Occurrences = append(s.Occurrences, ical.Occurrence{
		Start:      ovStart,
		End:        ovStart.Add(time.Hour),
		IsOverride: true,
		Event: &ical.Event{
			UID:        "u1",
			Summary:    s.Event.Summary,
			Start:      ovStart,
			End:        ovStart.Add(time.Hour),
			IsOverride: true,
		},
	})

	desired, _, err := p.Plan([]Series{s})
	require.NoError(t, err)
	require.Len(t, desired, 2)

	// Single-day override sits above its base so the host picks it.
	assert.Equal(t, "2026-12-05", desired[0].Entry.Str("startDate"))
	assert.Equal(t, "2026-12-05", desired[0].Entry.Str("endDate"))
	assert.Equal(t, "2026-12-01", desired[1].Entry.Str("startDate"))
}

func TestPlanOrderingContainedRangeFirst(t *testing.T) {
	p := newTestPlanner(t)

	seasonStart := time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC)
	seasonUntil := time.Date(2026, time.December, 31, 23, 59, 59, 0, time.UTC)
	season := playlistSeries("season", seasonStart, 4*time.Hour, &ical.RRule{Freq: "DAILY", Interval: 1, Until: &seasonUntil})

	weekStart := time.Date(2026, time.December, 20, 18, 0, 0, 0, time.UTC)
	weekUntil := time.Date(2026, time.December, 26, 23, 59, 59, 0, time.UTC)
	week := playlistSeries("week", weekStart, 4*time.Hour, &ical.RRule{Freq: "DAILY", Interval: 1, Until: &weekUntil})

	desired, _, err := p.Plan([]Series{season, week})
	require.NoError(t, err)
	require.Len(t, desired, 2)

	// The contained Christmas week outranks the season-wide run even
	// though it starts later.
	assert.Equal(t, "week", desired[0].UID)
	assert.Equal(t, "season", desired[1].UID)
}

func TestPlanOrderingNarrowerWindowFirst(t *testing.T) {
	p := newTestPlanner(t)

	until := time.Date(2026, time.December, 31, 23, 59, 59, 0, time.UTC)
	allEvening := playlistSeries("long", time.Date(2026, time.December, 1, 17, 0, 0, 0, time.UTC), 6*time.Hour,
		&ical.RRule{Freq: "DAILY", Interval: 1, Until: &until})
	shortWindow := playlistSeries("short", time.Date(2026, time.December, 1, 19, 0, 0, 0, time.UTC), time.Hour,
		&ical.RRule{Freq: "DAILY", Interval: 1, Until: &until})

	desired, _, err := p.Plan([]Series{allEvening, shortWindow})
	require.NoError(t, err)
	require.Len(t, desired, 2)
	assert.Equal(t, "short", desired[0].UID)
	assert.Equal(t, "long", desired[1].UID)
}

func TestPlanNonOverlappingKeepChronologicalOrder(t *testing.T) {
	p := newTestPlanner(t)

	october := playlistSeries("october",
		time.Date(2026, time.October, 1, 18, 0, 0, 0, time.UTC), 2*time.Hour,
		&ical.RRule{Freq: "DAILY", Interval: 1, Until: timePtr(time.Date(2026, time.October, 31, 23, 59, 59, 0, time.UTC))})
	december := playlistSeries("december",
		time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC), 2*time.Hour,
		&ical.RRule{Freq: "DAILY", Interval: 1, Until: timePtr(time.Date(2026, time.December, 31, 23, 59, 59, 0, time.UTC))})

	desired, _, err := p.Plan([]Series{december, october})
	require.NoError(t, err)
	require.Len(t, desired, 2)
	assert.Equal(t, "october", desired[0].UID)
	assert.Equal(t, "december", desired[1].UID)
}

func TestPlanCommandDefaults(t *testing.T) {
	p := newTestPlanner(t)
	start := time.Date(2026, time.December, 1, 23, 0, 0, 0, time.UTC)

	s := playlistSeries("cmd", start, 0, nil)
	s.Kind = fpp.TargetCommand
	s.Target = "All Lights Off"

	desired, _, err := p.Plan([]Series{s})
	require.NoError(t, err)
	require.Len(t, desired, 1)

	e := desired[0].Entry
	assert.Equal(t, "All Lights Off", e.Str("command"))
	// Commands fire once.
	assert.Equal(t, fpp.RepeatNone, e.Int("repeat"))
	assert.Equal(t, "23:01:00", e.Str("endTime"))
}

func timePtr(t time.Time) *time.Time { return &t }
