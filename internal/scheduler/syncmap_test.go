package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
)

func playlistIntent() Intent {
	start := time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC)
	return Intent{
		UID: "uid-1",
		Template: Template{
			Kind:     fpp.TargetPlaylist,
			Target:   "MainShow",
			Start:    start,
			End:      start.Add(4 * time.Hour),
			Enabled:  true,
			Repeat:   fpp.RepeatImmediate,
			StopType: fpp.StopGraceful,
		},
		Range: Range{
			Start: time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC),
			Days:  fpp.DaysEveryday,
		},
	}
}

func TestIntentToEntryPlaylist(t *testing.T) {
	e, err := IntentToEntry(playlistIntent())
	require.NoError(t, err)

	assert.Equal(t, "MainShow", e.Str("playlist"))
	assert.Equal(t, "", e.Str("command"))
	assert.Equal(t, 0, e.Int("sequence"))
	assert.Equal(t, 1, e.Int("enabled"))
	assert.Equal(t, fpp.DayEveryday, e.Int("day"))
	assert.Equal(t, "18:00:00", e.Str("startTime"))
	assert.Equal(t, "22:00:00", e.Str("endTime"))
	assert.Equal(t, "2026-12-01", e.Str("startDate"))
	assert.Equal(t, "2026-12-31", e.Str("endDate"))
	assert.Equal(t, fpp.RepeatImmediate, e.Int("repeat"))
	assert.Equal(t, 0, e.Int("stopType"))
}

func TestIntentToEntrySequence(t *testing.T) {
	in := playlistIntent()
	in.Template.Kind = fpp.TargetSequence
	in.Template.Target = "Intro"

	e, err := IntentToEntry(in)
	require.NoError(t, err)
	// Sequences ride the playlist slot with the flag set.
	assert.Equal(t, "Intro", e.Str("playlist"))
	assert.Equal(t, 1, e.Int("sequence"))
	assert.Equal(t, fpp.TargetSequence, e.Kind())
}

func TestIntentToEntryCommand(t *testing.T) {
	in := playlistIntent()
	in.Template.Kind = fpp.TargetCommand
	in.Template.Target = "All Lights Off"
	in.Template.Repeat = fpp.RepeatNone
	in.Template.CommandArgs = []string{"--zone=front"}
	in.Range.End = time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC)

	e, err := IntentToEntry(in)
	require.NoError(t, err)
	assert.Equal(t, "All Lights Off", e.Str("command"))
	// Commands get a one-minute window and a collapsed date range.
	assert.Equal(t, "18:00:00", e.Str("startTime"))
	assert.Equal(t, "18:01:00", e.Str("endTime"))
	assert.Equal(t, e.Str("startDate"), e.Str("endDate"))
	assert.Equal(t, []string{"--zone=front"}, e.Args())
}

func TestIntentToEntrySymbolicTimes(t *testing.T) {
	in := playlistIntent()
	in.Template.StartSym = &SymbolicTime{Token: "SunSet", Offset: -30}
	in.Template.EndSym = &SymbolicTime{Token: "Dusk", Offset: 0}

	e, err := IntentToEntry(in)
	require.NoError(t, err)
	assert.Equal(t, "SunSet", e.Str("startTime"))
	assert.Equal(t, -30, e.Int("startTimeOffset"))
	assert.Equal(t, "Dusk", e.Str("endTime"))
	assert.Equal(t, 0, e.Int("endTimeOffset"))
}

func TestIntentToEntryMidnightEnd(t *testing.T) {
	in := playlistIntent()
	in.Template.End = time.Date(2026, time.December, 2, 0, 0, 0, 0, time.UTC)

	e, err := IntentToEntry(in)
	require.NoError(t, err)
	assert.Equal(t, "24:00:00", e.Str("endTime"))
}

func TestIntentToEntryRejectsInvalid(t *testing.T) {
	in := playlistIntent()
	in.Template.Kind = "projector"
	_, err := IntentToEntry(in)
	assert.Error(t, err)

	in = playlistIntent()
	in.Template.Target = ""
	_, err = IntentToEntry(in)
	assert.Error(t, err)
}
