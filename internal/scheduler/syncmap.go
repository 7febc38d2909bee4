package scheduler

import (
	"fmt"
	"time"

	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
)

// IntentToEntry is the mechanical mapping from a planner intent to a
// host scheduler entry. Pure: no I/O, no retained state.
func IntentToEntry(in Intent) (fpp.Entry, error) {
	t := in.Template

	switch t.Kind {
	case fpp.TargetPlaylist, fpp.TargetSequence, fpp.TargetCommand:
	default:
		return nil, fmt.Errorf("unsupported target type %q", t.Kind)
	}
	if t.Target == "" {
		return nil, fmt.Errorf("intent has no target")
	}
	if t.Start.IsZero() {
		return nil, fmt.Errorf("intent has no start time")
	}

	start, end := t.Start, t.End
	if t.Kind == fpp.TargetCommand {
		// Commands are instants; the host still wants a window.
		end = start.Add(time.Minute)
	}

	startDate := fpp.FormatDate(start)
	if !in.Range.Start.IsZero() {
		startDate = fpp.FormatDate(in.Range.Start)
	}
	endDate := startDate
	if !in.Range.End.IsZero() {
		endDate = fpp.FormatDate(in.Range.End)
	}
	if t.Kind == fpp.TargetCommand {
		endDate = startDate
	}

	entry := fpp.Entry{
		"enabled":         boolInt(t.Enabled),
		"sequence":        0,
		"day":             fpp.DayFromTokens(in.Range.Days, start.Weekday()),
		"startTime":       fpp.Clock(start),
		"endTime":         fpp.EndClock(start, end),
		"startTimeOffset": 0,
		"endTimeOffset":   0,
		"repeat":          t.Repeat,
		"startDate":       startDate,
		"endDate":         endDate,
		"stopType":        int(t.StopType),
		"playlist":        "",
		"command":         "",
	}

	if t.StartSym != nil {
		entry["startTime"] = t.StartSym.Token
		entry["startTimeOffset"] = t.StartSym.Offset
	}
	if t.EndSym != nil {
		entry["endTime"] = t.EndSym.Token
		entry["endTimeOffset"] = t.EndSym.Offset
	}

	switch t.Kind {
	case fpp.TargetCommand:
		entry["command"] = t.Target
		if len(t.CommandArgs) > 0 {
			entry["args"] = t.CommandArgs
		}
	case fpp.TargetSequence:
		// Sequences ride the playlist slot with the sequence flag set.
		entry["playlist"] = t.Target
		entry["sequence"] = 1
	default:
		entry["playlist"] = t.Target
	}

	return entry, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
