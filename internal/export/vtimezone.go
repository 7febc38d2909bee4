package export

import (
	"fmt"
	"time"

	goical "github.com/emersion/go-ical"
)

// timezone synthesizes a practical VTIMEZONE from the zone's actual
// transitions in a window around now. Clients only need the rules
// covering the exported events, not the full tz database history.
func (x *Exporter) timezone(now time.Time) *goical.Component {
	if x.loc == time.UTC {
		return nil
	}

	tz := &goical.Component{
		Name:  goical.CompTimezone,
		Props: make(goical.Props),
	}
	tz.Props.SetText(goical.PropTimezoneID, x.loc.String())

	from := now.AddDate(-1, 0, 0)
	to := now.AddDate(6, 0, 0)

	transitions := scanTransitions(x.loc, from, to)
	if len(transitions) == 0 {
		// Fixed-offset zone: one STANDARD block covers everything.
		_, off := now.In(x.loc).Zone()
		std := observance(goical.CompTimezoneStandard, time.Date(1970, 1, 1, 0, 0, 0, 0, x.loc), off, off)
		tz.Children = append(tz.Children, std)
		return tz
	}

	for _, tr := range transitions {
		name := goical.CompTimezoneStandard
		if tr.dst {
			name = goical.CompTimezoneDaylight
		}
		tz.Children = append(tz.Children, observance(name, tr.at.In(x.loc), tr.offsetFrom, tr.offsetTo))
	}
	return tz
}

type transition struct {
	at         time.Time
	offsetFrom int
	offsetTo   int
	dst        bool
}

// scanTransitions finds offset changes by stepping six-hour windows
// and bisecting each change down to the second.
func scanTransitions(loc *time.Location, from, to time.Time) []transition {
	const step = 6 * time.Hour

	var out []transition
	prev := from
	_, prevOff := prev.In(loc).Zone()
	for t := from.Add(step); !t.After(to); t = t.Add(step) {
		_, off := t.In(loc).Zone()
		if off == prevOff {
			prev = t
			continue
		}
		at := bisect(loc, prev, t, prevOff)
		local := at.In(loc)
		_, newOff := local.Zone()
		out = append(out, transition{
			at:         at,
			offsetFrom: prevOff,
			offsetTo:   newOff,
			dst:        local.IsDST(),
		})
		prev = t
		prevOff = off
	}
	return out
}

// bisect narrows [lo, hi] to the first instant whose offset differs
// from loOff.
func bisect(loc *time.Location, lo, hi time.Time, loOff int) time.Time {
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2)
		if _, off := mid.In(loc).Zone(); off == loOff {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi
}

func observance(name string, start time.Time, offFrom, offTo int) *goical.Component {
	c := &goical.Component{
		Name:  name,
		Props: make(goical.Props),
	}
	c.Props.Set(&goical.Prop{Name: goical.PropDateTimeStart, Value: start.Format("20060102T150405")})
	c.Props.SetText(goical.PropTimezoneOffsetFrom, utcOffset(offFrom))
	c.Props.SetText(goical.PropTimezoneOffsetTo, utcOffset(offTo))
	if zone, _ := start.Zone(); zone != "" {
		c.Props.SetText(goical.PropTimezoneName, zone)
	}
	return c
}

func utcOffset(seconds int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("%s%02d%02d", sign, seconds/3600, (seconds%3600)/60)
}
