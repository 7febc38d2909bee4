package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
	"github.com/robbiet76/fpp-calendar-sync/internal/metadata"
	"github.com/robbiet76/fpp-calendar-sync/internal/target"
	"github.com/robbiet76/fpp-calendar-sync/pkg/ical"
)

// Runner fetches and parses the feed and aggregates events into series
// records, one per UID, with occurrences expanded over [now, guard].
type Runner struct {
	fetcher *ical.Fetcher
	targets *target.Resolver
	loc     *time.Location
	logger  zerolog.Logger
}

func NewRunner(fetcher *ical.Fetcher, targets *target.Resolver, loc *time.Location, logger zerolog.Logger) *Runner {
	if loc == nil {
		loc = time.Local
	}
	return &Runner{
		fetcher: fetcher,
		targets: targets,
		loc:     loc,
		logger:  logger.With().Str("component", "runner").Logger(),
	}
}

// Run builds the series list. Problems with individual series become
// warnings or debug lines; only the feed as a whole going missing is a
// warning the caller surfaces (an empty feed plans a full delete).
func (r *Runner) Run(ctx context.Context, icsURL string, now time.Time) ([]Series, []string) {
	var warnings []string

	raw := r.fetcher.Fetch(ctx, icsURL)
	if raw == "" {
		warnings = append(warnings, "calendar fetch returned no data")
		return nil, warnings
	}

	events, err := ical.Parse([]byte(raw), r.loc)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("calendar parse failed: %v", err))
		return nil, warnings
	}

	// Group by UID preserving feed order so output is deterministic.
	var order []string
	bases := make(map[string]*ical.Event)
	overrides := make(map[string]map[string]*ical.Event)
	for _, ev := range events {
		if _, seen := bases[ev.UID]; !seen {
			if _, seen := overrides[ev.UID]; !seen {
				order = append(order, ev.UID)
			}
		}
		if ev.IsOverride {
			if overrides[ev.UID] == nil {
				overrides[ev.UID] = make(map[string]*ical.Event)
			}
			overrides[ev.UID][ical.Key(*ev.RecurrenceID)] = ev
			continue
		}
		if bases[ev.UID] == nil {
			bases[ev.UID] = ev
		}
	}

	horizonEnd := fpp.GuardDate(now)

	var out []Series
	for _, uid := range order {
		base := bases[uid]
		if base == nil {
			r.logger.Debug().Str("uid", uid).Msg("override instances without a base event, skipping")
			continue
		}
		if base.IsAllDay {
			r.logger.Debug().Str("uid", uid).Msg("all-day event, skipping")
			continue
		}

		kind, tgt, ok := r.targets.Resolve(base.Summary)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("no playlist, sequence or command matches %q", base.Summary))
			continue
		}

		yamlBase := metadata.Parse(base.Description)
		if t, ok := yamlBase["type"].(string); ok {
			if k := fpp.NormalizeType(t); k != "" {
				kind = k
			}
		}

		occs, err := ical.Expand(base, overrides[uid], now, horizonEnd)
		if err != nil {
			// MONTHLY/YEARLY and friends: dropped silently by design.
			r.logger.Debug().Str("uid", uid).Err(err).Msg("series not expandable, skipping")
			continue
		}
		if len(occs) == 0 {
			r.logger.Debug().Str("uid", uid).Msg("no occurrences in horizon, skipping")
			continue
		}

		out = append(out, Series{
			UID:         uid,
			Event:       base,
			Overrides:   overrides[uid],
			Kind:        kind,
			Target:      tgt,
			YAMLBase:    yamlBase,
			Occurrences: occs,
		})
	}

	r.logger.Info().Int("events", len(events)).Int("series", len(out)).Msg("calendar expanded")
	return out, warnings
}
