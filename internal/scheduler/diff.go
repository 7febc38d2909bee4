package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
	"github.com/robbiet76/fpp-calendar-sync/internal/manifest"
)

// Differ computes the CREATE/UPDATE/DELETE set between desired entries
// and the current schedule file, keyed by manifest identity.
type Differ struct {
	identity *manifest.Builder
	logger   zerolog.Logger
}

func NewDiffer(identity *manifest.Builder, logger zerolog.Logger) *Differ {
	return &Differ{
		identity: identity,
		logger:   logger.With().Str("component", "diff").Logger(),
	}
}

// Compute partitions the file into managed and unmanaged entries, then
// resolves each desired entry against the managed index, attempting
// identity adoption of unmanaged entries for ids the file has never
// seen. Managed ids no longer desired become deletes.
func (d *Differ) Compute(desired []Desired, existing []fpp.Entry) Diff {
	diff := Diff{Creates: []Desired{}, Updates: []Update{}, Deletes: []fpp.Entry{}}

	var managedOrder []string
	managed := make(map[string]fpp.Entry)
	var unmanaged []fpp.Entry
	consumed := make(map[int]bool)

	for _, e := range existing {
		if !e.Managed() {
			unmanaged = append(unmanaged, e)
			continue
		}
		id := e.ManifestID()
		if id == "" {
			// Legacy args-tagged entry: key it by derived identity.
			if ident, err := d.identity.FromEntry(e); err == nil {
				id = d.identity.ID(ident)
			}
		}
		if id == "" {
			// Managed but unidentifiable; leave it alone like any
			// hand-added entry.
			unmanaged = append(unmanaged, e)
			continue
		}
		if _, dup := managed[id]; !dup {
			managed[id] = e
			managedOrder = append(managedOrder, id)
		}
	}

	seen := make(map[string]bool)
	for _, want := range desired {
		id := want.Entry.ManifestID()
		if id == "" || seen[id] {
			// Duplicate desired ids keep the first.
			continue
		}
		seen[id] = true

		if ex, ok := managed[id]; ok {
			// The stored behavior hash catches fields the comparator
			// does not carry, like the enabled flag. A legacy
			// args-tagged entry has no hash and updates even when
			// behavior matches, migrating it to the sidecar form.
			if !Equal(ex, want.Entry) || ex.ManifestHash() != want.Entry.ManifestHash() {
				diff.Updates = append(diff.Updates, Update{Existing: ex, Desired: want})
			}
			continue
		}

		// Adoption needs a stable planner UID; without one, aliasing an
		// unmanaged entry is too risky and we create instead.
		if want.UID != "" {
			if idx, ok := d.findAdoptable(id, unmanaged, consumed); ok {
				consumed[idx] = true
				diff.Updates = append(diff.Updates, Update{Existing: unmanaged[idx], Desired: want})
				d.logger.Info().Str("id", id).Str("uid", want.UID).Msg("adopting unmanaged entry")
				continue
			}
		}
		diff.Creates = append(diff.Creates, want)
	}

	for _, id := range managedOrder {
		if !seen[id] {
			diff.Deletes = append(diff.Deletes, managed[id])
		}
	}
	return diff
}

// findAdoptable looks for an unmanaged entry whose canonical identity
// resolves to the same id.
func (d *Differ) findAdoptable(id string, unmanaged []fpp.Entry, consumed map[int]bool) (int, bool) {
	for i, e := range unmanaged {
		if consumed[i] {
			continue
		}
		ident, err := d.identity.FromEntry(e)
		if err != nil {
			continue
		}
		if d.identity.ID(ident) == id {
			return i, true
		}
	}
	return 0, false
}

// Canonical field set the comparator tests for behavioral equality.
var comparatorStrFields = []string{
	"startDate", "endDate", "startTime", "endTime", "playlist", "command",
}

var comparatorIntFields = []string{
	"day", "sequence", "repeat", "stopType",
}

// Equal is the SchedulerComparator: equality over the canonical field
// set, types and targets included.
func Equal(a, b fpp.Entry) bool {
	if a.Kind() != b.Kind() || a.Target() != b.Target() {
		return false
	}
	for _, f := range comparatorStrFields {
		if a.Str(f) != b.Str(f) {
			return false
		}
	}
	for _, f := range comparatorIntFields {
		if a.Int(f) != b.Int(f) {
			return false
		}
	}
	return true
}
