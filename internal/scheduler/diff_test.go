package scheduler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
	"github.com/robbiet76/fpp-calendar-sync/internal/holiday"
	"github.com/robbiet76/fpp-calendar-sync/internal/manifest"
)

func newTestDiffer(t *testing.T) (*Differ, *manifest.Builder) {
	t.Helper()
	now := time.Date(2026, time.August, 24, 12, 0, 0, 0, time.UTC)
	b := manifest.NewBuilder(holiday.NewResolver(time.UTC), now)
	return NewDiffer(b, zerolog.Nop()), b
}

func managedEntry(t *testing.T, b *manifest.Builder, playlist, startTime string) fpp.Entry {
	t.Helper()
	e := fpp.Entry{
		"enabled":   1,
		"playlist":  playlist,
		"day":       fpp.DayEveryday,
		"startTime": startTime,
		"endTime":   "22:00:00",
		"startDate": "2026-12-01",
		"endDate":   "2026-12-31",
		"repeat":    1,
		"stopType":  0,
	}
	sc, err := b.Sidecar(e)
	require.NoError(t, err)
	e["_manifest"] = sc.AsMap()
	return e
}

func TestComputeCreates(t *testing.T) {
	d, b := newTestDiffer(t)

	want := managedEntry(t, b, "MainShow", "18:00:00")
	diff := d.Compute([]Desired{{UID: "u1", Entry: want}}, nil)

	assert.Len(t, diff.Creates, 1)
	assert.Empty(t, diff.Updates)
	assert.Empty(t, diff.Deletes)
	assert.Equal(t, Counts{Creates: 1}, diff.Counts())
}

func TestComputeIdempotent(t *testing.T) {
	d, b := newTestDiffer(t)

	e := managedEntry(t, b, "MainShow", "18:00:00")
	diff := d.Compute([]Desired{{UID: "u1", Entry: e}}, []fpp.Entry{e.Clone()})

	assert.True(t, diff.Counts().Empty())
}

func TestComputeUpdateOnBehaviorChange(t *testing.T) {
	d, b := newTestDiffer(t)

	existing := managedEntry(t, b, "MainShow", "18:00:00")
	changed := existing.Clone()
	changed["repeat"] = 3000
	sc, err := b.Sidecar(changed)
	require.NoError(t, err)
	changed["_manifest"] = sc.AsMap()

	diff := d.Compute([]Desired{{UID: "u1", Entry: changed}}, []fpp.Entry{existing})
	require.Len(t, diff.Updates, 1)
	assert.Empty(t, diff.Creates)
	assert.Empty(t, diff.Deletes)
	assert.Equal(t, 3000, diff.Updates[0].Desired.Entry.Int("repeat"))
}

func TestComputeUpdateOnEnabledFlip(t *testing.T) {
	d, b := newTestDiffer(t)

	// enabled is outside the comparator's canonical field set; the
	// sidecar hash has to carry the change on its own.
	existing := managedEntry(t, b, "MainShow", "18:00:00")
	disabled := existing.Clone()
	disabled["enabled"] = 0
	sc, err := b.Sidecar(disabled)
	require.NoError(t, err)
	disabled["_manifest"] = sc.AsMap()

	require.Equal(t, existing.ManifestID(), disabled.ManifestID())

	diff := d.Compute([]Desired{{UID: "u1", Entry: disabled}}, []fpp.Entry{existing})
	require.Len(t, diff.Updates, 1)
	assert.Empty(t, diff.Creates)
	assert.Empty(t, diff.Deletes)
	assert.Equal(t, 0, diff.Updates[0].Desired.Entry.Int("enabled"))
}

func TestComputeOffsetChangeReplacesEntry(t *testing.T) {
	d, b := newTestDiffer(t)

	existing := managedEntry(t, b, "MainShow", "SunSet")
	shifted := existing.Clone()
	shifted["startTimeOffset"] = 30
	sc, err := b.Sidecar(shifted)
	require.NoError(t, err)
	shifted["_manifest"] = sc.AsMap()

	// The offset is part of the identity key, so the old entry goes and
	// a new one arrives instead of updating in place.
	require.NotEqual(t, existing.ManifestID(), shifted.ManifestID())

	diff := d.Compute([]Desired{{UID: "u1", Entry: shifted}}, []fpp.Entry{existing})
	assert.Len(t, diff.Creates, 1)
	assert.Len(t, diff.Deletes, 1)
	assert.Empty(t, diff.Updates)
}

func TestComputeDeleteManagedNotDesired(t *testing.T) {
	d, b := newTestDiffer(t)

	stale := managedEntry(t, b, "OldShow", "18:00:00")
	diff := d.Compute(nil, []fpp.Entry{stale})

	require.Len(t, diff.Deletes, 1)
	assert.Equal(t, "OldShow", diff.Deletes[0].Str("playlist"))
}

func TestComputeLeavesUnmanagedAlone(t *testing.T) {
	d, b := newTestDiffer(t)

	hand := fpp.Entry{
		"playlist":  "HandAdded",
		"day":       fpp.DayEveryday,
		"startTime": "09:00:00",
		"endTime":   "10:00:00",
		"startDate": "2026-01-01",
		"endDate":   "2026-12-31",
	}
	want := managedEntry(t, b, "MainShow", "18:00:00")

	diff := d.Compute([]Desired{{UID: "u1", Entry: want}}, []fpp.Entry{hand})
	assert.Len(t, diff.Creates, 1)
	assert.Empty(t, diff.Updates)
	assert.Empty(t, diff.Deletes)
}

func TestComputeAdoptsMatchingUnmanaged(t *testing.T) {
	d, b := newTestDiffer(t)

	want := managedEntry(t, b, "MainShow", "18:00:00")

	// Identical schedule, hand-written without a sidecar.
	unmanaged := want.Clone()
	delete(unmanaged, "_manifest")

	diff := d.Compute([]Desired{{UID: "u1", Entry: want}}, []fpp.Entry{unmanaged})
	require.Len(t, diff.Updates, 1)
	assert.Empty(t, diff.Creates)
	assert.False(t, diff.Updates[0].Existing.Managed())
}

func TestComputeAdoptionRequiresUID(t *testing.T) {
	d, b := newTestDiffer(t)

	want := managedEntry(t, b, "MainShow", "18:00:00")
	unmanaged := want.Clone()
	delete(unmanaged, "_manifest")

	diff := d.Compute([]Desired{{UID: "", Entry: want}}, []fpp.Entry{unmanaged})
	assert.Len(t, diff.Creates, 1)
	assert.Empty(t, diff.Updates)
}

func TestComputeLegacyTaggedEntries(t *testing.T) {
	d, b := newTestDiffer(t)

	legacy := managedEntry(t, b, "MainShow", "18:00:00")
	delete(legacy, "_manifest")
	legacy["args"] = []any{fpp.LegacyTagPrefix + "old-uid"}

	// Same identity arrives with the sidecar form: legacy entry updates
	// in place instead of delete+create.
	want := managedEntry(t, b, "MainShow", "18:00:00")
	diff := d.Compute([]Desired{{UID: "u1", Entry: want}}, []fpp.Entry{legacy})

	require.Len(t, diff.Updates, 1)
	assert.Empty(t, diff.Creates)
	assert.Empty(t, diff.Deletes)

	// And a legacy entry no longer desired is deleted.
	diff = d.Compute(nil, []fpp.Entry{legacy})
	assert.Len(t, diff.Deletes, 1)
}

func TestComputeDuplicateDesiredKeepsFirst(t *testing.T) {
	d, b := newTestDiffer(t)

	first := managedEntry(t, b, "MainShow", "18:00:00")
	dup := first.Clone()

	diff := d.Compute([]Desired{{UID: "u1", Entry: first}, {UID: "u2", Entry: dup}}, nil)
	assert.Len(t, diff.Creates, 1)
	assert.Equal(t, "u1", diff.Creates[0].UID)
}

func TestEqualComparator(t *testing.T) {
	a := fpp.Entry{"playlist": "x", "day": 7, "startTime": "18:00:00", "endTime": "22:00:00", "repeat": 1}
	b := a.Clone()
	assert.True(t, Equal(a, b))

	b["day"] = 8
	assert.False(t, Equal(a, b))

	c := a.Clone()
	c["sequence"] = 1
	assert.False(t, Equal(a, c))

	// Float/int spellings of the same value compare equal.
	d := a.Clone()
	d["day"] = float64(7)
	assert.True(t, Equal(a, d))
}
