// Package scheduler turns calendar series into an ordered desired entry
// set, diffs it against the live schedule file and applies the result.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
	"github.com/robbiet76/fpp-calendar-sync/pkg/ical"
)

// EntryLimit is the hard cap on managed entries per run.
const EntryLimit = 100

// maxOrderPasses bounds the precedence bubble sort.
const maxOrderPasses = 50

// Series is the per-UID aggregation the runner emits: reference event,
// overrides, resolved target, base metadata and expanded occurrences.
type Series struct {
	UID         string
	Event       *ical.Event
	Overrides   map[string]*ical.Event
	Kind        fpp.TargetKind
	Target      string
	YAMLBase    map[string]any
	Occurrences []ical.Occurrence
}

// SymbolicTime is a sun-relative schedule boundary.
type SymbolicTime struct {
	Token  string
	Offset int
}

// Template captures what to run and how, independent of the date range.
type Template struct {
	Summary     string
	Kind        fpp.TargetKind
	Target      string
	Start       time.Time
	End         time.Time
	StopType    fpp.StopType
	Repeat      int
	Enabled     bool
	IsOverride  bool
	StartSym    *SymbolicTime
	EndSym      *SymbolicTime
	CommandArgs []string
}

// Range is the calendar window an intent occupies. Days is the compact
// two-letter token concatenation, Su..Sa order.
type Range struct {
	Start time.Time
	End   time.Time
	Days  string
}

// Intent is one prospective scheduler entry.
type Intent struct {
	UID      string
	Template Template
	Range    Range
}

// Bundle is one base intent plus its overrides; it moves as a unit
// during precedence ordering.
type Bundle struct {
	Base      Intent
	Overrides []Intent
}

// Desired is a fully mapped entry with its planner UID, ready to diff.
type Desired struct {
	UID   string    `json:"uid"`
	Entry fpp.Entry `json:"entry"`
}

// Update pairs an existing entry with the desired entry replacing it.
type Update struct {
	Existing fpp.Entry `json:"existing"`
	Desired  Desired   `json:"desired"`
}

// Diff is the change set: sets, not sequences. Apply preserves planner
// order independently.
type Diff struct {
	Creates []Desired
	Updates []Update
	Deletes []fpp.Entry
}

type Counts struct {
	Creates int `json:"creates"`
	Updates int `json:"updates"`
	Deletes int `json:"deletes"`
}

func (d *Diff) Counts() Counts {
	return Counts{Creates: len(d.Creates), Updates: len(d.Updates), Deletes: len(d.Deletes)}
}

func (c Counts) Empty() bool {
	return c.Creates == 0 && c.Updates == 0 && c.Deletes == 0
}

// LimitError reports the managed entry cap being exceeded.
type LimitError struct {
	Limit     int `json:"limit"`
	Attempted int `json:"attempted"`
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("scheduler_entry_limit_exceeded: attempted %d entries, limit %d", e.Attempted, e.Limit)
}

// ErrorType is the wire name for the cap error.
func (e *LimitError) ErrorType() string { return "scheduler_entry_limit_exceeded" }
