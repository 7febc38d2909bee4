package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/robbiet76/fpp-calendar-sync/internal/config"
	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
	"github.com/robbiet76/fpp-calendar-sync/internal/holiday"
	"github.com/robbiet76/fpp-calendar-sync/internal/manifest"
	"github.com/robbiet76/fpp-calendar-sync/internal/target"
	"github.com/robbiet76/fpp-calendar-sync/pkg/ical"
)

// Service ties the pipeline together: plan previews, apply mutates the
// schedule file, rollback restores the previous applied snapshot. One
// mutex serializes the mutating paths; plans are read-only and safe to
// run concurrently with each other but share the mutex anyway as a
// safety net.
type Service struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	cfg      *config.Manager
	loc      *time.Location
	now      func() time.Time
	fetcher  *ical.Fetcher
	targets  *target.Resolver
	file     *fpp.ScheduleFile
	store    *manifest.Store
	holidays *holiday.Resolver
}

func NewService(cfg *config.Manager, file *fpp.ScheduleFile, store *manifest.Store, fetcher *ical.Fetcher, targets *target.Resolver, holidays *holiday.Resolver, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		logger:   logger.With().Str("component", "service").Logger(),
		cfg:      cfg,
		loc:      loc,
		now:      time.Now,
		fetcher:  fetcher,
		targets:  targets,
		file:     file,
		store:    store,
		holidays: holidays,
	}
}

// PlanResult is a full preview: what the feed said, what we want, what
// the file has and the change set between them.
type PlanResult struct {
	OK       bool
	Err      *LimitError
	Series   []Series
	Desired  []Desired
	Existing []fpp.Entry
	Diff     Diff
	Warnings []string
}

// ApplyResult reports one apply run.
type ApplyResult struct {
	OK       bool
	DryRun   bool
	Counts   Counts
	Backup   string
	Warnings []string
	Err      error
}

// Plan computes the preview without touching the schedule file.
func (s *Service) Plan(ctx context.Context) PlanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan(ctx)
}

func (s *Service) plan(ctx context.Context) PlanResult {
	now := s.now().In(s.loc)
	cfg := s.cfg.Current()

	existing := s.file.Read()

	// No calendar configured is not an outage: plan nothing, delete
	// nothing.
	if cfg.Calendar.ICSURL == "" {
		return PlanResult{
			OK:       true,
			Existing: existing,
			Diff:     Diff{Creates: []Desired{}, Updates: []Update{}, Deletes: []fpp.Entry{}},
			Warnings: []string{"no calendar url configured"},
		}
	}

	builder := manifest.NewBuilder(s.holidays, now)
	runner := NewRunner(s.fetcher, s.targets, s.loc, s.logger)
	series, warnings := runner.Run(ctx, cfg.Calendar.ICSURL, now)

	planner := NewPlanner(builder, now, s.logger)
	desired, pwarn, err := planner.Plan(series)
	warnings = append(warnings, pwarn...)
	if err != nil {
		var le *LimitError
		if errors.As(err, &le) {
			return PlanResult{Err: le, Series: series, Existing: existing, Warnings: warnings}
		}
		warnings = append(warnings, err.Error())
		return PlanResult{Existing: existing, Warnings: warnings}
	}

	diff := NewDiffer(builder, s.logger).Compute(desired, existing)
	return PlanResult{
		OK:       true,
		Series:   series,
		Desired:  desired,
		Existing: existing,
		Diff:     diff,
		Warnings: warnings,
	}
}

// Apply recomputes the plan and writes it through backup, atomic
// rename and verify. With dry-run enabled it returns the would-be
// counts without writing.
func (s *Service) Apply(ctx context.Context) ApplyResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().In(s.loc)
	plan := s.plan(ctx)
	if !plan.OK {
		err := error(plan.Err)
		if plan.Err == nil {
			err = fmt.Errorf("plan failed: %v", plan.Warnings)
		}
		s.recordSync(now, "error", err.Error(), Counts{})
		return ApplyResult{Warnings: plan.Warnings, Err: err}
	}

	counts := plan.Diff.Counts()

	if s.cfg.Current().DryRun() {
		warnings := append(plan.Warnings, "apply blocked while dry-run is enabled")
		s.recordSync(now, "dry_run", "", counts)
		return ApplyResult{OK: true, DryRun: true, Counts: counts, Warnings: warnings}
	}

	if counts.Empty() {
		s.recordSync(now, "ok", "", counts)
		return ApplyResult{OK: true, Counts: counts, Warnings: plan.Warnings}
	}

	entries, err := s.file.ReadStrict()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.recordSync(now, "error", err.Error(), counts)
		return ApplyResult{Warnings: plan.Warnings, Err: fmt.Errorf("read schedule: %w", err)}
	}

	next := s.rebuild(entries, plan.Desired, now)

	backup, err := s.file.Backup(now)
	if err != nil {
		s.recordSync(now, "error", err.Error(), counts)
		return ApplyResult{Warnings: plan.Warnings, Err: fmt.Errorf("backup schedule: %w", err)}
	}

	if err := s.file.WriteAtomic(next); err != nil {
		s.recordSync(now, "error", err.Error(), counts)
		return ApplyResult{Backup: backup, Warnings: plan.Warnings, Err: err}
	}

	expect, absent := verifySets(plan.Desired, plan.Diff.Deletes)
	if err := s.file.Verify(expect, absent); err != nil {
		s.recordSync(now, "error", err.Error(), counts)
		return ApplyResult{Backup: backup, Warnings: plan.Warnings, Err: err}
	}

	warnings := plan.Warnings
	if err := s.commitManifest(now, plan.Desired); err != nil {
		// The schedule is already correct on disk; a stale manifest
		// only degrades the next undo.
		s.logger.Warn().Err(err).Msg("manifest commit failed")
		warnings = append(warnings, fmt.Sprintf("manifest commit failed: %v", err))
	}

	s.recordSync(now, "ok", "", counts)
	s.logger.Info().
		Int("creates", counts.Creates).
		Int("updates", counts.Updates).
		Int("deletes", counts.Deletes).
		Str("backup", backup).
		Msg("schedule applied")
	return ApplyResult{OK: true, Counts: counts, Backup: backup, Warnings: warnings}
}

// rebuild walks the current file: unmanaged entries keep their slots,
// the managed block is replaced wholesale at the position of the first
// managed (or adopted) entry, in planner order.
func (s *Service) rebuild(existing []fpp.Entry, desired []Desired, now time.Time) []fpp.Entry {
	builder := manifest.NewBuilder(s.holidays, now)

	// Adoption only claims ids no managed entry already owns. A
	// hand-written copy of a managed entry is not adopted by the diff
	// and must keep its slot here too.
	owned := make(map[string]bool)
	for _, e := range existing {
		if !e.Managed() {
			continue
		}
		id := e.ManifestID()
		if id == "" {
			if ident, err := builder.FromEntry(e); err == nil {
				id = builder.ID(ident)
			}
		}
		if id != "" {
			owned[id] = true
		}
	}

	adoptable := make(map[string]int)
	for _, d := range desired {
		if id := d.Entry.ManifestID(); id != "" && !owned[id] {
			adoptable[id]++
		}
	}

	insertAt := -1
	var kept []fpp.Entry
	for _, e := range existing {
		drop := false
		if e.Managed() {
			drop = true
		} else if ident, err := builder.FromEntry(e); err == nil {
			// Unmanaged entry whose identity we now own: it was
			// adopted, the desired block carries its replacement.
			if id := builder.ID(ident); adoptable[id] > 0 {
				adoptable[id]--
				drop = true
			}
		}
		if drop {
			if insertAt < 0 {
				insertAt = len(kept)
			}
			continue
		}
		kept = append(kept, e)
	}
	if insertAt < 0 {
		insertAt = len(kept)
	}

	next := make([]fpp.Entry, 0, len(kept)+len(desired))
	next = append(next, kept[:insertAt]...)
	for _, d := range desired {
		next = append(next, d.Entry)
	}
	next = append(next, kept[insertAt:]...)
	return next
}

func (s *Service) commitManifest(now time.Time, desired []Desired) error {
	builder := manifest.NewBuilder(s.holidays, now)
	snap := manifest.Snapshot{AppliedAt: now.UTC(), Entries: []manifest.Entry{}}
	for _, d := range desired {
		sc, err := builder.Sidecar(d.Entry)
		if err != nil {
			return fmt.Errorf("uid %s: %w", d.UID, err)
		}
		snap.Entries = append(snap.Entries, manifest.Entry{
			UID:      d.UID,
			ID:       sc.ID,
			Hash:     sc.Hash,
			Identity: sc.Identity,
			Payload:  d.Entry.Clone(),
		})
		snap.Order = append(snap.Order, sc.ID)
	}
	return s.store.Commit(s.cfg.Current().Calendar.ICSURL, snap)
}

// Rollback restores the previous applied snapshot: the schedule file
// gets the previous managed block (unmanaged entries untouched), then
// the manifest swaps snapshots. The swap happens last so a failed file
// write leaves the undo available.
func (s *Service) Rollback() ApplyResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().In(s.loc)

	f, err := s.store.Load()
	if err != nil {
		return ApplyResult{Err: err}
	}
	if f.Previous == nil {
		return ApplyResult{Err: manifest.ErrNoPrevious}
	}

	entries, err := s.file.ReadStrict()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ApplyResult{Err: fmt.Errorf("read schedule: %w", err)}
	}

	desired := make([]Desired, 0, len(f.Previous.Entries))
	for _, me := range f.Previous.Entries {
		desired = append(desired, Desired{UID: me.UID, Entry: me.Payload})
	}

	next := s.rebuild(entries, desired, now)

	backup, err := s.file.Backup(now)
	if err != nil {
		return ApplyResult{Err: fmt.Errorf("backup schedule: %w", err)}
	}
	if err := s.file.WriteAtomic(next); err != nil {
		return ApplyResult{Backup: backup, Err: err}
	}

	expect := make([]string, 0, len(f.Previous.Entries))
	for _, me := range f.Previous.Entries {
		expect = append(expect, me.ID)
	}
	if err := s.file.Verify(expect, nil); err != nil {
		return ApplyResult{Backup: backup, Err: err}
	}

	if _, err := s.store.Rollback(); err != nil {
		return ApplyResult{Backup: backup, Err: fmt.Errorf("swap manifest: %w", err)}
	}

	s.logger.Info().Int("entries", len(desired)).Str("backup", backup).Msg("rolled back to previous snapshot")
	return ApplyResult{OK: true, Backup: backup}
}

// verifySets derives what must be present and absent after a write.
func verifySets(desired []Desired, deletes []fpp.Entry) (expect, absent []string) {
	want := make(map[string]bool)
	for _, d := range desired {
		if id := d.Entry.ManifestID(); id != "" {
			expect = append(expect, id)
			want[id] = true
		}
	}
	for _, e := range deletes {
		if id := e.ManifestID(); id != "" && !want[id] {
			absent = append(absent, id)
		}
	}
	return expect, absent
}

func (s *Service) recordSync(now time.Time, status, errMsg string, counts Counts) {
	err := s.cfg.UpdateSync(func(sy *config.SyncStatus) {
		sy.LastRun = now.UTC().Format(time.RFC3339)
		sy.LastStatus = status
		sy.LastError = errMsg
		sy.Creates = counts.Creates
		sy.Updates = counts.Updates
		sy.Deletes = counts.Deletes
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("sync status update failed")
	}
}
