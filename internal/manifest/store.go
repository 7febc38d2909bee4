package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
)

const SchemaVersion = 1

// Entry is one applied scheduler entry in a snapshot.
type Entry struct {
	UID      string    `json:"uid"`
	ID       string    `json:"id"`
	Hash     string    `json:"hash"`
	Identity *Identity `json:"identity"`
	Payload  fpp.Entry `json:"payload"`
}

// Snapshot is the applied state of one run.
type Snapshot struct {
	AppliedAt time.Time `json:"appliedAt"`
	Entries   []Entry   `json:"entries"`
	Order     []string  `json:"order"`
}

// File is the on-disk manifest: the current snapshot plus at most one
// previous snapshot for undo. Unknown keys are ignored on load.
type File struct {
	SchemaVersion int       `json:"schemaVersion"`
	Calendar      string    `json:"calendar"`
	Current       *Snapshot `json:"current"`
	Previous      *Snapshot `json:"previous"`
}

// ErrNoPrevious means there is nothing to roll back to.
var ErrNoPrevious = errors.New("manifest has no previous snapshot")

// Store persists the manifest file atomically.
type Store struct {
	path   string
	logger zerolog.Logger
}

func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With().Str("component", "manifest").Logger(),
	}
}

// Load reads the manifest; a missing file is an empty manifest.
func (s *Store) Load() (*File, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &File{SchemaVersion: SchemaVersion}, nil
		}
		return nil, err
	}
	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if f.SchemaVersion == 0 {
		f.SchemaVersion = SchemaVersion
	}
	return &f, nil
}

// Commit promotes current to previous and installs the new snapshot.
// Called only after the scheduler file has been written and verified.
func (s *Store) Commit(calendar string, snap Snapshot) error {
	f, err := s.Load()
	if err != nil {
		return err
	}
	f.SchemaVersion = SchemaVersion
	f.Calendar = calendar
	f.Previous = f.Current
	f.Current = &snap
	return s.write(f)
}

// Rollback swaps previous into current and clears previous; one undo
// level only. It returns the snapshot now current so the caller can
// re-apply it to the scheduler file.
func (s *Store) Rollback() (*Snapshot, error) {
	f, err := s.Load()
	if err != nil {
		return nil, err
	}
	if f.Previous == nil {
		return nil, ErrNoPrevious
	}
	f.Current = f.Previous
	f.Previous = nil
	if err := s.write(f); err != nil {
		return nil, err
	}
	return f.Current, nil
}

func (s *Store) write(f *File) error {
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	s.logger.Debug().Str("path", s.path).Msg("manifest written")
	return nil
}
